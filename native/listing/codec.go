package listing

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

type storedPlatformConfig struct {
	Authority          [20]byte
	FeeCollector       [20]byte
	FeeBasisPoints     uint32
	MinListingDuration uint64
	MaxListingDuration uint64
	MinTradeAmount     uint64
	MaxListingsPerUser uint32
	Paused             bool
	WhitelistEnabled   bool
	CreatedAt          uint64
	UpdatedAt          uint64
}

type storedPlatformStats struct {
	TotalListingsCreated uint64
	TotalSwapsExecuted   uint64
	TotalVolumeTraded    uint64
	TotalFeesCollected   uint64
}

type storedWhitelistEntry struct {
	Asset         [20]byte
	IsWhitelisted bool
	UpdatedAt     uint64
}

type storedUserProfile struct {
	Owner                  [20]byte
	Referrer               [20]byte
	ListingsCreated        uint64
	ListingsCancelled      uint64
	SwapsExecuted          uint64
	SwapsReceived          uint64
	ActiveListings         uint64
	VolumeAsMaker          uint64
	VolumeAsTaker          uint64
	TotalFeesPaid          uint64
	DefaultListingDuration uint64
	DefaultSlippageBps     uint32
	CreatedAt              uint64
	LastActivityAt         uint64
}

type storedListing struct {
	Key                        [32]byte
	ID                         uint64
	Maker                      [20]byte
	SourceAsset                [20]byte
	DestAsset                  [20]byte
	AmountSourceTotal          uint64
	AmountSourceRemaining      uint64
	AmountDestinationTotal     uint64
	AmountDestinationRemaining uint64
	MinFillAmount              uint64
	MaxSlippageBps             uint32
	ExpiresAt                  uint64
	CreatedAt                  uint64
	UpdatedAt                  uint64
	Status                     uint8
	FillCount                  uint64
}

type storedVault struct {
	Listing [32]byte
	Asset   [20]byte
	Balance uint64
}

type storedMakerIndex struct {
	Listing [32]byte
}

func toUnix(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func fromUnix(v uint64) int64 { return int64(v) }

func newStoredPlatformConfig(p *PlatformConfig) *storedPlatformConfig {
	return &storedPlatformConfig{
		Authority:          p.Authority,
		FeeCollector:       p.FeeCollector,
		FeeBasisPoints:     p.FeeBasisPoints,
		MinListingDuration: toUnix(p.MinListingDuration),
		MaxListingDuration: toUnix(p.MaxListingDuration),
		MinTradeAmount:     p.MinTradeAmount,
		MaxListingsPerUser: p.MaxListingsPerUser,
		Paused:             p.Paused,
		WhitelistEnabled:   p.WhitelistEnabled,
		CreatedAt:          toUnix(p.CreatedAt),
		UpdatedAt:          toUnix(p.UpdatedAt),
	}
}

func (s *storedPlatformConfig) toPlatformConfig(stats *storedPlatformStats) *PlatformConfig {
	cfg := &PlatformConfig{
		Authority:          s.Authority,
		FeeCollector:       s.FeeCollector,
		FeeBasisPoints:     s.FeeBasisPoints,
		MinListingDuration: fromUnix(s.MinListingDuration),
		MaxListingDuration: fromUnix(s.MaxListingDuration),
		MinTradeAmount:     s.MinTradeAmount,
		MaxListingsPerUser: s.MaxListingsPerUser,
		Paused:             s.Paused,
		WhitelistEnabled:   s.WhitelistEnabled,
		CreatedAt:          fromUnix(s.CreatedAt),
		UpdatedAt:          fromUnix(s.UpdatedAt),
	}
	if stats != nil {
		cfg.TotalListingsCreated = stats.TotalListingsCreated
		cfg.TotalSwapsExecuted = stats.TotalSwapsExecuted
		cfg.TotalVolumeTraded = stats.TotalVolumeTraded
		cfg.TotalFeesCollected = stats.TotalFeesCollected
	}
	return cfg
}

func newStoredWhitelistEntry(e *WhitelistEntry) *storedWhitelistEntry {
	return &storedWhitelistEntry{Asset: e.Asset, IsWhitelisted: e.IsWhitelisted, UpdatedAt: toUnix(e.UpdatedAt)}
}

func (s *storedWhitelistEntry) toEntry() *WhitelistEntry {
	return &WhitelistEntry{Asset: s.Asset, IsWhitelisted: s.IsWhitelisted, UpdatedAt: fromUnix(s.UpdatedAt)}
}

func newStoredUserProfile(u *UserProfile) *storedUserProfile {
	return &storedUserProfile{
		Owner:                  u.Owner,
		Referrer:               u.Referrer,
		ListingsCreated:        u.ListingsCreated,
		ListingsCancelled:      u.ListingsCancelled,
		SwapsExecuted:          u.SwapsExecuted,
		SwapsReceived:          u.SwapsReceived,
		ActiveListings:         u.ActiveListings,
		VolumeAsMaker:          u.VolumeAsMaker,
		VolumeAsTaker:          u.VolumeAsTaker,
		TotalFeesPaid:          u.TotalFeesPaid,
		DefaultListingDuration: toUnix(u.DefaultListingDuration),
		DefaultSlippageBps:     u.DefaultSlippageBps,
		CreatedAt:              toUnix(u.CreatedAt),
		LastActivityAt:         toUnix(u.LastActivityAt),
	}
}

func (s *storedUserProfile) toProfile() *UserProfile {
	return &UserProfile{
		Owner:                  s.Owner,
		Referrer:               s.Referrer,
		ListingsCreated:        s.ListingsCreated,
		ListingsCancelled:      s.ListingsCancelled,
		SwapsExecuted:          s.SwapsExecuted,
		SwapsReceived:          s.SwapsReceived,
		ActiveListings:         s.ActiveListings,
		VolumeAsMaker:          s.VolumeAsMaker,
		VolumeAsTaker:          s.VolumeAsTaker,
		TotalFeesPaid:          s.TotalFeesPaid,
		DefaultListingDuration: fromUnix(s.DefaultListingDuration),
		DefaultSlippageBps:     s.DefaultSlippageBps,
		CreatedAt:              fromUnix(s.CreatedAt),
		LastActivityAt:         fromUnix(s.LastActivityAt),
	}
}

func newStoredListing(l *Listing) *storedListing {
	return &storedListing{
		Key:                        l.Key,
		ID:                         l.ID,
		Maker:                      l.Maker,
		SourceAsset:                l.SourceAsset,
		DestAsset:                  l.DestAsset,
		AmountSourceTotal:          l.AmountSourceTotal,
		AmountSourceRemaining:      l.AmountSourceRemaining,
		AmountDestinationTotal:     l.AmountDestinationTotal,
		AmountDestinationRemaining: l.AmountDestinationRemaining,
		MinFillAmount:              l.MinFillAmount,
		MaxSlippageBps:             l.MaxSlippageBps,
		ExpiresAt:                  toUnix(l.ExpiresAt),
		CreatedAt:                  toUnix(l.CreatedAt),
		UpdatedAt:                  toUnix(l.UpdatedAt),
		Status:                     uint8(l.Status),
		FillCount:                  l.FillCount,
	}
}

func (s *storedListing) toListing() (*Listing, error) {
	status := Status(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("listing: stored status %d out of range", s.Status)
	}
	return &Listing{
		Key:                        s.Key,
		ID:                         s.ID,
		Maker:                      s.Maker,
		SourceAsset:                s.SourceAsset,
		DestAsset:                  s.DestAsset,
		AmountSourceTotal:          s.AmountSourceTotal,
		AmountSourceRemaining:      s.AmountSourceRemaining,
		AmountDestinationTotal:     s.AmountDestinationTotal,
		AmountDestinationRemaining: s.AmountDestinationRemaining,
		MinFillAmount:              s.MinFillAmount,
		MaxSlippageBps:             s.MaxSlippageBps,
		ExpiresAt:                  fromUnix(s.ExpiresAt),
		CreatedAt:                  fromUnix(s.CreatedAt),
		UpdatedAt:                  fromUnix(s.UpdatedAt),
		Status:                     status,
		FillCount:                  s.FillCount,
	}, nil
}

// mergeProfile builds a commutative update of a profile record. A missing
// profile is created for owner at now before fn runs.
func mergeProfile(owner [20]byte, now int64, fn func(*UserProfile) error) func([]byte, bool) ([]byte, error) {
	return func(current []byte, exists bool) ([]byte, error) {
		profile := &UserProfile{Owner: owner, CreatedAt: now}
		if exists {
			var stored storedUserProfile
			if err := rlp.DecodeBytes(current, &stored); err != nil {
				return nil, err
			}
			profile = stored.toProfile()
		}
		if err := fn(profile); err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(newStoredUserProfile(profile))
	}
}

// mergeStats builds a commutative update of the platform counters.
func mergeStats(fn func(*storedPlatformStats) error) func([]byte, bool) ([]byte, error) {
	return func(current []byte, exists bool) ([]byte, error) {
		var stats storedPlatformStats
		if exists {
			if err := rlp.DecodeBytes(current, &stats); err != nil {
				return nil, err
			}
		}
		if err := fn(&stats); err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(&stats)
	}
}
