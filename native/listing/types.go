package listing

import (
	"fmt"
	"strings"
)

// ModuleName identifies the listing module to pause guards and metrics.
const ModuleName = "listing"

// MaxSlippageBps bounds every slippage tolerance expressed in basis points.
const MaxSlippageBps = 10_000

// Status represents the lifecycle states of a listing.
type Status uint8

const (
	// StatusPending is reserved for wire compatibility and never assigned.
	StatusPending Status = iota
	StatusActive
	StatusPartiallyFilled
	StatusCompleted
	StatusCancelled
	StatusExpired
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusPartiallyFilled, StatusCompleted, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is permitted out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// String returns the canonical lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus converts a status name back into its enum value.
func ParseStatus(value string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pending":
		return StatusPending, nil
	case "active":
		return StatusActive, nil
	case "partially_filled", "partiallyfilled":
		return StatusPartiallyFilled, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	case "expired":
		return StatusExpired, nil
	default:
		return StatusPending, fmt.Errorf("listing: unknown status %q", value)
	}
}

// PlatformConfig is the deployment-wide policy singleton together with its
// running counters.
type PlatformConfig struct {
	Authority            [20]byte
	FeeCollector         [20]byte
	FeeBasisPoints       uint32
	MinListingDuration   int64
	MaxListingDuration   int64
	MinTradeAmount       uint64
	MaxListingsPerUser   uint32
	Paused               bool
	WhitelistEnabled     bool
	TotalListingsCreated uint64
	TotalSwapsExecuted   uint64
	TotalVolumeTraded    uint64
	TotalFeesCollected   uint64
	CreatedAt            int64
	UpdatedAt            int64
}

// Clone returns a copy of the configuration.
func (p *PlatformConfig) Clone() *PlatformConfig {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// IsPaused reports whether the platform halts the named module. The platform
// pause covers every module that consults it.
func (p *PlatformConfig) IsPaused(string) bool {
	return p != nil && p.Paused
}

// WhitelistEntry records whether an asset may be used by new listings.
type WhitelistEntry struct {
	Asset         [20]byte
	IsWhitelisted bool
	UpdatedAt     int64
}

// UserProfile aggregates a participant's activity counters and defaults.
type UserProfile struct {
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
	DefaultListingDuration int64
	DefaultSlippageBps     uint32
	CreatedAt              int64
	LastActivityAt         int64
}

// HasReferrer reports whether the profile carries a referrer.
func (u *UserProfile) HasReferrer() bool {
	return u != nil && u.Referrer != ([20]byte{})
}

// Clone returns a copy of the profile.
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// Listing is a maker's offer of SourceAsset in exchange for DestAsset at a
// fixed original rate.
type Listing struct {
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
	ExpiresAt                  int64
	CreatedAt                  int64
	UpdatedAt                  int64
	Status                     Status
	FillCount                  uint64
}

// Clone returns a copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	return &clone
}

// ExpiredAt reports whether the listing's deadline has passed at now.
func (l *Listing) ExpiredAt(now int64) bool {
	return l != nil && now >= l.ExpiresAt
}

// OpenAt reports whether the listing accepts fills at now.
func (l *Listing) OpenAt(now int64) bool {
	return l != nil && !l.Status.Terminal() && !l.ExpiredAt(now)
}

// EffectiveStatus returns the status observed at now. A listing whose
// deadline passed reads as expired even before it is closed.
func (l *Listing) EffectiveStatus(now int64) Status {
	if l == nil {
		return StatusPending
	}
	if !l.Status.Terminal() && l.ExpiredAt(now) {
		return StatusExpired
	}
	return l.Status
}

// AwaitingClose reports whether the listing is past its deadline but its
// escrow has not been returned yet.
func (l *Listing) AwaitingClose(now int64) bool {
	return l != nil && !l.Status.Terminal() && l.ExpiredAt(now)
}

// Vault is the escrow balance paired with exactly one listing.
type Vault struct {
	Listing [32]byte
	Asset   [20]byte
	Balance uint64
}
