package listing

import (
	"errors"
	"sort"

	"escrowswap/core/state"
	"escrowswap/native/bank"
)

// maxReadAttempts bounds how often a multi-record read is retried when a
// commit lands between its reads.
const maxReadAttempts = 8

// consistentRead runs fn against a throwaway transaction and accepts its
// result only when none of the records it read changed before it finished.
func (e *Engine) consistentRead(fn func(txn *state.Txn) error) error {
	for attempt := 1; ; attempt++ {
		txn := e.store.Begin()
		err := fn(txn)
		verr := txn.Validate()
		txn.Discard()
		if verr == nil {
			return err
		}
		if !errors.Is(verr, state.ErrConflict) || attempt >= maxReadAttempts {
			return verr
		}
	}
}

// Platform returns the committed configuration merged with its counters.
func (e *Engine) Platform() (*PlatformConfig, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	var cfg *PlatformConfig
	err := e.consistentRead(func(txn *state.Txn) error {
		var stored storedPlatformConfig
		ok, err := txn.KVGet(platformConfigKey, &stored)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPlatformNotInitialized
		}
		var stats storedPlatformStats
		if _, err := txn.KVGet(platformStatsKey, &stats); err != nil {
			return err
		}
		cfg = stored.toPlatformConfig(&stats)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Whitelist returns the entry for asset, or nil when none was recorded.
func (e *Engine) Whitelist(asset [20]byte) (*WhitelistEntry, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	var stored storedWhitelistEntry
	ok, err := e.store.KVGet(whitelistKey(asset), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.toEntry(), nil
}

// WhitelistEntries returns every recorded whitelist entry ordered by asset.
func (e *Engine) WhitelistEntries() ([]*WhitelistEntry, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	var (
		entries []*WhitelistEntry
		iterErr error
	)
	err := e.store.KVIterate(whitelistPrefix, func(_ []byte, decode func(interface{}) error) bool {
		var stored storedWhitelistEntry
		if iterErr = decode(&stored); iterErr != nil {
			return false
		}
		entries = append(entries, stored.toEntry())
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, iterErr
}

// Profile returns owner's profile.
func (e *Engine) Profile(owner [20]byte) (*UserProfile, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	var stored storedUserProfile
	ok, err := e.store.KVGet(profileKey(owner), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProfileNotFound
	}
	return stored.toProfile(), nil
}

// Listing returns the listing stored under key. The status reflects expiry at
// the engine's current time.
func (e *Engine) Listing(key [32]byte) (*Listing, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	listing, err := e.readListing(key)
	if err != nil {
		return nil, err
	}
	listing.Status = listing.EffectiveStatus(e.now())
	return listing, nil
}

func (e *Engine) readListing(key [32]byte) (*Listing, error) {
	var stored storedListing
	ok, err := e.store.KVGet(listingRecordKey(key), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrListingNotFound
	}
	return stored.toListing()
}

// Listings enumerates every listing ordered by creation time. With openOnly
// set, only listings that still accept fills are returned.
func (e *Engine) Listings(openOnly bool) ([]*Listing, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	now := e.now()
	out, err := e.scanListings(func(l *Listing) bool {
		return !openOnly || l.OpenAt(now)
	})
	if err != nil {
		return nil, err
	}
	for _, listing := range out {
		listing.Status = listing.EffectiveStatus(now)
	}
	return out, nil
}

// StoredListings enumerates every listing with its persisted status. A listing
// past its deadline keeps its open status here until it is closed.
func (e *Engine) StoredListings() ([]*Listing, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	return e.scanListings(nil)
}

func (e *Engine) scanListings(keep func(*Listing) bool) ([]*Listing, error) {
	var (
		out     []*Listing
		iterErr error
	)
	err := e.store.KVIterate(listingRecordPrefix, func(_ []byte, decode func(interface{}) error) bool {
		var stored storedListing
		if iterErr = decode(&stored); iterErr != nil {
			return false
		}
		listing, err := stored.toListing()
		if err != nil {
			iterErr = err
			return false
		}
		if keep == nil || keep(listing) {
			out = append(out, listing)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	sortListings(out)
	return out, nil
}

// MakerListings returns every listing created by maker.
func (e *Engine) MakerListings(maker [20]byte) ([]*Listing, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	var (
		keys    [][32]byte
		iterErr error
	)
	err := e.store.KVIterate(makerIndexScan(maker), func(_ []byte, decode func(interface{}) error) bool {
		var idx storedMakerIndex
		if iterErr = decode(&idx); iterErr != nil {
			return false
		}
		keys = append(keys, idx.Listing)
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	now := e.now()
	out := make([]*Listing, 0, len(keys))
	for _, key := range keys {
		listing, err := e.readListing(key)
		if err != nil {
			return nil, err
		}
		listing.Status = listing.EffectiveStatus(now)
		out = append(out, listing)
	}
	sortListings(out)
	return out, nil
}

// Vault returns the escrow paired with the listing, or nil once it has been
// closed.
func (e *Engine) Vault(key [32]byte) (*Vault, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	var stored storedVault
	ok, err := e.store.KVGet(vaultKey(key), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &Vault{Listing: stored.Listing, Asset: stored.Asset, Balance: stored.Balance}, nil
}

// Balance returns owner's committed holding of asset.
func (e *Engine) Balance(owner, asset [20]byte) (uint64, error) {
	if e == nil || e.store == nil {
		return 0, errNilStore
	}
	return bank.BalanceOf(e.store, owner, asset)
}

// Quote prices a prospective fill against committed state without executing
// it.
func (e *Engine) Quote(key [32]byte, fillSource uint64) (Quote, error) {
	listing, err := e.Listing(key)
	if err != nil {
		return Quote{}, err
	}
	if listing.Status.Terminal() {
		if listing.Status == StatusExpired {
			return Quote{}, ErrListingExpired
		}
		return Quote{}, requireNotTerminal(listing)
	}
	cfg, err := e.Platform()
	if err != nil {
		return Quote{}, err
	}
	return QuoteFill(listing, fillSource, cfg.FeeBasisPoints)
}

func sortListings(listings []*Listing) {
	sort.SliceStable(listings, func(i, j int) bool {
		if listings[i].CreatedAt != listings[j].CreatedAt {
			return listings[i].CreatedAt < listings[j].CreatedAt
		}
		return HexKey(listings[i].Key) < HexKey(listings[j].Key)
	})
}
