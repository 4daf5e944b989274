package listing

import (
	"errors"
	"fmt"
)

// CreateParams carries a maker's listing request.
type CreateParams struct {
	ID                uint64
	SourceAsset       [20]byte
	DestAsset         [20]byte
	AmountSource      uint64
	AmountDestination uint64
	MinFillAmount     uint64
	// MaxSlippageBps falls back to the maker's profile default when nil.
	MaxSlippageBps *uint32
	// DurationSeconds falls back to the maker's profile default when zero.
	DurationSeconds int64
}

// UpdateParams lists the listing fields a maker may change while the listing
// is open. Nil fields are left untouched; a zero ExtendSeconds keeps the
// deadline.
type UpdateParams struct {
	AmountDestination *uint64
	MinFillAmount     *uint64
	MaxSlippageBps    *uint32
	ExtendSeconds     int64
}

// CreateListing validates the request against platform policy, moves the
// offered amount into a vault and records the listing.
func (e *Engine) CreateListing(maker [20]byte, params CreateParams) (*Listing, error) {
	var result *Listing
	err := e.execute("listing_create", func(c *opContext) error {
		cfg, err := c.loadConfig()
		if err != nil {
			return err
		}
		if err := guardPaused(cfg); err != nil {
			return err
		}
		if params.SourceAsset == params.DestAsset {
			return ErrSameTokenMints
		}
		if params.AmountSource == 0 || params.AmountDestination == 0 {
			return fmt.Errorf("%w: amounts must be positive", ErrInvalidAmount)
		}
		if params.AmountSource < cfg.MinTradeAmount || params.AmountDestination < cfg.MinTradeAmount {
			return fmt.Errorf("%w: minimum trade is %d", ErrAmountTooSmall, cfg.MinTradeAmount)
		}
		if params.MinFillAmount > params.AmountSource {
			return fmt.Errorf("%w: %d > %d", ErrMinFillAmountTooLarge, params.MinFillAmount, params.AmountSource)
		}
		profile, created, err := c.loadOrCreateProfile(maker)
		if err != nil {
			return err
		}
		slippage := profile.DefaultSlippageBps
		if params.MaxSlippageBps != nil {
			slippage = *params.MaxSlippageBps
		}
		if err := validateSlippage(slippage); err != nil {
			return err
		}
		duration := params.DurationSeconds
		if duration == 0 {
			duration = profile.DefaultListingDuration
		}
		if err := ValidateDuration(cfg, duration); err != nil {
			return err
		}
		if err := c.checkEligible(cfg, params.SourceAsset); err != nil {
			return err
		}
		if err := c.checkEligible(cfg, params.DestAsset); err != nil {
			return err
		}

		key := DeriveKey(maker, params.ID)
		switch _, err := c.loadListing(key); {
		case err == nil:
			return fmt.Errorf("%w: id %d", ErrListingAlreadyExists, params.ID)
		case !errors.Is(err, ErrListingNotFound):
			return err
		}
		if profile.ActiveListings >= uint64(cfg.MaxListingsPerUser) {
			return fmt.Errorf("%w: %d active", ErrMaxListingsReached, profile.ActiveListings)
		}
		expiresAt, err := checkedAddUnix(c.now, duration)
		if err != nil {
			return err
		}

		listing := &Listing{
			Key:                        key,
			ID:                         params.ID,
			Maker:                      maker,
			SourceAsset:                params.SourceAsset,
			DestAsset:                  params.DestAsset,
			AmountSourceTotal:          params.AmountSource,
			AmountSourceRemaining:      params.AmountSource,
			AmountDestinationTotal:     params.AmountDestination,
			AmountDestinationRemaining: params.AmountDestination,
			MinFillAmount:              params.MinFillAmount,
			MaxSlippageBps:             slippage,
			ExpiresAt:                  expiresAt,
			CreatedAt:                  c.now,
			UpdatedAt:                  c.now,
			Status:                     StatusActive,
		}
		if _, err := c.openVault(listing, params.AmountSource); err != nil {
			return err
		}
		if err := c.storeListing(listing); err != nil {
			return err
		}
		if err := c.txn.KVPut(makerIndexKey(maker, key), &storedMakerIndex{Listing: key}); err != nil {
			return err
		}

		if profile.ActiveListings, err = checkedAdd(profile.ActiveListings, 1); err != nil {
			return err
		}
		if profile.ListingsCreated, err = checkedAdd(profile.ListingsCreated, 1); err != nil {
			return err
		}
		profile.LastActivityAt = c.now
		if err := c.storeProfile(profile); err != nil {
			return err
		}
		if err := c.updateStats(func(stats *storedPlatformStats) error {
			var err error
			stats.TotalListingsCreated, err = checkedAdd(stats.TotalListingsCreated, 1)
			return err
		}); err != nil {
			return err
		}

		if created {
			c.emit(newProfileEvent(EventTypeProfileCreated, profile))
		}
		c.emit(newListingEvent(EventTypeListingCreated, listing))
		result = listing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// requireOpen rejects listings that can no longer be traded or amended.
// Expiry is checked first and wins over every other condition.
func requireOpen(l *Listing, now int64) error {
	if l.ExpiredAt(now) {
		return fmt.Errorf("%w: expired at %d", ErrListingExpired, l.ExpiresAt)
	}
	return requireNotTerminal(l)
}

func requireNotTerminal(l *Listing) error {
	switch l.Status {
	case StatusActive, StatusPartiallyFilled:
		return nil
	case StatusCompleted:
		return ErrListingAlreadyCompleted
	default:
		return fmt.Errorf("%w: %s", ErrListingNotActive, l.Status)
	}
}

// UpdateListing amends an open listing. The destination amount may change
// only before the first fill, since later fills price against it.
func (e *Engine) UpdateListing(caller [20]byte, key [32]byte, params UpdateParams) (*Listing, error) {
	var result *Listing
	err := e.execute("listing_update", func(c *opContext) error {
		cfg, err := c.loadConfig()
		if err != nil {
			return err
		}
		listing, err := c.loadListing(key)
		if err != nil {
			return err
		}
		if caller != listing.Maker {
			return ErrNotListingMaker
		}
		if err := requireOpen(listing, c.now); err != nil {
			return err
		}
		if err := guardPaused(cfg); err != nil {
			return err
		}
		if params.AmountDestination != nil {
			if listing.FillCount > 0 {
				return fmt.Errorf("%w: destination amount is fixed after the first fill", ErrInvalidListingStatus)
			}
			amount := *params.AmountDestination
			if amount == 0 {
				return fmt.Errorf("%w: destination amount must be positive", ErrInvalidAmount)
			}
			if amount < cfg.MinTradeAmount {
				return fmt.Errorf("%w: minimum trade is %d", ErrAmountTooSmall, cfg.MinTradeAmount)
			}
			listing.AmountDestinationTotal = amount
			listing.AmountDestinationRemaining = amount
		}
		if params.MinFillAmount != nil {
			if *params.MinFillAmount > listing.AmountSourceTotal {
				return fmt.Errorf("%w: %d > %d", ErrMinFillAmountTooLarge, *params.MinFillAmount, listing.AmountSourceTotal)
			}
			listing.MinFillAmount = *params.MinFillAmount
		}
		if params.MaxSlippageBps != nil {
			if err := validateSlippage(*params.MaxSlippageBps); err != nil {
				return err
			}
			listing.MaxSlippageBps = *params.MaxSlippageBps
		}
		if params.ExtendSeconds < 0 {
			return fmt.Errorf("%w: extension must be positive", ErrDurationTooShort)
		}
		if params.ExtendSeconds > 0 {
			expiresAt, err := checkedAddUnix(listing.ExpiresAt, params.ExtendSeconds)
			if err != nil {
				return err
			}
			if expiresAt-listing.CreatedAt > cfg.MaxListingDuration {
				return fmt.Errorf("%w: total duration %ds above maximum %ds", ErrDurationTooLong, expiresAt-listing.CreatedAt, cfg.MaxListingDuration)
			}
			listing.ExpiresAt = expiresAt
		}
		listing.UpdatedAt = c.now
		if err := c.storeListing(listing); err != nil {
			return err
		}
		c.emit(newListingEvent(EventTypeListingUpdated, listing))
		result = listing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelListing returns the unfilled amount to the maker and marks the
// listing cancelled. A listing past its deadline that has not been closed yet
// may still be cancelled; the refund is identical to an expiry close.
func (e *Engine) CancelListing(caller [20]byte, key [32]byte) (*Listing, error) {
	var result *Listing
	err := e.execute("listing_cancel", func(c *opContext) error {
		listing, err := c.loadListing(key)
		if err != nil {
			return err
		}
		if caller != listing.Maker {
			return ErrNotListingMaker
		}
		if err := requireNotTerminal(listing); err != nil {
			return err
		}
		refunded, err := c.refund(listing, StatusCancelled, func(p *UserProfile) error {
			var err error
			p.ListingsCancelled, err = checkedAdd(p.ListingsCancelled, 1)
			return err
		})
		if err != nil {
			return err
		}
		c.emit(newRefundEvent(EventTypeListingCancelled, listing, refunded, caller))
		result = listing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CloseExpiredListing returns the unfilled amount of a listing whose deadline
// has passed. Anyone may call it.
func (e *Engine) CloseExpiredListing(caller [20]byte, key [32]byte) (*Listing, error) {
	var result *Listing
	err := e.execute("listing_closeExpired", func(c *opContext) error {
		listing, err := c.loadListing(key)
		if err != nil {
			return err
		}
		if err := requireNotTerminal(listing); err != nil {
			return err
		}
		if !listing.ExpiredAt(c.now) {
			return fmt.Errorf("%w: expires at %d", ErrListingNotExpired, listing.ExpiresAt)
		}
		refunded, err := c.refund(listing, StatusExpired, nil)
		if err != nil {
			return err
		}
		c.emit(newRefundEvent(EventTypeListingExpired, listing, refunded, caller))
		result = listing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// refund empties the listing's vault back to the maker, closes it and moves
// the listing into the terminal status. The maker's active count drops by one.
func (c *opContext) refund(l *Listing, status Status, extra func(*UserProfile) error) (uint64, error) {
	vault, err := c.checkVault(l)
	if err != nil {
		return 0, err
	}
	refunded := vault.Balance
	if err := c.releaseVault(vault, refunded, l.Maker); err != nil {
		return 0, err
	}
	if err := c.closeVault(vault); err != nil {
		return 0, err
	}
	l.Status = status
	l.UpdatedAt = c.now
	if err := c.storeListing(l); err != nil {
		return 0, err
	}
	now := c.now
	if err := c.updateProfile(l.Maker, func(p *UserProfile) error {
		var err error
		if p.ActiveListings, err = checkedSub(p.ActiveListings, 1); err != nil {
			return err
		}
		p.LastActivityAt = now
		if extra != nil {
			return extra(p)
		}
		return nil
	}); err != nil {
		return 0, err
	}
	return refunded, nil
}
