package listing

import (
	"errors"
	"fmt"

	"escrowswap/native/bank"
)

// SwapParams carries a taker's fill request.
type SwapParams struct {
	FillAmountSource uint64
	// MaxAmountDestination is the most the taker is willing to pay.
	MaxAmountDestination uint64
}

// Quote describes the settlement of one fill.
type Quote struct {
	FillAmountSource      uint64
	FillAmountDestination uint64
	Fee                   uint64
	MakerReceives         uint64
	// Final is set when the fill exhausts the listing.
	Final bool
}

// SwapResult reports the settled fill together with the listing after it.
type SwapResult struct {
	Listing *Listing
	Quote   Quote
}

// QuoteFill prices a fill of fillSource against the listing's original rate.
// Rounding is applied to the cumulative filled amount, so the destination
// paid so far always equals round_half_up(filled*destTotal/srcTotal) and the
// remainders stay within half a unit of the original rate. The final fill
// settles exactly the remaining destination amount, which may be zero when
// rounding already delivered the declared total. The minimum-fill floor does
// not apply to the final fill.
func QuoteFill(l *Listing, fillSource uint64, feeBasisPoints uint32) (Quote, error) {
	var q Quote
	if l == nil {
		return q, ErrListingNotFound
	}
	if fillSource == 0 {
		return q, fmt.Errorf("%w: fill amount must be positive", ErrInvalidAmount)
	}
	if fillSource > l.AmountSourceRemaining {
		return q, fmt.Errorf("%w: %d > %d", ErrSwapAmountExceedsRemaining, fillSource, l.AmountSourceRemaining)
	}
	final := fillSource == l.AmountSourceRemaining
	if !final && fillSource < l.MinFillAmount {
		return q, fmt.Errorf("%w: %d below minimum fill %d", ErrFillAmountTooSmall, fillSource, l.MinFillAmount)
	}
	dest := l.AmountDestinationRemaining
	if !final {
		var err error
		dest, err = cumulativeFillDestination(l, fillSource)
		if err != nil {
			return q, err
		}
		if dest == 0 {
			return q, fmt.Errorf("%w: destination amount rounds to zero", ErrFillAmountTooSmall)
		}
	}
	fee, err := ComputeFee(dest, feeBasisPoints)
	if err != nil {
		return q, err
	}
	makerReceives, err := checkedSub(dest, fee)
	if err != nil {
		return q, err
	}
	return Quote{
		FillAmountSource:      fillSource,
		FillAmountDestination: dest,
		Fee:                   fee,
		MakerReceives:         makerReceives,
		Final:                 final,
	}, nil
}

// cumulativeFillDestination returns the destination amount owed for filling
// fillSource more, given what the listing has already filled and received.
func cumulativeFillDestination(l *Listing, fillSource uint64) (uint64, error) {
	filledBefore, err := checkedSub(l.AmountSourceTotal, l.AmountSourceRemaining)
	if err != nil {
		return 0, err
	}
	paidBefore, err := checkedSub(l.AmountDestinationTotal, l.AmountDestinationRemaining)
	if err != nil {
		return 0, err
	}
	filledAfter, err := checkedAdd(filledBefore, fillSource)
	if err != nil {
		return 0, err
	}
	owedAfter, err := mulDivRound(filledAfter, l.AmountDestinationTotal, l.AmountSourceTotal)
	if err != nil {
		return 0, err
	}
	if owedAfter <= paidBefore {
		return 0, nil
	}
	dest := owedAfter - paidBefore
	if dest > l.AmountDestinationRemaining {
		dest = l.AmountDestinationRemaining
	}
	return dest, nil
}

// ExecuteSwap fills part or all of an open listing. The taker pays the
// destination amount, the fee goes to the fee collector, the maker receives
// the rest and the taker receives the filled source amount from the vault.
func (e *Engine) ExecuteSwap(taker [20]byte, key [32]byte, params SwapParams) (*SwapResult, error) {
	var result *SwapResult
	err := e.execute("listing_swap", func(c *opContext) error {
		listing, err := c.loadListing(key)
		if err != nil {
			return err
		}
		if listing.ExpiredAt(c.now) {
			return fmt.Errorf("%w: expired at %d", ErrListingExpired, listing.ExpiresAt)
		}
		cfg, err := c.loadConfig()
		if err != nil {
			return err
		}
		if err := guardPaused(cfg); err != nil {
			return err
		}
		if err := requireNotTerminal(listing); err != nil {
			return err
		}
		quote, err := QuoteFill(listing, params.FillAmountSource, cfg.FeeBasisPoints)
		if err != nil {
			return err
		}
		if quote.FillAmountDestination > params.MaxAmountDestination {
			return fmt.Errorf("%w: fill costs %d, taker allows %d", ErrSlippageExceeded, quote.FillAmountDestination, params.MaxAmountDestination)
		}
		if !quote.Final && !withinRate(quote.FillAmountSource, quote.FillAmountDestination, listing.AmountSourceTotal, listing.AmountDestinationTotal, listing.MaxSlippageBps) {
			return fmt.Errorf("%w: fill rate deviates beyond %d bps", ErrSlippageExceeded, listing.MaxSlippageBps)
		}
		if taker == listing.Maker {
			return ErrCannotSwapOwnListing
		}

		vault, err := c.checkVault(listing)
		if err != nil {
			return err
		}
		for _, leg := range []struct {
			to     [20]byte
			amount uint64
		}{{listing.Maker, quote.MakerReceives}, {cfg.FeeCollector, quote.Fee}} {
			if err := c.bank.Transfer(taker, leg.to, listing.DestAsset, leg.amount); err != nil {
				if errors.Is(err, bank.ErrInsufficientBalance) {
					return fmt.Errorf("%w: %v", ErrInsufficientTakerBalance, err)
				}
				return err
			}
		}
		if err := c.releaseVault(vault, quote.FillAmountSource, taker); err != nil {
			return err
		}

		if listing.AmountSourceRemaining, err = checkedSub(listing.AmountSourceRemaining, quote.FillAmountSource); err != nil {
			return err
		}
		if listing.AmountDestinationRemaining, err = checkedSub(listing.AmountDestinationRemaining, quote.FillAmountDestination); err != nil {
			return err
		}
		if listing.FillCount, err = checkedAdd(listing.FillCount, 1); err != nil {
			return err
		}
		listing.UpdatedAt = c.now
		if listing.AmountSourceRemaining == 0 {
			listing.Status = StatusCompleted
			if err := c.closeVault(vault); err != nil {
				return err
			}
		} else {
			listing.Status = StatusPartiallyFilled
		}
		if err := c.storeListing(listing); err != nil {
			return err
		}

		if err := c.settleCounters(listing, taker, quote); err != nil {
			return err
		}

		c.emit(newFilledEvent(listing, taker, &quote))
		if listing.Status == StatusCompleted {
			c.emit(newListingEvent(EventTypeListingCompleted, listing))
		}
		result = &SwapResult{Listing: listing, Quote: quote}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.observer.ObserveFill(result.Listing.SourceAsset, result.Listing.DestAsset, result.Quote.FillAmountDestination, result.Quote.Fee)
	return result, nil
}

// settleCounters stages the platform, maker and taker statistics of a fill.
// All three are merges so fills on different listings never contend on them.
func (c *opContext) settleCounters(l *Listing, taker [20]byte, q Quote) error {
	now := c.now
	completed := l.Status == StatusCompleted
	if err := c.updateStats(func(stats *storedPlatformStats) error {
		var err error
		if stats.TotalSwapsExecuted, err = checkedAdd(stats.TotalSwapsExecuted, 1); err != nil {
			return err
		}
		if stats.TotalVolumeTraded, err = checkedAdd(stats.TotalVolumeTraded, q.FillAmountDestination); err != nil {
			return err
		}
		stats.TotalFeesCollected, err = checkedAdd(stats.TotalFeesCollected, q.Fee)
		return err
	}); err != nil {
		return err
	}
	if err := c.updateProfile(l.Maker, func(p *UserProfile) error {
		var err error
		if p.SwapsReceived, err = checkedAdd(p.SwapsReceived, 1); err != nil {
			return err
		}
		if p.VolumeAsMaker, err = checkedAdd(p.VolumeAsMaker, q.FillAmountDestination); err != nil {
			return err
		}
		if completed {
			if p.ActiveListings, err = checkedSub(p.ActiveListings, 1); err != nil {
				return err
			}
		}
		p.LastActivityAt = now
		return nil
	}); err != nil {
		return err
	}
	return c.updateProfile(taker, func(p *UserProfile) error {
		var err error
		if p.SwapsExecuted, err = checkedAdd(p.SwapsExecuted, 1); err != nil {
			return err
		}
		if p.VolumeAsTaker, err = checkedAdd(p.VolumeAsTaker, q.FillAmountDestination); err != nil {
			return err
		}
		if p.TotalFeesPaid, err = checkedAdd(p.TotalFeesPaid, q.Fee); err != nil {
			return err
		}
		p.LastActivityAt = now
		return nil
	})
}
