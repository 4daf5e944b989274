package listing

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"escrowswap/native/bank"
)

func TestSwapValidation(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	listing := f.createScenarioListing(1)

	cases := []struct {
		name   string
		taker  [20]byte
		params SwapParams
		want   error
	}{
		{"zero fill", f.taker, SwapParams{FillAmountSource: 0, MaxAmountDestination: 1}, ErrInvalidAmount},
		{"exceeds remaining", f.taker, SwapParams{FillAmountSource: 1_000_001, MaxAmountDestination: 20_000_000}, ErrSwapAmountExceedsRemaining},
		{"taker cap", f.taker, SwapParams{FillAmountSource: 500_000, MaxAmountDestination: 4_999_999}, ErrSlippageExceeded},
		{"own listing", f.maker, SwapParams{FillAmountSource: 500_000, MaxAmountDestination: 5_000_000}, ErrCannotSwapOwnListing},
		{"insufficient taker balance", newTestAddress(0x44), SwapParams{FillAmountSource: 500_000, MaxAmountDestination: 5_000_000}, ErrInsufficientTakerBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.ExecuteSwap(tc.taker, listing.Key, tc.params)
			expectErr(t, err, tc.want)
		})
	}

	after := f.listing(listing.Key)
	if after.AmountSourceRemaining != 1_000_000 || after.FillCount != 0 || after.Status != StatusActive {
		t.Fatalf("rejected swaps must leave the listing untouched: %+v", after)
	}
	vault, err := f.engine.Vault(listing.Key)
	if err != nil || vault.Balance != 1_000_000 {
		t.Fatalf("rejected swaps must leave the vault untouched: %+v err=%v", vault, err)
	}

	_, err = f.engine.ExecuteSwap(f.taker, [32]byte{0x42}, SwapParams{FillAmountSource: 1, MaxAmountDestination: 10})
	expectErr(t, err, ErrListingNotFound)
}

func TestSwapSettlementIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	listing := f.createScenarioListing(1)
	buyer := newTestAddress(0x55)
	fund := func(amount uint64) {
		txn := f.store.Begin()
		if err := bank.NewLedger(txn).Credit(buyer, f.tokenB, amount); err != nil {
			t.Fatalf("credit: %v", err)
		}
		if err := txn.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	// enough for the maker's share but not for the fee on top
	fund(999_999)
	params := SwapParams{FillAmountSource: 100_000, MaxAmountDestination: 1_000_000}
	_, err := f.engine.ExecuteSwap(buyer, listing.Key, params)
	expectErr(t, err, ErrInsufficientTakerBalance)
	if got := f.balance(buyer, f.tokenB); got != 999_999 {
		t.Fatalf("failed swap moved buyer funds: %d", got)
	}
	if got := f.balance(f.maker, f.tokenB); got != 0 {
		t.Fatalf("failed swap paid the maker: %d", got)
	}

	fund(1)
	res, err := f.engine.ExecuteSwap(buyer, listing.Key, params)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if res.Quote.FillAmountDestination != 1_000_000 || res.Quote.Fee != 1_000 {
		t.Fatalf("unexpected quote: %+v", res.Quote)
	}
	if f.balance(buyer, f.tokenB) != 0 || f.balance(f.maker, f.tokenB) != 999_000 || f.balance(f.collector, f.tokenB) != 1_000 {
		t.Fatalf("payment legs do not add up: buyer=%d maker=%d collector=%d",
			f.balance(buyer, f.tokenB), f.balance(f.maker, f.tokenB), f.balance(f.collector, f.tokenB))
	}
	if got := f.balance(buyer, f.tokenA); got != 100_000 {
		t.Fatalf("buyer received %d", got)
	}
}

func TestSwapWhilePaused(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	listing := f.createScenarioListing(1)
	if err := f.engine.PausePlatform(f.authority); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, err := f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 500_000, MaxAmountDestination: 5_000_000})
	expectErr(t, err, ErrPlatformPaused)
	if err := f.engine.ResumePlatform(f.authority); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 500_000, MaxAmountDestination: 5_000_000}); err != nil {
		t.Fatalf("swap after resume: %v", err)
	}
}

func TestQuoteFillRounding(t *testing.T) {
	l := &Listing{
		AmountSourceTotal:          3,
		AmountSourceRemaining:      3,
		AmountDestinationTotal:     10,
		AmountDestinationRemaining: 10,
		MaxSlippageBps:             0,
	}
	q, err := QuoteFill(l, 1, 0)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.FillAmountDestination != 3 || q.Final {
		t.Fatalf("expected 3 for one third of 10, got %+v", q)
	}
	if !withinRate(1, 3, 3, 10, 0) {
		t.Fatalf("rounding within a unit must not count as slippage")
	}

	q, err = QuoteFill(l, 2, 0)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.FillAmountDestination != 7 {
		t.Fatalf("expected 6.67 to round up to 7, got %d", q.FillAmountDestination)
	}

	// after one unit filled for 3, the next unit brings the running total to
	// round(20/3) = 7 and so costs 4
	l.AmountSourceRemaining = 2
	l.AmountDestinationRemaining = 7
	q, err = QuoteFill(l, 1, 0)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.FillAmountDestination != 4 || q.Final {
		t.Fatalf("expected the running total to be rounded, got %+v", q)
	}

	l.AmountSourceRemaining = 1
	l.AmountDestinationRemaining = 3
	q, err = QuoteFill(l, 1, 0)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !q.Final || q.FillAmountDestination != 3 {
		t.Fatalf("final fill must settle the remaining destination, got %+v", q)
	}
}

func TestQuoteFillRoundsToZero(t *testing.T) {
	l := &Listing{
		AmountSourceTotal:          1_000,
		AmountSourceRemaining:      1_000,
		AmountDestinationTotal:     1,
		AmountDestinationRemaining: 1,
	}
	_, err := QuoteFill(l, 100, 0)
	expectErr(t, err, ErrFillAmountTooSmall)
	q, err := QuoteFill(l, 1_000, 0)
	if err != nil || q.FillAmountDestination != 1 {
		t.Fatalf("final fill must settle: %+v err=%v", q, err)
	}
}

func TestQuoteFillFeeIsFloor(t *testing.T) {
	l := &Listing{
		AmountSourceTotal:          1_000_000,
		AmountSourceRemaining:      1_000_000,
		AmountDestinationTotal:     9_999_999,
		AmountDestinationRemaining: 9_999_999,
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		fill := uint64(rng.Int63n(999_999)) + 1
		bps := uint32(rng.Intn(MaxFeeBasisPoints + 1))
		q, err := QuoteFill(l, fill, bps)
		if err != nil {
			t.Fatalf("quote %d: %v", fill, err)
		}
		want := q.FillAmountDestination * uint64(bps) / 10_000
		if q.Fee != want {
			t.Fatalf("fee for %d at %d bps: got %d want %d", q.FillAmountDestination, bps, q.Fee, want)
		}
		if q.MakerReceives+q.Fee != q.FillAmountDestination {
			t.Fatalf("maker share and fee must add up to the payment: %+v", q)
		}
	}
}

func TestComputeFeeRejectsOutOfRange(t *testing.T) {
	if _, err := ComputeFee(100, MaxFeeBasisPoints+1); !errors.Is(err, ErrInvalidFeeConfiguration) {
		t.Fatalf("expected invalid fee configuration, got %v", err)
	}
	fee, err := ComputeFee(5_000_000, 10)
	if err != nil || fee != 5_000 {
		t.Fatalf("expected 5000, got %d err=%v", fee, err)
	}
}

func TestMakerSlippageToleranceBoundsClampedFills(t *testing.T) {
	// a fill may deviate from the original rate by less than one unit
	// regardless of tolerance; anything larger needs the maker's allowance
	l := &Listing{
		AmountSourceTotal:          4,
		AmountSourceRemaining:      4,
		AmountDestinationTotal:     6,
		AmountDestinationRemaining: 6,
	}
	q, err := QuoteFill(l, 3, 0)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.FillAmountDestination != 5 {
		t.Fatalf("expected 4.5 to round up to 5, got %d", q.FillAmountDestination)
	}
	if !withinRate(3, 5, 4, 6, 0) {
		t.Fatalf("rounding within a unit must pass a zero tolerance")
	}
	if withinRate(2, 2, 4, 6, 0) {
		t.Fatalf("a full unit short must exceed a zero tolerance")
	}
	if !withinRate(2, 2, 4, 6, 5_000) {
		t.Fatalf("a one third shortfall must pass a 50%% tolerance")
	}
}

// checkProportional fails unless the remaining destination is within half a
// unit of the remaining source priced at the original rate.
func checkProportional(t *testing.T, l *Listing) {
	t.Helper()
	lhs := 2 * l.AmountDestinationRemaining * l.AmountSourceTotal
	rhs := 2 * l.AmountSourceRemaining * l.AmountDestinationTotal
	diff := lhs - rhs
	if rhs > lhs {
		diff = rhs - lhs
	}
	if diff > l.AmountSourceTotal {
		t.Fatalf("remainders drifted from the original rate: src %d/%d dest %d/%d",
			l.AmountSourceRemaining, l.AmountSourceTotal, l.AmountDestinationRemaining, l.AmountDestinationTotal)
	}
}

func TestSmallRatioListingCompletes(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	params := f.scenarioParams(1)
	params.AmountSource = 3
	params.AmountDestination = 2
	params.MinFillAmount = 1
	params.MaxSlippageBps = uint32Ptr(0)
	listing, err := f.engine.CreateListing(f.maker, params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 1, MaxAmountDestination: 2})
	if err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if res.Quote.FillAmountDestination != 1 || res.Listing.AmountDestinationRemaining != 1 {
		t.Fatalf("expected 0.67 to round to 1: %+v", res.Quote)
	}
	checkProportional(t, res.Listing)

	// round(4/3) = 1 has already been paid, so another single unit is free
	// and must be rejected rather than drain the destination remainder
	_, err = f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 1, MaxAmountDestination: 2})
	expectErr(t, err, ErrFillAmountTooSmall)
	after := f.listing(listing.Key)
	if after.AmountSourceRemaining != 2 || after.AmountDestinationRemaining != 1 || after.FillCount != 1 {
		t.Fatalf("rejected fill must leave the listing untouched: %+v", after)
	}

	res, err = f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 2, MaxAmountDestination: 2})
	if err != nil {
		t.Fatalf("final fill: %v", err)
	}
	if res.Listing.Status != StatusCompleted || res.Quote.FillAmountDestination != 1 || res.Listing.AmountDestinationRemaining != 0 {
		t.Fatalf("expected completion paying the last unit: %+v %+v", res.Listing, res.Quote)
	}
	if got := f.balance(f.taker, f.tokenA); got != 3 {
		t.Fatalf("taker received %d", got)
	}
}

func TestFinalFillSettlesZeroRemainder(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	params := f.scenarioParams(1)
	params.AmountSource = 100
	params.AmountDestination = 1
	params.MinFillAmount = 1
	params.MaxSlippageBps = uint32Ptr(0)
	listing, err := f.engine.CreateListing(f.maker, params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 60, MaxAmountDestination: 1})
	if err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if res.Quote.FillAmountDestination != 1 || res.Listing.AmountDestinationRemaining != 0 {
		t.Fatalf("expected 0.6 to round to the whole total: %+v", res.Quote)
	}
	res, err = f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 40})
	if err != nil {
		t.Fatalf("final fill: %v", err)
	}
	if res.Listing.Status != StatusCompleted || res.Quote.FillAmountDestination != 0 || res.Quote.Fee != 0 {
		t.Fatalf("final fill must complete at no further cost: %+v %+v", res.Listing, res.Quote)
	}
	if v, _ := f.engine.Vault(listing.Key); v != nil {
		t.Fatalf("vault must be closed")
	}
}

func TestListingInvariantsAcrossRandomFills(t *testing.T) {
	cases := []struct {
		name     string
		src      uint64
		dest     uint64
		maxFill  uint64
		slippage uint32
	}{
		{"three for two", 3, 2, 3, 0},
		{"five for three", 5, 3, 5, 0},
		{"thousand for seven", 1_000, 7, 300, 0},
		{"seven for thousand", 7, 1_000, 7, 0},
		{"large ratio above one", 999_983, 7_777_777, 150_000, 0},
		{"large ratio below one", 7_777_777, 999_983, 1_500_000, MaxSlippageBps},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.initPlatform()
			params := f.scenarioParams(1)
			params.AmountSource = tc.src
			params.AmountDestination = tc.dest
			params.MinFillAmount = 1
			params.MaxSlippageBps = uint32Ptr(tc.slippage)
			listing, err := f.engine.CreateListing(f.maker, params)
			if err != nil {
				t.Fatalf("create: %v", err)
			}

			rng := rand.New(rand.NewSource(42))
			var paid, filled uint64
			prevFilled := uint64(0)
			for i := 0; ; i++ {
				current := f.listing(listing.Key)
				if current.Status == StatusCompleted {
					break
				}
				if i > 10_000 {
					t.Fatalf("listing did not complete: %+v", current)
				}
				fill := uint64(rng.Int63n(int64(current.AmountSourceRemaining))) + 1
				if fill > tc.maxFill {
					fill = tc.maxFill
				}
				res, err := f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: fill, MaxAmountDestination: 100_000_000})
				if errors.Is(err, ErrFillAmountTooSmall) {
					if fill == current.AmountSourceRemaining {
						t.Fatalf("final fill rejected: %v", err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("fill %d: %v", fill, err)
				}
				l := res.Listing
				if l.AmountSourceRemaining > l.AmountSourceTotal || l.AmountDestinationRemaining > l.AmountDestinationTotal {
					t.Fatalf("remainders out of bounds: %+v", l)
				}
				checkProportional(t, l)
				nowFilled := l.AmountSourceTotal - l.AmountSourceRemaining
				if nowFilled <= prevFilled {
					t.Fatalf("filled amount must strictly increase: %d -> %d", prevFilled, nowFilled)
				}
				prevFilled = nowFilled
				if (l.Status == StatusCompleted) != (l.AmountSourceRemaining == 0) {
					t.Fatalf("completed iff remaining is zero: %+v", l)
				}
				vault, err := f.engine.Vault(listing.Key)
				if err != nil {
					t.Fatalf("vault: %v", err)
				}
				if l.Status != StatusCompleted && (vault == nil || vault.Balance != l.AmountSourceRemaining) {
					t.Fatalf("vault must track remaining: %+v vs %d", vault, l.AmountSourceRemaining)
				}
				paid += res.Quote.FillAmountDestination
				filled += res.Quote.FillAmountSource
			}
			if filled != tc.src || paid != tc.dest {
				t.Fatalf("totals drifted: filled=%d paid=%d", filled, paid)
			}
			if v, _ := f.engine.Vault(listing.Key); v != nil {
				t.Fatalf("vault must be closed")
			}
		})
	}
}

func TestConcurrentSwapsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	listing := f.createScenarioListing(1)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded uint64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				res, err := f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 250_000, MaxAmountDestination: 2_500_000})
				if IsRetryable(err) {
					continue
				}
				if err == nil {
					mu.Lock()
					succeeded += res.Quote.FillAmountSource
					mu.Unlock()
				}
				return
			}
		}()
	}
	wg.Wait()

	final := f.listing(listing.Key)
	if succeeded != 1_000_000 || final.Status != StatusCompleted || final.FillCount != 4 {
		t.Fatalf("expected exactly four fills, got filled=%d listing=%+v", succeeded, final)
	}
	if got := f.balance(f.taker, f.tokenA); got != 1_000_000 {
		t.Fatalf("taker received %d", got)
	}
}

func TestSwapsOnDifferentListingsDoNotConflict(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	first := f.createScenarioListing(1)
	second := f.createScenarioListing(2)

	// interleave two operations by hand: both stage their effects before
	// either commits
	txnA := f.store.Begin()
	txnB := f.store.Begin()
	ctxA := &opContext{txn: txnA, now: f.now}
	ctxB := &opContext{txn: txnB, now: f.now}
	for _, pair := range []struct {
		c   *opContext
		key [32]byte
		who [20]byte
	}{{ctxA, first.Key, f.taker}, {ctxB, second.Key, f.taker2}} {
		l, err := pair.c.loadListing(pair.key)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		q, err := QuoteFill(l, 100_000, 10)
		if err != nil {
			t.Fatalf("quote: %v", err)
		}
		l.AmountSourceRemaining -= q.FillAmountSource
		l.Status = StatusPartiallyFilled
		if err := pair.c.storeListing(l); err != nil {
			t.Fatalf("store: %v", err)
		}
		if err := pair.c.settleCounters(l, pair.who, q); err != nil {
			t.Fatalf("counters: %v", err)
		}
	}
	if err := txnA.Commit(); err != nil {
		t.Fatalf("commit A: %v", err)
	}
	if err := txnB.Commit(); err != nil {
		t.Fatalf("commit B must not conflict with A: %v", err)
	}
	cfg, err := f.engine.Platform()
	if err != nil {
		t.Fatalf("platform: %v", err)
	}
	if cfg.TotalSwapsExecuted != 2 || cfg.TotalVolumeTraded != 2_000_000 {
		t.Fatalf("merged counters lost an update: %+v", cfg)
	}
	if got := f.profile(f.maker).SwapsReceived; got != 2 {
		t.Fatalf("maker counters lost an update: %d", got)
	}
}
