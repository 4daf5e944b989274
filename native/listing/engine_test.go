package listing

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"escrowswap/core/events"
	"escrowswap/core/state"
	"escrowswap/storage"
)

const testGenesisTime = int64(1_700_000_000)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type fixture struct {
	t         *testing.T
	store     *state.Store
	engine    *Engine
	recorder  *events.Recorder
	now       int64
	authority [20]byte
	collector [20]byte
	maker     [20]byte
	taker     [20]byte
	taker2    [20]byte
	tokenA    [20]byte
	tokenB    [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := state.NewStore(storage.NewMemDB())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	f := &fixture{
		t:         t,
		store:     store,
		recorder:  &events.Recorder{},
		now:       testGenesisTime,
		authority: newTestAddress(0x01),
		collector: newTestAddress(0xFE),
		maker:     newTestAddress(0x11),
		taker:     newTestAddress(0x22),
		taker2:    newTestAddress(0x33),
		tokenA:    newTestAddress(0xA0),
		tokenB:    newTestAddress(0xB0),
	}
	f.engine = NewEngine(store)
	f.engine.SetNowFunc(func() int64 { return f.now })
	f.engine.SetEmitter(f.recorder)
	applied, err := f.engine.ApplyGenesis([]Allocation{
		{Owner: f.maker, Asset: f.tokenA, Amount: 10_000_000},
		{Owner: f.taker, Asset: f.tokenB, Amount: 100_000_000},
		{Owner: f.taker2, Asset: f.tokenB, Amount: 100_000_000},
	})
	if err != nil || !applied {
		t.Fatalf("apply genesis: applied=%v err=%v", applied, err)
	}
	return f
}

func defaultParams(collector [20]byte) PlatformParams {
	return PlatformParams{
		FeeCollector:       collector,
		FeeBasisPoints:     10,
		MinListingDuration: 60,
		MaxListingDuration: 2_592_000,
		MinTradeAmount:     1,
		MaxListingsPerUser: 5,
	}
}

func (f *fixture) initPlatform() *PlatformConfig {
	f.t.Helper()
	cfg, err := f.engine.InitializePlatform(f.authority, defaultParams(f.collector))
	if err != nil {
		f.t.Fatalf("initialize platform: %v", err)
	}
	return cfg
}

func (f *fixture) scenarioParams(id uint64) CreateParams {
	return CreateParams{
		ID:                id,
		SourceAsset:       f.tokenA,
		DestAsset:         f.tokenB,
		AmountSource:      1_000_000,
		AmountDestination: 10_000_000,
		MinFillAmount:     100_000,
		MaxSlippageBps:    uint32Ptr(100),
		DurationSeconds:   3_600,
	}
}

func (f *fixture) createScenarioListing(id uint64) *Listing {
	f.t.Helper()
	listing, err := f.engine.CreateListing(f.maker, f.scenarioParams(id))
	if err != nil {
		f.t.Fatalf("create listing: %v", err)
	}
	return listing
}

func (f *fixture) balance(owner, asset [20]byte) uint64 {
	f.t.Helper()
	bal, err := f.engine.Balance(owner, asset)
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (f *fixture) listing(key [32]byte) *Listing {
	f.t.Helper()
	l, err := f.engine.Listing(key)
	if err != nil {
		f.t.Fatalf("load listing: %v", err)
	}
	return l
}

func (f *fixture) profile(owner [20]byte) *UserProfile {
	f.t.Helper()
	p, err := f.engine.Profile(owner)
	if err != nil {
		f.t.Fatalf("load profile: %v", err)
	}
	return p
}

func uint32Ptr(v uint32) *uint32 { return &v }

func uint64Ptr(v uint64) *uint64 { return &v }

func int64Ptr(v int64) *int64 { return &v }

func boolPtr(v bool) *bool { return &v }

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func TestScenarioPartialFillThenCompletion(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	listing := f.createScenarioListing(1)

	if listing.Status != StatusActive {
		t.Fatalf("expected active listing, got %s", listing.Status)
	}
	if got := f.balance(f.maker, f.tokenA); got != 9_000_000 {
		t.Fatalf("maker source balance after deposit: %d", got)
	}
	vault, err := f.engine.Vault(listing.Key)
	if err != nil || vault == nil || vault.Balance != 1_000_000 {
		t.Fatalf("expected funded vault, got %+v err=%v", vault, err)
	}

	first, err := f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 500_000, MaxAmountDestination: 5_100_000})
	if err != nil {
		t.Fatalf("first swap: %v", err)
	}
	if first.Quote.FillAmountDestination != 5_000_000 || first.Quote.Fee != 5_000 || first.Quote.MakerReceives != 4_995_000 {
		t.Fatalf("unexpected first quote: %+v", first.Quote)
	}
	if first.Listing.Status != StatusPartiallyFilled || first.Listing.AmountSourceRemaining != 500_000 {
		t.Fatalf("unexpected listing after first fill: %+v", first.Listing)
	}
	if first.Listing.AmountDestinationRemaining != 5_000_000 || first.Listing.FillCount != 1 {
		t.Fatalf("unexpected destination remaining: %+v", first.Listing)
	}
	if got := f.balance(f.maker, f.tokenB); got != 4_995_000 {
		t.Fatalf("maker destination balance: %d", got)
	}
	if got := f.balance(f.collector, f.tokenB); got != 5_000 {
		t.Fatalf("collector balance: %d", got)
	}
	if got := f.balance(f.taker, f.tokenA); got != 500_000 {
		t.Fatalf("taker source balance: %d", got)
	}
	if got := f.balance(f.taker, f.tokenB); got != 95_000_000 {
		t.Fatalf("taker destination balance: %d", got)
	}

	second, err := f.engine.ExecuteSwap(f.taker2, listing.Key, SwapParams{FillAmountSource: 500_000, MaxAmountDestination: 5_100_000})
	if err != nil {
		t.Fatalf("second swap: %v", err)
	}
	if !second.Quote.Final || second.Listing.Status != StatusCompleted {
		t.Fatalf("expected completion, got %+v", second)
	}
	if second.Listing.AmountSourceRemaining != 0 || second.Listing.AmountDestinationRemaining != 0 {
		t.Fatalf("completed listing must have no remainder: %+v", second.Listing)
	}
	vault, err = f.engine.Vault(listing.Key)
	if err != nil || vault != nil {
		t.Fatalf("expected vault closed, got %+v err=%v", vault, err)
	}

	cfg, err := f.engine.Platform()
	if err != nil {
		t.Fatalf("platform: %v", err)
	}
	if cfg.TotalListingsCreated != 1 || cfg.TotalSwapsExecuted != 2 || cfg.TotalVolumeTraded != 10_000_000 || cfg.TotalFeesCollected != 10_000 {
		t.Fatalf("unexpected platform counters: %+v", cfg)
	}
	maker := f.profile(f.maker)
	if maker.ActiveListings != 0 || maker.ListingsCreated != 1 || maker.SwapsReceived != 2 || maker.VolumeAsMaker != 10_000_000 {
		t.Fatalf("unexpected maker profile: %+v", maker)
	}
	taker := f.profile(f.taker)
	if taker.SwapsExecuted != 1 || taker.VolumeAsTaker != 5_000_000 || taker.TotalFeesPaid != 5_000 {
		t.Fatalf("unexpected taker profile: %+v", taker)
	}

	want := []string{
		EventTypePlatformInitialized,
		EventTypeProfileCreated,
		EventTypeListingCreated,
		EventTypeListingFilled,
		EventTypeListingFilled,
		EventTypeListingCompleted,
	}
	if got := f.recorder.Types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected events: %v", got)
	}
	recorded := f.recorder.Events()
	last := recorded[len(recorded)-1].Event()
	if last.Seq != f.store.Seq() || last.Time != testGenesisTime {
		t.Fatalf("event not stamped with commit: %+v", last)
	}
}

func TestScenarioFillBelowMinimumRejected(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	listing := f.createScenarioListing(1)

	_, err := f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 50_000, MaxAmountDestination: 600_000})
	expectErr(t, err, ErrFillAmountTooSmall)

	after := f.listing(listing.Key)
	if after.AmountSourceRemaining != 1_000_000 || after.FillCount != 0 {
		t.Fatalf("failed swap must not change listing: %+v", after)
	}
	if got := f.balance(f.taker, f.tokenB); got != 100_000_000 {
		t.Fatalf("failed swap must not move funds, taker has %d", got)
	}
}

func TestScenarioSameTokenRejected(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	params := f.scenarioParams(1)
	params.DestAsset = params.SourceAsset
	_, err := f.engine.CreateListing(f.maker, params)
	expectErr(t, err, ErrSameTokenMints)
}

func TestFinalFillIgnoresMinimumFill(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	params := f.scenarioParams(1)
	params.MinFillAmount = 400_000
	listing, err := f.engine.CreateListing(f.maker, params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 700_000, MaxAmountDestination: 7_000_000}); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	_, err = f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 200_000, MaxAmountDestination: 2_000_000})
	expectErr(t, err, ErrFillAmountTooSmall)

	res, err := f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 300_000, MaxAmountDestination: 3_000_000})
	if err != nil {
		t.Fatalf("final fill below minimum should succeed: %v", err)
	}
	if res.Listing.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", res.Listing.Status)
	}
}

func TestFailedOperationEmitsNothing(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	before := len(f.recorder.Events())
	params := f.scenarioParams(1)
	params.AmountSource = 50_000_000
	_, err := f.engine.CreateListing(f.maker, params)
	expectErr(t, err, ErrInsufficientMakerBalance)
	if got := len(f.recorder.Events()); got != before {
		t.Fatalf("failed operation emitted %d events", got-before)
	}
	if _, err := f.engine.Profile(f.maker); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("failed create must not leave a profile behind: %v", err)
	}
}

func TestApplyGenesisOnce(t *testing.T) {
	f := newFixture(t)
	applied, err := f.engine.ApplyGenesis([]Allocation{{Owner: f.maker, Asset: f.tokenA, Amount: 5}})
	if err != nil {
		t.Fatalf("apply genesis: %v", err)
	}
	if applied {
		t.Fatalf("genesis must only apply once")
	}
	if got := f.balance(f.maker, f.tokenA); got != 10_000_000 {
		t.Fatalf("balance changed by second genesis: %d", got)
	}
}

func TestEngineWithoutStore(t *testing.T) {
	engine := NewEngine(nil)
	if _, err := engine.InitializePlatform(newTestAddress(1), PlatformParams{}); !errors.Is(err, errNilStore) {
		t.Fatalf("expected nil store error, got %v", err)
	}
	if _, err := engine.Platform(); !errors.Is(err, errNilStore) {
		t.Fatalf("expected nil store error, got %v", err)
	}
}
