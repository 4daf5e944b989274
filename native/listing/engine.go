package listing

import (
	"errors"
	"fmt"
	"time"

	"escrowswap/core/events"
	"escrowswap/core/state"
	"escrowswap/core/types"
	"escrowswap/native/bank"
	nativecommon "escrowswap/native/common"
)

var errNilStore = errors.New("listing engine: state not configured")

// Observer receives per-operation telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
	ObserveFill(sourceAsset, destAsset [20]byte, fillDestination, fee uint64)
}

type noopObserver struct{}

func (noopObserver) ObserveOperation(string, string, time.Duration) {}

func (noopObserver) ObserveFill([20]byte, [20]byte, uint64, uint64) {}

type listingEvent struct {
	evt *types.Event
}

func (e listingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e listingEvent) Event() *types.Event { return e.evt }

// Engine executes platform, profile and listing operations. Every operation
// runs inside one optimistic state transaction; it either commits all of its
// effects or none of them. Events are released only after a successful
// commit.
type Engine struct {
	store     *state.Store
	emitter   events.Emitter
	observer  Observer
	bootstrap [20]byte
	nowFn     func() int64
}

// NewEngine creates an engine over store with a no-op emitter and the wall
// clock.
func NewEngine(store *state.Store) *Engine {
	return &Engine{
		store:    store,
		emitter:  events.NoopEmitter{},
		observer: noopObserver{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetObserver installs a telemetry sink. Passing nil disables telemetry.
func (e *Engine) SetObserver(observer Observer) {
	if observer == nil {
		e.observer = noopObserver{}
		return
	}
	e.observer = observer
}

// SetBootstrapAuthority restricts InitializePlatform to addr. The zero address
// lets the first caller initialize the platform.
func (e *Engine) SetBootstrapAuthority(addr [20]byte) { e.bootstrap = addr }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// opContext carries the transaction and the buffered events of a single
// operation.
type opContext struct {
	txn    *state.Txn
	bank   *bank.Ledger
	now    int64
	events []*types.Event
}

func (c *opContext) emit(evt *types.Event) {
	if evt != nil {
		c.events = append(c.events, evt)
	}
}

// execute runs fn inside a fresh transaction and commits it. On success the
// buffered events are stamped with the commit sequence and emitted in order.
func (e *Engine) execute(op string, fn func(*opContext) error) error {
	if e == nil || e.store == nil {
		return errNilStore
	}
	started := time.Now()
	txn := e.store.Begin()
	ctx := &opContext{txn: txn, bank: bank.NewLedger(txn), now: e.now()}
	err := fn(ctx)
	if err != nil {
		// reads are not isolated; a stale snapshot turns the failure into a
		// retryable conflict
		if verr := txn.Validate(); errors.Is(verr, state.ErrConflict) {
			err = verr
		}
		txn.Discard()
	} else {
		err = txn.Commit()
	}
	e.observer.ObserveOperation(op, outcomeLabel(err), time.Since(started))
	if err != nil {
		return err
	}
	for _, evt := range ctx.events {
		evt.Seq = txn.Seq()
		evt.Time = ctx.now
		e.emitter.Emit(listingEvent{evt: evt})
	}
	return nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return Category(err)
}

func (c *opContext) loadConfig() (*PlatformConfig, error) {
	var stored storedPlatformConfig
	ok, err := c.txn.KVGet(platformConfigKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPlatformNotInitialized
	}
	return stored.toPlatformConfig(nil), nil
}

func (c *opContext) storeConfig(cfg *PlatformConfig) error {
	return c.txn.KVPut(platformConfigKey, newStoredPlatformConfig(cfg))
}

func (c *opContext) requireAuthority(caller [20]byte) (*PlatformConfig, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if caller != cfg.Authority {
		return nil, ErrUnauthorizedAuthority
	}
	return cfg, nil
}

func guardPaused(cfg *PlatformConfig) error {
	if err := nativecommon.Guard(cfg, ModuleName); err != nil {
		return fmt.Errorf("%w: %w", ErrPlatformPaused, err)
	}
	return nil
}

func (c *opContext) updateStats(fn func(*storedPlatformStats) error) error {
	return c.txn.KVMerge(platformStatsKey, mergeStats(fn))
}

func (c *opContext) loadWhitelist(asset [20]byte) (*WhitelistEntry, error) {
	var stored storedWhitelistEntry
	ok, err := c.txn.KVGet(whitelistKey(asset), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.toEntry(), nil
}

func (c *opContext) loadProfile(owner [20]byte) (*UserProfile, bool, error) {
	var stored storedUserProfile
	ok, err := c.txn.KVGet(profileKey(owner), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toProfile(), true, nil
}

// loadOrCreateProfile returns owner's profile, creating it lazily. The
// boolean reports whether the profile was created by this call.
func (c *opContext) loadOrCreateProfile(owner [20]byte) (*UserProfile, bool, error) {
	profile, ok, err := c.loadProfile(owner)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return profile, false, nil
	}
	return &UserProfile{Owner: owner, CreatedAt: c.now, LastActivityAt: c.now}, true, nil
}

func (c *opContext) storeProfile(profile *UserProfile) error {
	return c.txn.KVPut(profileKey(profile.Owner), newStoredUserProfile(profile))
}

// updateProfile stages a commutative counter update for owner. It never
// joins the read set, so payments into one maker's listings do not contend.
func (c *opContext) updateProfile(owner [20]byte, fn func(*UserProfile) error) error {
	return c.txn.KVMerge(profileKey(owner), mergeProfile(owner, c.now, fn))
}

func (c *opContext) loadListing(key [32]byte) (*Listing, error) {
	var stored storedListing
	ok, err := c.txn.KVGet(listingRecordKey(key), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrListingNotFound
	}
	return stored.toListing()
}

func (c *opContext) storeListing(l *Listing) error {
	return c.txn.KVPut(listingRecordKey(l.Key), newStoredListing(l))
}
