package indexer

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"escrowswap/core/state"
	"escrowswap/core/types"
	"escrowswap/native/listing"
	"escrowswap/storage"
)

const testNow = int64(1_700_000_000)

func addr(fill byte) [20]byte {
	var a [20]byte
	copy(a[:], bytes.Repeat([]byte{fill}, 20))
	return a
}

type env struct {
	ix     *Indexer
	engine *listing.Engine
	now    int64
	maker  [20]byte
	taker  [20]byte
	tokenA [20]byte
	tokenB [20]byte
	tokenC [20]byte
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)

	store, err := state.NewStore(storage.NewMemDB())
	require.NoError(t, err)

	e := &env{
		ix:     New(db, nil),
		engine: listing.NewEngine(store),
		now:    testNow,
		maker:  addr(0x11),
		taker:  addr(0x22),
		tokenA: addr(0xA0),
		tokenB: addr(0xB0),
		tokenC: addr(0xC0),
	}
	e.engine.SetNowFunc(func() int64 { return e.now })
	e.engine.SetEmitter(e.ix)

	_, err = e.engine.ApplyGenesis([]listing.Allocation{
		{Owner: e.maker, Asset: e.tokenA, Amount: 10_000_000},
		{Owner: e.taker, Asset: e.tokenB, Amount: 100_000_000},
	})
	require.NoError(t, err)
	_, err = e.engine.InitializePlatform(addr(0x01), listing.PlatformParams{
		FeeCollector:       addr(0xFE),
		FeeBasisPoints:     10,
		MinListingDuration: 60,
		MaxListingDuration: 86_400,
		MinTradeAmount:     1,
		MaxListingsPerUser: 10,
	})
	require.NoError(t, err)
	return e
}

func (e *env) create(t *testing.T, id uint64, dest [20]byte) *listing.Listing {
	t.Helper()
	l, err := e.engine.CreateListing(e.maker, listing.CreateParams{
		ID:                id,
		SourceAsset:       e.tokenA,
		DestAsset:         dest,
		AmountSource:      1_000_000,
		AmountDestination: 10_000_000,
		MinFillAmount:     100_000,
		DurationSeconds:   3_600,
	})
	require.NoError(t, err)
	return l
}

func TestIndexerProjectsLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	l := e.create(t, 1, e.tokenB)
	key := listing.HexKey(l.Key)

	_, err := e.engine.ExecuteSwap(e.taker, l.Key, listing.SwapParams{FillAmountSource: 500_000, MaxAmountDestination: 5_000_000})
	require.NoError(t, err)

	page, err := e.ix.Search(ctx, Filter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	row := page.Listings[0]
	require.Equal(t, key, row.ListingKey)
	require.Equal(t, listing.StatusPartiallyFilled.String(), row.Status)
	require.EqualValues(t, 500_000, row.AmountSourceRemaining)
	require.EqualValues(t, 5_000_000, row.AmountDestinationRemaining)
	require.EqualValues(t, 1, row.FillCount)

	_, err = e.engine.ExecuteSwap(e.taker, l.Key, listing.SwapParams{FillAmountSource: 500_000, MaxAmountDestination: 5_000_000})
	require.NoError(t, err)

	fills, err := e.ix.Fills(ctx, key, 0)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	require.Less(t, fills[0].Seq, fills[1].Seq)
	require.False(t, fills[0].Final)
	require.True(t, fills[1].Final)
	require.EqualValues(t, 5_000, fills[1].Fee)
	require.EqualValues(t, 4_995_000, fills[1].MakerReceives)
	require.Equal(t, fmt.Sprintf("0x%x", e.taker[:]), fills[0].Taker)

	page, err = e.ix.Search(ctx, Filter{Status: "completed"})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)

	takerFills, err := e.ix.TakerFills(ctx, fmt.Sprintf("0x%X", e.taker[:]), 10)
	require.NoError(t, err)
	require.Len(t, takerFills, 2)
	require.Equal(t, fills[1].ID, takerFills[0].ID)
}

func TestIndexerSearchFilters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := e.create(t, 1, e.tokenB)
	e.now += 10
	e.create(t, 2, e.tokenC)
	e.now += 10
	third := e.create(t, 3, e.tokenB)
	_, err := e.engine.CancelListing(e.maker, third.Key)
	require.NoError(t, err)

	page, err := e.ix.Search(ctx, Filter{DestAsset: fmt.Sprintf("0x%x", e.tokenB[:])})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)
	require.Equal(t, listing.HexKey(first.Key), page.Listings[0].ListingKey)

	page, err = e.ix.Search(ctx, Filter{OpenAt: e.now})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)

	page, err = e.ix.Search(ctx, Filter{OpenAt: testNow + 3_600})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total, "first listing expired at testNow+3600")

	page, err = e.ix.Search(ctx, Filter{Maker: fmt.Sprintf("0x%x", e.maker[:]), Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.EqualValues(t, 3, page.Total)
	require.Len(t, page.Listings, 1)

	page, err = e.ix.Search(ctx, Filter{Status: "cancelled"})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)

	_, err = e.ix.Search(ctx, Filter{Status: "bogus"})
	require.Error(t, err)
}

func TestIndexerIgnoresStaleAndReplayedEvents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	l := e.create(t, 1, e.tokenB)
	res, err := e.engine.ExecuteSwap(e.taker, l.Key, listing.SwapParams{FillAmountSource: 200_000, MaxAmountDestination: 2_000_000})
	require.NoError(t, err)

	stale := &types.Event{Type: listing.EventTypeListingCreated, Seq: 1, Attributes: map[string]string{
		"listing": listing.HexKey(l.Key), "id": "1", "maker": "0x00", "sourceAsset": "0x00", "destAsset": "0x00",
		"amountSourceTotal": "1", "amountSourceRemaining": "1", "amountDestinationTotal": "1",
		"amountDestinationRemaining": "1", "minFillAmount": "0", "maxSlippageBps": "0",
		"expiresAt": "0", "createdAt": "0", "status": "active", "fillCount": "0",
	}}
	require.NoError(t, e.ix.Apply(ctx, stale))

	page, err := e.ix.Search(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, res.Listing.AmountSourceRemaining, page.Listings[0].AmountSourceRemaining)

	fills, err := e.ix.Fills(ctx, listing.HexKey(l.Key), 0)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	replay := &types.Event{Type: listing.EventTypeListingFilled, Seq: fills[0].Seq, Time: e.now, Attributes: map[string]string{
		"listing": listing.HexKey(l.Key), "id": "1", "maker": page.Listings[0].Maker,
		"sourceAsset": page.Listings[0].SourceAsset, "destAsset": page.Listings[0].DestAsset,
		"amountSourceTotal": "1000000", "amountSourceRemaining": "800000", "amountDestinationTotal": "10000000",
		"amountDestinationRemaining": "8000000", "minFillAmount": "100000", "maxSlippageBps": "0",
		"expiresAt": "0", "createdAt": "0", "status": "partially_filled", "fillCount": "1",
		"taker": fills[0].Taker, "fillAmountSource": "200000", "fillAmountDestination": "2000000",
		"fee": "2000", "makerReceives": "1998000",
	}}
	require.NoError(t, e.ix.Apply(ctx, replay))
	fills, err = e.ix.Fills(ctx, listing.HexKey(l.Key), 0)
	require.NoError(t, err)
	require.Len(t, fills, 1)
}

func TestIndexerRejectsMalformedEvents(t *testing.T) {
	e := newEnv(t)
	err := e.ix.Apply(context.Background(), &types.Event{Type: listing.EventTypeListingCreated, Attributes: map[string]string{"listing": "0x01"}})
	require.Error(t, err)
	require.NoError(t, e.ix.Apply(context.Background(), &types.Event{Type: listing.EventTypePlatformPaused}))
	require.NoError(t, e.ix.Apply(context.Background(), nil))
}

func TestIndexerRebuild(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.engine.SetEmitter(nil)
	e.create(t, 1, e.tokenB)
	e.create(t, 2, e.tokenC)

	page, err := e.ix.Search(ctx, Filter{})
	require.NoError(t, err)
	require.Zero(t, page.Total)

	listings, err := e.engine.Listings(false)
	require.NoError(t, err)
	require.NoError(t, e.ix.Rebuild(ctx, listings, 0))
	page, err = e.ix.Search(ctx, Filter{})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)
}

func TestIsPostgresDSN(t *testing.T) {
	require.True(t, isPostgresDSN("postgres://user@localhost/db"))
	require.True(t, isPostgresDSN("host=localhost user=escrow dbname=index"))
	require.False(t, isPostgresDSN("file:index.db"))
	_, err := Open(" ")
	require.Error(t, err)
}
