package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"escrowswap/core/events"
	"escrowswap/core/types"
	"escrowswap/native/listing"
	"escrowswap/observability"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	applyTimeout    = 5 * time.Second
)

// Open connects to the read model database. DSNs starting with postgres:// or
// postgresql://, or written in key=value form with a host, use Postgres;
// everything else is treated as a SQLite path or URI.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("indexer: dsn required")
	}
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	var dialector gorm.Dialector
	if isPostgresDSN(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

// Indexer projects committed listing events into SQL tables.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New wraps db. The schema must already be migrated.
func New(db *gorm.DB, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, logger: logger.With(slog.String("component", "indexer"))}
}

// Emit implements events.Emitter. Projection failures are logged and counted;
// they never fail the operation that produced the event.
func (ix *Indexer) Emit(evt events.Event) {
	if ix == nil || evt == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()
	if err := ix.Apply(ctx, evt.Event()); err != nil {
		observability.Events().RecordDrop("indexer")
		ix.logger.Error("project event", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Apply projects a single event. Events that do not describe a listing are
// ignored. Applying the same event twice is harmless.
func (ix *Indexer) Apply(ctx context.Context, evt *types.Event) error {
	if evt == nil || !strings.HasPrefix(evt.Type, "listing.") {
		return nil
	}
	row, err := listingRowFromAttributes(evt.Attributes, evt.Seq)
	if err != nil {
		return fmt.Errorf("%s: %w", evt.Type, err)
	}
	if evt.Type != listing.EventTypeListingFilled {
		return upsertListing(ix.db.WithContext(ctx), row)
	}
	fill, err := fillRowFromAttributes(evt.Attributes, row, evt.Seq, evt.Time)
	if err != nil {
		return fmt.Errorf("%s: %w", evt.Type, err)
	}
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertListing(tx, row); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(fill).Error
	})
}

// upsertListing writes row unless a later event already updated the listing.
func upsertListing(db *gorm.DB, row *ListingRow) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "listing_key"}},
		UpdateAll: true,
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "listing_rows.last_seq <= excluded.last_seq"},
		}},
	}).Create(row).Error
}

// Rebuild upserts rows for listings read directly from engine state. The
// listings must carry their persisted status, as events do, so a listing past
// its deadline stays open in the index until it is closed. Fill receipts
// cannot be reconstructed; only events carry them.
func (ix *Indexer) Rebuild(ctx context.Context, listings []*listing.Listing, seq uint64) error {
	if len(listings) == 0 {
		return nil
	}
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, l := range listings {
			if err := upsertListing(tx, rowFromListing(l, seq)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Filter narrows a listing search. Zero fields match everything.
type Filter struct {
	SourceAsset string
	DestAsset   string
	Maker       string
	Status      string
	// OpenAt, when positive, restricts results to listings that still accept
	// fills at that unix time.
	OpenAt int64
	Limit  int
	Offset int
}

// Page is one page of search results.
type Page struct {
	Listings []ListingRow
	Total    int64
}

// Search returns listings matching f ordered by listing time.
func (ix *Indexer) Search(ctx context.Context, f Filter) (*Page, error) {
	scope, err := f.scope()
	if err != nil {
		return nil, err
	}
	var total int64
	if err := ix.db.WithContext(ctx).Model(&ListingRow{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	var rows []ListingRow
	err = ix.db.WithContext(ctx).Scopes(scope).
		Order("listed_at ASC").Order("listing_key ASC").
		Limit(limit).Offset(offset).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return &Page{Listings: rows, Total: total}, nil
}

func (f Filter) scope() (func(*gorm.DB) *gorm.DB, error) {
	var status string
	if raw := strings.TrimSpace(f.Status); raw != "" {
		parsed, err := listing.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		status = parsed.String()
	}
	return func(db *gorm.DB) *gorm.DB {
		if v := normalizeHex(f.SourceAsset); v != "" {
			db = db.Where("source_asset = ?", v)
		}
		if v := normalizeHex(f.DestAsset); v != "" {
			db = db.Where("dest_asset = ?", v)
		}
		if v := normalizeHex(f.Maker); v != "" {
			db = db.Where("maker = ?", v)
		}
		if status != "" {
			db = db.Where("status = ?", status)
		}
		if f.OpenAt > 0 {
			db = db.Where("status IN ? AND expires_at > ?",
				[]string{listing.StatusActive.String(), listing.StatusPartiallyFilled.String()}, f.OpenAt)
		}
		return db
	}, nil
}

// Fills returns the receipts recorded for a listing in execution order.
func (ix *Indexer) Fills(ctx context.Context, listingKey string, limit int) ([]FillRow, error) {
	key := normalizeHex(listingKey)
	if key == "" {
		return nil, errors.New("indexer: listing key required")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	var rows []FillRow
	err := ix.db.WithContext(ctx).Where("listing_key = ?", key).Order("seq ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

// TakerFills returns the most recent receipts in which taker paid.
func (ix *Indexer) TakerFills(ctx context.Context, taker string, limit int) ([]FillRow, error) {
	addr := normalizeHex(taker)
	if addr == "" {
		return nil, errors.New("indexer: taker required")
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	var rows []FillRow
	err := ix.db.WithContext(ctx).Where("taker = ?", addr).Order("seq DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func rowFromListing(l *listing.Listing, seq uint64) *ListingRow {
	return &ListingRow{
		ListingKey:                 listing.HexKey(l.Key),
		ListingID:                  l.ID,
		Maker:                      hexAddress(l.Maker),
		SourceAsset:                hexAddress(l.SourceAsset),
		DestAsset:                  hexAddress(l.DestAsset),
		AmountSourceTotal:          l.AmountSourceTotal,
		AmountSourceRemaining:      l.AmountSourceRemaining,
		AmountDestinationTotal:     l.AmountDestinationTotal,
		AmountDestinationRemaining: l.AmountDestinationRemaining,
		MinFillAmount:              l.MinFillAmount,
		MaxSlippageBps:             l.MaxSlippageBps,
		Status:                     l.Status.String(),
		FillCount:                  l.FillCount,
		ExpiresAt:                  l.ExpiresAt,
		ListedAt:                   l.CreatedAt,
		LastSeq:                    seq,
	}
}

func listingRowFromAttributes(attrs map[string]string, seq uint64) (*ListingRow, error) {
	p := attrParser{attrs: attrs}
	row := &ListingRow{
		ListingKey:                 p.hex("listing"),
		ListingID:                  p.u64("id"),
		Maker:                      p.hex("maker"),
		SourceAsset:                p.hex("sourceAsset"),
		DestAsset:                  p.hex("destAsset"),
		AmountSourceTotal:          p.u64("amountSourceTotal"),
		AmountSourceRemaining:      p.u64("amountSourceRemaining"),
		AmountDestinationTotal:     p.u64("amountDestinationTotal"),
		AmountDestinationRemaining: p.u64("amountDestinationRemaining"),
		MinFillAmount:              p.u64("minFillAmount"),
		MaxSlippageBps:             uint32(p.u64("maxSlippageBps")),
		Status:                     p.str("status"),
		FillCount:                  p.u64("fillCount"),
		ExpiresAt:                  p.i64("expiresAt"),
		ListedAt:                   p.i64("createdAt"),
		LastSeq:                    seq,
	}
	if p.err != nil {
		return nil, p.err
	}
	return row, nil
}

func fillRowFromAttributes(attrs map[string]string, row *ListingRow, seq uint64, at int64) (*FillRow, error) {
	p := attrParser{attrs: attrs}
	fill := &FillRow{
		ID:                    fillID(row.ListingKey, seq),
		ListingKey:            row.ListingKey,
		Seq:                   seq,
		Taker:                 p.hex("taker"),
		Maker:                 row.Maker,
		FillAmountSource:      p.u64("fillAmountSource"),
		FillAmountDestination: p.u64("fillAmountDestination"),
		Fee:                   p.u64("fee"),
		MakerReceives:         p.u64("makerReceives"),
		Final:                 row.AmountSourceRemaining == 0,
		ExecutedAt:            at,
	}
	if p.err != nil {
		return nil, p.err
	}
	return fill, nil
}

// attrParser reads typed attributes and keeps the first failure.
type attrParser struct {
	attrs map[string]string
	err   error
}

func (p *attrParser) str(key string) string {
	v, ok := p.attrs[key]
	if !ok && p.err == nil {
		p.err = fmt.Errorf("missing attribute %q", key)
	}
	return v
}

func (p *attrParser) hex(key string) string {
	return normalizeHex(p.str(key))
}

func (p *attrParser) u64(key string) uint64 {
	raw := p.str(key)
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		p.err = fmt.Errorf("attribute %q: %w", key, err)
	}
	return v
}

func (p *attrParser) i64(key string) int64 {
	raw := p.str(key)
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.err = fmt.Errorf("attribute %q: %w", key, err)
	}
	return v
}

func normalizeHex(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func hexAddress(addr [20]byte) string {
	return fmt.Sprintf("0x%x", addr[:])
}

func uintString(v uint64) string { return strconv.FormatUint(v, 10) }
