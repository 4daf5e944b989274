package indexer

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListingRow is the searchable projection of a listing. Amounts mirror the
// engine record as of LastSeq.
type ListingRow struct {
	ListingKey                 string `gorm:"size:66;primaryKey"`
	ListingID                  uint64
	Maker                      string `gorm:"size:42;index"`
	SourceAsset                string `gorm:"size:42;index:idx_listing_pair,priority:1"`
	DestAsset                  string `gorm:"size:42;index:idx_listing_pair,priority:2"`
	AmountSourceTotal          uint64
	AmountSourceRemaining      uint64
	AmountDestinationTotal     uint64
	AmountDestinationRemaining uint64
	MinFillAmount              uint64
	MaxSlippageBps             uint32
	Status                     string `gorm:"size:24;index"`
	FillCount                  uint64
	ExpiresAt                  int64 `gorm:"index"`
	ListedAt                   int64 `gorm:"index"`
	LastSeq                    uint64
}

// FillRow is the receipt of one executed fill.
type FillRow struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey"`
	ListingKey            string    `gorm:"size:66;uniqueIndex:idx_fill_seq,priority:1"`
	Seq                   uint64    `gorm:"uniqueIndex:idx_fill_seq,priority:2"`
	Taker                 string    `gorm:"size:42;index"`
	Maker                 string    `gorm:"size:42;index"`
	FillAmountSource      uint64
	FillAmountDestination uint64
	Fee                   uint64
	MakerReceives         uint64
	Final                 bool
	ExecutedAt            int64 `gorm:"index"`
}

// AutoMigrate performs all schema migrations for the read model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ListingRow{},
		&FillRow{},
	)
}

var fillNamespace = uuid.MustParse("5b8f1c36-2f64-4a5e-9d0c-6f1f3f7c8a10")

// fillID derives a stable receipt id so replayed events do not create
// duplicate receipts.
func fillID(listingKey string, seq uint64) uuid.UUID {
	return uuid.NewSHA1(fillNamespace, []byte(listingKey+":"+uintString(seq)))
}
