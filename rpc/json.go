package rpc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"escrowswap/indexer"
	"escrowswap/native/listing"
)

type platformJSON struct {
	Authority            string `json:"authority"`
	FeeCollector         string `json:"feeCollector"`
	FeeBasisPoints       uint32 `json:"feeBasisPoints"`
	MinListingDuration   int64  `json:"minListingDuration"`
	MaxListingDuration   int64  `json:"maxListingDuration"`
	MinTradeAmount       Amount `json:"minTradeAmount"`
	MaxListingsPerUser   uint32 `json:"maxListingsPerUser"`
	Paused               bool   `json:"paused"`
	WhitelistEnabled     bool   `json:"whitelistEnabled"`
	TotalListingsCreated Amount `json:"totalListingsCreated"`
	TotalSwapsExecuted   Amount `json:"totalSwapsExecuted"`
	TotalVolumeTraded    Amount `json:"totalVolumeTraded"`
	TotalFeesCollected   Amount `json:"totalFeesCollected"`
	CreatedAt            int64  `json:"createdAt"`
	UpdatedAt            int64  `json:"updatedAt"`
}

func newPlatformJSON(cfg *listing.PlatformConfig) platformJSON {
	return platformJSON{
		Authority:            hexAddress(cfg.Authority),
		FeeCollector:         hexAddress(cfg.FeeCollector),
		FeeBasisPoints:       cfg.FeeBasisPoints,
		MinListingDuration:   cfg.MinListingDuration,
		MaxListingDuration:   cfg.MaxListingDuration,
		MinTradeAmount:       Amount(cfg.MinTradeAmount),
		MaxListingsPerUser:   cfg.MaxListingsPerUser,
		Paused:               cfg.Paused,
		WhitelistEnabled:     cfg.WhitelistEnabled,
		TotalListingsCreated: Amount(cfg.TotalListingsCreated),
		TotalSwapsExecuted:   Amount(cfg.TotalSwapsExecuted),
		TotalVolumeTraded:    Amount(cfg.TotalVolumeTraded),
		TotalFeesCollected:   Amount(cfg.TotalFeesCollected),
		CreatedAt:            cfg.CreatedAt,
		UpdatedAt:            cfg.UpdatedAt,
	}
}

type whitelistJSON struct {
	Asset         string `json:"asset"`
	IsWhitelisted bool   `json:"isWhitelisted"`
	UpdatedAt     int64  `json:"updatedAt"`
}

func newWhitelistJSON(entry *listing.WhitelistEntry) whitelistJSON {
	return whitelistJSON{Asset: hexAddress(entry.Asset), IsWhitelisted: entry.IsWhitelisted, UpdatedAt: entry.UpdatedAt}
}

type profileJSON struct {
	Owner                  string  `json:"owner"`
	Referrer               *string `json:"referrer,omitempty"`
	ListingsCreated        Amount  `json:"listingsCreated"`
	ListingsCancelled      Amount  `json:"listingsCancelled"`
	SwapsExecuted          Amount  `json:"swapsExecuted"`
	SwapsReceived          Amount  `json:"swapsReceived"`
	ActiveListings         Amount  `json:"activeListings"`
	VolumeAsMaker          Amount  `json:"volumeAsMaker"`
	VolumeAsTaker          Amount  `json:"volumeAsTaker"`
	TotalFeesPaid          Amount  `json:"totalFeesPaid"`
	DefaultListingDuration int64   `json:"defaultListingDuration"`
	DefaultSlippageBps     uint32  `json:"defaultSlippageBps"`
	CreatedAt              int64   `json:"createdAt"`
	LastActivityAt         int64   `json:"lastActivityAt"`
}

func newProfileJSON(p *listing.UserProfile) profileJSON {
	out := profileJSON{
		Owner:                  hexAddress(p.Owner),
		ListingsCreated:        Amount(p.ListingsCreated),
		ListingsCancelled:      Amount(p.ListingsCancelled),
		SwapsExecuted:          Amount(p.SwapsExecuted),
		SwapsReceived:          Amount(p.SwapsReceived),
		ActiveListings:         Amount(p.ActiveListings),
		VolumeAsMaker:          Amount(p.VolumeAsMaker),
		VolumeAsTaker:          Amount(p.VolumeAsTaker),
		TotalFeesPaid:          Amount(p.TotalFeesPaid),
		DefaultListingDuration: p.DefaultListingDuration,
		DefaultSlippageBps:     p.DefaultSlippageBps,
		CreatedAt:              p.CreatedAt,
		LastActivityAt:         p.LastActivityAt,
	}
	if p.HasReferrer() {
		ref := hexAddress(p.Referrer)
		out.Referrer = &ref
	}
	return out
}

type listingJSON struct {
	Key                        string `json:"key"`
	ID                         Amount `json:"id"`
	Maker                      string `json:"maker"`
	SourceAsset                string `json:"sourceAsset"`
	DestAsset                  string `json:"destAsset"`
	AmountSourceTotal          Amount `json:"amountSourceTotal"`
	AmountSourceRemaining      Amount `json:"amountSourceRemaining"`
	AmountDestinationTotal     Amount `json:"amountDestinationTotal"`
	AmountDestinationRemaining Amount `json:"amountDestinationRemaining"`
	MinFillAmount              Amount `json:"minFillAmount"`
	MaxSlippageBps             uint32 `json:"maxSlippageBps"`
	ExpiresAt                  int64  `json:"expiresAt"`
	CreatedAt                  int64  `json:"createdAt"`
	UpdatedAt                  int64  `json:"updatedAt,omitempty"`
	Status                     string `json:"status"`
	FillCount                  uint64 `json:"fillCount"`
}

func newListingJSON(l *listing.Listing) listingJSON {
	return listingJSON{
		Key:                        listing.HexKey(l.Key),
		ID:                         Amount(l.ID),
		Maker:                      hexAddress(l.Maker),
		SourceAsset:                hexAddress(l.SourceAsset),
		DestAsset:                  hexAddress(l.DestAsset),
		AmountSourceTotal:          Amount(l.AmountSourceTotal),
		AmountSourceRemaining:      Amount(l.AmountSourceRemaining),
		AmountDestinationTotal:     Amount(l.AmountDestinationTotal),
		AmountDestinationRemaining: Amount(l.AmountDestinationRemaining),
		MinFillAmount:              Amount(l.MinFillAmount),
		MaxSlippageBps:             l.MaxSlippageBps,
		ExpiresAt:                  l.ExpiresAt,
		CreatedAt:                  l.CreatedAt,
		UpdatedAt:                  l.UpdatedAt,
		Status:                     l.Status.String(),
		FillCount:                  l.FillCount,
	}
}

func newListingsJSON(listings []*listing.Listing) []listingJSON {
	out := make([]listingJSON, 0, len(listings))
	for _, l := range listings {
		out = append(out, newListingJSON(l))
	}
	return out
}

func listingJSONFromRow(row indexer.ListingRow) listingJSON {
	return listingJSON{
		Key:                        row.ListingKey,
		ID:                         Amount(row.ListingID),
		Maker:                      row.Maker,
		SourceAsset:                row.SourceAsset,
		DestAsset:                  row.DestAsset,
		AmountSourceTotal:          Amount(row.AmountSourceTotal),
		AmountSourceRemaining:      Amount(row.AmountSourceRemaining),
		AmountDestinationTotal:     Amount(row.AmountDestinationTotal),
		AmountDestinationRemaining: Amount(row.AmountDestinationRemaining),
		MinFillAmount:              Amount(row.MinFillAmount),
		MaxSlippageBps:             row.MaxSlippageBps,
		ExpiresAt:                  row.ExpiresAt,
		CreatedAt:                  row.ListedAt,
		Status:                     row.Status,
		FillCount:                  row.FillCount,
	}
}

type quoteJSON struct {
	FillAmountSource      Amount `json:"fillAmountSource"`
	FillAmountDestination Amount `json:"fillAmountDestination"`
	Fee                   Amount `json:"fee"`
	MakerReceives         Amount `json:"makerReceives"`
	Final                 bool   `json:"final"`
}

func newQuoteJSON(q listing.Quote) quoteJSON {
	return quoteJSON{
		FillAmountSource:      Amount(q.FillAmountSource),
		FillAmountDestination: Amount(q.FillAmountDestination),
		Fee:                   Amount(q.Fee),
		MakerReceives:         Amount(q.MakerReceives),
		Final:                 q.Final,
	}
}

type swapResultJSON struct {
	Listing listingJSON `json:"listing"`
	Quote   quoteJSON   `json:"quote"`
}

type vaultJSON struct {
	Listing string `json:"listing"`
	Asset   string `json:"asset"`
	Balance Amount `json:"balance"`
	Closed  bool   `json:"closed"`
}

type balanceJSON struct {
	Owner   string `json:"owner"`
	Asset   string `json:"asset"`
	Balance Amount `json:"balance"`
}

type fillJSON struct {
	ID                    string `json:"id"`
	Listing               string `json:"listing"`
	Seq                   uint64 `json:"seq"`
	Maker                 string `json:"maker"`
	Taker                 string `json:"taker"`
	FillAmountSource      Amount `json:"fillAmountSource"`
	FillAmountDestination Amount `json:"fillAmountDestination"`
	Fee                   Amount `json:"fee"`
	MakerReceives         Amount `json:"makerReceives"`
	Final                 bool   `json:"final"`
	ExecutedAt            int64  `json:"executedAt"`
}

func newFillJSON(row indexer.FillRow) fillJSON {
	return fillJSON{
		ID:                    row.ID.String(),
		Listing:               row.ListingKey,
		Seq:                   row.Seq,
		Maker:                 row.Maker,
		Taker:                 row.Taker,
		FillAmountSource:      Amount(row.FillAmountSource),
		FillAmountDestination: Amount(row.FillAmountDestination),
		Fee:                   Amount(row.Fee),
		MakerReceives:         Amount(row.MakerReceives),
		Final:                 row.Final,
		ExecutedAt:            row.ExecutedAt,
	}
}

func hexAddress(addr [20]byte) string {
	return "0x" + fmt.Sprintf("%x", addr[:])
}

// parseAddress decodes a 0x-prefixed 20-byte hex identity or asset.
func parseAddress(field, value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, invalidParams("invalid_params", field+" is required")
	}
	if !common.IsHexAddress(trimmed) {
		return out, invalidParams("invalid_params", fmt.Sprintf("%s must be a 20-byte hex address", field))
	}
	copy(out[:], common.HexToAddress(trimmed).Bytes())
	return out, nil
}

func parseOptionalAddress(field string, value *string) (*[20]byte, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	addr, err := parseAddress(field, *value)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// parseListingKey decodes a 0x-prefixed 32-byte listing key.
func parseListingKey(value string) ([32]byte, error) {
	var key [32]byte
	raw, err := decodeHex(value)
	if err != nil || len(raw) != len(key) {
		return key, invalidParams("invalid_params", "listing must be a 32-byte hex key")
	}
	copy(key[:], raw)
	return key, nil
}

// decodeParams decodes the single parameter object into out. With optional
// set, a missing object leaves out untouched.
func decodeParams(params []json.RawMessage, out interface{}, optional bool) error {
	if len(params) == 0 && optional {
		return nil
	}
	if len(params) != 1 {
		return invalidParams("invalid_params", "exactly one parameter object expected")
	}
	if err := json.Unmarshal(params[0], out); err != nil {
		return invalidParams("invalid_params", err.Error())
	}
	return nil
}

func decodePayload(payload json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return invalidParams("invalid_params", err.Error())
	}
	return nil
}
