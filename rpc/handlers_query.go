package rpc

import (
	"context"
	"encoding/json"
	"strings"

	"escrowswap/indexer"
	"escrowswap/native/listing"
)

type addressQuery struct {
	Owner string `json:"owner"`
	Asset string `json:"asset"`
}

type listingQuery struct {
	Listing string `json:"listing"`
}

type listingListQuery struct {
	OpenOnly bool `json:"openOnly"`
}

type quoteQuery struct {
	Listing          string `json:"listing"`
	FillAmountSource Amount `json:"fillAmountSource"`
}

// SearchQuery is the parameter object of listing_search.
type SearchQuery struct {
	SourceAsset string `json:"sourceAsset,omitempty"`
	DestAsset   string `json:"destAsset,omitempty"`
	Maker       string `json:"maker,omitempty"`
	Status      string `json:"status,omitempty"`
	OpenOnly    bool   `json:"openOnly,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

type searchResultJSON struct {
	Listings []listingJSON `json:"listings"`
	Total    int64         `json:"total"`
}

type fillsQuery struct {
	Listing string `json:"listing,omitempty"`
	Taker   string `json:"taker,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func (s *Server) handlePlatformGet(_ context.Context, _ []json.RawMessage) (interface{}, error) {
	return s.platformView()
}

func (s *Server) handleWhitelistGet(_ context.Context, params []json.RawMessage) (interface{}, error) {
	var q addressQuery
	if err := decodeParams(params, &q, false); err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", q.Asset)
	if err != nil {
		return nil, err
	}
	entry, err := s.engine.Whitelist(asset)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		entry = &listing.WhitelistEntry{Asset: asset}
	}
	return newWhitelistJSON(entry), nil
}

func (s *Server) handleWhitelistList(_ context.Context, _ []json.RawMessage) (interface{}, error) {
	entries, err := s.engine.WhitelistEntries()
	if err != nil {
		return nil, err
	}
	out := make([]whitelistJSON, 0, len(entries))
	for _, entry := range entries {
		out = append(out, newWhitelistJSON(entry))
	}
	return out, nil
}

func (s *Server) handleUserGet(_ context.Context, params []json.RawMessage) (interface{}, error) {
	var q addressQuery
	if err := decodeParams(params, &q, false); err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", q.Owner)
	if err != nil {
		return nil, err
	}
	profile, err := s.engine.Profile(owner)
	if err != nil {
		return nil, err
	}
	return newProfileJSON(profile), nil
}

func (s *Server) handleUserListings(_ context.Context, params []json.RawMessage) (interface{}, error) {
	var q addressQuery
	if err := decodeParams(params, &q, false); err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", q.Owner)
	if err != nil {
		return nil, err
	}
	listings, err := s.engine.MakerListings(owner)
	if err != nil {
		return nil, err
	}
	return newListingsJSON(listings), nil
}

func (s *Server) handleListingGet(_ context.Context, params []json.RawMessage) (interface{}, error) {
	var q listingQuery
	if err := decodeParams(params, &q, false); err != nil {
		return nil, err
	}
	key, err := parseListingKey(q.Listing)
	if err != nil {
		return nil, err
	}
	l, err := s.engine.Listing(key)
	if err != nil {
		return nil, err
	}
	return newListingJSON(l), nil
}

func (s *Server) handleListingList(_ context.Context, params []json.RawMessage) (interface{}, error) {
	var q listingListQuery
	if err := decodeParams(params, &q, true); err != nil {
		return nil, err
	}
	listings, err := s.engine.Listings(q.OpenOnly)
	if err != nil {
		return nil, err
	}
	return newListingsJSON(listings), nil
}

func (s *Server) handleListingQuote(_ context.Context, params []json.RawMessage) (interface{}, error) {
	var q quoteQuery
	if err := decodeParams(params, &q, false); err != nil {
		return nil, err
	}
	key, err := parseListingKey(q.Listing)
	if err != nil {
		return nil, err
	}
	quote, err := s.engine.Quote(key, uint64(q.FillAmountSource))
	if err != nil {
		return nil, err
	}
	return newQuoteJSON(quote), nil
}

func (s *Server) handleListingSearch(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	if s.index == nil {
		return nil, errIndexUnavailable
	}
	var q SearchQuery
	if err := decodeParams(params, &q, true); err != nil {
		return nil, err
	}
	filter := indexer.Filter{Limit: q.Limit, Offset: q.Offset}
	for _, f := range []struct {
		name  string
		value string
		dst   *string
	}{
		{"sourceAsset", q.SourceAsset, &filter.SourceAsset},
		{"destAsset", q.DestAsset, &filter.DestAsset},
		{"maker", q.Maker, &filter.Maker},
	} {
		if strings.TrimSpace(f.value) == "" {
			continue
		}
		addr, err := parseAddress(f.name, f.value)
		if err != nil {
			return nil, err
		}
		*f.dst = hexAddress(addr)
	}
	if strings.TrimSpace(q.Status) != "" {
		status, err := listing.ParseStatus(q.Status)
		if err != nil {
			return nil, invalidParams("invalid_params", err.Error())
		}
		filter.Status = status.String()
	}
	if q.OpenOnly {
		filter.OpenAt = s.now().Unix()
	}
	page, err := s.index.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := searchResultJSON{Listings: make([]listingJSON, 0, len(page.Listings)), Total: page.Total}
	for _, row := range page.Listings {
		out.Listings = append(out.Listings, listingJSONFromRow(row))
	}
	return out, nil
}

func (s *Server) handleListingFills(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	if s.index == nil {
		return nil, errIndexUnavailable
	}
	var q fillsQuery
	if err := decodeParams(params, &q, false); err != nil {
		return nil, err
	}
	var (
		rows []indexer.FillRow
		err  error
	)
	switch {
	case strings.TrimSpace(q.Listing) != "":
		key, perr := parseListingKey(q.Listing)
		if perr != nil {
			return nil, perr
		}
		rows, err = s.index.Fills(ctx, listing.HexKey(key), q.Limit)
	case strings.TrimSpace(q.Taker) != "":
		taker, perr := parseAddress("taker", q.Taker)
		if perr != nil {
			return nil, perr
		}
		rows, err = s.index.TakerFills(ctx, hexAddress(taker), q.Limit)
	default:
		return nil, invalidParams("invalid_params", "listing or taker is required")
	}
	if err != nil {
		return nil, err
	}
	out := make([]fillJSON, 0, len(rows))
	for _, row := range rows {
		out = append(out, newFillJSON(row))
	}
	return out, nil
}

func (s *Server) handleVaultGet(_ context.Context, params []json.RawMessage) (interface{}, error) {
	var q listingQuery
	if err := decodeParams(params, &q, false); err != nil {
		return nil, err
	}
	key, err := parseListingKey(q.Listing)
	if err != nil {
		return nil, err
	}
	vault, err := s.engine.Vault(key)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		l, err := s.engine.Listing(key)
		if err != nil {
			return nil, err
		}
		return vaultJSON{Listing: listing.HexKey(key), Asset: hexAddress(l.SourceAsset), Closed: true}, nil
	}
	return vaultJSON{Listing: listing.HexKey(vault.Listing), Asset: hexAddress(vault.Asset), Balance: Amount(vault.Balance)}, nil
}

func (s *Server) handleBalanceGet(_ context.Context, params []json.RawMessage) (interface{}, error) {
	var q addressQuery
	if err := decodeParams(params, &q, false); err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", q.Owner)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", q.Asset)
	if err != nil {
		return nil, err
	}
	balance, err := s.engine.Balance(owner, asset)
	if err != nil {
		return nil, err
	}
	return balanceJSON{Owner: hexAddress(owner), Asset: hexAddress(asset), Balance: Amount(balance)}, nil
}
