package rpc

import (
	"context"
	"encoding/json"

	"escrowswap/native/listing"
)

// ListingCreateRequest is the payload of listing_create. A zero duration and
// an omitted slippage fall back to the maker's profile defaults.
type ListingCreateRequest struct {
	ID                Amount  `json:"id"`
	SourceAsset       string  `json:"sourceAsset"`
	DestAsset         string  `json:"destAsset"`
	AmountSource      Amount  `json:"amountSource"`
	AmountDestination Amount  `json:"amountDestination"`
	MinFillAmount     Amount  `json:"minFillAmount"`
	MaxSlippageBps    *uint32 `json:"maxSlippageBps,omitempty"`
	DurationSeconds   int64   `json:"durationSeconds"`
	Deadline          int64   `json:"deadline"`
}

// ListingUpdateRequest is the payload of listing_update.
type ListingUpdateRequest struct {
	Listing           string  `json:"listing"`
	AmountDestination *Amount `json:"amountDestination,omitempty"`
	MinFillAmount     *Amount `json:"minFillAmount,omitempty"`
	MaxSlippageBps    *uint32 `json:"maxSlippageBps,omitempty"`
	ExtendSeconds     int64   `json:"extendSeconds"`
	Deadline          int64   `json:"deadline"`
}

// SwapRequest is the payload of listing_swap.
type SwapRequest struct {
	Listing              string `json:"listing"`
	FillAmountSource     Amount `json:"fillAmountSource"`
	MaxAmountDestination Amount `json:"maxAmountDestination"`
	Deadline             int64  `json:"deadline"`
}

// ListingRefRequest is the payload of listing_cancel and listing_closeExpired.
type ListingRefRequest struct {
	Listing  string `json:"listing"`
	Deadline int64  `json:"deadline"`
}

func (s *Server) handleListingCreate(_ context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error) {
	var req ListingCreateRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	source, err := parseAddress("sourceAsset", req.SourceAsset)
	if err != nil {
		return nil, err
	}
	dest, err := parseAddress("destAsset", req.DestAsset)
	if err != nil {
		return nil, err
	}
	created, err := s.engine.CreateListing(caller, listing.CreateParams{
		ID:                uint64(req.ID),
		SourceAsset:       source,
		DestAsset:         dest,
		AmountSource:      uint64(req.AmountSource),
		AmountDestination: uint64(req.AmountDestination),
		MinFillAmount:     uint64(req.MinFillAmount),
		MaxSlippageBps:    req.MaxSlippageBps,
		DurationSeconds:   req.DurationSeconds,
	})
	if err != nil {
		return nil, err
	}
	return newListingJSON(created), nil
}

func (s *Server) handleListingUpdate(_ context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error) {
	var req ListingUpdateRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	key, err := parseListingKey(req.Listing)
	if err != nil {
		return nil, err
	}
	updated, err := s.engine.UpdateListing(caller, key, listing.UpdateParams{
		AmountDestination: amountPtr(req.AmountDestination),
		MinFillAmount:     amountPtr(req.MinFillAmount),
		MaxSlippageBps:    req.MaxSlippageBps,
		ExtendSeconds:     req.ExtendSeconds,
	})
	if err != nil {
		return nil, err
	}
	return newListingJSON(updated), nil
}

func (s *Server) handleListingSwap(_ context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error) {
	var req SwapRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	key, err := parseListingKey(req.Listing)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.ExecuteSwap(caller, key, listing.SwapParams{
		FillAmountSource:     uint64(req.FillAmountSource),
		MaxAmountDestination: uint64(req.MaxAmountDestination),
	})
	if err != nil {
		return nil, err
	}
	return swapResultJSON{Listing: newListingJSON(result.Listing), Quote: newQuoteJSON(result.Quote)}, nil
}

func (s *Server) handleListingCancel(_ context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error) {
	var req ListingRefRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	key, err := parseListingKey(req.Listing)
	if err != nil {
		return nil, err
	}
	cancelled, err := s.engine.CancelListing(caller, key)
	if err != nil {
		return nil, err
	}
	return newListingJSON(cancelled), nil
}

func (s *Server) handleListingCloseExpired(_ context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error) {
	var req ListingRefRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	key, err := parseListingKey(req.Listing)
	if err != nil {
		return nil, err
	}
	closed, err := s.engine.CloseExpiredListing(caller, key)
	if err != nil {
		return nil, err
	}
	return newListingJSON(closed), nil
}
