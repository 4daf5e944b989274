package rpc

import (
	"context"
	"encoding/json"

	"escrowswap/native/listing"
)

// PlatformInitializeRequest is the payload of platform_initialize.
type PlatformInitializeRequest struct {
	FeeCollector       string `json:"feeCollector"`
	FeeBasisPoints     uint32 `json:"feeBasisPoints"`
	MinListingDuration int64  `json:"minListingDuration"`
	MaxListingDuration int64  `json:"maxListingDuration"`
	MinTradeAmount     Amount `json:"minTradeAmount"`
	MaxListingsPerUser uint32 `json:"maxListingsPerUser"`
	WhitelistEnabled   bool   `json:"whitelistEnabled"`
	Deadline           int64  `json:"deadline"`
}

// PlatformUpdateRequest is the payload of platform_updateConfig. Omitted
// fields keep their current value.
type PlatformUpdateRequest struct {
	FeeCollector       *string `json:"feeCollector,omitempty"`
	FeeBasisPoints     *uint32 `json:"feeBasisPoints,omitempty"`
	MinListingDuration *int64  `json:"minListingDuration,omitempty"`
	MaxListingDuration *int64  `json:"maxListingDuration,omitempty"`
	MinTradeAmount     *Amount `json:"minTradeAmount,omitempty"`
	MaxListingsPerUser *uint32 `json:"maxListingsPerUser,omitempty"`
	WhitelistEnabled   *bool   `json:"whitelistEnabled,omitempty"`
	Deadline           int64   `json:"deadline"`
}

// DeadlineOnlyRequest is the payload of calls that carry no arguments.
type DeadlineOnlyRequest struct {
	Deadline int64 `json:"deadline"`
}

// FeeCollectorRequest is the payload of platform_setFeeCollector.
type FeeCollectorRequest struct {
	FeeCollector string `json:"feeCollector"`
	Deadline     int64  `json:"deadline"`
}

// WhitelistRequest is the payload of whitelist_manage.
type WhitelistRequest struct {
	Asset       string `json:"asset"`
	Whitelisted bool   `json:"whitelisted"`
	Deadline    int64  `json:"deadline"`
}

// UserInitializeRequest is the payload of user_initialize.
type UserInitializeRequest struct {
	Referrer               *string `json:"referrer,omitempty"`
	DefaultListingDuration int64   `json:"defaultListingDuration"`
	DefaultSlippageBps     uint32  `json:"defaultSlippageBps"`
	Deadline               int64   `json:"deadline"`
}

// PreferencesRequest is the payload of user_updatePreferences.
type PreferencesRequest struct {
	DefaultListingDuration *int64  `json:"defaultListingDuration,omitempty"`
	DefaultSlippageBps     *uint32 `json:"defaultSlippageBps,omitempty"`
	Deadline               int64   `json:"deadline"`
}

func (s *Server) handlePlatformInitialize(_ context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error) {
	var req PlatformInitializeRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	collector, err := parseAddress("feeCollector", req.FeeCollector)
	if err != nil {
		return nil, err
	}
	cfg, err := s.engine.InitializePlatform(caller, listing.PlatformParams{
		FeeCollector:       collector,
		FeeBasisPoints:     req.FeeBasisPoints,
		MinListingDuration: req.MinListingDuration,
		MaxListingDuration: req.MaxListingDuration,
		MinTradeAmount:     uint64(req.MinTradeAmount),
		MaxListingsPerUser: req.MaxListingsPerUser,
		WhitelistEnabled:   req.WhitelistEnabled,
	})
	if err != nil {
		return nil, err
	}
	return newPlatformJSON(cfg), nil
}

func (s *Server) handlePlatformUpdateConfig(_ context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error) {
	var req PlatformUpdateRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	collector, err := parseOptionalAddress("feeCollector", req.FeeCollector)
	if err != nil {
		return nil, err
	}
	update := listing.ConfigUpdate{
		FeeBasisPoints:     req.FeeBasisPoints,
		MinListingDuration: req.MinListingDuration,
		MaxListingDuration: req.MaxListingDuration,
		MinTradeAmount:     amountPtr(req.MinTradeAmount),
		MaxListingsPerUser: req.MaxListingsPerUser,
		WhitelistEnabled:   req.WhitelistEnabled,
		FeeCollector:       collector,
	}
	if update.Empty() {
		return nil, invalidParams("invalid_params", "no configuration fields supplied")
	}
	cfg, err := s.engine.UpdateConfig(caller, update)
	if err != nil {
		return nil, err
	}
	return newPlatformJSON(cfg), nil
}

func (s *Server) handlePlatformPause(_ context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error) {
	var req DeadlineOnlyRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	if err := s.engine.PausePlatform(caller); err != nil {
		return nil, err
	}
	return s.platformView()
}

func (s *Server) handlePlatformResume(_ context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error) {
	var req DeadlineOnlyRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	if err := s.engine.ResumePlatform(caller); err != nil {
		return nil, err
	}
	return s.platformView()
}

func (s *Server) handlePlatformSetFeeCollector(_ context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error) {
	var req FeeCollectorRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	collector, err := parseAddress("feeCollector", req.FeeCollector)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SetFeeCollector(caller, collector); err != nil {
		return nil, err
	}
	return s.platformView()
}

func (s *Server) platformView() (interface{}, error) {
	cfg, err := s.engine.Platform()
	if err != nil {
		return nil, err
	}
	return newPlatformJSON(cfg), nil
}

func (s *Server) handleWhitelistManage(_ context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error) {
	var req WhitelistRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		return nil, err
	}
	entry, err := s.engine.ManageWhitelist(caller, asset, req.Whitelisted)
	if err != nil {
		return nil, err
	}
	return newWhitelistJSON(entry), nil
}

func (s *Server) handleUserInitialize(_ context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error) {
	var req UserInitializeRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	referrer, err := parseOptionalAddress("referrer", req.Referrer)
	if err != nil {
		return nil, err
	}
	profile, err := s.engine.InitializeUser(caller, listing.UserParams{
		Referrer:               referrer,
		DefaultListingDuration: req.DefaultListingDuration,
		DefaultSlippageBps:     req.DefaultSlippageBps,
	})
	if err != nil {
		return nil, err
	}
	return newProfileJSON(profile), nil
}

func (s *Server) handleUserUpdatePreferences(_ context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error) {
	var req PreferencesRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	if req.DefaultListingDuration == nil && req.DefaultSlippageBps == nil {
		return nil, invalidParams("invalid_params", "no preference fields supplied")
	}
	profile, err := s.engine.UpdatePreferences(caller, listing.Preferences{
		DefaultListingDuration: req.DefaultListingDuration,
		DefaultSlippageBps:     req.DefaultSlippageBps,
	})
	if err != nil {
		return nil, err
	}
	return newProfileJSON(profile), nil
}
