package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can use strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := string(text)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// Storage selects the state backend.
type Storage struct {
	// Backend is "leveldb" or "memory".
	Backend string `toml:"Backend" yaml:"backend"`
}

// Index configures the SQL projection of listing events. An empty DSN
// disables search and fill history.
type Index struct {
	DSN string `toml:"DSN" yaml:"dsn"`
}

// Log configures structured logging.
type Log struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// RPC tunes the HTTP surface.
type RPC struct {
	RequestsPerSecond float64  `toml:"RequestsPerSecond" yaml:"requests_per_second"`
	Burst             int      `toml:"Burst" yaml:"burst"`
	StreamBuffer      int      `toml:"StreamBuffer" yaml:"stream_buffer"`
	ReadTimeout       Duration `toml:"ReadTimeout" yaml:"read_timeout"`
	WriteTimeout      Duration `toml:"WriteTimeout" yaml:"write_timeout"`
	ShutdownTimeout   Duration `toml:"ShutdownTimeout" yaml:"shutdown_timeout"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string            `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool              `toml:"Insecure" yaml:"insecure"`
	Headers     map[string]string `toml:"Headers" yaml:"headers"`
	Metrics     bool              `toml:"Metrics" yaml:"metrics"`
	Traces      bool              `toml:"Traces" yaml:"traces"`
	SampleRatio float64           `toml:"SampleRatio" yaml:"sample_ratio"`
}

// Platform restricts and optionally performs the one-time platform
// initialization at startup.
type Platform struct {
	// Authority, when set, is the only identity allowed to initialize the
	// platform.
	Authority string `toml:"Authority" yaml:"authority"`
	// AutoInitialize initializes the platform on startup with Authority as
	// the authority when it has not been initialized yet.
	AutoInitialize     bool     `toml:"AutoInitialize" yaml:"auto_initialize"`
	FeeCollector       string   `toml:"FeeCollector" yaml:"fee_collector"`
	FeeBasisPoints     uint32   `toml:"FeeBasisPoints" yaml:"fee_basis_points"`
	MinListingDuration int64    `toml:"MinListingDuration" yaml:"min_listing_duration"`
	MaxListingDuration int64    `toml:"MaxListingDuration" yaml:"max_listing_duration"`
	MinTradeAmount     uint64   `toml:"MinTradeAmount" yaml:"min_trade_amount"`
	MaxListingsPerUser uint32   `toml:"MaxListingsPerUser" yaml:"max_listings_per_user"`
	WhitelistEnabled   bool     `toml:"WhitelistEnabled" yaml:"whitelist_enabled"`
	Whitelist          []string `toml:"Whitelist" yaml:"whitelist"`
}

// Allocation seeds a balance when the state store is first created.
type Allocation struct {
	Owner  string `toml:"Owner" yaml:"owner"`
	Asset  string `toml:"Asset" yaml:"asset"`
	Amount uint64 `toml:"Amount" yaml:"amount"`
}
