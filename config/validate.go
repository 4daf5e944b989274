package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Validate checks the configuration for values the daemon cannot start with.
// Fee and duration bounds are enforced by the listing engine when the
// platform is initialized.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("listen address required")
	}
	switch c.Storage.Backend {
	case "leveldb":
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("storage: leveldb backend requires a data dir")
		}
	case "memory":
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.RPC.RequestsPerSecond < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limit must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0,1]")
	}
	if err := c.Platform.validate(); err != nil {
		return fmt.Errorf("platform: %w", err)
	}
	for i, alloc := range c.Genesis {
		if !common.IsHexAddress(alloc.Owner) || !common.IsHexAddress(alloc.Asset) {
			return fmt.Errorf("genesis[%d]: owner and asset must be hex addresses", i)
		}
		if alloc.Amount == 0 {
			return fmt.Errorf("genesis[%d]: amount must be positive", i)
		}
	}
	return nil
}

func (p Platform) validate() error {
	if p.Authority != "" && !common.IsHexAddress(p.Authority) {
		return fmt.Errorf("authority %q is not a hex address", p.Authority)
	}
	for _, asset := range p.Whitelist {
		if !common.IsHexAddress(asset) {
			return fmt.Errorf("whitelist asset %q is not a hex address", asset)
		}
	}
	if !p.AutoInitialize {
		return nil
	}
	if p.Authority == "" {
		return fmt.Errorf("auto_initialize requires an authority")
	}
	if !common.IsHexAddress(p.FeeCollector) {
		return fmt.Errorf("auto_initialize requires a fee collector address")
	}
	return nil
}

// Address decodes a validated hex address field.
func Address(value string) [20]byte {
	var out [20]byte
	copy(out[:], common.HexToAddress(value).Bytes())
	return out
}
