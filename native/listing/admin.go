package listing

import (
	"errors"
	"fmt"
)

// InitializePlatform creates the platform configuration with caller as the
// authority. It succeeds exactly once.
func (e *Engine) InitializePlatform(caller [20]byte, params PlatformParams) (*PlatformConfig, error) {
	var result *PlatformConfig
	err := e.execute("platform_initialize", func(c *opContext) error {
		if e.bootstrap != ([20]byte{}) && caller != e.bootstrap {
			return ErrUnauthorizedAuthority
		}
		switch _, err := c.loadConfig(); {
		case err == nil:
			return ErrPlatformAlreadyInitialized
		case !errors.Is(err, ErrPlatformNotInitialized):
			return err
		}
		cfg := &PlatformConfig{
			Authority:          caller,
			FeeCollector:       params.FeeCollector,
			FeeBasisPoints:     params.FeeBasisPoints,
			MinListingDuration: params.MinListingDuration,
			MaxListingDuration: params.MaxListingDuration,
			MinTradeAmount:     params.MinTradeAmount,
			MaxListingsPerUser: params.MaxListingsPerUser,
			WhitelistEnabled:   params.WhitelistEnabled,
			CreatedAt:          c.now,
			UpdatedAt:          c.now,
		}
		if err := ValidatePolicy(cfg); err != nil {
			return err
		}
		if err := c.storeConfig(cfg); err != nil {
			return err
		}
		if err := c.txn.KVPut(platformStatsKey, &storedPlatformStats{}); err != nil {
			return err
		}
		c.emit(newPlatformEvent(EventTypePlatformInitialized, cfg))
		result = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateConfig applies the supplied policy fields. The resulting
// configuration must satisfy the same bounds as initialization.
func (e *Engine) UpdateConfig(caller [20]byte, update ConfigUpdate) (*PlatformConfig, error) {
	var result *PlatformConfig
	err := e.execute("platform_updateConfig", func(c *opContext) error {
		cfg, err := c.requireAuthority(caller)
		if err != nil {
			return err
		}
		next, err := applyUpdate(cfg, update)
		if err != nil {
			return err
		}
		next.UpdatedAt = c.now
		if err := c.storeConfig(next); err != nil {
			return err
		}
		c.emit(newPlatformEvent(EventTypePlatformUpdated, next))
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PausePlatform halts listing creation, updates and swaps.
func (e *Engine) PausePlatform(caller [20]byte) error {
	return e.setPaused("platform_pause", caller, true)
}

// ResumePlatform lifts a pause.
func (e *Engine) ResumePlatform(caller [20]byte) error {
	return e.setPaused("platform_resume", caller, false)
}

func (e *Engine) setPaused(op string, caller [20]byte, paused bool) error {
	return e.execute(op, func(c *opContext) error {
		cfg, err := c.requireAuthority(caller)
		if err != nil {
			return err
		}
		if cfg.Paused == paused {
			if paused {
				return ErrPlatformAlreadyPaused
			}
			return ErrPlatformNotPaused
		}
		cfg.Paused = paused
		cfg.UpdatedAt = c.now
		if err := c.storeConfig(cfg); err != nil {
			return err
		}
		eventType := EventTypePlatformResumed
		if paused {
			eventType = EventTypePlatformPaused
		}
		c.emit(newPlatformEvent(eventType, cfg))
		return nil
	})
}

// SetFeeCollector redirects future swap fees to collector.
func (e *Engine) SetFeeCollector(caller [20]byte, collector [20]byte) error {
	return e.execute("platform_setFeeCollector", func(c *opContext) error {
		cfg, err := c.requireAuthority(caller)
		if err != nil {
			return err
		}
		if collector == ([20]byte{}) {
			return fmt.Errorf("%w: zero address", ErrInvalidFeeCollector)
		}
		cfg.FeeCollector = collector
		cfg.UpdatedAt = c.now
		if err := c.storeConfig(cfg); err != nil {
			return err
		}
		c.emit(newPlatformEvent(EventTypePlatformFeeCollector, cfg))
		return nil
	})
}
