package listing

import (
	"errors"
	"fmt"

	"escrowswap/native/fees"
)

// MaxFeeBasisPoints caps the platform fee at 10%.
const MaxFeeBasisPoints = fees.MaxPlatformFeeBps

// PlatformParams carries the policy supplied when the platform is initialized.
type PlatformParams struct {
	FeeCollector       [20]byte
	FeeBasisPoints     uint32
	MinListingDuration int64
	MaxListingDuration int64
	MinTradeAmount     uint64
	MaxListingsPerUser uint32
	WhitelistEnabled   bool
}

// ConfigUpdate lists the policy fields an authority may change. Nil fields are
// left untouched.
type ConfigUpdate struct {
	FeeBasisPoints     *uint32
	MinListingDuration *int64
	MaxListingDuration *int64
	MinTradeAmount     *uint64
	MaxListingsPerUser *uint32
	WhitelistEnabled   *bool
	FeeCollector       *[20]byte
}

// Empty reports whether the update changes nothing.
func (u ConfigUpdate) Empty() bool {
	return u.FeeBasisPoints == nil && u.MinListingDuration == nil && u.MaxListingDuration == nil &&
		u.MinTradeAmount == nil && u.MaxListingsPerUser == nil && u.WhitelistEnabled == nil &&
		u.FeeCollector == nil
}

// ValidatePolicy checks the invariants every stored configuration satisfies.
func ValidatePolicy(cfg *PlatformConfig) error {
	if cfg == nil {
		return ErrPlatformNotInitialized
	}
	if cfg.FeeBasisPoints > MaxFeeBasisPoints {
		return fmt.Errorf("%w: fee %d bps exceeds %d", ErrInvalidFeeConfiguration, cfg.FeeBasisPoints, MaxFeeBasisPoints)
	}
	if cfg.MinListingDuration <= 0 || cfg.MinListingDuration >= cfg.MaxListingDuration {
		return fmt.Errorf("%w: min %d, max %d", ErrInvalidDurationBounds, cfg.MinListingDuration, cfg.MaxListingDuration)
	}
	if cfg.MaxListingsPerUser == 0 {
		return fmt.Errorf("%w: max listings per user must be positive", ErrInvalidListingLimit)
	}
	if cfg.FeeCollector == ([20]byte{}) {
		return fmt.Errorf("%w: zero address", ErrInvalidFeeCollector)
	}
	return nil
}

// applyUpdate returns a copy of cfg with the supplied fields changed and the
// result re-validated.
func applyUpdate(cfg *PlatformConfig, update ConfigUpdate) (*PlatformConfig, error) {
	next := cfg.Clone()
	if update.FeeBasisPoints != nil {
		next.FeeBasisPoints = *update.FeeBasisPoints
	}
	if update.MinListingDuration != nil {
		next.MinListingDuration = *update.MinListingDuration
	}
	if update.MaxListingDuration != nil {
		next.MaxListingDuration = *update.MaxListingDuration
	}
	if update.MinTradeAmount != nil {
		next.MinTradeAmount = *update.MinTradeAmount
	}
	if update.MaxListingsPerUser != nil {
		next.MaxListingsPerUser = *update.MaxListingsPerUser
	}
	if update.WhitelistEnabled != nil {
		next.WhitelistEnabled = *update.WhitelistEnabled
	}
	if update.FeeCollector != nil {
		next.FeeCollector = *update.FeeCollector
	}
	if err := ValidatePolicy(next); err != nil {
		return nil, err
	}
	return next, nil
}

// ValidateDuration checks requested against the configured listing bounds.
func ValidateDuration(cfg *PlatformConfig, requested int64) error {
	if cfg == nil {
		return ErrPlatformNotInitialized
	}
	if requested < cfg.MinListingDuration {
		return fmt.Errorf("%w: %ds below minimum %ds", ErrDurationTooShort, requested, cfg.MinListingDuration)
	}
	if requested > cfg.MaxListingDuration {
		return fmt.Errorf("%w: %ds above maximum %ds", ErrDurationTooLong, requested, cfg.MaxListingDuration)
	}
	return nil
}

// ComputeFee returns floor(destAmount * feeBasisPoints / 10_000).
func ComputeFee(destAmount uint64, feeBasisPoints uint32) (uint64, error) {
	if feeBasisPoints > MaxFeeBasisPoints {
		return 0, ErrInvalidFeeConfiguration
	}
	fee, err := fees.Compute(destAmount, feeBasisPoints)
	switch {
	case errors.Is(err, fees.ErrFeeOverflow):
		return 0, ErrArithmeticOverflow
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrInvalidFeeConfiguration, err)
	}
	return fee, nil
}

func validateSlippage(bps uint32) error {
	if bps > MaxSlippageBps {
		return fmt.Errorf("%w: %d bps exceeds %d", ErrInvalidSlippageTolerance, bps, MaxSlippageBps)
	}
	return nil
}
