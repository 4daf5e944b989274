package listing

import (
	"errors"

	"escrowswap/core/state"
	"escrowswap/native/bank"
)

// Error categories reported by Category.
const (
	CategoryPolicy      = "policy"
	CategoryValidity    = "listing"
	CategoryLifecycle   = "lifecycle"
	CategorySwap        = "swap"
	CategoryIntegrity   = "integrity"
	CategoryGatekeeping = "gatekeeping"
	CategoryConflict    = "conflict"
	CategoryInternal    = "internal"
)

// Policy violations.
var (
	ErrPlatformPaused             = errors.New("platform paused")
	ErrUnauthorizedAuthority      = errors.New("unauthorized authority")
	ErrInvalidFeeConfiguration    = errors.New("invalid fee configuration")
	ErrInvalidDurationBounds      = errors.New("invalid duration bounds")
	ErrInvalidListingLimit        = errors.New("invalid listing limit")
	ErrInvalidFeeCollector        = errors.New("invalid fee collector")
	ErrPlatformNotInitialized     = errors.New("platform not initialized")
	ErrPlatformAlreadyInitialized = errors.New("platform already initialized")
	ErrPlatformAlreadyPaused      = errors.New("platform already paused")
	ErrPlatformNotPaused          = errors.New("platform not paused")
)

// Listing validity.
var (
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrAmountTooSmall           = errors.New("amount below minimum trade")
	ErrSameTokenMints           = errors.New("source and destination assets are identical")
	ErrDurationTooShort         = errors.New("duration too short")
	ErrDurationTooLong          = errors.New("duration too long")
	ErrMaxListingsReached       = errors.New("maximum active listings reached")
	ErrMinFillAmountTooLarge    = errors.New("minimum fill exceeds listing amount")
	ErrInvalidSlippageTolerance = errors.New("invalid slippage tolerance")
	ErrListingAlreadyExists     = errors.New("listing already exists")
	ErrProfileAlreadyExists     = errors.New("profile already exists")
	ErrProfileNotFound          = errors.New("profile not found")
	ErrInvalidReferrer          = errors.New("invalid referrer")
)

// Lifecycle violations.
var (
	ErrListingNotFound         = errors.New("listing not found")
	ErrListingExpired          = errors.New("listing expired")
	ErrListingNotActive        = errors.New("listing not active")
	ErrListingAlreadyCompleted = errors.New("listing already completed")
	ErrInvalidListingStatus    = errors.New("invalid listing status")
	ErrListingNotExpired       = errors.New("listing not expired")
	ErrNotListingMaker         = errors.New("caller is not the listing maker")
)

// Swap violations.
var (
	ErrSlippageExceeded           = errors.New("slippage exceeded")
	ErrFillAmountTooSmall         = errors.New("fill amount too small")
	ErrSwapAmountExceedsRemaining = errors.New("swap amount exceeds remaining")
	ErrCannotSwapOwnListing       = errors.New("cannot swap own listing")
	ErrInsufficientMakerBalance   = errors.New("insufficient maker balance")
	ErrInsufficientTakerBalance   = errors.New("insufficient taker balance")
)

// Accounting and integrity faults. These indicate a broken invariant and are
// never retried.
var (
	ErrArithmeticOverflow   = errors.New("arithmetic overflow")
	ErrArithmeticUnderflow  = errors.New("arithmetic underflow")
	ErrDivisionByZero       = errors.New("division by zero")
	ErrVaultBalanceMismatch = errors.New("vault balance mismatch")
)

// Gatekeeping.
var ErrTokenNotWhitelisted = errors.New("token not whitelisted")

type condition struct {
	err      error
	name     string
	category string
}

var conditions = []condition{
	{ErrPlatformPaused, "PlatformPaused", CategoryPolicy},
	{ErrUnauthorizedAuthority, "UnauthorizedAuthority", CategoryPolicy},
	{ErrInvalidFeeConfiguration, "InvalidFeeConfiguration", CategoryPolicy},
	{ErrInvalidDurationBounds, "InvalidDurationBounds", CategoryPolicy},
	{ErrInvalidListingLimit, "InvalidListingLimit", CategoryPolicy},
	{ErrInvalidFeeCollector, "InvalidFeeCollector", CategoryPolicy},
	{ErrPlatformNotInitialized, "PlatformNotInitialized", CategoryPolicy},
	{ErrPlatformAlreadyInitialized, "PlatformAlreadyInitialized", CategoryPolicy},
	{ErrPlatformAlreadyPaused, "PlatformAlreadyPaused", CategoryPolicy},
	{ErrPlatformNotPaused, "PlatformNotPaused", CategoryPolicy},

	{ErrInvalidAmount, "InvalidAmount", CategoryValidity},
	{ErrAmountTooSmall, "AmountTooSmall", CategoryValidity},
	{ErrSameTokenMints, "SameTokenMints", CategoryValidity},
	{ErrDurationTooShort, "DurationTooShort", CategoryValidity},
	{ErrDurationTooLong, "DurationTooLong", CategoryValidity},
	{ErrMaxListingsReached, "MaxListingsReached", CategoryValidity},
	{ErrMinFillAmountTooLarge, "MinFillAmountTooLarge", CategoryValidity},
	{ErrInvalidSlippageTolerance, "InvalidSlippageTolerance", CategoryValidity},
	{ErrListingAlreadyExists, "ListingAlreadyExists", CategoryValidity},
	{ErrProfileAlreadyExists, "ProfileAlreadyExists", CategoryValidity},
	{ErrProfileNotFound, "ProfileNotFound", CategoryValidity},
	{ErrInvalidReferrer, "InvalidReferrer", CategoryValidity},

	{ErrListingNotFound, "ListingNotFound", CategoryLifecycle},
	{ErrListingExpired, "ListingExpired", CategoryLifecycle},
	{ErrListingNotActive, "ListingNotActive", CategoryLifecycle},
	{ErrListingAlreadyCompleted, "ListingAlreadyCompleted", CategoryLifecycle},
	{ErrInvalidListingStatus, "InvalidListingStatus", CategoryLifecycle},
	{ErrListingNotExpired, "ListingNotExpired", CategoryLifecycle},
	{ErrNotListingMaker, "NotListingMaker", CategoryLifecycle},

	{ErrSlippageExceeded, "SlippageExceeded", CategorySwap},
	{ErrFillAmountTooSmall, "FillAmountTooSmall", CategorySwap},
	{ErrSwapAmountExceedsRemaining, "SwapAmountExceedsRemaining", CategorySwap},
	{ErrCannotSwapOwnListing, "CannotSwapOwnListing", CategorySwap},
	{ErrInsufficientMakerBalance, "InsufficientMakerBalance", CategorySwap},
	{ErrInsufficientTakerBalance, "InsufficientTakerBalance", CategorySwap},

	{ErrArithmeticOverflow, "ArithmeticOverflow", CategoryIntegrity},
	{ErrArithmeticUnderflow, "ArithmeticUnderflow", CategoryIntegrity},
	{ErrDivisionByZero, "DivisionByZero", CategoryIntegrity},
	{ErrVaultBalanceMismatch, "VaultBalanceMismatch", CategoryIntegrity},
	{bank.ErrBalanceOverflow, "ArithmeticOverflow", CategoryIntegrity},

	{ErrTokenNotWhitelisted, "TokenNotWhitelisted", CategoryGatekeeping},

	{state.ErrConflict, "Conflict", CategoryConflict},
}

func lookupCondition(err error) (condition, bool) {
	if err == nil {
		return condition{}, false
	}
	for _, c := range conditions {
		if errors.Is(err, c.err) {
			return c, true
		}
	}
	return condition{}, false
}

// Condition returns the canonical name of the failure carried by err, or
// "Internal" when err matches no named condition.
func Condition(err error) string {
	if err == nil {
		return ""
	}
	if c, ok := lookupCondition(err); ok {
		return c.name
	}
	return "Internal"
}

// Category classifies err into one of the Category* groups.
func Category(err error) string {
	if err == nil {
		return ""
	}
	if c, ok := lookupCondition(err); ok {
		return c.category
	}
	return CategoryInternal
}

// IsFatal reports whether err signals a broken accounting invariant.
func IsFatal(err error) bool {
	return Category(err) == CategoryIntegrity
}

// IsRetryable reports whether the operation lost an optimistic commit race and
// may be re-submitted against fresh state.
func IsRetryable(err error) bool {
	return errors.Is(err, state.ErrConflict)
}
