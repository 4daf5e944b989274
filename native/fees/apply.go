package fees

import (
	"errors"

	"github.com/holiman/uint256"
)

// BasisPointsDenominator is the number of basis points in 100%.
const BasisPointsDenominator = 10_000

// MaxPlatformFeeBps caps the platform swap fee at 10%.
const MaxPlatformFeeBps = 1_000

var (
	ErrFeeBpsOutOfRange = errors.New("fees: basis points out of range")
	ErrFeeOverflow      = errors.New("fees: arithmetic overflow")
)

// ApplyInput captures the context required to evaluate the fee obligation for
// a single swap leg.
type ApplyInput struct {
	Gross     uint64
	FeeBps    uint32
	Collector [20]byte
}

// ApplyResult summarises the computed fee and the net amount forwarded to the
// counterparty.
type ApplyResult struct {
	Gross     uint64
	Fee       uint64
	Net       uint64
	Collector [20]byte
}

// Compute returns floor(amount * bps / 10_000).
func Compute(amount uint64, bps uint32) (uint64, error) {
	if bps > BasisPointsDenominator {
		return 0, ErrFeeBpsOutOfRange
	}
	if amount == 0 || bps == 0 {
		return 0, nil
	}
	fee := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(uint64(bps)))
	fee.Div(fee, uint256.NewInt(BasisPointsDenominator))
	if !fee.IsUint64() {
		return 0, ErrFeeOverflow
	}
	return fee.Uint64(), nil
}

// Apply evaluates the fee for the gross amount. The caller is responsible for
// routing Fee to the collector and Net to the recipient.
func Apply(input ApplyInput) (ApplyResult, error) {
	result := ApplyResult{Gross: input.Gross, Collector: input.Collector}
	fee, err := Compute(input.Gross, input.FeeBps)
	if err != nil {
		return result, err
	}
	result.Fee = fee
	result.Net = input.Gross - fee
	return result, nil
}
