package listing

import (
	"math"

	"github.com/holiman/uint256"
)

func checkedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrArithmeticOverflow
	}
	return a + b, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrArithmeticUnderflow
	}
	return a - b, nil
}

func checkedAddUnix(base, delta int64) (int64, error) {
	if delta < 0 || base > math.MaxInt64-delta {
		return 0, ErrArithmeticOverflow
	}
	return base + delta, nil
}

// mulDivRound returns round_half_up(a*b/d) computed in 256-bit precision.
func mulDivRound(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivisionByZero
	}
	num := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	num.Lsh(num, 1)
	den := new(uint256.Int).Lsh(uint256.NewInt(d), 1)
	num.Add(num, uint256.NewInt(d))
	num.Div(num, den)
	if !num.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return num.Uint64(), nil
}

// withinRate reports whether paying dest for src deviates from the original
// srcTotal:destTotal rate by no more than bps, or by less than the one unit a
// single fill can shift under cumulative rounding.
func withinRate(src, dest, srcTotal, destTotal uint64, bps uint32) bool {
	exact := new(uint256.Int).Mul(uint256.NewInt(src), uint256.NewInt(destTotal))
	actual := new(uint256.Int).Mul(uint256.NewInt(dest), uint256.NewInt(srcTotal))
	diff := new(uint256.Int)
	if actual.Gt(exact) {
		diff.Sub(actual, exact)
	} else {
		diff.Sub(exact, actual)
	}
	if diff.IsZero() {
		return true
	}
	if diff.Lt(uint256.NewInt(srcTotal)) {
		return true
	}
	scaledDiff := new(uint256.Int).Mul(diff, uint256.NewInt(MaxSlippageBps))
	allowed := new(uint256.Int).Mul(exact, uint256.NewInt(uint64(bps)))
	return !scaledDiff.Gt(allowed)
}
