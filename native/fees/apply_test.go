package fees

import (
	"errors"
	"math"
	"testing"
)

func TestComputeFloorsFee(t *testing.T) {
	cases := []struct {
		name   string
		amount uint64
		bps    uint32
		want   uint64
	}{
		{name: "ten bps", amount: 5_000_000, bps: 10, want: 5_000},
		{name: "rounds down", amount: 999, bps: 10, want: 0},
		{name: "max platform fee", amount: 12_345, bps: MaxPlatformFeeBps, want: 1_234},
		{name: "zero bps", amount: 1_000_000, bps: 0, want: 0},
		{name: "full range", amount: math.MaxUint64, bps: BasisPointsDenominator, want: math.MaxUint64},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compute(tc.amount, tc.bps)
			if err != nil {
				t.Fatalf("compute: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected fee %d, got %d", tc.want, got)
			}
		})
	}
}

func TestComputeRejectsOutOfRangeBps(t *testing.T) {
	if _, err := Compute(100, BasisPointsDenominator+1); !errors.Is(err, ErrFeeBpsOutOfRange) {
		t.Fatalf("expected out of range error, got %v", err)
	}
}

func TestApplySplitsGross(t *testing.T) {
	collector := [20]byte{0xFE}
	res, err := Apply(ApplyInput{Gross: 5_000_000, FeeBps: 10, Collector: collector})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Fee != 5_000 || res.Net != 4_995_000 {
		t.Fatalf("unexpected split fee=%d net=%d", res.Fee, res.Net)
	}
	if res.Fee+res.Net != res.Gross {
		t.Fatalf("split must conserve gross")
	}
	if res.Collector != collector {
		t.Fatalf("collector not propagated")
	}
}
