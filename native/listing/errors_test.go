package listing

import (
	"errors"
	"fmt"
	"testing"

	"escrowswap/core/state"
	"escrowswap/native/bank"
)

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		err       error
		condition string
		category  string
		fatal     bool
	}{
		{fmt.Errorf("%w: detail", ErrPlatformPaused), "PlatformPaused", CategoryPolicy, false},
		{ErrSameTokenMints, "SameTokenMints", CategoryValidity, false},
		{fmt.Errorf("wrap: %w", ErrListingExpired), "ListingExpired", CategoryLifecycle, false},
		{ErrSlippageExceeded, "SlippageExceeded", CategorySwap, false},
		{ErrVaultBalanceMismatch, "VaultBalanceMismatch", CategoryIntegrity, true},
		{fmt.Errorf("state: merge: %w", bank.ErrBalanceOverflow), "ArithmeticOverflow", CategoryIntegrity, true},
		{ErrTokenNotWhitelisted, "TokenNotWhitelisted", CategoryGatekeeping, false},
		{fmt.Errorf("%w: key", state.ErrConflict), "Conflict", CategoryConflict, false},
		{errors.New("disk on fire"), "Internal", CategoryInternal, false},
	}
	for _, tc := range cases {
		if got := Condition(tc.err); got != tc.condition {
			t.Fatalf("condition of %v: got %s want %s", tc.err, got, tc.condition)
		}
		if got := Category(tc.err); got != tc.category {
			t.Fatalf("category of %v: got %s want %s", tc.err, got, tc.category)
		}
		if got := IsFatal(tc.err); got != tc.fatal {
			t.Fatalf("fatal of %v: got %v", tc.err, got)
		}
	}
	if Condition(nil) != "" || Category(nil) != "" || IsFatal(nil) {
		t.Fatalf("nil error must classify as nothing")
	}
	if !IsRetryable(fmt.Errorf("x: %w", state.ErrConflict)) || IsRetryable(ErrListingExpired) {
		t.Fatalf("only conflicts are retryable")
	}
}

func TestStatusNames(t *testing.T) {
	for s := StatusPending; s <= StatusExpired; s++ {
		parsed, err := ParseStatus(s.String())
		if err != nil || parsed != s {
			t.Fatalf("status %d does not round trip: %v %v", s, parsed, err)
		}
	}
	if _, err := ParseStatus("bogus"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if !StatusCompleted.Terminal() || StatusPartiallyFilled.Terminal() || Status(9).Valid() {
		t.Fatalf("unexpected status predicates")
	}
}

func TestMulDivRound(t *testing.T) {
	if _, err := mulDivRound(1, 1, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if _, err := mulDivRound(^uint64(0), ^uint64(0), 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	got, err := mulDivRound(^uint64(0), 3, 3)
	if err != nil || got != ^uint64(0) {
		t.Fatalf("expected exact max, got %d err=%v", got, err)
	}
	if _, err := checkedSub(1, 2); !errors.Is(err, ErrArithmeticUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if _, err := checkedAdd(^uint64(0), 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestDeriveKeyIsMakerScoped(t *testing.T) {
	a, b := newTestAddress(0x01), newTestAddress(0x02)
	if DeriveKey(a, 1) == DeriveKey(b, 1) || DeriveKey(a, 1) == DeriveKey(a, 2) {
		t.Fatalf("listing keys must be unique per maker and id")
	}
	if DeriveKey(a, 1) != DeriveKey(a, 1) {
		t.Fatalf("listing keys must be deterministic")
	}
}
