package bank

import (
	"errors"
	"math"
	"testing"

	"escrowswap/core/state"
	"escrowswap/storage"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestTxn(t *testing.T) (*state.Store, *state.Txn) {
	t.Helper()
	store, err := state.NewStore(storage.NewMemDB())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, store.Begin()
}

func TestLedgerTransfer(t *testing.T) {
	store, txn := newTestTxn(t)
	ledger := NewLedger(txn)
	alice, bob, asset := newTestAddress(0x01), newTestAddress(0x02), newTestAddress(0xA0)

	if err := ledger.Credit(alice, asset, 1_000); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, bob, asset, 400); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	aliceBal, err := BalanceOf(store, alice, asset)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	bobBal, err := BalanceOf(store, bob, asset)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if aliceBal != 600 || bobBal != 400 {
		t.Fatalf("unexpected balances alice=%d bob=%d", aliceBal, bobBal)
	}
}

func TestLedgerDebitInsufficient(t *testing.T) {
	_, txn := newTestTxn(t)
	ledger := NewLedger(txn)
	alice, asset := newTestAddress(0x01), newTestAddress(0xA0)

	if err := ledger.Credit(alice, asset, 10); err != nil {
		t.Fatalf("credit: %v", err)
	}
	err := ledger.Debit(alice, asset, 11)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	bal, _ := ledger.Balance(alice, asset)
	if bal != 10 {
		t.Fatalf("failed debit must not change balance, got %d", bal)
	}
}

func TestLedgerCreditOverflowFailsCommit(t *testing.T) {
	store, txn := newTestTxn(t)
	ledger := NewLedger(txn)
	alice, asset := newTestAddress(0x01), newTestAddress(0xA0)

	if err := ledger.Credit(alice, asset, math.MaxUint64); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Credit(alice, asset, 1); err != nil {
		t.Fatalf("stage credit: %v", err)
	}
	if err := txn.Commit(); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	bal, err := BalanceOf(store, alice, asset)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 0 {
		t.Fatalf("failed commit must not persist, got %d", bal)
	}
}

func TestLedgerConcurrentCreditsDoNotConflict(t *testing.T) {
	store, first := newTestTxn(t)
	second := store.Begin()
	collector, asset := newTestAddress(0xFE), newTestAddress(0xA0)

	if err := NewLedger(first).Credit(collector, asset, 5); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := NewLedger(second).Credit(collector, asset, 7); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := second.Commit(); err != nil {
		t.Fatalf("commit second: %v", err)
	}
	if err := first.Commit(); err != nil {
		t.Fatalf("commit first: %v", err)
	}
	bal, err := BalanceOf(store, collector, asset)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 12 {
		t.Fatalf("expected 12, got %d", bal)
	}
}
