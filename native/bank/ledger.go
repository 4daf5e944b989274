package bank

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/rlp"

	"escrowswap/core/state"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrBalanceOverflow     = errors.New("bank: balance overflow")
)

var balancePrefix = []byte("bank/balance/")

// Reader is the read-only subset of the state store used for balance lookups.
type Reader interface {
	KVGet(key []byte, out interface{}) (bool, error)
}

// Storage abstracts the transactional key-value operations required by the
// ledger.
type Storage interface {
	Reader
	KVPut(key []byte, value interface{}) error
	KVMerge(key []byte, fn state.MergeFunc) error
}

type storedBalance struct {
	Amount uint64
}

// BalanceKey returns the state key for owner's holding of asset.
func BalanceKey(owner, asset [20]byte) []byte {
	key := make([]byte, 0, len(balancePrefix)+40+1+40)
	key = append(key, balancePrefix...)
	key = append(key, hex.EncodeToString(owner[:])...)
	key = append(key, '/')
	key = append(key, hex.EncodeToString(asset[:])...)
	return key
}

// BalanceOf reads owner's holding of asset. Missing records read as zero.
func BalanceOf(r Reader, owner, asset [20]byte) (uint64, error) {
	if r == nil {
		return 0, fmt.Errorf("bank: state not configured")
	}
	var rec storedBalance
	ok, err := r.KVGet(BalanceKey(owner, asset), &rec)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return rec.Amount, nil
}

// Ledger moves fungible asset balances between owners.
type Ledger struct {
	store Storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

// Balance returns owner's holding of asset.
func (l *Ledger) Balance(owner, asset [20]byte) (uint64, error) {
	if l == nil {
		return 0, fmt.Errorf("bank: ledger not configured")
	}
	return BalanceOf(l.store, owner, asset)
}

// Credit increases owner's holding of asset by amount. Credits are staged as
// merges so that concurrent payments into the same account do not conflict;
// an overflow surfaces when the transaction commits.
func (l *Ledger) Credit(owner, asset [20]byte, amount uint64) error {
	if l == nil {
		return fmt.Errorf("bank: ledger not configured")
	}
	if amount == 0 {
		return nil
	}
	return l.store.KVMerge(BalanceKey(owner, asset), func(current []byte, exists bool) ([]byte, error) {
		var rec storedBalance
		if exists {
			if err := rlp.DecodeBytes(current, &rec); err != nil {
				return nil, err
			}
		}
		if rec.Amount > math.MaxUint64-amount {
			return nil, ErrBalanceOverflow
		}
		rec.Amount += amount
		return rlp.EncodeToBytes(rec)
	})
}

// Debit decreases owner's holding of asset by amount.
func (l *Ledger) Debit(owner, asset [20]byte, amount uint64) error {
	current, err := l.Balance(owner, asset)
	if err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if current < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, current, amount)
	}
	return l.store.KVPut(BalanceKey(owner, asset), storedBalance{Amount: current - amount})
}

// Transfer moves amount of asset from one owner to another.
func (l *Ledger) Transfer(from, to, asset [20]byte, amount uint64) error {
	if err := l.Debit(from, asset, amount); err != nil {
		return err
	}
	return l.Credit(to, asset, amount)
}
