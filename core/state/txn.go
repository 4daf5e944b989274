package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

var errTxnClosed = errors.New("state: transaction already finished")

// MergeFunc folds a commutative update into the committed value of a record.
// current is nil and exists is false when the record is absent. Merges run at
// commit time against the latest committed value, so they never conflict.
type MergeFunc func(current []byte, exists bool) ([]byte, error)

type pendingWrite struct {
	data    []byte
	hasBase bool
	deleted bool
	merges  []MergeFunc
}

// Txn buffers the writes of one operation and remembers the version of every
// record it read. Nothing is visible to other readers until Commit succeeds.
//
// Txn is not safe for concurrent use.
type Txn struct {
	store  *Store
	reads  map[string]uint64
	writes map[string]*pendingWrite
	order  []string
	done   bool
	seq    uint64
}

// KVGet decodes the value stored under key into out, observing this
// transaction's own pending writes first.
func (t *Txn) KVGet(key []byte, out interface{}) (bool, error) {
	if t.done {
		return false, errTxnClosed
	}
	if len(key) == 0 {
		return false, fmt.Errorf("state: key must not be empty")
	}
	w, staged := t.writes[string(key)]
	if staged && w.deleted {
		return false, nil
	}
	var (
		data   []byte
		exists bool
	)
	if staged && w.hasBase {
		data, exists = w.data, true
	} else {
		env, ok, err := t.store.load(key)
		if err != nil {
			return false, err
		}
		if _, seen := t.reads[string(key)]; !seen {
			t.reads[string(key)] = env.Version
		}
		data, exists = env.Data, ok
	}
	if staged {
		for _, merge := range w.merges {
			next, err := merge(data, exists)
			if err != nil {
				return false, err
			}
			data, exists = next, true
		}
	}
	if !exists {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut stages value under key.
func (t *Txn) KVPut(key []byte, value interface{}) error {
	if t.done {
		return errTxnClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	t.stage(string(key), &pendingWrite{data: encoded, hasBase: true})
	return nil
}

// KVMerge stages a commutative update of key. Merges do not join the read
// set; they are applied in order on top of whatever value is committed when
// the transaction commits, or on top of a value staged earlier by KVPut.
func (t *Txn) KVMerge(key []byte, fn MergeFunc) error {
	if t.done {
		return errTxnClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("kv: merge function required")
	}
	w, ok := t.writes[string(key)]
	if ok && w.deleted {
		return fmt.Errorf("kv: merge of deleted key %q", key)
	}
	if !ok {
		w = &pendingWrite{}
		t.stage(string(key), w)
	}
	w.merges = append(w.merges, fn)
	return nil
}

// KVDelete stages the removal of key.
func (t *Txn) KVDelete(key []byte) error {
	if t.done {
		return errTxnClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	t.stage(string(key), &pendingWrite{deleted: true})
	return nil
}

func (t *Txn) stage(key string, w *pendingWrite) {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = w
}

// Commit validates the read set and atomically applies the staged writes. It
// returns an error wrapping ErrConflict when any record read by the
// transaction changed since it was read.
func (t *Txn) Commit() error {
	if t.done {
		return errTxnClosed
	}
	t.done = true
	return t.store.commit(t)
}

// Seq returns the commit sequence assigned by a successful Commit. It is zero
// before commit and for transactions that staged no writes.
func (t *Txn) Seq() uint64 {
	return t.seq
}

// Validate reports ErrConflict when any record read so far has changed since
// it was read. Callers use it to tell a failure computed from a stale snapshot
// apart from a genuine one.
func (t *Txn) Validate() error {
	if t.done {
		return errTxnClosed
	}
	return t.store.validate(t)
}

// Discard abandons the transaction. It is safe to call after Commit.
func (t *Txn) Discard() {
	t.done = true
	t.writes = nil
	t.reads = nil
	t.order = nil
}
