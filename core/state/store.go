package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"escrowswap/storage"
)

// ErrConflict signals that another transaction committed a change to a record
// this transaction read. The caller must re-run the operation against fresh
// state.
var ErrConflict = errors.New("state: conflicting concurrent update")

var (
	recordPrefix = []byte("s/")
	seqKey       = []byte("m/seq")
)

// envelope is the persisted form of every record. Version carries the commit
// sequence that last wrote the record.
type envelope struct {
	Version uint64
	Data    []byte
}

// Store layers versioned records on top of a key-value database. Reads are
// lock free; commits are validated and applied one at a time so that a
// transaction observing a stale version is rejected instead of overwriting a
// newer value.
type Store struct {
	db  storage.Database
	mu  sync.Mutex
	seq uint64
}

// NewStore opens a store over db, restoring the last commit sequence.
func NewStore(db storage.Database) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("state: database required")
	}
	s := &Store{db: db}
	raw, err := db.Get(seqKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("state: load sequence: %w", err)
	case len(raw) != 8:
		return nil, fmt.Errorf("state: corrupt sequence record")
	default:
		s.seq = binary.BigEndian.Uint64(raw)
	}
	return s, nil
}

// Seq returns the sequence number of the most recent commit.
func (s *Store) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Begin starts a new optimistic transaction.
func (s *Store) Begin() *Txn {
	return &Txn{
		store:  s,
		reads:  make(map[string]uint64),
		writes: make(map[string]*pendingWrite),
	}
}

// KVGet decodes the latest committed value stored under key into out. The
// boolean reports whether the key exists.
func (s *Store) KVGet(key []byte, out interface{}) (bool, error) {
	env, ok, err := s.load(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(env.Data, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVIterate walks committed records whose key starts with prefix. The decode
// callback decodes the current record into the supplied destination.
func (s *Store) KVIterate(prefix []byte, fn func(key []byte, decode func(out interface{}) error) bool) error {
	if len(prefix) == 0 {
		return fmt.Errorf("state: iteration prefix must not be empty")
	}
	var decodeErr error
	err := s.db.Iterate(recordKey(prefix), func(raw, value []byte) bool {
		var env envelope
		if err := rlp.DecodeBytes(value, &env); err != nil {
			decodeErr = fmt.Errorf("state: decode envelope %q: %w", raw, err)
			return false
		}
		key := raw[len(recordPrefix):]
		return fn(key, func(out interface{}) error {
			return rlp.DecodeBytes(env.Data, out)
		})
	})
	if err != nil {
		return err
	}
	return decodeErr
}

// Version returns the commit sequence that last wrote key, or zero when the
// key is absent.
func (s *Store) Version(key []byte) (uint64, error) {
	env, ok, err := s.load(key)
	if err != nil || !ok {
		return 0, err
	}
	return env.Version, nil
}

func (s *Store) load(key []byte) (envelope, bool, error) {
	var env envelope
	if len(key) == 0 {
		return env, false, fmt.Errorf("state: key must not be empty")
	}
	raw, err := s.db.Get(recordKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return env, false, nil
	}
	if err != nil {
		return env, false, err
	}
	if err := rlp.DecodeBytes(raw, &env); err != nil {
		return env, false, fmt.Errorf("state: decode envelope %q: %w", key, err)
	}
	return env, true, nil
}

func (s *Store) commit(t *Txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateLocked(t); err != nil {
		return err
	}
	if len(t.writes) == 0 {
		return nil
	}

	next := s.seq + 1
	batch := storage.NewBatch()
	for _, key := range t.order {
		w := t.writes[key]
		if w.deleted {
			batch.Delete(recordKey([]byte(key)))
			continue
		}
		data, err := s.resolve([]byte(key), w)
		if err != nil {
			return err
		}
		encoded, err := rlp.EncodeToBytes(envelope{Version: next, Data: data})
		if err != nil {
			return err
		}
		batch.Put(recordKey([]byte(key)), encoded)
	}
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], next)
	batch.Put(seqKey, seqBuf[:])
	if err := s.db.Write(batch); err != nil {
		return fmt.Errorf("state: write batch: %w", err)
	}
	s.seq = next
	t.seq = next
	return nil
}

func (s *Store) validate(t *Txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateLocked(t)
}

func (s *Store) validateLocked(t *Txn) error {
	for key, seen := range t.reads {
		current, err := s.Version([]byte(key))
		if err != nil {
			return err
		}
		if current != seen {
			return fmt.Errorf("%w: %q", ErrConflict, key)
		}
	}
	return nil
}

// resolve produces the final encoded value for a staged write, folding any
// merges over either the staged base or the currently committed value.
func (s *Store) resolve(key []byte, w *pendingWrite) ([]byte, error) {
	data, exists := w.data, w.hasBase
	if !w.hasBase {
		env, ok, err := s.load(key)
		if err != nil {
			return nil, err
		}
		data, exists = env.Data, ok
	}
	for _, merge := range w.merges {
		next, err := merge(data, exists)
		if err != nil {
			return nil, fmt.Errorf("state: merge %q: %w", key, err)
		}
		data, exists = next, true
	}
	return data, nil
}

func recordKey(key []byte) []byte {
	buf := make([]byte, len(recordPrefix)+len(key))
	copy(buf, recordPrefix)
	copy(buf[len(recordPrefix):], key)
	return buf
}
