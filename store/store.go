// Package store is the persistence layer of the beacon. It wraps a go-ethereum
// key-value database and stores RLP records under single-byte table
// prefixes followed by big-endian keys, so iteration order is key order.
package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
)

// Table prefixes. One byte each; never reuse a retired prefix.
var (
	CommitTable     = []byte("c")
	RevealTable     = []byte("r")
	CheckpointTable = []byte("b")
	RoundStateTable = []byte("s")
	LightProofTable = []byte("l")
	MetaTable       = []byte("m")
)

type Config struct {
	// Path of the leveldb directory. Empty selects an in-memory database.
	Path      string
	CacheMB   int
	Handles   int
	Namespace string
}

func DefaultConfig() Config {
	return Config{CacheMB: 64, Handles: 128, Namespace: "randbeacon/db/"}
}

// Open opens the database described by cfg.
func Open(cfg Config) (ethdb.KeyValueStore, error) {
	if cfg.Path == "" {
		return memorydb.New(), nil
	}
	db, err := leveldb.New(cfg.Path, cfg.CacheMB, cfg.Handles, cfg.Namespace, false)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", cfg.Path, err)
	}
	return db, nil
}

// Store is a typed view over a key-value database.
type Store struct {
	db ethdb.KeyValueStore
}

func New(db ethdb.KeyValueStore) *Store {
	return &Store{db: db}
}

// NewMemory returns a Store backed by a fresh in-memory database.
func NewMemory() *Store {
	return New(memorydb.New())
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Key concatenates a table prefix and key parts.
func Key(table []byte, parts ...[]byte) []byte {
	n := len(table)
	for _, p := range parts {
		n += len(p)
	}
	key := make([]byte, 0, n)
	key = append(key, table...)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

// Put stores the RLP encoding of v.
func (s *Store) Put(key []byte, v interface{}) error {
	raw, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("encode %x: %w", key, err)
	}
	return s.db.Put(key, raw)
}

// Get decodes the record at key into v. It returns false if the key is absent.
func (s *Store) Get(key []byte, v interface{}) (bool, error) {
	ok, err := s.db.Has(key)
	if err != nil || !ok {
		return false, err
	}
	raw, err := s.db.Get(key)
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, v); err != nil {
		return false, fmt.Errorf("decode %x: %w", key, err)
	}
	return true, nil
}

// Delete removes the record at key. Deleting an absent key is not an error.
func (s *Store) Delete(key []byte) error {
	return s.db.Delete(key)
}

// ErrStop ends ForEach early without reporting an error.
var ErrStop = errors.New("stop iteration")

// ForEach calls fn for every record whose key starts with prefix, in key
// order, beginning at prefix‖start.
func (s *Store) ForEach(prefix, start []byte, fn func(key, raw []byte) error) error {
	it := s.db.NewIterator(prefix, start)
	defer it.Release()
	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			if err == ErrStop {
				return nil
			}
			return err
		}
	}
	return it.Error()
}

// DeleteRange removes every key in [prefix‖from, prefix‖to).
func (s *Store) DeleteRange(prefix, from, to []byte) (int, error) {
	end := Key(prefix, to)
	batch := s.db.NewBatch()
	n := 0
	err := s.ForEach(prefix, from, func(key, _ []byte) error {
		if bytes.Compare(key, end) >= 0 {
			return ErrStop
		}
		n++
		return batch.Delete(copyKey(key))
	})
	if err != nil {
		return 0, err
	}
	return n, batch.Write()
}

// copyKey copies an iterator key, which is only valid until the next step.
func copyKey(key []byte) []byte {
	return append([]byte(nil), key...)
}

// Count returns the number of keys under prefix.
func (s *Store) Count(prefix []byte) (int, error) {
	n := 0
	err := s.ForEach(prefix, nil, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}
