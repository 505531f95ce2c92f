package kv

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore adapts a badger transaction to Store. A read-only transaction gives a consistent
// snapshot of the last committed block.
type BadgerStore struct {
	txn *badger.Txn
}

// NewBadgerStore wraps txn
func NewBadgerStore(txn *badger.Txn) *BadgerStore {
	return &BadgerStore{txn: txn}
}

func (s *BadgerStore) Get(key []byte) ([]byte, error) {
	item, err := s.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (s *BadgerStore) Set(key, value []byte) error {
	return s.txn.Set(key, value)
}

// Commit writes every staged key of c to db in a single badger transaction. Either all keys
// become visible or none do.
func Commit(db *badger.DB, c *Cache) error {
	return db.Update(func(txn *badger.Txn) error {
		return c.Each(func(key, value []byte) error {
			return txn.Set(key, value)
		})
	})
}

// OpenInMemory opens a badger database that lives only in memory.
func OpenInMemory() (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}
