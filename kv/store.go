// Package kv holds the byte-keyed state the ledger runs on: a Store interface, a write-staging
// Cache and the badger-backed store that persists committed blocks.
package kv

import "errors"

var (
	ErrNotFound = errors.New("kv: key not found")
	ErrNoParent = errors.New("kv: cache has no parent store")
)

// Store is a byte-keyed view of ledger state. Get returns ErrNotFound for missing keys.
type Store interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// MemStore is a map-backed Store used for genesis staging and tests.
type MemStore struct {
	data map[string][]byte
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(key []byte) ([]byte, error) {
	value, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte{}, value...), nil
}

func (m *MemStore) Set(key, value []byte) error {
	m.data[string(key)] = append([]byte{}, value...)
	return nil
}

// Len returns the number of stored keys
func (m *MemStore) Len() int {
	return len(m.data)
}
