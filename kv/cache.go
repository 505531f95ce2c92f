package kv

import (
	"errors"
	"sort"
)

// Cache stages writes on top of a parent Store. Reads fall through to the parent for keys the
// cache has not written. Nothing reaches the parent until Write is called, so dropping a Cache
// discards every staged change.
type Cache struct {
	parent Store
	writes map[string][]byte
}

// NewCache creates a write-staging layer over parent
func NewCache(parent Store) *Cache {
	return &Cache{
		parent: parent,
		writes: make(map[string][]byte),
	}
}

func (c *Cache) Get(key []byte) ([]byte, error) {
	if value, ok := c.writes[string(key)]; ok {
		return append([]byte{}, value...), nil
	}
	if c.parent == nil {
		return nil, ErrNotFound
	}
	return c.parent.Get(key)
}

func (c *Cache) Set(key, value []byte) error {
	c.writes[string(key)] = append([]byte{}, value...)
	return nil
}

// Len returns the number of staged keys
func (c *Cache) Len() int {
	return len(c.writes)
}

// Each visits staged writes in ascending key order.
func (c *Cache) Each(fn func(key, value []byte) error) error {
	keys := make([]string, 0, len(c.writes))
	for k := range c.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := fn([]byte(k), c.writes[k]); err != nil {
			return err
		}
	}
	return nil
}

// Write flushes staged writes into the parent in key order and resets the cache.
func (c *Cache) Write() error {
	if c.parent == nil {
		return ErrNoParent
	}
	err := c.Each(func(key, value []byte) error {
		return c.parent.Set(key, value)
	})
	if err != nil {
		return err
	}
	c.Discard()
	return nil
}

// Discard drops every staged write.
func (c *Cache) Discard() {
	c.writes = make(map[string][]byte)
}

// IsNotFound reports whether err means the key is absent
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
