package app

import (
	"crypto/sha256"

	"github.com/ahmadzakiakmal/produce-registry/kv"
	"github.com/ahmadzakiakmal/produce-registry/ledger"
)

// calculateAppHash chains the previous app hash with every key written by the block, in key
// order, so two nodes agree on the hash exactly when they agree on the writes.
func calculateAppHash(prev []byte, height int64, block *kv.Cache) ([]byte, error) {
	h := sha256.New()
	h.Write(prev)
	h.Write(ledger.Uint64ToBytes(uint64(height)))
	err := block.Each(func(key, value []byte) error {
		h.Write(ledger.Uint64ToBytes(uint64(len(key))))
		h.Write(key)
		h.Write(ledger.Uint64ToBytes(uint64(len(value))))
		h.Write(value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
