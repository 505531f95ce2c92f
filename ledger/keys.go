package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/ahmadzakiakmal/produce-registry/kv"
)

// State keys. Numeric components are big endian so badger iterates them in order.
var (
	keyNextBatchID   = []byte("meta/next_batch_id")
	keyPolicy        = []byte("meta/policy")
	keyAdminCount    = []byte("meta/admin_count")
	KeyChainID       = []byte("meta/chain_id")
	KeyLastHeight    = []byte("meta/last_block_height")
	KeyLastAppHash   = []byte("meta/last_block_app_hash")
	prefixRole       = "role/"
	prefixBatch      = "batch/"
	prefixHistory    = "history/"
	prefixNonce      = "nonce/"
	historyLenSuffix = "/len"
)

func roleKey(a Account) []byte {
	return []byte(prefixRole + a.String())
}

func batchKey(id uint64) []byte {
	return append([]byte(prefixBatch), Uint64ToBytes(id)...)
}

func historyLenKey(id uint64) []byte {
	key := append([]byte(prefixHistory), Uint64ToBytes(id)...)
	return append(key, historyLenSuffix...)
}

func historyRecordKey(id, index uint64) []byte {
	key := append([]byte(prefixHistory), Uint64ToBytes(id)...)
	key = append(key, '/')
	return append(key, Uint64ToBytes(index)...)
}

// NonceKey is where the last accepted nonce of a signer is kept.
func NonceKey(a Account) []byte {
	return []byte(prefixNonce + a.String())
}

// Uint64ToBytes converts a uint64 to 8 big endian bytes
func Uint64ToBytes(i uint64) []byte {
	buf := make([]byte, 8)
	buf[0] = byte(i >> 56)
	buf[1] = byte(i >> 48)
	buf[2] = byte(i >> 40)
	buf[3] = byte(i >> 32)
	buf[4] = byte(i >> 24)
	buf[5] = byte(i >> 16)
	buf[6] = byte(i >> 8)
	buf[7] = byte(i)
	return buf
}

// BytesToUint64 converts 8 big endian bytes to a uint64
func BytesToUint64(buf []byte) uint64 {
	if len(buf) < 8 {
		return 0
	}
	return uint64(buf[0])<<56 |
		uint64(buf[1])<<48 |
		uint64(buf[2])<<40 |
		uint64(buf[3])<<32 |
		uint64(buf[4])<<24 |
		uint64(buf[5])<<16 |
		uint64(buf[6])<<8 |
		uint64(buf[7])
}

// GetUint64 reads a counter, returning def when the key is absent
func GetUint64(store kv.Store, key []byte, def uint64) (uint64, error) {
	raw, err := store.Get(key)
	if err != nil {
		if kv.IsNotFound(err) {
			return def, nil
		}
		return 0, internal(err)
	}
	return BytesToUint64(raw), nil
}

// SetUint64 writes a counter
func SetUint64(store kv.Store, key []byte, v uint64) error {
	if err := store.Set(key, Uint64ToBytes(v)); err != nil {
		return internal(err)
	}
	return nil
}

// getJSON decodes the value at key into v. found is false when the key is absent.
func getJSON(store kv.Store, key []byte, v any) (bool, error) {
	raw, err := store.Get(key)
	if err != nil {
		if kv.IsNotFound(err) {
			return false, nil
		}
		return false, internal(err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, internal(fmt.Errorf("decoding %q: %w", key, err))
	}
	return true, nil
}

func setJSON(store kv.Store, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return internal(fmt.Errorf("encoding %q: %w", key, err))
	}
	if err := store.Set(key, raw); err != nil {
		return internal(err)
	}
	return nil
}

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: err.Error()}
}
