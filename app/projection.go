package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ahmadzakiakmal/produce-registry/kv"
	"github.com/ahmadzakiakmal/produce-registry/ledger"
)

// Blocks waiting for the projector are kept under this prefix until projected. The entries are
// node-local and written after the app hash is computed, so they never enter consensus state.
var projectionPrefix = []byte("projection/pending/")

func projectionKey(height int64) []byte {
	return append(append([]byte{}, projectionPrefix...), ledger.Uint64ToBytes(uint64(height))...)
}

// ProjectionBacklog describes committed blocks the projector has not accepted yet
type ProjectionBacklog struct {
	Pending      int   `json:"pending"`
	LowestHeight int64 `json:"lowest_height,omitempty"`
}

// queueProjection stages changes into the block so they are persisted with it
func queueProjection(block *kv.Cache, changes *ledger.ChangeSet) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encoding changes of block %d: %w", changes.Height, err)
	}
	return block.Set(projectionKey(changes.Height), raw)
}

// projectPending hands queued blocks to the projector in height order. It stops at the first
// failure so a later block is never projected ahead of an earlier one; the failed block is
// retried on the next commit.
func (app *Application) projectPending(ctx context.Context) {
	for {
		var (
			key     []byte
			changes ledger.ChangeSet
		)
		err := app.badgerDB.View(func(btxn *badger.Txn) error {
			it := btxn.NewIterator(badger.IteratorOptions{Prefix: projectionPrefix})
			defer it.Close()
			it.Rewind()
			if !it.Valid() {
				return nil
			}
			key = it.Item().KeyCopy(nil)
			return it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &changes)
			})
		})
		if err != nil {
			app.logger.Error("Reading projection queue failed", "error", err)
			return
		}
		if key == nil {
			return
		}

		if err := app.projector.ProjectBlock(ctx, &changes); err != nil {
			app.logger.Error("Projection failed, will retry", "height", changes.Height, "error", err)
			return
		}
		if err := app.badgerDB.Update(func(btxn *badger.Txn) error {
			return btxn.Delete(key)
		}); err != nil {
			app.logger.Error("Dequeuing projected block failed", "height", changes.Height, "error", err)
			return
		}
	}
}

// ProjectionBacklog reports blocks still waiting for the projector
func (app *Application) ProjectionBacklog() (ProjectionBacklog, error) {
	var backlog ProjectionBacklog
	err := app.badgerDB.View(func(btxn *badger.Txn) error {
		it := btxn.NewIterator(badger.IteratorOptions{Prefix: projectionPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if backlog.Pending == 0 {
				backlog.LowestHeight = int64(ledger.BytesToUint64(it.Item().Key()[len(projectionPrefix):]))
			}
			backlog.Pending++
		}
		return nil
	})
	return backlog, err
}
