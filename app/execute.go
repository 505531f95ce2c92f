package app

import (
	"strconv"

	abcitypes "github.com/cometbft/cometbft/abci/types"

	"github.com/ahmadzakiakmal/produce-registry/kv"
	"github.com/ahmadzakiakmal/produce-registry/ledger"
	"github.com/ahmadzakiakmal/produce-registry/txn"
)

// Event types emitted in ExecTxResult
const (
	EventBatchCreated     = "batch_created"
	EventBatchUpdated     = "batch_updated"
	EventBatchTransferred = "batch_transferred"
	EventBatchFinalized   = "batch_finalized"
	EventRoleChanged      = "role_changed"
)

// deliverTx runs one transaction against the pending block. Envelope failures leave state
// untouched. Once signature and nonce check out the nonce is spent, and the ledger operation
// runs on its own cache that is dropped if the operation is rejected.
func (app *Application) deliverTx(raw []byte, blockTime int64) *abcitypes.ExecTxResult {
	tx, err := txn.Decode(raw)
	if err != nil {
		return failure(err)
	}
	op, err := tx.Operation()
	if err != nil {
		return failure(err)
	}
	signer, err := tx.Verify(app.chainID)
	if err != nil {
		return failure(err)
	}
	if err := txn.ConsumeNonce(app.block, signer, tx.Nonce); err != nil {
		return failure(err)
	}

	scratch := kv.NewCache(app.block)
	result, err := app.execute(scratch, blockTime, signer, op)
	if err != nil {
		scratch.Discard()
		return failure(err)
	}
	if err := scratch.Write(); err != nil {
		return failure(err)
	}
	result.Events = append(result.Events, abcitypes.Event{
		Type: "tx",
		Attributes: []abcitypes.EventAttribute{
			{Key: "signer", Value: signer.String(), Index: true},
			{Key: "nonce", Value: strconv.FormatUint(tx.Nonce, 10)},
			{Key: "type", Value: string(tx.Type), Index: true},
		},
	})
	return result
}

func (app *Application) execute(store kv.Store, blockTime int64, caller ledger.Account, op txn.Operation) (*abcitypes.ExecTxResult, error) {
	batches := ledger.NewBatchLedger(store, blockTime)

	switch op := op.(type) {
	case *txn.SetRole:
		change, err := ledger.NewRoleRegistry(store).SetRole(caller, op.Account, op.Role)
		if err != nil {
			return nil, err
		}
		app.changes.AddRoleChange(*change)
		return success(mustJSON(change), roleChangedEvent(change)), nil

	case *txn.CreateBatch:
		t, err := batches.CreateBatch(caller, op.CreateBatchParams)
		if err != nil {
			return nil, err
		}
		app.changes.AddTransition(t)
		return success(mustJSON(t.Batch), batchEvent(EventBatchCreated, t,
			attr("owner", t.Batch.CurrentOwner.String()),
			attr("crop_type", t.Batch.CropType),
		)), nil

	case *txn.UpdateQualityAndPrice:
		t, err := batches.UpdateQualityAndPrice(caller, op.BatchID, op.QualityScore, op.UnitPrice)
		if err != nil {
			return nil, err
		}
		app.changes.AddTransition(t)
		return success(mustJSON(t.Batch), batchEvent(EventBatchUpdated, t,
			attr("quality_score", strconv.FormatUint(t.Batch.QualityScore, 10)),
			attr("unit_price", strconv.FormatUint(t.Batch.UnitPrice, 10)),
		)), nil

	case *txn.TransferBatch:
		t, err := batches.TransferBatch(caller, op.BatchID, op.To, op.Note)
		if err != nil {
			return nil, err
		}
		app.changes.AddTransition(t)
		return success(mustJSON(t.Record), batchEvent(EventBatchTransferred, t,
			attr("from", caller.String()),
			attr("to", t.Record.To.String()),
			attr("to_role", t.Record.ToRole.String()),
		)), nil

	case *txn.FinalizeToConsumer:
		t, err := batches.FinalizeToConsumer(caller, op.BatchID, op.Note)
		if err != nil {
			return nil, err
		}
		app.changes.AddTransition(t)
		return success(mustJSON(t.Record), batchEvent(EventBatchFinalized, t,
			attr("owner", caller.String()),
		)), nil
	}
	return nil, ledger.NewError(ledger.KindEncoding, "unsupported operation %T", op)
}

func success(data []byte, events ...abcitypes.Event) *abcitypes.ExecTxResult {
	return &abcitypes.ExecTxResult{
		Code:   abcitypes.CodeTypeOK,
		Data:   data,
		Log:    "ok",
		Events: events,
	}
}

func failure(err error) *abcitypes.ExecTxResult {
	return &abcitypes.ExecTxResult{
		Code:      ledger.KindOf(err).Code(),
		Log:       err.Error(),
		Codespace: codespace,
	}
}

func attr(key, value string) abcitypes.EventAttribute {
	return abcitypes.EventAttribute{Key: key, Value: value, Index: true}
}

func batchEvent(eventType string, t *ledger.Transition, attrs ...abcitypes.EventAttribute) abcitypes.Event {
	attributes := []abcitypes.EventAttribute{attr("batch_id", strconv.FormatUint(t.Batch.ID, 10))}
	if t.Record != nil {
		attributes = append(attributes, attr("history_index", strconv.FormatUint(t.Record.Index, 10)))
	}
	return abcitypes.Event{Type: eventType, Attributes: append(attributes, attrs...)}
}

func roleChangedEvent(c *ledger.RoleChange) abcitypes.Event {
	return abcitypes.Event{
		Type: EventRoleChanged,
		Attributes: []abcitypes.EventAttribute{
			attr("account", c.Account.String()),
			attr("role", c.Role.String()),
			attr("previous_role", c.Previous.String()),
			attr("by", c.By.String()),
		},
	}
}
