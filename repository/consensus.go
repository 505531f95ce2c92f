package repository

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	cmtrpctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
)

// ConsensusClient is the part of the CometBFT RPC client the repository uses. The in-process
// *local.Local client satisfies it.
type ConsensusClient interface {
	BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error)
	ABCIQuery(ctx context.Context, path string, data cmtbytes.HexBytes) (*cmtrpctypes.ResultABCIQuery, error)
}

// SetupRpcClient configures the RPC client for BFT consensus
func (r *Repository) SetupRpcClient(rpcClient ConsensusClient) {
	r.rpcClient = rpcClient
}

// TxResult is the outcome of a relayed transaction. Code is 0 on success, otherwise the ledger
// error kind reported by CheckTx or by execution.
type TxResult struct {
	TxHash    string          `json:"tx_hash"`
	Height    int64           `json:"height"`
	Code      uint32          `json:"code"`
	Codespace string          `json:"codespace,omitempty"`
	Log       string          `json:"log"`
	Data      json.RawMessage `json:"data,omitempty"`
	Events    []Event         `json:"events,omitempty"`
}

// Event is a flattened ABCI event
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Committed reports whether the transaction made it into a block
func (r *TxResult) Committed() bool {
	return r.Height > 0
}

// SubmitTx broadcasts a signed transaction and waits until it is committed or rejected
func (r *Repository) SubmitTx(ctx context.Context, raw []byte) (*TxResult, *RepositoryError) {
	if r.rpcClient == nil {
		return nil, &RepositoryError{
			Code:    "CONSENSUS_ERROR",
			Message: "RPC client not configured",
		}
	}

	done := make(chan struct {
		result *cmtrpctypes.ResultBroadcastTxCommit
		err    error
	}, 1)

	go func() {
		result, err := r.rpcClient.BroadcastTxCommit(ctx, cmttypes.Tx(raw))
		done <- struct {
			result *cmtrpctypes.ResultBroadcastTxCommit
			err    error
		}{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, &RepositoryError{
			Code:    "CONSENSUS_TIMEOUT",
			Message: "Consensus operation timed out",
			Detail:  ctx.Err().Error(),
		}
	case result := <-done:
		if result.err != nil {
			return nil, &RepositoryError{
				Code:    "CONSENSUS_ERROR",
				Message: "Failed to commit to blockchain",
				Detail:  result.err.Error(),
			}
		}
		return convertBroadcastResult(result.result), nil
	}
}

func convertBroadcastResult(res *cmtrpctypes.ResultBroadcastTxCommit) *TxResult {
	out := &TxResult{TxHash: strings.ToUpper(hex.EncodeToString(res.Hash))}

	if res.CheckTx.Code != abcitypes.CodeTypeOK {
		out.Code = res.CheckTx.Code
		out.Codespace = res.CheckTx.Codespace
		out.Log = res.CheckTx.Log
		return out
	}

	out.Height = res.Height
	out.Code = res.TxResult.Code
	out.Codespace = res.TxResult.Codespace
	out.Log = res.TxResult.Log
	if len(res.TxResult.Data) > 0 && json.Valid(res.TxResult.Data) {
		out.Data = json.RawMessage(res.TxResult.Data)
	}
	out.Events = flattenEvents(res.TxResult.Events)
	return out
}

func flattenEvents(events []abcitypes.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		attrs := make(map[string]string, len(e.Attributes))
		for _, a := range e.Attributes {
			attrs[a.Key] = a.Value
		}
		out = append(out, Event{Type: e.Type, Attributes: attrs})
	}
	return out
}

// QueryResult is the committed-state answer to a ledger query
type QueryResult struct {
	Code   uint32          `json:"code"`
	Log    string          `json:"log"`
	Height int64           `json:"height"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// QueryLedger runs an ABCI query against committed state, e.g. "/batch/1/history"
func (r *Repository) QueryLedger(ctx context.Context, path string) (*QueryResult, *RepositoryError) {
	if r.rpcClient == nil {
		return nil, &RepositoryError{
			Code:    "CONSENSUS_ERROR",
			Message: "RPC client not configured",
		}
	}

	res, err := r.rpcClient.ABCIQuery(ctx, path, nil)
	if err != nil {
		return nil, &RepositoryError{
			Code:    "QUERY_ERROR",
			Message: "Failed to query ledger",
			Detail:  err.Error(),
		}
	}

	out := &QueryResult{
		Code:   res.Response.Code,
		Log:    res.Response.Log,
		Height: res.Response.Height,
	}
	if len(res.Response.Value) > 0 {
		out.Value = json.RawMessage(res.Response.Value)
	}
	return out, nil
}
