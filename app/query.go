package app

import (
	"context"
	"strconv"
	"strings"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/dgraph-io/badger/v4"

	"github.com/ahmadzakiakmal/produce-registry/kv"
	"github.com/ahmadzakiakmal/produce-registry/ledger"
	"github.com/ahmadzakiakmal/produce-registry/txn"
)

// Query serves read-only views of committed state. Supported paths:
//
//	/batch/<id>
//	/batch/<id>/history
//	/batch/<id>/history/length
//	/batch/<id>/history/<index>
//	/role/<account>
//	/nonce/<account>
//	/policy
//	/next_batch_id
//	/projection (node-local backlog of the off-chain projection)
//
// The path may also be sent as the query data.
func (app *Application) Query(_ context.Context, req *abcitypes.QueryRequest) (*abcitypes.QueryResponse, error) {
	path := req.Path
	if path == "" {
		path = string(req.Data)
	}
	if path == "" {
		return &abcitypes.QueryResponse{
			Code:      ledger.KindInvalidArgument.Code(),
			Log:       "empty query path",
			Codespace: codespace,
		}, nil
	}

	if strings.Trim(path, "/") == "projection" {
		backlog, err := app.ProjectionBacklog()
		if err != nil {
			return &abcitypes.QueryResponse{Code: ledger.KindInternal.Code(), Log: err.Error(), Codespace: codespace}, nil
		}
		return &abcitypes.QueryResponse{Key: []byte(path), Value: mustJSON(backlog), Log: "exists"}, nil
	}

	resp := &abcitypes.QueryResponse{Key: []byte(path)}
	err := app.badgerDB.View(func(btxn *badger.Txn) error {
		store := kv.NewBadgerStore(btxn)
		height, err := ledger.GetUint64(store, ledger.KeyLastHeight, 0)
		if err != nil {
			return err
		}
		resp.Height = int64(height)

		value, err := route(store, path)
		if err != nil {
			return err
		}
		resp.Value = mustJSON(value)
		resp.Log = "exists"
		return nil
	})
	if err != nil {
		resp.Code = ledger.KindOf(err).Code()
		resp.Log = err.Error()
		resp.Codespace = codespace
	}
	return resp, nil
}

func route(store kv.Store, path string) (any, error) {
	q := ledger.NewQueryFacade(store)
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case parts[0] == "batch" && len(parts) >= 2 && len(parts) <= 4:
		id, err := parseUint(parts[1], "batch id")
		if err != nil {
			return nil, err
		}
		if len(parts) == 2 {
			return q.GetBatch(id)
		}
		if parts[2] != "history" {
			break
		}
		if len(parts) == 3 {
			return q.GetHistory(id)
		}
		if parts[3] == "length" {
			return q.GetHistoryLength(id)
		}
		index, err := parseUint(parts[3], "history index")
		if err != nil {
			return nil, err
		}
		return q.GetHistoryRecord(id, index)

	case parts[0] == "role" && len(parts) == 2:
		account, err := ledger.ParseAccount(parts[1])
		if err != nil {
			return nil, err
		}
		role, err := q.RoleOf(account)
		if err != nil {
			return nil, err
		}
		return RoleView{Account: account, Role: role}, nil

	case parts[0] == "nonce" && len(parts) == 2:
		account, err := ledger.ParseAccount(parts[1])
		if err != nil {
			return nil, err
		}
		nonce, err := txn.NonceOf(store, account)
		if err != nil {
			return nil, err
		}
		return NonceView{Account: account, Nonce: nonce}, nil

	case parts[0] == "policy" && len(parts) == 1:
		return q.Policy()

	case parts[0] == "next_batch_id" && len(parts) == 1:
		return q.NextBatchID()
	}
	return nil, ledger.NewError(ledger.KindNotFound, "unknown query path %q", path)
}

// RoleView is the value of a /role query
type RoleView struct {
	Account ledger.Account `json:"account"`
	Role    ledger.Role    `json:"role"`
}

// NonceView is the value of a /nonce query. The next transaction must carry Nonce+1.
type NonceView struct {
	Account ledger.Account `json:"account"`
	Nonce   uint64         `json:"nonce"`
}

func parseUint(s, what string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, ledger.NewError(ledger.KindInvalidArgument, "invalid %s %q", what, s)
	}
	return n, nil
}
