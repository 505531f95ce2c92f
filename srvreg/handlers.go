package srvreg

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/produce-registry/ledger"
	"github.com/ahmadzakiakmal/produce-registry/repository"
	"github.com/ahmadzakiakmal/produce-registry/repository/models"
	"github.com/ahmadzakiakmal/produce-registry/txn"
)

// Backend is what the ledger API needs from the repository
type Backend interface {
	SubmitTx(ctx context.Context, raw []byte) (*repository.TxResult, *repository.RepositoryError)
	QueryLedger(ctx context.Context, path string) (*repository.QueryResult, *repository.RepositoryError)
	ListBatches(ctx context.Context, f repository.BatchFilter) ([]models.Batch, *repository.RepositoryError)
	GetHistoryByAccount(ctx context.Context, account string) ([]models.HistoryRecord, *repository.RepositoryError)
	LastProjectedBlock(ctx context.Context) (*models.LedgerBlock, *repository.RepositoryError)
}

// Route patterns of the ledger API
const (
	RouteSubmitTx       = "/ledger/tx"
	RouteBatch          = "/ledger/batch/:id"
	RouteBatchHistory   = "/ledger/batch/:id/history"
	RouteHistoryRecord  = "/ledger/batch/:id/history/:index"
	RouteRole           = "/ledger/role/:account"
	RouteNonce          = "/ledger/nonce/:account"
	RoutePolicy         = "/ledger/policy"
	RouteBatches        = "/ledger/batches"
	RouteAccountHistory = "/ledger/accounts/:account/history"
	RouteStatus         = "/ledger/status"
)

// RegisterDefaultServices sets up the ledger API
func (sr *ServiceRegistry) RegisterDefaultServices() {
	// Writes go through consensus
	sr.RegisterHandler("POST", RouteSubmitTx, true, sr.SubmitTxHandler)

	// Committed state, served by ABCI queries
	sr.RegisterHandler("GET", RouteBatch, false, sr.ledgerQuery(RouteBatch, "/batch/:id"))
	sr.RegisterHandler("GET", RouteBatchHistory, false, sr.ledgerQuery(RouteBatchHistory, "/batch/:id/history"))
	sr.RegisterHandler("GET", RouteHistoryRecord, false, sr.ledgerQuery(RouteHistoryRecord, "/batch/:id/history/:index"))
	sr.RegisterHandler("GET", RouteRole, false, sr.ledgerQuery(RouteRole, "/role/:account"))
	sr.RegisterHandler("GET", RouteNonce, false, sr.ledgerQuery(RouteNonce, "/nonce/:account"))
	sr.RegisterHandler("GET", RoutePolicy, true, sr.ledgerQuery(RoutePolicy, "/policy"))

	// Search over the postgres projection
	sr.RegisterHandler("GET", RouteBatches, true, sr.ListBatchesHandler)
	sr.RegisterHandler("GET", RouteAccountHistory, false, sr.AccountHistoryHandler)

	sr.RegisterHandler("GET", RouteStatus, true, sr.StatusHandler)
}

// SubmitTxHandler relays a signed transaction and waits for its block
func (sr *ServiceRegistry) SubmitTxHandler(ctx context.Context, req *Request) (*Response, error) {
	tx, err := txn.Decode([]byte(req.Body))
	if err != nil {
		sr.logger.Error("Rejected malformed transaction", "request_id", req.RequestID, "error", err.Error())
		return errorResponse(http.StatusBadRequest, err.Error()), err
	}
	raw, err := txn.Encode(tx)
	if err != nil {
		return errorResponse(http.StatusBadRequest, err.Error()), err
	}

	result, repoErr := sr.backend.SubmitTx(ctx, raw)
	if repoErr != nil {
		return repositoryErrorResponse(repoErr), repoErr
	}

	if result.Code != 0 {
		sr.logger.Info("Transaction rejected", "request_id", req.RequestID, "type", tx.Type, "code", result.Code, "log", result.Log)
	}
	return jsonResponse(StatusForCode(result.Code), result)
}

// ledgerQuery serves an API route by substituting its path params into an ABCI query path
func (sr *ServiceRegistry) ledgerQuery(route, queryPattern string) ServiceHandler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		path := queryPattern
		for _, name := range []string{"id", "index", "account"} {
			if v := PathParam(route, req.Path, name); v != "" {
				path = replaceParam(path, name, v)
			}
		}

		result, repoErr := sr.backend.QueryLedger(ctx, path)
		if repoErr != nil {
			return repositoryErrorResponse(repoErr), repoErr
		}
		if result.Code != 0 {
			return errorResponse(StatusForCode(result.Code), result.Log), nil
		}
		return &Response{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{"Content-Type": "application/json", "X-Ledger-Height": strconv.FormatInt(result.Height, 10)},
			Body:       string(result.Value),
		}, nil
	}
}

// ListBatchesHandler searches projected batches by owner, crop and state
func (sr *ServiceRegistry) ListBatchesHandler(ctx context.Context, req *Request) (*Response, error) {
	filter := repository.BatchFilter{
		Owner:    req.Query["owner"],
		CropType: req.Query["crop"],
	}
	if v, ok := req.Query["finalized"]; ok {
		finalized, err := strconv.ParseBool(v)
		if err != nil {
			return errorResponse(http.StatusBadRequest, "finalized must be true or false"), err
		}
		filter.Finalized = &finalized
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v, ok := req.Query[name]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return errorResponse(http.StatusBadRequest, name+" must be a non-negative integer"), errors.New("invalid " + name)
		}
		*dst = n
	}

	batches, repoErr := sr.backend.ListBatches(ctx, filter)
	if repoErr != nil {
		return repositoryErrorResponse(repoErr), repoErr
	}
	return jsonResponse(http.StatusOK, map[string]any{
		"batches": batches,
		"count":   len(batches),
	})
}

// AccountHistoryHandler lists the custody events that delivered batches to an account
func (sr *ServiceRegistry) AccountHistoryHandler(ctx context.Context, req *Request) (*Response, error) {
	account := PathParam(RouteAccountHistory, req.Path, "account")
	records, repoErr := sr.backend.GetHistoryByAccount(ctx, account)
	if repoErr != nil {
		return repositoryErrorResponse(repoErr), repoErr
	}
	return jsonResponse(http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// StatusHandler reports chain height, next batch id and projection progress
func (sr *ServiceRegistry) StatusHandler(ctx context.Context, _ *Request) (*Response, error) {
	status := map[string]any{
		"status": "active",
		"time":   time.Now().UTC(),
	}

	next, repoErr := sr.backend.QueryLedger(ctx, "/next_batch_id")
	switch {
	case repoErr != nil:
		status["ledger_error"] = repoErr.Error()
	case next.Code != 0:
		status["ledger_error"] = next.Log
	default:
		status["ledger_height"] = next.Height
		status["next_batch_id"] = json.RawMessage(next.Value)
	}

	block, repoErr := sr.backend.LastProjectedBlock(ctx)
	if repoErr != nil {
		status["projection"] = repoErr.Code
	} else {
		status["projection"] = "active"
		status["projected_height"] = block.Height
	}

	// projected_height is the newest projected block; blocks below it may still be queued.
	if backlog, repoErr := sr.backend.QueryLedger(ctx, "/projection"); repoErr == nil && backlog.Code == 0 {
		var pending struct {
			Pending      int   `json:"pending"`
			LowestHeight int64 `json:"lowest_height"`
		}
		if err := json.Unmarshal(backlog.Value, &pending); err == nil {
			status["projection_pending"] = pending.Pending
			if pending.Pending > 0 {
				status["projection"] = "behind"
				status["unprojected_from"] = pending.LowestHeight
			}
		}
	}
	return jsonResponse(http.StatusOK, status)
}

// StatusForCode maps a ledger result code to an HTTP status
func StatusForCode(code uint32) int {
	switch ledger.Kind(code) {
	case 0:
		return http.StatusOK
	case ledger.KindUnauthorized:
		return http.StatusForbidden
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindAlreadyFinalized, ledger.KindBadNonce:
		return http.StatusConflict
	case ledger.KindInvalidArgument, ledger.KindEncoding:
		return http.StatusBadRequest
	case ledger.KindIndexOutOfRange:
		return http.StatusRequestedRangeNotSatisfiable
	case ledger.KindBadSignature:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func repositoryErrorResponse(err *repository.RepositoryError) *Response {
	switch err.Code {
	case "INVALID_ARGUMENT":
		return errorResponse(http.StatusBadRequest, err.Detail)
	case "NOT_FOUND":
		return errorResponse(http.StatusNotFound, err.Message)
	case "PROJECTION_DISABLED":
		return errorResponse(http.StatusServiceUnavailable, err.Message)
	case "CONSENSUS_TIMEOUT":
		return errorResponse(http.StatusGatewayTimeout, err.Message)
	case "CONSENSUS_ERROR", "QUERY_ERROR":
		return errorResponse(http.StatusBadGateway, err.Message)
	default:
		return errorResponse(http.StatusInternalServerError, "Internal server error")
	}
}

func replaceParam(pattern, name, value string) string {
	parts := strings.Split(pattern, "/")
	for i, p := range parts {
		if p == ":"+name {
			parts[i] = url.PathEscape(value)
		}
	}
	return strings.Join(parts, "/")
}
