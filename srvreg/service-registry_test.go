package srvreg

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cometbft/cometbft/crypto/ed25519"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmadzakiakmal/produce-registry/ledger"
	"github.com/ahmadzakiakmal/produce-registry/repository"
	"github.com/ahmadzakiakmal/produce-registry/repository/models"
	"github.com/ahmadzakiakmal/produce-registry/txn"
)

type fakeBackend struct {
	submitted [][]byte
	txResult  *repository.TxResult
	queries   []string
	results   map[string]*repository.QueryResult
	filter    repository.BatchFilter
	batches   []models.Batch
	repoErr   *repository.RepositoryError
}

func (f *fakeBackend) SubmitTx(_ context.Context, raw []byte) (*repository.TxResult, *repository.RepositoryError) {
	f.submitted = append(f.submitted, raw)
	return f.txResult, f.repoErr
}

func (f *fakeBackend) QueryLedger(_ context.Context, path string) (*repository.QueryResult, *repository.RepositoryError) {
	f.queries = append(f.queries, path)
	if f.repoErr != nil {
		return nil, f.repoErr
	}
	if res, ok := f.results[path]; ok {
		return res, nil
	}
	return &repository.QueryResult{Code: ledger.KindNotFound.Code(), Log: "not found"}, nil
}

func (f *fakeBackend) ListBatches(_ context.Context, filter repository.BatchFilter) ([]models.Batch, *repository.RepositoryError) {
	f.filter = filter
	return f.batches, f.repoErr
}

func (f *fakeBackend) GetHistoryByAccount(_ context.Context, _ string) ([]models.HistoryRecord, *repository.RepositoryError) {
	return nil, f.repoErr
}

func (f *fakeBackend) LastProjectedBlock(_ context.Context) (*models.LedgerBlock, *repository.RepositoryError) {
	return &models.LedgerBlock{Height: 4}, nil
}

func newRegistry(backend Backend) *ServiceRegistry {
	sr := NewServiceRegistry(backend, cmtlog.NewNopLogger())
	sr.RegisterDefaultServices()
	return sr
}

func do(t *testing.T, sr *ServiceRegistry, method, target, body string) *Response {
	t.Helper()
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	req, err := ConvertHttpRequestToConsensusRequest(r, "req-1")
	require.NoError(t, err)
	resp, _ := req.GenerateResponse(context.Background(), sr)
	require.NotNil(t, resp)
	return resp
}

func TestMatchPath(t *testing.T) {
	assert.True(t, matchPath("/ledger/batch/:id", "/ledger/batch/12"))
	assert.False(t, matchPath("/ledger/batch/:id", "/ledger/batch/"))
	assert.False(t, matchPath("/ledger/batch/:id", "/ledger/batch/12/history"))
	assert.True(t, matchPath("/ledger/batch/:id/history/:index", "/ledger/batch/12/history/0"))
	assert.Equal(t, "0", PathParam(RouteHistoryRecord, "/ledger/batch/12/history/0", "index"))
	assert.Equal(t, "", PathParam(RouteBatch, "/ledger/batch/12", "index"))
}

func TestLedgerQueries(t *testing.T) {
	backend := &fakeBackend{results: map[string]*repository.QueryResult{
		"/batch/12":                {Height: 30, Value: json.RawMessage(`{"id":12}`)},
		"/batch/12/history/0":      {Height: 30, Value: json.RawMessage(`{"note":""}`)},
		"/batch/12/history/length": {Height: 30, Value: json.RawMessage(`2`)},
		"/batch/12/history/5":      {Code: ledger.KindIndexOutOfRange.Code(), Log: "out of range"},
	}}
	sr := newRegistry(backend)

	resp := do(t, sr, http.MethodGet, "/ledger/batch/12", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":12}`, resp.Body)
	assert.Equal(t, "30", resp.Headers["X-Ledger-Height"])

	resp = do(t, sr, http.MethodGet, "/ledger/batch/12/history/0", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, sr, http.MethodGet, "/ledger/batch/12/history/length", "")
	assert.Equal(t, "2", resp.Body)

	resp = do(t, sr, http.MethodGet, "/ledger/batch/12/history/5", "")
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)

	resp = do(t, sr, http.MethodGet, "/ledger/batch/99/history", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, backend.queries, "/batch/99/history")

	resp = do(t, sr, http.MethodGet, "/ledger/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitTx(t *testing.T) {
	signer := txn.NewSigner("produce-test", ed25519.GenPrivKey(), 0)
	raw, err := signer.Sign(txn.FinalizeToConsumer{BatchID: 3})
	require.NoError(t, err)

	t.Run("committed", func(t *testing.T) {
		backend := &fakeBackend{txResult: &repository.TxResult{TxHash: "AB", Height: 8}}
		resp := do(t, newRegistry(backend), http.MethodPost, RouteSubmitTx, string(raw))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, backend.submitted, 1)

		decoded, err := txn.Decode(backend.submitted[0])
		require.NoError(t, err)
		_, err = decoded.Verify("produce-test")
		assert.NoError(t, err)
	})

	t.Run("rejected by the ledger", func(t *testing.T) {
		backend := &fakeBackend{txResult: &repository.TxResult{Height: 8, Code: ledger.KindAlreadyFinalized.Code()}}
		resp := do(t, newRegistry(backend), http.MethodPost, RouteSubmitTx, string(raw))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Contains(t, resp.Body, `"code":12`)
	})

	t.Run("malformed", func(t *testing.T) {
		backend := &fakeBackend{}
		resp := do(t, newRegistry(backend), http.MethodPost, RouteSubmitTx, `{"type":"create_batch"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, backend.submitted)
	})

	t.Run("consensus timeout", func(t *testing.T) {
		backend := &fakeBackend{repoErr: &repository.RepositoryError{Code: "CONSENSUS_TIMEOUT", Message: "Consensus operation timed out"}}
		resp := do(t, newRegistry(backend), http.MethodPost, RouteSubmitTx, string(raw))
		assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	})
}

func TestListBatches(t *testing.T) {
	backend := &fakeBackend{batches: []models.Batch{{BatchID: 1, CropType: "cocoa"}}}
	sr := newRegistry(backend)

	resp := do(t, sr, http.MethodGet, "/ledger/batches?owner=0101010101010101010101010101010101010101&crop=cocoa&finalized=false&limit=10", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cocoa", backend.filter.CropType)
	assert.Equal(t, 10, backend.filter.Limit)
	require.NotNil(t, backend.filter.Finalized)
	assert.False(t, *backend.filter.Finalized)
	assert.Contains(t, resp.Body, `"count":1`)

	resp = do(t, sr, http.MethodGet, "/ledger/batches?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	backend.repoErr = &repository.RepositoryError{Code: "PROJECTION_DISABLED", Message: "No projection database is configured"}
	resp = do(t, sr, http.MethodGet, "/ledger/batches", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	backend := &fakeBackend{results: map[string]*repository.QueryResult{
		"/next_batch_id": {Height: 7, Value: json.RawMessage(`5`)},
	}}
	resp := do(t, newRegistry(backend), http.MethodGet, RouteStatus, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, float64(5), body["next_batch_id"])
	assert.Equal(t, float64(7), body["ledger_height"])
	assert.Equal(t, float64(4), body["projected_height"])
	assert.Equal(t, "active", body["projection"])
	assert.NotContains(t, body, "unprojected_from")

	t.Run("projection backlog", func(t *testing.T) {
		backend.results["/projection"] = &repository.QueryResult{Height: 7, Value: json.RawMessage(`{"pending":2,"lowest_height":3}`)}
		resp := do(t, newRegistry(backend), http.MethodGet, RouteStatus, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
		assert.Equal(t, "behind", body["projection"])
		assert.Equal(t, float64(2), body["projection_pending"])
		assert.Equal(t, float64(3), body["unprojected_from"])
	})
}

func TestStatusForCode(t *testing.T) {
	cases := map[ledger.Kind]int{
		0:                           http.StatusOK,
		ledger.KindUnauthorized:     http.StatusForbidden,
		ledger.KindNotFound:         http.StatusNotFound,
		ledger.KindAlreadyFinalized: http.StatusConflict,
		ledger.KindInvalidArgument:  http.StatusBadRequest,
		ledger.KindIndexOutOfRange:  http.StatusRequestedRangeNotSatisfiable,
		ledger.KindBadSignature:     http.StatusUnauthorized,
		ledger.KindInternal:         http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, StatusForCode(uint32(kind)), kind.String())
	}
}
