package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmadzakiakmal/produce-registry/ledger"
)

func writeEnvelope(t *testing.T, w http.ResponseWriter, status int, data any, meta map[string]any) {
	t.Helper()
	if meta == nil {
		meta = map[string]any{"status": "processed"}
		if status >= http.StatusBadRequest {
			meta["status"] = "failed"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"data":       data,
		"meta":       meta,
		"node_id":    "node0",
		"request_id": "req-1",
	}))
}

func TestSubmitTx(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/ledger/tx":
			raw, _ := io.ReadAll(r.Body)
			gotBody = string(raw)
			writeEnvelope(t, w, http.StatusOK,
				map[string]any{"tx_hash": "ABCD", "height": 7, "code": 0, "data": map[string]any{"id": 3}},
				map[string]any{"status": "committed", "tx_hash": "ABCD", "block_height": 7})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.SubmitTx(context.Background(), []byte(`{"type":"create_batch"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"create_batch"}`, gotBody)
	assert.Equal(t, "ABCD", result.TxHash)
	assert.Equal(t, int64(7), result.Height)
	assert.Zero(t, result.Code)
	assert.JSONEq(t, `{"id":3}`, string(result.Data))
}

func TestSubmitTxRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusForbidden,
			map[string]any{"tx_hash": "EF01", "height": 9, "code": 10, "log": "caller is not the owner"},
			map[string]any{"status": "rejected", "code": 10})
	}))
	defer srv.Close()

	result, err := NewClient(srv.URL).SubmitTx(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, uint32(10), result.Code)
	assert.Equal(t, "caller is not the owner", result.Log)
}

func TestSubmitTxMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusBadRequest, map[string]any{"error": "malformed transaction"}, nil)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).SubmitTx(context.Background(), []byte(`nope`))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "malformed transaction", apiErr.Message)
	assert.Equal(t, "req-1", apiErr.RequestID)
}

func TestQueries(t *testing.T) {
	owner := ledger.Account{0x01, 0x02}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ledger/batch/4":
			writeEnvelope(t, w, http.StatusOK, ledger.Batch{ID: 4, CropType: "tomato", CurrentOwner: owner, CurrentOwnerRole: ledger.RoleProducer}, nil)
		case "/ledger/batch/4/history":
			writeEnvelope(t, w, http.StatusOK, []ledger.HistoryRecord{{To: owner, ToRole: ledger.RoleProducer, Timestamp: 100}}, nil)
		case "/ledger/batch/5":
			writeEnvelope(t, w, http.StatusNotFound, map[string]any{"error": "batch 5 not found"}, nil)
		case "/ledger/role/" + owner.String():
			writeEnvelope(t, w, http.StatusOK, map[string]any{"account": owner, "role": ledger.RoleRetailer}, nil)
		case "/ledger/nonce/" + owner.String():
			writeEnvelope(t, w, http.StatusOK, map[string]any{"account": owner, "nonce": 12}, nil)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Not found"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	t.Run("batch", func(t *testing.T) {
		batch, err := c.Batch(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), batch.ID)
		assert.Equal(t, "tomato", batch.CropType)
		assert.Equal(t, owner, batch.CurrentOwner)
	})

	t.Run("history", func(t *testing.T) {
		records, err := c.History(ctx, 4)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.True(t, records[0].From.IsZero())
		assert.Equal(t, int64(100), records[0].Timestamp)
	})

	t.Run("missing batch", func(t *testing.T) {
		_, err := c.Batch(ctx, 5)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "batch 5 not found", apiErr.Message)
	})

	t.Run("role", func(t *testing.T) {
		role, err := c.Role(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, ledger.RoleRetailer, role)
	})

	t.Run("nonce", func(t *testing.T) {
		nonce, err := c.Nonce(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, uint64(12), nonce)
	})

	t.Run("bare error body", func(t *testing.T) {
		_, err := c.History(ctx, 99)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "Not found", apiErr.Message)
	})
}

func TestHealthCheck(t *testing.T) {
	status := "active"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ledger/status", r.URL.Path)
		writeEnvelope(t, w, http.StatusOK, map[string]any{"status": status}, nil)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.HealthCheck(context.Background()))

	status = "halted"
	assert.Error(t, c.HealthCheck(context.Background()))

	srv.Close()
	assert.Error(t, c.HealthCheck(context.Background()))
}
