package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ahmadzakiakmal/produce-registry/ledger"
	"github.com/ahmadzakiakmal/produce-registry/repository"
)

// Client talks to the ledger API of a node
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// Envelope is the response wrapper every /ledger route returns
type Envelope struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		Status      string `json:"status"`
		TxHash      string `json:"tx_hash"`
		BlockHeight int64  `json:"block_height"`
		Code        uint32 `json:"code"`
	} `json:"meta"`
	NodeID    string `json:"node_id"`
	RequestID string `json:"request_id"`
}

// APIError is returned for a non-2xx response that carries no transaction outcome
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger API returned status %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a client for the node serving endpoint, e.g. http://127.0.0.1:5000
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SubmitTx posts a signed transaction and waits for its block. A transaction that was
// rejected by the mempool or by the ledger is returned with a nonzero Code and a nil error.
func (c *Client) SubmitTx(ctx context.Context, raw []byte) (*repository.TxResult, error) {
	resp, err := c.do(ctx, http.MethodPost, "/ledger/tx", raw)
	if err != nil {
		return nil, err
	}
	switch resp.Meta.Status {
	case "committed", "rejected":
	default:
		return nil, decodeError(resp)
	}

	var result repository.TxResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse transaction result: %w", err)
	}
	return &result, nil
}

// Batch fetches the committed state of a batch
func (c *Client) Batch(ctx context.Context, id uint64) (*ledger.Batch, error) {
	var batch ledger.Batch
	if err := c.get(ctx, "/ledger/batch/"+strconv.FormatUint(id, 10), &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// History fetches the full custody history of a batch
func (c *Client) History(ctx context.Context, id uint64) ([]ledger.HistoryRecord, error) {
	var records []ledger.HistoryRecord
	if err := c.get(ctx, "/ledger/batch/"+strconv.FormatUint(id, 10)+"/history", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Role fetches the role of an account
func (c *Client) Role(ctx context.Context, account ledger.Account) (ledger.Role, error) {
	var view struct {
		Role ledger.Role `json:"role"`
	}
	if err := c.get(ctx, "/ledger/role/"+url.PathEscape(account.String()), &view); err != nil {
		return ledger.RoleNone, err
	}
	return view.Role, nil
}

// Nonce fetches the last nonce the ledger accepted from an account
func (c *Client) Nonce(ctx context.Context, account ledger.Account) (uint64, error) {
	var view struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := c.get(ctx, "/ledger/nonce/"+url.PathEscape(account.String()), &view); err != nil {
		return 0, err
	}
	return view.Nonce, nil
}

// HealthCheck checks that the node answers its status route
func (c *Client) HealthCheck(ctx context.Context) error {
	var status map[string]any
	if err := c.get(ctx, "/ledger/status", &status); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if status["status"] != "active" {
		return fmt.Errorf("health check failed: status %v", status["status"])
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if resp.Meta.Status == "failed" {
		return decodeError(resp)
	}
	if err := json.Unmarshal(resp.Data, v); err != nil {
		return fmt.Errorf("failed to parse response of %s: %w", path, err)
	}
	return nil
}

type envelopeResponse struct {
	Envelope
	StatusCode int
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*envelopeResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	resp := &envelopeResponse{StatusCode: httpResp.StatusCode}
	if err := json.Unmarshal(raw, &resp.Envelope); err != nil {
		return nil, &APIError{StatusCode: httpResp.StatusCode, Message: string(raw)}
	}
	// Errors raised before routing are bare {"error": ...} bodies.
	if len(resp.Data) == 0 {
		resp.Data = raw
	}
	if resp.Meta.Status == "" && httpResp.StatusCode >= http.StatusBadRequest {
		resp.Meta.Status = "failed"
	}
	return resp, nil
}

func decodeError(resp *envelopeResponse) error {
	var body struct {
		Error string `json:"error"`
	}
	msg := string(resp.Data)
	if err := json.Unmarshal(resp.Data, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg, RequestID: resp.RequestID}
}
