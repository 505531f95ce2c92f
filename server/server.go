package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	nm "github.com/cometbft/cometbft/node"
	cmtrpc "github.com/cometbft/cometbft/rpc/client/local"
	"github.com/google/uuid"

	"github.com/ahmadzakiakmal/produce-registry/app"
	"github.com/ahmadzakiakmal/produce-registry/srvreg"
)

// requestTimeout bounds a single API call, including waiting for a transaction's block
const requestTimeout = 30 * time.Second

// WebServer serves the ledger HTTP API of a node
type WebServer struct {
	app             *app.Application
	httpAddr        string
	server          *http.Server
	logger          cmtlog.Logger
	node            *nm.Node
	nodeID          string
	startTime       time.Time
	serviceRegistry *srvreg.ServiceRegistry
	rpcClient       *cmtrpc.Local
}

// LedgerResponse is the envelope of every ledger API response
type LedgerResponse struct {
	Data      any    `json:"data"`
	Meta      Meta   `json:"meta"`
	NodeID    string `json:"node_id"`
	RequestID string `json:"request_id"`
}

// Meta describes how the response was produced
type Meta struct {
	Status      string `json:"status"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockHeight int64  `json:"block_height,omitempty"`
	Code        uint32 `json:"code,omitempty"`
}

// NewWebServer creates the web server of a running node
func NewWebServer(app *app.Application, httpPort string, logger cmtlog.Logger, node *nm.Node, serviceRegistry *srvreg.ServiceRegistry) *WebServer {
	ws := newWebServer(httpPort, logger, serviceRegistry, string(node.NodeInfo().ID()))
	ws.app = app
	ws.node = node
	ws.rpcClient = cmtrpc.New(node)
	return ws
}

func newWebServer(httpPort string, logger cmtlog.Logger, serviceRegistry *srvreg.ServiceRegistry, nodeID string) *WebServer {
	mux := http.NewServeMux()
	ws := &WebServer{
		httpAddr: ":" + httpPort,
		server: &http.Server{
			Addr:              ":" + httpPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger:          logger,
		nodeID:          nodeID,
		startTime:       time.Now(),
		serviceRegistry: serviceRegistry,
	}

	mux.HandleFunc("/", ws.handleRoot)
	mux.HandleFunc("/debug", ws.handleDebug)
	mux.HandleFunc("/ledger/", ws.handleLedgerAPI)
	return ws
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting ledger web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("Ledger web server error", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down ledger web server")
	return ws.server.Shutdown(ctx)
}

// handleRoot shows node information and the API index
func (ws *WebServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		JSONError(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte("<h1>Produce Registry - Supply Chain Ledger Node</h1>"))
	w.Write([]byte("<p>Node ID: " + ws.nodeID + "</p>"))
	if ws.node != nil {
		rpcPort := extractPortFromAddress(ws.node.Config().RPC.ListenAddress)
		w.Write([]byte(fmt.Sprintf("<p>RPC Address: <a href=\"http://localhost:%s\">http://localhost:%s</a></p>", rpcPort, rpcPort)))
	}

	apiDocs := `
	<h2>Ledger API Endpoints</h2>
	<ul>
		<li><strong>POST /ledger/tx</strong> - Submit a signed transaction and wait for its block</li>
		<li><strong>GET /ledger/batch/{id}</strong> - Get a batch</li>
		<li><strong>GET /ledger/batch/{id}/history</strong> - Get the custody history of a batch</li>
		<li><strong>GET /ledger/batch/{id}/history/{index}</strong> - Get one history record</li>
		<li><strong>GET /ledger/role/{account}</strong> - Get the role of an account</li>
		<li><strong>GET /ledger/nonce/{account}</strong> - Get the last nonce of an account</li>
		<li><strong>GET /ledger/policy</strong> - Get the transition policy</li>
		<li><strong>GET /ledger/batches?owner=&amp;crop=&amp;finalized=</strong> - Search batches</li>
		<li><strong>GET /ledger/accounts/{account}/history</strong> - Custody events received by an account</li>
		<li><strong>GET /ledger/status</strong> - Ledger status</li>
	</ul>
	`
	w.Write([]byte(apiDocs))
}

// handleDebug reports consensus and application state of the node
func (ws *WebServer) handleDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	debugInfo := map[string]any{
		"node_id": ws.nodeID,
		"uptime":  time.Since(ws.startTime).String(),
	}

	if ws.node != nil {
		nodeStatus := "online"
		if ws.node.ConsensusReactor().WaitSync() {
			nodeStatus = "syncing"
		}
		if !ws.node.IsListening() {
			nodeStatus = "offline"
		}
		debugInfo["node_status"] = nodeStatus
		debugInfo["p2p_address"] = ws.node.Config().P2P.ListenAddress
		debugInfo["rpc_address"] = ws.node.Config().RPC.ListenAddress

		outboundPeers, inboundPeers, dialingPeers := ws.node.Switch().NumPeers()
		debugInfo["num_peers_out"] = outboundPeers
		debugInfo["num_peers_in"] = inboundPeers
		debugInfo["num_peers_dialing"] = dialingPeers
	}

	if ws.app != nil {
		debugInfo["chain_id"] = ws.app.ChainID()
	}

	if ws.rpcClient != nil {
		status, err := ws.rpcClient.Status(r.Context())
		if err != nil {
			debugInfo["consensus_error"] = err.Error()
		} else {
			debugInfo["latest_block_height"] = status.SyncInfo.LatestBlockHeight
			debugInfo["latest_block_time"] = status.SyncInfo.LatestBlockTime
			debugInfo["catching_up"] = status.SyncInfo.CatchingUp
		}

		abciInfo, err := ws.rpcClient.ABCIInfo(r.Context())
		if err != nil {
			debugInfo["abci_error"] = err.Error()
		} else {
			debugInfo["app"] = abciInfo.Response.Data
			debugInfo["app_version"] = abciInfo.Response.AppVersion
			debugInfo["last_block_height"] = abciInfo.Response.LastBlockHeight
			debugInfo["last_block_app_hash"] = fmt.Sprintf("%X", abciInfo.Response.LastBlockAppHash)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(debugInfo); err != nil {
		ws.logger.Error("Failed to encode debug info", "err", err)
	}
}

// handleLedgerAPI dispatches /ledger/ requests through the service registry
func (ws *WebServer) handleLedgerAPI(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	request, err := srvreg.ConvertHttpRequestToConsensusRequest(r, requestID)
	if err != nil {
		JSONError(w, "Failed to convert request: "+err.Error(), http.StatusUnprocessableEntity)
		ws.logger.Error("Failed to convert HTTP request", "request_id", requestID, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	response, err := request.GenerateResponse(ctx, ws.serviceRegistry)
	if err != nil {
		ws.logger.Debug("Handler returned error", "request_id", requestID, "path", request.Path, "err", err)
	}
	if response == nil {
		JSONError(w, "Failed to generate response", http.StatusInternalServerError)
		return
	}

	var data any
	if response.Body != "" {
		if err := json.Unmarshal([]byte(response.Body), &data); err != nil {
			data = response.Body
		}
	}

	ledgerResponse := LedgerResponse{
		Data:      data,
		Meta:      metaFor(request, response, data),
		NodeID:    ws.nodeID,
		RequestID: requestID,
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(response.StatusCode)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ledgerResponse); err != nil {
		ws.logger.Error("Failed to encode ledger response", "err", err)
	}

	ws.logger.Info("Ledger API request processed",
		"request_id", requestID,
		"path", request.Path,
		"method", request.Method,
		"status", response.StatusCode,
	)
}

// metaFor lifts the transaction outcome of a submit into the envelope
func metaFor(req *srvreg.Request, resp *srvreg.Response, data any) Meta {
	meta := Meta{Status: "processed"}
	if resp.StatusCode >= http.StatusBadRequest {
		meta.Status = "failed"
	}
	if req.Method != http.MethodPost || req.Path != srvreg.RouteSubmitTx {
		return meta
	}

	result, ok := data.(map[string]any)
	if !ok {
		return meta
	}
	if hash, ok := result["tx_hash"].(string); ok {
		meta.TxHash = hash
	}
	if height, ok := result["height"].(float64); ok && height > 0 {
		meta.BlockHeight = int64(height)
		meta.Status = "committed"
	}
	if code, ok := result["code"].(float64); ok && code > 0 {
		meta.Code = uint32(code)
		meta.Status = "rejected"
	}
	return meta
}

func extractPortFromAddress(address string) string {
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == ':' {
			return address[i+1:]
		}
	}
	return ""
}

func JSONError(w http.ResponseWriter, message string, statusCode int) {
	errorResponse := struct {
		Error string `json:"error"`
	}{
		Error: message,
	}
	jsonBytes, err := json.Marshal(errorResponse)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(jsonBytes)
}
