package srvreg

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Request represents the client's HTTP request
type Request struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Query      map[string]string `json:"query,omitempty"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	RemoteAddr string            `json:"remote_addr"`
	RequestID  string            `json:"request_id"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Response represents the computed response from server
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Error      string            `json:"error,omitempty"`
}

// ServiceHandler is a function type for service handlers
type ServiceHandler func(context.Context, *Request) (*Response, error)

// RouteKey uniquely identifies a route
type RouteKey struct {
	Method string
	Path   string
}

// ServiceRegistry maps ledger API routes to handlers
type ServiceRegistry struct {
	handlers    map[RouteKey]ServiceHandler
	exactRoutes map[RouteKey]bool
	mu          sync.RWMutex
	backend     Backend
	logger      cmtlog.Logger
}

var defaultHeaders = map[string]string{"Content-Type": "application/json"}

// NewServiceRegistry creates a service registry backed by backend
func NewServiceRegistry(backend Backend, logger cmtlog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		handlers:    make(map[RouteKey]ServiceHandler),
		exactRoutes: make(map[RouteKey]bool),
		backend:     backend,
		logger:      logger,
	}
}

// RegisterHandler registers a new service handler. Path segments starting with ':' match any
// single segment unless isExactPath is set.
func (sr *ServiceRegistry) RegisterHandler(method, path string, isExactPath bool, handler ServiceHandler) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	key := RouteKey{Method: strings.ToUpper(method), Path: path}
	sr.handlers[key] = handler
	sr.exactRoutes[key] = isExactPath
}

// GetHandlerForPath finds the appropriate handler for a given path
func (sr *ServiceRegistry) GetHandlerForPath(method, path string) (ServiceHandler, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	method = strings.ToUpper(method)
	key := RouteKey{Method: method, Path: path}
	if handler, ok := sr.handlers[key]; ok && sr.exactRoutes[key] {
		return handler, true
	}

	for routeKey, handler := range sr.handlers {
		if routeKey.Method != method || sr.exactRoutes[routeKey] {
			continue
		}
		if matchPath(routeKey.Path, path) {
			return handler, true
		}
	}

	return nil, false
}

// matchPath does simple pattern matching for routes
func matchPath(pattern, path string) bool {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(patternParts) != len(pathParts) {
		return false
	}

	for i := range len(patternParts) {
		if strings.HasPrefix(patternParts[i], ":") {
			if pathParts[i] == "" {
				return false
			}
			continue
		}
		if patternParts[i] != pathParts[i] {
			return false
		}
	}

	return true
}

// PathParam returns the segment of path at the position of :name in pattern
func PathParam(pattern, path, name string) string {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")
	for i, part := range patternParts {
		if part == ":"+name && i < len(pathParts) {
			return pathParts[i]
		}
	}
	return ""
}

// ConvertHttpRequestToConsensusRequest converts an http.Request to Request
func ConvertHttpRequestToConsensusRequest(r *http.Request, requestID string) (*Request, error) {
	headers := make(map[string]string)
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	query := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}

	body := ""
	if r.Body != nil {
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		body = compactJSON(strings.TrimSpace(string(bodyBytes)))
	}

	return &Request{
		Method:     r.Method,
		Path:       strings.TrimSuffix(r.URL.Path, "/"),
		Query:      query,
		Headers:    headers,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
		RequestID:  requestID,
		Timestamp:  time.Now(),
	}, nil
}

// GenerateResponse executes the request and generates a response
func (req *Request) GenerateResponse(ctx context.Context, services *ServiceRegistry) (*Response, error) {
	handler, found := services.GetHandlerForPath(req.Method, req.Path)
	if !found {
		return errorResponse(http.StatusNotFound, "Service not found for "+req.Method+" "+req.Path), nil
	}
	return handler(ctx, req)
}

func compactJSON(body string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(body)); err != nil {
		return body
	}
	return buf.String()
}

func jsonResponse(status int, v any) (*Response, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to serialize response"), err
	}
	return &Response{
		StatusCode: status,
		Headers:    defaultHeaders,
		Body:       string(raw),
	}, nil
}

func errorResponse(status int, message string) *Response {
	raw, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{message})
	return &Response{
		StatusCode: status,
		Headers:    defaultHeaders,
		Body:       string(raw),
		Error:      message,
	}
}
