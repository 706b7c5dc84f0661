// Package testutil provides testing utilities for the Business Central client.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request as seen by the mock server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// MockBC is a configurable mock Business Central API server. Point a
// client's BaseURL at URL() and register handlers by path, e.g.
// "/companies(1)/customers".
type MockBC struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount     int
	ConditionalCount int
	Requests         []RecordedRequest
}

// NewMockBC creates a new mock Business Central server.
func NewMockBC() *MockBC {
	mock := &MockBC{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		mock.mu.Lock()
		mock.RequestCount++
		if r.Header.Get("If-None-Match") != "" {
			mock.ConditionalCount++
		}
		mock.Requests = append(mock.Requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		handler, exists := mock.handlers[r.Method+" "+r.URL.Path]
		if !exists {
			handler, exists = mock.handlers[r.URL.Path]
		}
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		WriteError(w, http.StatusNotFound, "BadRequest_NotFound", fmt.Sprintf("No handler for %s %s", r.Method, r.URL.Path))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockBC) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBC) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockBC) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.Requests = nil
}

// SetHandler sets a handler for a path, any method.
func (m *MockBC) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetMethodHandler sets a handler for one method on a path. It takes
// precedence over a handler registered with SetHandler.
func (m *MockBC) SetMethodHandler(method, path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockBC) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, resp.handler())
}

// SetMethodResponse configures a fixed response for one method on a path.
func (m *MockBC) SetMethodResponse(method, path string, resp MockResponse) {
	m.SetMethodHandler(method, path, resp.handler())
}

func (resp MockResponse) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBC) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockBC) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// LastRequest returns the most recent request, or the zero value.
func (m *MockBC) LastRequest() RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.Requests) == 0 {
		return RecordedRequest{}
	}
	return m.Requests[len(m.Requests)-1]
}

// GetRequests returns a copy of all recorded requests.
func (m *MockBC) GetRequests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.Requests))
	copy(out, m.Requests)
	return out
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; odata.metadata=minimal")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes an OData error body.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

// NewPageResponse creates a 200 collection response.
func NewPageResponse(records []map[string]any, nextLink string) MockResponse {
	page := map[string]any{"value": records}
	if nextLink != "" {
		page["@odata.nextLink"] = nextLink
	}
	body, _ := json.Marshal(page)
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json; odata.metadata=minimal"},
	}
}

// NewEntityResponse creates a 200 single-entity response.
func NewEntityResponse(record map[string]any) MockResponse {
	body, _ := json.Marshal(record)
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json; odata.metadata=minimal"},
	}
}

// NewErrorResponse creates an OData error response.
func NewErrorResponse(status int, code, message string) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
	return MockResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewThrottledResponse creates a 429 Too Many Requests response.
func NewThrottledResponse(retryAfter time.Duration) MockResponse {
	resp := NewErrorResponse(http.StatusTooManyRequests, "TooManyRequests", "Too many requests")
	resp.Headers["Retry-After"] = strconv.Itoa(int(retryAfter.Seconds()))
	return resp
}

// NewNoContentResponse creates a 204 No Content response.
func NewNoContentResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusNoContent}
}

// NewConditionalHandler answers 304 when If-None-Match equals etag and a
// full 200 response otherwise.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Content-Type", "application/json; odata.metadata=minimal")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}

// NewPagedHandler serves records in pages of size, linking pages with an
// absolute @odata.nextLink carrying a $skiptoken.
func NewPagedHandler(serverURL func() string, path string, records []map[string]any, size int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := 0
		if tok := r.URL.Query().Get("$skiptoken"); tok != "" {
			start, _ = strconv.Atoi(tok)
		}
		end := start + size
		if end > len(records) {
			end = len(records)
		}

		page := map[string]any{"value": records[start:end]}
		if end < len(records) {
			page["@odata.nextLink"] = fmt.Sprintf("%s%s?$skiptoken=%d", serverURL(), path, end)
		}
		WriteJSON(w, http.StatusOK, page)
	}
}
