// Package testutil provides test servers that speak the envelope protocol.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines one canned answer.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockEndpoint is a configurable httptest server.
type MockEndpoint struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int

	requestCount int
	lastRequest  *http.Request
}

// NewMockEndpoint creates and starts a mock server.
func NewMockEndpoint() *MockEndpoint {
	mock := &MockEndpoint{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.counts[r.URL.Path]++
		mock.lastRequest = r.Clone(r.Context())
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the server base URL.
func (m *MockEndpoint) URL() string {
	return m.server.URL
}

// Close shuts down the server.
func (m *MockEndpoint) Close() {
	m.server.Close()
}

// SetHandler installs a handler for path.
func (m *MockEndpoint) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse answers every request on path with resp.
func (m *MockEndpoint) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, resp.write)
}

// SetSequence answers the n-th request on path with responses[n]; the last
// response repeats once the sequence is used up.
func (m *MockEndpoint) SetSequence(path string, responses ...MockResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		i := next
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()
		responses[i].write(w, r)
	})
}

// RequestCount returns the total number of requests served.
func (m *MockEndpoint) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests served on path.
func (m *MockEndpoint) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[path]
}

// LastRequest returns a clone of the most recent request.
func (m *MockEndpoint) LastRequest() *http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequest
}

func (resp MockResponse) write(w http.ResponseWriter, r *http.Request) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// JSON returns a 200 application/json response.
func JSON(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// Text returns a 200 text/html response.
func Text(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
	}
}

// ServerError returns a 500 response.
func ServerError() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"success": false, "message": "internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// Rows returns n records numbered from start.
func Rows(start, n int) []map[string]any {
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, map[string]any{
			"id":   start + i,
			"name": fmt.Sprintf("row-%d", start+i),
		})
	}
	return rows
}

// Page is one scripted page of a paged endpoint.
type Page struct {
	Rows    []map[string]any
	HasMore *bool
	Fail    bool
	Delay   time.Duration
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// PagedHandler serves pages[page-1] for ?page=N. Pages past the end are
// served as empty batches.
func PagedHandler(pages []Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil || n < 1 {
			http.Error(w, "bad page", http.StatusBadRequest)
			return
		}

		var page Page
		if n <= len(pages) {
			page = pages[n-1]
		}
		if page.Delay > 0 {
			select {
			case <-time.After(page.Delay):
			case <-r.Context().Done():
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if page.Fail {
			w.Write([]byte(`{"success": false, "message": "database unavailable"}`))
			return
		}

		env := map[string]any{"success": true, "data": page.Rows}
		if page.Rows == nil {
			env["data"] = []any{}
		}
		if page.HasMore != nil {
			env["has_more"] = *page.HasMore
		}
		json.NewEncoder(w).Encode(env)
	}
}
