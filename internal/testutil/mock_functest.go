// Package testutil provides testing utilities for the Functest backend.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
)

// ResultsPath is the path of the results resource on a Functest server.
const ResultsPath = "/api/v1/results"

// MockResponse defines the behavior of a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockFunctest is a configurable mock Functest server for testing.
type MockFunctest struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	Queries      []url.Values
}

// NewMockFunctest creates a new mock Functest server.
func NewMockFunctest() *MockFunctest {
	mock := &MockFunctest{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.Queries = append(mock.Queries, r.URL.Query())
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockFunctest) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockFunctest) Close() {
	m.server.Close()
}

// Reset clears all tracking state.
func (m *MockFunctest) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Queries = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockFunctest) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockFunctest) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetResultsPages serves the given page bodies from the results
// resource, selecting by the `page` query parameter (absent means
// page 1).
func (m *MockFunctest) SetResultsPages(pages ...string) {
	m.SetHandler(ResultsPath, func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			fmt.Sscanf(p, "%d", &page)
		}

		if page < 1 || page > len(pages) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"error": "page %d out of range"}`, page)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(pages[page-1]))
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockFunctest) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetQueries returns the query parameters of every request, in order.
func (m *MockFunctest) GetQueries() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]url.Values(nil), m.Queries...)
}

// defaultHandler answers any unconfigured path with an empty,
// single-page results document.
func (m *MockFunctest) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(ResultsPage(1, 1)))
}

// ResultsPage builds a valid results page body with the given
// pagination state and records.
func ResultsPage(currentPage, totalPages int, records ...map[string]any) string {
	if records == nil {
		records = []map[string]any{}
	}

	page := map[string]any{
		"results": records,
		"pagination": map[string]int{
			"current_page": currentPage,
			"total_pages":  totalPages,
		},
	}

	body, err := json.Marshal(page)
	if err != nil {
		panic(err)
	}
	return string(body)
}

// Record builds a minimal test-case result record.
func Record(id, startDate string) map[string]any {
	return map[string]any{
		"_id":          id,
		"start_date":   startDate,
		"case_name":    "tempest_smoke_serial",
		"criteria":     "PASS",
		"installer":    "fuel",
		"pod_name":     "unknown-pod",
		"project_name": "functest",
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
