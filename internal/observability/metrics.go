package observability

import (
	"fmt"
	"sync"
	"time"
)

// Metrics keeps in-process counters for the HTTP surface: requests per
// route/status and errors per domain error code. There is no exporter; the
// request logger is the observable output and these back its totals.
type Metrics struct {
	mu        sync.Mutex
	requests  map[string]int64
	errors    map[string]int64
	latencies map[string]time.Duration
}

// NewMetrics initializes empty counter maps.
func NewMetrics() *Metrics {
	return &Metrics{
		requests:  make(map[string]int64),
		errors:    make(map[string]int64),
		latencies: make(map[string]time.Duration),
	}
}

// RecordRequest counts one handled request and accumulates its latency.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := fmt.Sprintf("%s %s %d", method, path, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[key]++
	m.latencies[key] += duration
}

// RecordError counts one request rejected with a domain error code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := fmt.Sprintf("%s %s %s", method, path, code)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[key]++
}
