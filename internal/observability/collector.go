// Package observability provides metrics collection and tracing for CLI operations.
package observability

import (
	"sync"
	"time"

	"github.com/maulanasdqn/skyla-pos/internal/api"
	"github.com/maulanasdqn/skyla-pos/internal/auth"
)

// RequestMetrics holds timing and status information for a single HTTP request.
type RequestMetrics struct {
	Method     string
	URL        string
	Attempt    int
	StatusCode int
	Duration   time.Duration
	Error      error
}

// OperationMetrics holds timing information for a session operation.
type OperationMetrics struct {
	Service    string // e.g., "Auth", "API"
	Operation  string // e.g., "Login", "Get"
	IsMutation bool
	Duration   time.Duration
	Error      error
}

// RefreshMetrics records how a 401 was resolved.
type RefreshMetrics struct {
	Outcome  auth.Outcome
	Duration time.Duration
	Error    error
}

// SessionMetrics aggregates metrics for an entire CLI session.
type SessionMetrics struct {
	StartTime       time.Time
	EndTime         time.Time
	TotalRequests   int
	Replays         int
	Unauthorized    int
	TotalOperations int
	FailedOps       int
	Exchanges       int
	SharedRefreshes int
	FailedRefreshes int
	Expirations     int
	TotalLatency    time.Duration
}

// SessionCollector accumulates metrics across a CLI session.
// It is safe for concurrent use and uses counters instead of unbounded slices.
type SessionCollector struct {
	mu sync.Mutex

	startTime       time.Time
	totalRequests   int
	replays         int
	unauthorized    int
	totalOperations int
	failedOps       int
	exchanges       int
	shared          int
	failedRefreshes int
	expirations     int
	totalLatency    time.Duration
}

// NewSessionCollector creates a new SessionCollector.
func NewSessionCollector() *SessionCollector {
	return &SessionCollector{
		startTime: time.Now(),
	}
}

// RecordRequest records metrics for an HTTP request.
func (c *SessionCollector) RecordRequest(m RequestMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.totalLatency += m.Duration
	if m.Attempt > 1 {
		c.replays++
	}
	if m.StatusCode == 401 {
		c.unauthorized++
	}
}

// RecordRequestFromClient records metrics from client hook types.
func (c *SessionCollector) RecordRequestFromClient(info api.RequestInfo, result api.RequestResult) {
	c.RecordRequest(RequestMetrics{
		Method:     info.Method,
		URL:        info.URL,
		Attempt:    info.Attempt,
		StatusCode: result.StatusCode,
		Duration:   result.Duration,
		Error:      result.Error,
	})
}

// RecordOperation records metrics for a session operation.
func (c *SessionCollector) RecordOperation(m OperationMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalOperations++
	if m.Error != nil {
		c.failedOps++
	}
}

// RecordOperationFromClient records metrics from client hook types.
func (c *SessionCollector) RecordOperationFromClient(op api.OperationInfo, err error, duration time.Duration) {
	c.RecordOperation(OperationMetrics{
		Service:    op.Service,
		Operation:  op.Operation,
		IsMutation: op.IsMutation,
		Duration:   duration,
		Error:      err,
	})
}

// RecordRefresh records a resolved 401.
func (c *SessionCollector) RecordRefresh(m RefreshMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch m.Outcome {
	case auth.OutcomeExchanged:
		c.exchanges++
	case auth.OutcomeShared:
		c.shared++
	case auth.OutcomeExpired:
		c.expirations++
	default:
		c.failedRefreshes++
	}
}

// Summary returns aggregated metrics for the session.
func (c *SessionCollector) Summary() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return SessionMetrics{
		StartTime:       c.startTime,
		EndTime:         time.Now(),
		TotalRequests:   c.totalRequests,
		Replays:         c.replays,
		Unauthorized:    c.unauthorized,
		TotalOperations: c.totalOperations,
		FailedOps:       c.failedOps,
		Exchanges:       c.exchanges,
		SharedRefreshes: c.shared,
		FailedRefreshes: c.failedRefreshes,
		Expirations:     c.expirations,
		TotalLatency:    c.totalLatency,
	}
}

// Reset clears all collected metrics and resets the start time.
func (c *SessionCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.totalRequests = 0
	c.replays = 0
	c.unauthorized = 0
	c.totalOperations = 0
	c.failedOps = 0
	c.exchanges = 0
	c.shared = 0
	c.failedRefreshes = 0
	c.expirations = 0
	c.totalLatency = 0
}
