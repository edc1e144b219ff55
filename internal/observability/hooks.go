package observability

import (
	"context"
	"sync"
	"time"

	"github.com/maulanasdqn/skyla-pos/internal/api"
)

// Verify CLIHooks implements api.Hooks at compile time.
var _ api.Hooks = (*CLIHooks)(nil)

// CLIHooks implements api.Hooks for CLI observability.
// It supports configurable verbosity levels:
//   - 0: Silent (collect stats only, no output)
//   - 1: Operations and refreshes
//   - 2: Operations, refreshes and HTTP requests
type CLIHooks struct {
	mu        sync.Mutex
	level     int
	collector *SessionCollector
	writer    *TraceWriter
}

// NewCLIHooks creates a new CLIHooks with the given verbosity level.
// If collector is nil, metrics are not collected.
// If writer is nil, no trace output is produced.
func NewCLIHooks(level int, collector *SessionCollector, writer *TraceWriter) *CLIHooks {
	return &CLIHooks{
		level:     level,
		collector: collector,
		writer:    writer,
	}
}

// SetLevel changes the verbosity level at runtime.
func (h *CLIHooks) SetLevel(level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// Level returns the current verbosity level.
func (h *CLIHooks) Level() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

func (h *CLIHooks) snapshot() (int, *SessionCollector, *TraceWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level, h.collector, h.writer
}

// OnOperationStart is called when a session operation begins.
func (h *CLIHooks) OnOperationStart(ctx context.Context, op api.OperationInfo) context.Context {
	level, _, writer := h.snapshot()
	if level >= 1 && writer != nil {
		writer.WriteOperationStart(op)
	}
	return ctx
}

// OnOperationEnd is called when a session operation completes.
func (h *CLIHooks) OnOperationEnd(ctx context.Context, op api.OperationInfo, err error, duration time.Duration) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordOperationFromClient(op, err, duration)
	}
	if level >= 1 && writer != nil {
		writer.WriteOperationEnd(op, err, duration)
	}
}

// OnRequestStart is called before an HTTP request is sent.
func (h *CLIHooks) OnRequestStart(ctx context.Context, info api.RequestInfo) context.Context {
	level, _, writer := h.snapshot()
	if level >= 2 && writer != nil {
		writer.WriteRequestStart(info)
	}
	return ctx
}

// OnRequestEnd is called after an HTTP request completes.
func (h *CLIHooks) OnRequestEnd(ctx context.Context, info api.RequestInfo, result api.RequestResult) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordRequestFromClient(info, result)
	}
	if level >= 2 && writer != nil {
		writer.WriteRequestEnd(info, result)
	}
}

// OnRefresh is called after the session resolved a 401.
func (h *CLIHooks) OnRefresh(ctx context.Context, info api.RefreshInfo) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordRefresh(RefreshMetrics{Outcome: info.Outcome, Duration: info.Duration, Error: info.Error})
	}
	if level >= 1 && writer != nil {
		writer.WriteRefresh(info)
	}
}
