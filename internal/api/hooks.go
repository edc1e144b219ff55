package api

import (
	"context"
	"time"

	"github.com/maulanasdqn/skyla-pos/internal/auth"
)

// OperationInfo describes a semantic operation such as "Auth.Login".
type OperationInfo struct {
	Service    string
	Operation  string
	IsMutation bool
}

// RequestInfo describes a single HTTP attempt.
type RequestInfo struct {
	Method    string
	URL       string
	Attempt   int
	RequestID string
}

// RequestResult is the outcome of a single HTTP attempt.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	Error      error
}

// RefreshInfo is reported after a 401 was resolved by the session.
type RefreshInfo struct {
	Outcome  auth.Outcome
	Duration time.Duration
	Error    error
}

// Hooks observes client activity. Implementations must be safe for
// concurrent use.
type Hooks interface {
	OnOperationStart(ctx context.Context, op OperationInfo) context.Context
	OnOperationEnd(ctx context.Context, op OperationInfo, err error, duration time.Duration)
	OnRequestStart(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)
	OnRefresh(ctx context.Context, info RefreshInfo)
}

// NoopHooks ignores everything.
type NoopHooks struct{}

var _ Hooks = NoopHooks{}

func (NoopHooks) OnOperationStart(ctx context.Context, _ OperationInfo) context.Context { return ctx }

func (NoopHooks) OnOperationEnd(context.Context, OperationInfo, error, time.Duration) {}

func (NoopHooks) OnRequestStart(ctx context.Context, _ RequestInfo) context.Context { return ctx }

func (NoopHooks) OnRequestEnd(context.Context, RequestInfo, RequestResult) {}

func (NoopHooks) OnRefresh(context.Context, RefreshInfo) {}

// Operation runs fn between OnOperationStart and OnOperationEnd.
func Operation(ctx context.Context, hooks Hooks, op OperationInfo, fn func(context.Context) error) error {
	if hooks == nil {
		return fn(ctx)
	}
	start := time.Now()
	ctx = hooks.OnOperationStart(ctx, op)
	err := fn(ctx)
	hooks.OnOperationEnd(ctx, op, err, time.Since(start))
	return err
}
