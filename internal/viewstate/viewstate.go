// Package viewstate holds the presentation tri-state for data being loaded.
// The network layer only ever produces a value or an error; Loading exists
// here so a screen can render while a call is outstanding.
package viewstate

import (
	"context"

	"github.com/maulanasdqn/skyla-pos/internal/api"
	"github.com/maulanasdqn/skyla-pos/internal/output"
)

// Phase is the presentation phase.
type Phase int

const (
	Loading Phase = iota
	Loaded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "loading"
	}
}

// State is a value being fetched for display.
type State[T any] struct {
	Phase Phase
	Value T
	Err   *output.Error
}

// Pending returns a loading state.
func Pending[T any]() State[T] {
	return State[T]{Phase: Loading}
}

// From converts a finished result.
func From[T any](r api.Result[T]) State[T] {
	if !r.OK() {
		return State[T]{Phase: Failed, Err: r.Err()}
	}
	return State[T]{Phase: Loaded, Value: r.Value()}
}

// Terminal reports whether the state is final.
func (s State[T]) Terminal() bool {
	return s.Phase != Loading
}

// SessionEnded reports whether the failure means the user must log in again.
func (s State[T]) SessionEnded() bool {
	return s.Phase == Failed && s.Err != nil &&
		(s.Err.Code == output.CodeSessionExpired || s.Err.Code == output.CodeAuth)
}

// Load runs fn and reports each state on updates: Loading first, then the
// terminal state, which is also returned.
func Load[T any](ctx context.Context, updates chan<- State[T], fn func(context.Context) api.Result[T]) State[T] {
	send := func(s State[T]) {
		if updates == nil {
			return
		}
		select {
		case updates <- s:
		case <-ctx.Done():
		}
	}

	send(Pending[T]())
	final := From(fn(ctx))
	send(final)
	return final
}
