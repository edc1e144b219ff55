package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/maulanasdqn/skyla-pos/internal/output"
)

// Result is the outcome of a backend call: a value or an error, never both.
type Result[T any] struct {
	value T
	err   *output.Error
}

// Success wraps a value.
func Success[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Failure wraps an error. Errors that are not *output.Error are classified
// as unexpected.
func Failure[T any](err error) Result[T] {
	if err == nil {
		err = errors.New("unknown failure")
	}
	var e *output.Error
	if !errors.As(err, &e) {
		e = output.ErrUnexpected(err)
	}
	return Result[T]{err: e}
}

// OK reports whether the result is a success.
func (r Result[T]) OK() bool {
	return r.err == nil
}

// Value returns the value, or the zero value for a failure.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the failure, or nil.
func (r Result[T]) Err() *output.Error {
	return r.err
}

// Unwrap returns the value and error in Go's usual form.
func (r Result[T]) Unwrap() (T, error) {
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	return r.value, nil
}

// Map projects a successful value, passing a failure through unchanged.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if r.err != nil {
		return Result[U]{err: r.err}
	}
	return Success(fn(r.value))
}

// Call sends req and decodes a 2xx body into an envelope.
//
// No response yields the transport or session error, a non-2xx status
// yields an API error carrying the envelope's message, and a 2xx body that
// does not decode yields an unexpected-response error.
func Call[T any](ctx context.Context, c *Client, req Request) Result[Envelope[T]] {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return Failure[Envelope[T]](err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Failure[Envelope[T]](StatusError(resp))
	}

	var env Envelope[T]
	if len(resp.Body) == 0 || resp.StatusCode == http.StatusNoContent {
		return Success(env)
	}
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		c.logger.Debug("undecodable response", slog.Int("status", resp.StatusCode), slog.String("error", err.Error()))
		return Failure[Envelope[T]](output.ErrUnexpected(err))
	}
	return Success(env)
}

// StatusError classifies a non-2xx response as an API error carrying the
// envelope's message.
func StatusError(resp *Response) *output.Error {
	msg := errorMessage(resp.Body)
	if msg == "" {
		msg = fmt.Sprintf("Request failed (HTTP %d)", resp.StatusCode)
	}
	return output.ErrAPI(resp.StatusCode, msg)
}

// Data projects an envelope to its data field.
func Data[T any](r Result[Envelope[T]]) Result[T] {
	return Map(r, func(env Envelope[T]) T { return env.Data })
}

// Get sends req and returns the envelope's data.
func Get[T any](ctx context.Context, c *Client, req Request) Result[T] {
	return Data(Call[T](ctx, c, req))
}

// List sends req and returns one page of a list envelope.
func List[T any](ctx context.Context, c *Client, req Request) Result[Page[T]] {
	return Map(Call[[]T](ctx, c, req), func(env Envelope[[]T]) Page[T] {
		page := Page[T]{Items: env.Data}
		if env.Meta != nil {
			page.Meta = *env.Meta
		}
		if page.Items == nil {
			page.Items = []T{}
		}
		return page
	})
}

// Message sends req and returns the envelope's message.
func Message(ctx context.Context, c *Client, req Request) Result[string] {
	return Map(Call[json.RawMessage](ctx, c, req), func(env Envelope[json.RawMessage]) string {
		return env.Message
	})
}

// maxPages bounds GetAll against a backend that never reports a last page.
const maxPages = 10000

// GetAll walks every page of a list endpoint using the page query parameter.
func GetAll[T any](ctx context.Context, c *Client, req Request) Result[Page[T]] {
	var all []T
	var meta PaginationMeta

	query := cloneQuery(req)
	page := 1
	if p, err := strconv.Atoi(query.Get("page")); err == nil && p > 0 {
		page = p
	}

	for ; page <= maxPages; page++ {
		query.Set("page", strconv.Itoa(page))
		pageReq := req
		pageReq.Query = query

		r := List[T](ctx, c, pageReq)
		if !r.OK() {
			return Failure[Page[T]](r.Err())
		}
		p := r.Value()
		// A backend that ignores the page parameter would otherwise be
		// walked to the cap, returning the same page every time.
		if p.Meta.CurrentPage > 0 && p.Meta.CurrentPage != page {
			return Failure[Page[T]](output.ErrUnexpected(
				fmt.Errorf("asked for page %d, got page %d", page, p.Meta.CurrentPage)))
		}
		all = append(all, p.Items...)
		meta = p.Meta
		if len(p.Items) == 0 || !p.Meta.HasNext() {
			break
		}
	}
	if page > maxPages {
		c.logger.Warn("pagination capped; results may be incomplete", slog.Int("pages", maxPages))
	}

	if all == nil {
		all = []T{}
	}
	meta.TotalItems = max(meta.TotalItems, len(all))
	return Success(Page[T]{Items: all, Meta: meta})
}

func cloneQuery(req Request) url.Values {
	q := make(url.Values, len(req.Query)+1)
	for k, v := range req.Query {
		q[k] = append([]string(nil), v...)
	}
	return q
}
