// Package api is the HTTP client for the POS backend: request signing, the
// 401 refresh-and-replay intercept, and mapping responses to results.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maulanasdqn/skyla-pos/internal/auth"
	"github.com/maulanasdqn/skyla-pos/internal/config"
	"github.com/maulanasdqn/skyla-pos/internal/output"
)

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Unauthenticated requests are sent without a token and never refreshed.
	Unauthenticated bool
}

// Response is a raw backend response. Status codes are not interpreted.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client sends requests to the backend on behalf of the session.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	refreshPath string
	session     *auth.Session
	signer      *Signer
	hooks       Hooks
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithHooks sets observability hooks.
func WithHooks(h Hooks) Option {
	return func(c *Client) {
		if h != nil {
			c.hooks = h
		}
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for cfg.BaseURL that signs with session.
func NewClient(cfg *config.Config, session *auth.Session, opts ...Option) *Client {
	c := &Client{
		httpClient:  newHTTPClient(cfg.Timeout.Std()),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		refreshPath: cfg.Endpoints.Refresh,
		session:     session,
		signer:      NewSigner(session),
		hooks:       NoopHooks{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Session returns the session the client signs with.
func (c *Client) Session() *auth.Session {
	return c.session
}

// Hooks returns the client's observability hooks.
func (c *Client) Hooks() Hooks {
	return c.hooks
}

// Do sends req. A signed request answered with 401 is handed to the session
// for recovery and replayed once with the resulting token; the replay's
// response is returned whatever its status.
//
// The returned error is non-nil only when no response was obtained: a
// transport failure, an expired session, or an invalid request.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}
	target, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}
	signed := !req.Unauthenticated && !c.isRefreshPath(req.Path)

	resp, token, err := c.send(ctx, req.Method, target, body, signed, 1)
	if err != nil || !signed || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	start := time.Now()
	_, outcome, err := c.session.Recover(ctx, token)
	c.hooks.OnRefresh(ctx, RefreshInfo{Outcome: outcome, Duration: time.Since(start), Error: err})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("replaying request after refresh",
		slog.String("method", req.Method), slog.String("path", req.Path), slog.String("outcome", outcome.String()))

	resp, _, err = c.send(ctx, req.Method, target, body, true, 2)
	return resp, err
}

// Refresh forces a token exchange and reports it to the hooks.
func (c *Client) Refresh(ctx context.Context) (auth.Outcome, error) {
	if c.session == nil {
		return auth.OutcomeFailed, output.ErrAuth("Not logged in")
	}
	start := time.Now()
	_, outcome, err := c.session.Refresh(ctx)
	c.hooks.OnRefresh(ctx, RefreshInfo{Outcome: outcome, Duration: time.Since(start), Error: err})
	return outcome, err
}

func (c *Client) send(ctx context.Context, method, target string, body []byte, signed bool, attempt int) (*Response, string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, "", output.ErrValidation(fmt.Sprintf("invalid request: %v", err))
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	token, err := c.signer.Sign(ctx, httpReq, signed)
	if err != nil {
		return nil, "", err
	}

	info := RequestInfo{
		Method:    method,
		URL:       target,
		Attempt:   attempt,
		RequestID: httpReq.Header.Get(HeaderRequestID),
	}
	hookCtx := c.hooks.OnRequestStart(ctx, info)
	httpReq = httpReq.WithContext(hookCtx)

	c.logger.Debug("request", slog.String("method", method), slog.String("url", target), slog.Int("attempt", attempt))
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		netErr := output.ErrNetwork(err)
		c.hooks.OnRequestEnd(hookCtx, info, RequestResult{Duration: time.Since(start), Error: netErr})
		return nil, "", netErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		netErr := output.ErrNetwork(err)
		c.hooks.OnRequestEnd(hookCtx, info, RequestResult{StatusCode: resp.StatusCode, Duration: duration, Error: netErr})
		return nil, "", netErr
	}

	c.logger.Debug("response", slog.Int("status", resp.StatusCode), slog.Duration("duration", duration))
	c.hooks.OnRequestEnd(hookCtx, info, RequestResult{StatusCode: resp.StatusCode, Duration: duration})
	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}, token, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, output.ErrValidation(fmt.Sprintf("invalid request body: %v", err))
	}
	return data, nil
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	var target string
	absolute := strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
	if absolute {
		target = path
	} else {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		target = c.baseURL + path
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", output.ErrValidation(fmt.Sprintf("invalid path %q", path))
	}
	// Credentials only ever go to the configured origin.
	if absolute && !c.sameOrigin(u) {
		return "", output.ErrValidation(fmt.Sprintf("refusing request to %s: not the configured API origin", u.Host))
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			q.Del(k)
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) sameOrigin(u *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, base.Scheme) && strings.EqualFold(u.Host, base.Host)
}

func (c *Client) isRefreshPath(path string) bool {
	if c.refreshPath == "" {
		return false
	}
	p := path
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimPrefix(p, c.baseURL)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p == c.refreshPath
}
