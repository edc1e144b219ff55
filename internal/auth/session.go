package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/maulanasdqn/skyla-pos/internal/output"
)

// DefaultRefreshTimeout bounds a single refresh exchange.
const DefaultRefreshTimeout = 15 * time.Second

// Token is what a refresh exchange returns. RefreshToken is empty unless
// the server rotated it.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// Exchanger trades a refresh token for a new access token. A rejected
// refresh token must surface as an *output.Error with HTTPStatus 401 or 403
// (or code session_expired); anything else is treated as transient.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (*Token, error)
}

// ExchangeFunc adapts a function to the Exchanger interface.
type ExchangeFunc func(ctx context.Context, refreshToken string) (*Token, error)

// Exchange calls f.
func (f ExchangeFunc) Exchange(ctx context.Context, refreshToken string) (*Token, error) {
	return f(ctx, refreshToken)
}

// Outcome reports how Recover resolved.
type Outcome int

const (
	// OutcomeShared means another caller already refreshed; no exchange ran.
	OutcomeShared Outcome = iota
	// OutcomeExchanged means this caller ran the exchange and it succeeded.
	OutcomeExchanged
	// OutcomeFailed means the exchange failed transiently; credentials are kept.
	OutcomeFailed
	// OutcomeExpired means the session is gone and the store was cleared.
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExchanged:
		return "exchanged"
	case OutcomeFailed:
		return "failed"
	case OutcomeExpired:
		return "expired"
	default:
		return "shared"
	}
}

// SessionOptions configures NewSession.
type SessionOptions struct {
	RefreshTimeout time.Duration
	Logger         *slog.Logger
}

// Session serializes every decision about the stored credentials. Reads for
// signing, refresh exchanges, login writes and logout clears all pass through
// one weighted semaphore, so a clear can never interleave with a refresh write
// and every waiter sees the pair written by the refresh it waited on.
type Session struct {
	store     CredentialStore
	exchanger Exchanger
	sem       *semaphore.Weighted
	timeout   time.Duration
	logger    *slog.Logger

	// epoch advances on every completed exchange, login and logout.
	epoch atomic.Uint64
	// lastErr is the failure of the most recent exchange, guarded by sem.
	lastErr error

	refreshing atomic.Bool
	expired    atomic.Bool
}

// NewSession creates a session over store, refreshing through exchanger.
func NewSession(store CredentialStore, exchanger Exchanger, opts SessionOptions) *Session {
	timeout := opts.RefreshTimeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		store:     store,
		exchanger: exchanger,
		sem:       semaphore.NewWeighted(1),
		timeout:   timeout,
		logger:    logger,
	}
}

// Store returns the underlying credential store.
func (s *Session) Store() CredentialStore {
	return s.store
}

func (s *Session) acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return output.ErrNetwork(err)
	}
	return nil
}

// AccessToken returns the current credential pair. It waits while a refresh
// is in flight and never starts one itself.
func (s *Session) AccessToken(ctx context.Context) (Credentials, error) {
	if err := s.acquire(ctx); err != nil {
		return Credentials{}, err
	}
	defer s.sem.Release(1)

	return s.currentLocked(ctx)
}

func (s *Session) currentLocked(ctx context.Context) (Credentials, error) {
	creds, err := s.store.Read(ctx)
	if err != nil {
		return Credentials{}, err
	}
	// A rejected pair stays rejected even if clearing it failed.
	if s.expired.Load() {
		return Credentials{}, output.ErrSessionExpired()
	}
	if creds == nil {
		return Credentials{}, output.ErrAuth("Not logged in")
	}
	return *creds, nil
}

// Recover handles an authorization failure for a request signed with
// staleToken. Concurrent callers share a single exchange: whoever gets the
// semaphore first runs it, and the rest reuse its result.
func (s *Session) Recover(ctx context.Context, staleToken string) (Credentials, Outcome, error) {
	start := s.epoch.Load()
	if err := s.acquire(ctx); err != nil {
		return Credentials{}, OutcomeFailed, err
	}
	defer s.sem.Release(1)

	if s.expired.Load() {
		return Credentials{}, OutcomeExpired, output.ErrSessionExpired()
	}
	creds, err := s.store.Read(ctx)
	if err != nil {
		return Credentials{}, OutcomeFailed, err
	}
	if creds == nil {
		s.logger.Debug("refresh skipped, no stored session")
		return Credentials{}, OutcomeExpired, output.ErrSessionExpired()
	}
	if creds.AccessToken != staleToken {
		return *creds, OutcomeShared, nil
	}
	if s.epoch.Load() != start {
		// An exchange finished while we waited and left the token unchanged.
		if s.lastErr != nil {
			return Credentials{}, OutcomeFailed, s.lastErr
		}
		return *creds, OutcomeShared, nil
	}

	return s.exchangeLocked(ctx, *creds)
}

// Refresh forces an exchange of the current refresh token.
func (s *Session) Refresh(ctx context.Context) (Credentials, Outcome, error) {
	current, err := s.AccessToken(ctx)
	if err != nil {
		outcome := OutcomeFailed
		if output.IsCode(err, output.CodeSessionExpired) {
			outcome = OutcomeExpired
		}
		return Credentials{}, outcome, err
	}
	return s.Recover(ctx, current.AccessToken)
}

func (s *Session) exchangeLocked(ctx context.Context, creds Credentials) (Credentials, Outcome, error) {
	s.refreshing.Store(true)
	defer s.refreshing.Store(false)

	// The exchange outlives the caller that started it: other callers are
	// waiting on its result.
	xctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Debug("refreshing access token")
	tok, err := s.exchanger.Exchange(xctx, creds.RefreshToken)
	if err == nil && (tok == nil || tok.AccessToken == "") {
		err = output.ErrUnexpected(errors.New("refresh response has no access token"))
	}
	if err != nil {
		if isRejection(err) {
			s.logger.Info("refresh token rejected, ending session",
				slog.Duration("duration", time.Since(start)))
			s.expired.Store(true)
			s.lastErr = output.ErrSessionExpired()
			if clearErr := s.clearRejected(xctx); clearErr != nil {
				s.logger.Warn("failed to clear rejected session", slog.String("error", clearErr.Error()))
				s.lastErr = errors.Join(s.lastErr, fmt.Errorf("clear rejected session: %w", clearErr))
			}
			s.epoch.Add(1)
			return Credentials{}, OutcomeExpired, s.lastErr
		}
		s.logger.Debug("refresh failed", slog.String("error", err.Error()))
		s.lastErr = err
		s.epoch.Add(1)
		return Credentials{}, OutcomeFailed, err
	}

	next := Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if next.TokenType == "" {
		next.TokenType = creds.TokenType
	}
	if err := s.store.Save(xctx, next); err != nil {
		err = fmt.Errorf("failed to persist refreshed credentials: %w", err)
		s.lastErr = err
		s.epoch.Add(1)
		return Credentials{}, OutcomeFailed, err
	}

	s.lastErr = nil
	s.epoch.Add(1)
	s.logger.Debug("access token refreshed", slog.Duration("duration", time.Since(start)))
	return next, OutcomeExchanged, nil
}

// isRejection reports whether err means the refresh token itself is no
// longer valid.
func isRejection(err error) bool {
	e := output.AsError(err)
	if e.Code == output.CodeSessionExpired {
		return true
	}
	if e.Code != output.CodeAPI {
		return false
	}
	return e.HTTPStatus == http.StatusUnauthorized || e.HTTPStatus == http.StatusForbidden
}

// Begin stores a freshly issued session and its identity.
func (s *Session) Begin(ctx context.Context, creds Credentials, id Identity) error {
	if !creds.Valid() {
		return ErrIncompleteCredentials
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	if err := s.store.SaveSession(ctx, creds, id); err != nil {
		return err
	}
	s.expired.Store(false)
	s.lastErr = nil
	s.epoch.Add(1)
	return nil
}

// clearRejected removes a rejected pair, retrying once.
func (s *Session) clearRejected(ctx context.Context) error {
	err := s.store.Clear(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	return s.store.Clear(ctx)
}

// End clears the session. A refresh in flight finishes first and cannot
// write after the clear.
func (s *Session) End(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.expired.Store(false)
	s.lastErr = nil
	s.epoch.Add(1)
	return nil
}

// State reports the derived session state without waiting on a refresh.
func (s *Session) State(ctx context.Context) State {
	if s.refreshing.Load() {
		return StateRefreshing
	}
	if s.expired.Load() {
		return StateLoggedOut
	}
	creds, err := s.store.Read(ctx)
	if err != nil || creds == nil {
		return StateLoggedOut
	}
	return StateLoggedIn
}

// Identity returns the cached identity, or nil when none is stored.
func (s *Session) Identity(ctx context.Context) (*Identity, error) {
	return s.store.ReadIdentity(ctx)
}
