package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CredentialStore persists the session. Read and ReadIdentity return nil
// with a nil error when nothing is stored.
type CredentialStore interface {
	Save(ctx context.Context, creds Credentials) error
	Read(ctx context.Context) (*Credentials, error)
	SaveIdentity(ctx context.Context, id Identity) error
	// SaveSession stores the pair and identity together: either both land
	// or neither does.
	SaveSession(ctx context.Context, creds Credentials, id Identity) error
	ReadIdentity(ctx context.Context) (*Identity, error)
	Clear(ctx context.Context) error
}

// ErrIncompleteCredentials is returned when saving a pair with a missing token.
var ErrIncompleteCredentials = errors.New("credentials must include both access and refresh tokens")

// StoreError indicates a credential storage failure.
type StoreError struct {
	Operation string // "load", "save", "delete"
	Origin    string
	Cause     error
}

func (e *StoreError) Error() string {
	msg := e.Operation + " credentials"
	if e.Origin != "" {
		msg += " for " + e.Origin
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// backend is a storage engine for session records keyed by origin.
type backend interface {
	load(ctx context.Context, origin string) (*record, error)
	save(ctx context.Context, origin string, rec *record) error
	delete(ctx context.Context, origin string) error
}

const (
	cacheKey = "record"
	// cacheTTL bounds how long another process's write can go unnoticed.
	cacheTTL = 5 * time.Second
)

// StoreOptions configures NewStore.
type StoreOptions struct {
	// Dir holds the plaintext fallback file and its lock.
	Dir string
	// NoKeyring forces the file backend.
	NoKeyring bool
	Logger    *slog.Logger
}

// Store is the CredentialStore for one API origin, preferring the system
// keyring and falling back to a locked file.
type Store struct {
	mu         sync.Mutex
	origin     string
	backend    backend
	useKeyring bool
	dir        string
	cache      *gocache.Cache
	logger     *slog.Logger
}

var _ CredentialStore = (*Store)(nil)

// NewStore creates a credential store for origin.
func NewStore(origin string, opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Store{
		origin: origin,
		dir:    opts.Dir,
		cache:  gocache.New(cacheTTL, time.Minute),
		logger: logger,
	}

	if !opts.NoKeyring {
		kr := newKeyringBackend(KeyringTimeout)
		if err := kr.probe(context.Background()); err == nil {
			s.backend = kr
			s.useKeyring = true
			return s
		}
		kr.Close()
		logger.Warn("system keyring unavailable, storing credentials in plaintext",
			slog.String("path", credentialsPath(opts.Dir)))
	}
	s.backend = newFileBackend(opts.Dir)
	return s
}

// Close releases the keyring worker, if any. The store must not be used
// afterwards.
func (s *Store) Close() error {
	if kr, ok := s.backend.(*keyringBackend); ok {
		kr.Close()
	}
	return nil
}

// Origin returns the API origin the store is bound to.
func (s *Store) Origin() string {
	return s.origin
}

// UsingKeyring returns true if the store is using the system keyring.
func (s *Store) UsingKeyring() bool {
	return s.useKeyring
}

// Save stores the credential pair, keeping any cached identity.
func (s *Store) Save(ctx context.Context, creds Credentials) error {
	if !creds.Valid() {
		return ErrIncompleteCredentials
	}
	return s.update(ctx, func(rec *record) { rec.setCredentials(creds) })
}

// SaveIdentity stores the identity, keeping the credential pair.
func (s *Store) SaveIdentity(ctx context.Context, id Identity) error {
	return s.update(ctx, func(rec *record) { rec.setIdentity(id) })
}

// SaveSession replaces the pair and identity in one write.
func (s *Store) SaveSession(ctx context.Context, creds Credentials, id Identity) error {
	if !creds.Valid() {
		return ErrIncompleteCredentials
	}
	return s.update(ctx, func(rec *record) {
		rec.setCredentials(creds)
		rec.setIdentity(id)
	})
}

// Read returns the stored pair, or nil when absent.
func (s *Store) Read(ctx context.Context) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	return rec.credentials(), nil
}

// ReadIdentity returns the stored identity, or nil when absent.
func (s *Store) ReadIdentity(ctx context.Context) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	return rec.identity(), nil
}

// Clear removes credentials and identity in a single delete.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Delete(cacheKey)
	if err := s.backend.delete(ctx, s.origin); err != nil {
		return &StoreError{Operation: "delete", Origin: s.origin, Cause: err}
	}
	return nil
}

func (s *Store) update(ctx context.Context, mutate func(*record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Always start from the backend so a concurrent write from another
	// process is not overwritten with a cached copy.
	rec, err := s.backend.load(ctx, s.origin)
	if err != nil {
		return &StoreError{Operation: "load", Origin: s.origin, Cause: err}
	}
	if rec == nil {
		rec = &record{}
	}
	mutate(rec)

	s.cache.Delete(cacheKey)
	if err := s.backend.save(ctx, s.origin, rec); err != nil {
		return &StoreError{Operation: "save", Origin: s.origin, Cause: err}
	}
	cp := *rec
	s.cache.SetDefault(cacheKey, &cp)
	return nil
}

func (s *Store) loadLocked(ctx context.Context) (*record, error) {
	if v, ok := s.cache.Get(cacheKey); ok {
		cp := *v.(*record)
		return &cp, nil
	}
	rec, err := s.backend.load(ctx, s.origin)
	if err != nil {
		return nil, &StoreError{Operation: "load", Origin: s.origin, Cause: err}
	}
	if rec != nil {
		cp := *rec
		s.cache.SetDefault(cacheKey, &cp)
	}
	return rec, nil
}

// MigrateToKeyring moves credentials from the plaintext file into the
// keyring and removes the file entry.
func (s *Store) MigrateToKeyring(ctx context.Context) error {
	if !s.useKeyring {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file := newFileBackend(s.dir)
	rec, err := file.load(ctx, s.origin)
	if err != nil || rec == nil {
		return nil //nolint:nilerr // No file to migrate is not an error
	}
	existing, err := s.backend.load(ctx, s.origin)
	if err != nil {
		return fmt.Errorf("failed to migrate %s: %w", s.origin, err)
	}
	if existing == nil {
		if err := s.backend.save(ctx, s.origin, rec); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", s.origin, err)
		}
	}
	s.cache.Delete(cacheKey)
	_ = file.delete(ctx, s.origin) // Best-effort cleanup
	s.logger.Info("migrated credentials to system keyring", slog.String("origin", s.origin))
	return nil
}
