package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zalando/go-keyring"
)

const serviceName = "skyla"

// KeyringTimeout bounds how long a caller waits on a keyring call. A locked
// or unresponsive secret service then surfaces as an error instead of
// hanging the caller. A call that times out before the worker picks it up
// is dropped; one that was already running when the wait ended may still
// complete afterwards.
var KeyringTimeout = 5 * time.Second

// errKeyringClosed is returned for calls made after Close.
var errKeyringClosed = errors.New("keyring: backend closed")

// key returns the keyring key for an origin.
func key(origin string) string {
	return fmt.Sprintf("skyla::%s", origin)
}

// keyringBackend runs keyring calls on one worker goroutine. Calls are
// applied in submission order, so a late save can never land after a later
// delete.
type keyringBackend struct {
	timeout   time.Duration
	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func newKeyringBackend(timeout time.Duration) *keyringBackend {
	b := &keyringBackend{
		timeout: timeout,
		ops:     make(chan func(), 16),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *keyringBackend) run() {
	for {
		select {
		case op := <-b.ops:
			op()
		case <-b.done:
			return
		}
	}
}

// Close stops the worker. Queued calls that have not started are dropped
// and their callers see errKeyringClosed.
func (b *keyringBackend) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *keyringBackend) do(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	select {
	case <-b.done:
		return errKeyringClosed
	default:
	}

	result := make(chan error, 1)
	op := func() {
		// The caller already gave up; skip rather than apply late.
		if ctx.Err() != nil {
			result <- ctx.Err()
			return
		}
		result <- fn()
	}
	select {
	case b.ops <- op:
	case <-b.done:
		return errKeyringClosed
	case <-ctx.Done():
		return fmt.Errorf("keyring: %w", ctx.Err())
	}

	select {
	case err := <-result:
		return err
	case <-b.done:
		return errKeyringClosed
	case <-ctx.Done():
		return fmt.Errorf("keyring: %w", ctx.Err())
	}
}

// probe checks that the keyring accepts writes.
func (b *keyringBackend) probe(ctx context.Context) error {
	testKey := "skyla::probe"
	return b.do(ctx, func() error {
		if err := keyring.Set(serviceName, testKey, "probe"); err != nil {
			return err
		}
		_ = keyring.Delete(serviceName, testKey) // Best-effort cleanup
		return nil
	})
}

func (b *keyringBackend) load(ctx context.Context, origin string) (*record, error) {
	var data string
	err := b.do(ctx, func() error {
		v, err := keyring.Get(serviceName, key(origin))
		data = v
		return err
	})
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}
	return &rec, nil
}

func (b *keyringBackend) save(ctx context.Context, origin string, rec *record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.do(ctx, func() error {
		return keyring.Set(serviceName, key(origin), string(data))
	})
}

func (b *keyringBackend) delete(ctx context.Context, origin string) error {
	err := b.do(ctx, func() error {
		return keyring.Delete(serviceName, key(origin))
	})
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
