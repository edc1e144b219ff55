package auth

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
)

// LockTimeout is the maximum time to wait for the credentials file lock.
const LockTimeout = 2 * time.Second

// ErrStoreBusy is returned when another process holds the credentials lock
// for longer than LockTimeout.
var ErrStoreBusy = errors.New("credentials file is locked by another process")

func credentialsPath(dir string) string {
	return filepath.Join(dir, "credentials.json")
}

// fileBackend keeps every origin's record in one JSON file.
type fileBackend struct {
	dir string
}

func newFileBackend(dir string) *fileBackend {
	return &fileBackend{dir: dir}
}

func (f *fileBackend) lockPath() string {
	return filepath.Join(f.dir, "credentials.lock")
}

// withLock runs fn while holding the cross-process lock.
func (f *fileBackend) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return err
	}

	fl := flock.New(f.lockPath())
	ctx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()

	// TryLockContext retries every 10ms until ctx expires
	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrStoreBusy
		}
		return err
	}
	if !locked {
		return ErrStoreBusy
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}

func (f *fileBackend) load(ctx context.Context, origin string) (*record, error) {
	var rec *record
	err := f.withLock(ctx, func() error {
		all, err := f.loadAll()
		if err != nil {
			return err
		}
		rec = all[origin]
		return nil
	})
	return rec, err
}

func (f *fileBackend) save(ctx context.Context, origin string, rec *record) error {
	return f.withLock(ctx, func() error {
		all, err := f.loadAll()
		if err != nil {
			return err
		}
		all[origin] = rec
		return f.saveAll(all)
	})
}

func (f *fileBackend) delete(ctx context.Context, origin string) error {
	return f.withLock(ctx, func() error {
		all, err := f.loadAll()
		if err != nil {
			return err
		}
		if _, ok := all[origin]; !ok {
			return nil
		}
		delete(all, origin)
		return f.saveAll(all)
	})
}

func (f *fileBackend) loadAll() (map[string]*record, error) {
	data, err := os.ReadFile(credentialsPath(f.dir))
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*record), nil
		}
		return nil, err
	}

	var all map[string]*record
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	if all == nil {
		all = make(map[string]*record)
	}
	return all, nil
}

func (f *fileBackend) saveAll(all map[string]*record) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(f.dir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	destPath := credentialsPath(f.dir)
	if err := os.Rename(tmpPath, destPath); err != nil {
		// Windows refuses to rename over an existing file.
		if runtime.GOOS == "windows" {
			_ = os.Remove(destPath)
			return os.Rename(tmpPath, destPath)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}
