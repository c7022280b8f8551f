// Package session bridges the client library's file based session export
// to a durable sessionstore.Store.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/talkincode/wagate/internal/sessionstore"
	"github.com/talkincode/wagate/internal/watcher"
	"go.uber.org/zap"
)

var (
	// ErrNotFound means the exported archive never appeared.
	ErrNotFound = watcher.ErrNotFound
	// ErrTimeout means the archive appeared but kept changing size.
	ErrTimeout = watcher.ErrTimeout
	// ErrNoSession is returned by Extract when nothing was ever saved.
	ErrNoSession = errors.New("session: no stored session")
	// ErrConnection is the store's connection failure.
	ErrConnection = sessionstore.ErrConnection
)

// Options configures an Adapter. Zero values fall back to defaults.
type Options struct {
	// WorkDir is searched first for <session>.zip.
	WorkDir string
	// AuthDir is searched second.
	AuthDir        string
	WaitTimeout    time.Duration
	PollInterval   time.Duration
	Retry          RetryPolicy
	CleanupArchive bool
}

type Adapter struct {
	store sessionstore.Store
	opts  Options
}

func NewAdapter(store sessionstore.Store, opts Options) *Adapter {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = watcher.DefaultInterval
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy
	}
	return &Adapter{store: store, opts: opts}
}

// SaveError reports a Save that gave up.
type SaveError struct {
	Session  string
	Attempts int
	Err      error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("session: save %q failed after %d attempt(s): %v", e.Session, e.Attempts, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Candidates lists where the exported archive for session may appear.
func (a *Adapter) Candidates(session string) []string {
	name := session + ".zip"
	var out []string
	for _, dir := range []string{a.opts.WorkDir, a.opts.AuthDir} {
		if dir == "" {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out
}

// Save waits for <session>.zip, lets it settle, and stores its bytes under
// session. Missing, still-growing and vanished archives are retried per the
// adapter's RetryPolicy; store failures return immediately.
func (a *Adapter) Save(ctx context.Context, session string) error {
	var (
		attempts int
		saved    string
	)
	err := a.opts.Retry.Do(ctx, func(attempt int) error {
		attempts = attempt + 1
		p, err := a.saveOnce(ctx, session)
		if err != nil {
			zap.L().Warn("session: save attempt failed",
				zap.String("session", session),
				zap.Int("attempt", attempts),
				zap.Error(err))
			return err
		}
		saved = p
		return nil
	}, retryable)
	if err != nil {
		var ae *AttemptError
		if errors.As(err, &ae) {
			err = ae.Err
		}
		return &SaveError{Session: session, Attempts: attempts, Err: err}
	}

	zap.L().Info("session: archive persisted",
		zap.String("session", session),
		zap.String("path", saved),
		zap.Int("attempts", attempts))
	if a.opts.CleanupArchive {
		if err := os.Remove(saved); err != nil && !errors.Is(err, fs.ErrNotExist) {
			zap.L().Warn("session: cleanup archive failed", zap.String("path", saved), zap.Error(err))
		}
	}
	return nil
}

func (a *Adapter) saveOnce(ctx context.Context, session string) (string, error) {
	p, err := watcher.WaitForPath(ctx, a.Candidates(session), a.opts.WaitTimeout, a.opts.PollInterval)
	if err != nil {
		return "", err
	}
	if err := watcher.WaitForStable(ctx, p, a.opts.WaitTimeout, a.opts.PollInterval); err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrTimeout
	}
	if err := a.store.Put(ctx, session, data); err != nil {
		return "", &storeError{err: err}
	}
	return p, nil
}

// storeError marks a failure of the store itself. Those are never retried,
// whatever the underlying driver error wraps.
type storeError struct {
	err error
}

func (e *storeError) Error() string { return e.err.Error() }

func (e *storeError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var se *storeError
	if errors.As(err, &se) || errors.Is(err, ErrConnection) {
		return false
	}
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, fs.ErrNotExist)
}

// Extract writes the stored archive for session to destPath, replacing any
// existing file atomically. ErrNoSession means the caller should start a
// fresh login.
func (a *Adapter) Extract(ctx context.Context, session, destPath string) error {
	blob, found, err := a.store.Get(ctx, session)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoSession
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err = tmp.Write(blob); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmpName, destPath)
}

func (a *Adapter) Exists(ctx context.Context, session string) (bool, error) {
	return a.store.Exists(ctx, session)
}

func (a *Adapter) Delete(ctx context.Context, session string) error {
	return a.store.Delete(ctx, session)
}

// Healthy proxies the store health probe.
func (a *Adapter) Healthy(ctx context.Context) bool {
	return a.store.HealthCheck(ctx)
}
