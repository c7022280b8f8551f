// Package watcher polls the filesystem for an artifact produced by another
// process. It never relies on filesystem notifications, so it keeps working
// on network and container volumes where inotify events are unreliable.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when none of the candidate paths appeared in time.
	ErrNotFound = errors.New("watcher: path not found")
	// ErrTimeout is returned when a file never settled to a stable size.
	ErrTimeout = errors.New("watcher: file size did not stabilize")
)

// DefaultInterval is used when a caller passes a non-positive interval.
const DefaultInterval = 500 * time.Millisecond

// WaitForPath checks candidates in order on every tick and returns the first
// one that exists as a regular file. Absence is treated as "not yet"; any
// other stat error is returned immediately.
func WaitForPath(ctx context.Context, candidates []string, timeout, interval time.Duration) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNotFound
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	deadline := time.Now().Add(timeout)
	for {
		for _, p := range candidates {
			ok, err := isFile(p)
			if err != nil {
				return "", fmt.Errorf("watcher: stat %s: %w", p, err)
			}
			if ok {
				return p, nil
			}
		}
		if !time.Now().Before(deadline) {
			return "", ErrNotFound
		}
		if err := sleep(ctx, nextWait(deadline, interval)); err != nil {
			return "", err
		}
	}
}

// WaitForStable polls the size of path until two consecutive observations
// are equal and non-zero. A file that disappears between polls resets the
// observation.
func WaitForStable(ctx context.Context, path string, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	deadline := time.Now().Add(timeout)
	last := int64(-1)
	for {
		size, err := fileSize(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			last = -1
		case err != nil:
			return fmt.Errorf("watcher: stat %s: %w", path, err)
		case size > 0 && size == last:
			return nil
		default:
			last = size
		}
		if !time.Now().Before(deadline) {
			zap.L().Debug("watcher: size still changing at deadline",
				zap.String("path", path), zap.Int64("last_size", last))
			return ErrTimeout
		}
		if err := sleep(ctx, nextWait(deadline, interval)); err != nil {
			return err
		}
	}
}

func isFile(p string) (bool, error) {
	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}

func fileSize(p string) (int64, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// nextWait never oversleeps the deadline by more than one interval, but
// always waits at least a little so the loop cannot spin.
func nextWait(deadline time.Time, interval time.Duration) time.Duration {
	remaining := time.Until(deadline)
	if remaining < interval {
		if remaining < time.Millisecond {
			return time.Millisecond
		}
		return remaining
	}
	return interval
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
