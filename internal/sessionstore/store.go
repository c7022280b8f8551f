// Package sessionstore persists exported client session archives keyed by
// session name. Every backend stores at most one blob per key and replaces
// it wholesale on write.
package sessionstore

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConnection wraps any failure talking to the backing store.
	ErrConnection = errors.New("sessionstore: connection failure")
	// ErrCorrupt marks a stored payload that could not be decoded. Stores
	// quarantine such payloads and report the key as absent.
	ErrCorrupt = errors.New("sessionstore: corrupt payload")
	// ErrUnknownBackend is returned by New for an unsupported store name.
	ErrUnknownBackend = errors.New("sessionstore: unknown backend")
)

// Store is the durable key to blob contract used by the session adapter.
type Store interface {
	// EnsureSchema prepares tables, buckets or files. It is idempotent and
	// safe to call concurrently.
	EnsureSchema(ctx context.Context) error
	// Put stores blob under key, fully replacing any previous value.
	Put(ctx context.Context, key string, blob []byte) error
	// Get returns the blob for key. A missing key is found=false with a nil
	// error.
	Get(ctx context.Context, key string) (blob []byte, found bool, err error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// HealthCheck reports whether the store is reachable. It never panics.
	HealthCheck(ctx context.Context) bool
	Close() error
}

type connError struct {
	op  string
	err error
}

func (e *connError) Error() string {
	return fmt.Sprintf("sessionstore: %s: %v", e.op, e.err)
}

func (e *connError) Unwrap() []error {
	return []error{ErrConnection, e.err}
}

// connErr tags err as a connection failure while keeping the driver error
// reachable through errors.Is / errors.As.
func connErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &connError{op: op, err: err}
}

func safeHealth(fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return fn()
}
