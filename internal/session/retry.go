package session

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy is an exponential backoff schedule: attempt n (zero based)
// waits BaseDelay * Multiplier^n before attempt n+1.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy makes three attempts, waiting 1s then 2s between them.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	Multiplier:  2,
}

// Delay returns the wait after the given failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	m := p.Multiplier
	if m < 1 {
		m = 1
	}
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= m
	}
	return time.Duration(d)
}

// AttemptError is returned once every attempt of Do has failed.
type AttemptError struct {
	Attempts int
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds, returns an error that retryable rejects,
// or MaxAttempts is reached. Exhaustion yields an *AttemptError wrapping the
// last failure; non-retryable errors are returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error, retryable func(error) bool) error {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	var err error
	for attempt := 0; attempt < max; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == max-1 {
			break
		}
		if serr := sleepCtx(ctx, p.Delay(attempt)); serr != nil {
			return fmt.Errorf("retry cancelled: %w", serr)
		}
	}
	return &AttemptError{Attempts: max, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
