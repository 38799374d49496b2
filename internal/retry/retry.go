package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var DefaultBackoffs = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type Policy struct {
	MaxRetries int
	Backoffs   []time.Duration
}

// Do runs fn until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		lastErr = err
		if i == maxRetries-1 {
			break
		}
		if i < len(p.Backoffs) && p.Backoffs[i] > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted: %w", ctx.Err())
			case <-time.After(p.Backoffs[i]):
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

func WithBackoff(fn func() error, maxRetries int) error {
	return Policy{MaxRetries: maxRetries, Backoffs: DefaultBackoffs}.Do(context.Background(), fn)
}
