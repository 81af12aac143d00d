// Package retry provides a bounded retry wrapper with exponential backoff.
// It is pure control flow: the only side effects are context-aware delays.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy parameterizes one retry loop.
type Policy struct {
	// MaxAttempts bounds the total number of executions, including the first.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; each subsequent wait
	// doubles it (BaseDelay * 2^(attempt-1)).
	BaseDelay time.Duration
	// IsRetryable classifies errors. A nil predicate retries everything.
	// Non-retryable errors propagate immediately without further attempts.
	IsRetryable func(error) bool
}

// ExhaustedError reports that every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Run executes op until it succeeds, a non-retryable error occurs, the policy
// is exhausted, or the context is cancelled. On success it returns op's value.
func Run[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if p.IsRetryable != nil && !p.IsRetryable(err) {
			// Fail fast: the caller classified this as non-transient.
			return zero, err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}
		delay := p.BaseDelay << (attempt - 1)
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, &ExhaustedError{Attempts: p.MaxAttempts, LastErr: lastErr}
}

// Do is the error-only convenience form of Run.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := Run(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
