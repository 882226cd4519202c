// Package retry wraps a single-shot call in a retry loop that honours a
// retryable error's own backoff hint, rather than imposing a fixed policy.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/sprintleague/riftwalker/internal/clockutil"
)

// Retryable is any error that knows whether it's worth retrying and how
// long to wait first. Both *endpoint.NotReadyError and *riotapi.Error
// satisfy this without either package importing retry.
type Retryable interface {
	error
	CanRetry() bool
	RetryTime() time.Duration
}

// ExhaustedError wraps the last error once maxAttempts retries are spent.
type ExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: exceeded %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error { return e.Cause }

// Do runs op up to maxAttempts+1 times. After each failure, if the error is
// Retryable and CanRetry() is true, it sleeps for RetryTime() (cancellable
// via clock and ctx) and re-runs op; any other error returns immediately.
// Once attempts are exhausted, the final error is wrapped in an
// ExhaustedError.
func Do[T any](ctx context.Context, clock clockutil.Clock, maxAttempts int, op func() (T, error)) (T, error) {
	var lastErr error

	for attempt := 0; attempt <= maxAttempts; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		retryable, ok := err.(Retryable)
		if !ok || !retryable.CanRetry() {
			var zero T
			return zero, err
		}

		if attempt == maxAttempts {
			break
		}

		if err := sleep(ctx, clock, retryable.RetryTime()); err != nil {
			var zero T
			return zero, err
		}
	}

	var zero T
	return zero, &ExhaustedError{Attempts: maxAttempts + 1, Cause: lastErr}
}

// sleep waits for d or returns ctx's error if it's cancelled first. The
// ctx check up front matters because clock.After may return an
// already-ready channel (as clockutil.Frozen's does), which would otherwise
// race non-deterministically against an already-cancelled context.
func sleep(ctx context.Context, clock clockutil.Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
