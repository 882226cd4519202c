package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sprintleague/riftwalker/internal/clockutil"
)

type fakeNotReady struct {
	remaining time.Duration
}

func (e *fakeNotReady) Error() string          { return "not ready" }
func (e *fakeNotReady) CanRetry() bool         { return e.remaining > 0 }
func (e *fakeNotReady) RetryTime() time.Duration { return e.remaining }

// S4: retry(3, op) where op fails with a 0.5s-remaining retryable error for
// 3 attempts then succeeds. Total simulated sleep >= 1.5s; op invoked 4
// times; result is success.
func TestDo_HonoursRetryHintThenSucceeds(t *testing.T) {
	clock := clockutil.NewFrozen(time.Unix(0, 0))
	start := clock.Now()

	calls := 0
	op := func() (string, error) {
		calls++
		if calls <= 3 {
			return "", &fakeNotReady{remaining: 500 * time.Millisecond}
		}
		return "ok", nil
	}

	result, err := Do(context.Background(), clock, 3, op)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected ok, got %q", result)
	}
	if calls != 4 {
		t.Fatalf("expected 4 invocations, got %d", calls)
	}
	if elapsed := clock.Now().Sub(start); elapsed < 1500*time.Millisecond {
		t.Fatalf("expected at least 1.5s of simulated sleep, got %s", elapsed)
	}
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	clock := clockutil.NewFrozen(time.Unix(0, 0))
	calls := 0
	op := func() (string, error) {
		calls++
		return "", errors.New("boom")
	}

	_, err := Do(context.Background(), clock, 5, op)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 invocation for a non-retryable error, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	clock := clockutil.NewFrozen(time.Unix(0, 0))
	calls := 0
	op := func() (string, error) {
		calls++
		return "", &fakeNotReady{remaining: time.Millisecond}
	}

	_, err := Do(context.Background(), clock, 2, op)
	if err == nil {
		t.Fatal("expected exhausted error")
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %T: %v", err, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 invocations (maxAttempts+1), got %d", calls)
	}
}

func TestDo_CancellationStopsRetrying(t *testing.T) {
	clock := clockutil.NewFrozen(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	op := func() (string, error) {
		calls++
		return "", &fakeNotReady{remaining: time.Second}
	}

	_, err := Do(ctx, clock, 3, op)
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 invocation before cancellation took effect, got %d", calls)
	}
}
