package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/tunesync/internal/shared"
)

func TestBackoffDelay(t *testing.T) {
	policy := BackoffPolicy{Base: 10 * time.Millisecond, Cap: 80 * time.Millisecond, MaxAttempts: 5}

	t.Run("WithinCap", func(t *testing.T) {
		for attempt := 0; attempt < 10; attempt++ {
			for i := 0; i < 20; i++ {
				d := policy.Delay(attempt)
				if d < 0 || d > policy.Cap {
					t.Fatalf("attempt %d delay %v outside [0, %v]", attempt, d, policy.Cap)
				}
			}
		}
	})

	t.Run("OverflowCapped", func(t *testing.T) {
		// Shifting far enough wraps the duration negative; the cap must
		// still bound the result.
		if d := policy.Delay(62); d < 0 || d > policy.Cap {
			t.Errorf("overflowed delay %v outside [0, %v]", d, policy.Cap)
		}
	})
}

func TestBackoffRetry(t *testing.T) {
	ctx := context.Background()
	policy := BackoffPolicy{Base: time.Millisecond, Cap: 2 * time.Millisecond, MaxAttempts: 3}

	t.Run("SucceedsFirstTry", func(t *testing.T) {
		calls := 0
		err := policy.Retry(ctx, func(context.Context) error {
			calls++
			return nil
		})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("NonTransientNotRetried", func(t *testing.T) {
		calls := 0
		permanent := errors.New("bad request")
		err := policy.Retry(ctx, func(context.Context) error {
			calls++
			return permanent
		})
		if !errors.Is(err, permanent) {
			t.Errorf("expected permanent error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("TransientRetriedThenSucceeds", func(t *testing.T) {
		calls := 0
		err := policy.Retry(ctx, func(context.Context) error {
			calls++
			if calls < 3 {
				return shared.ErrRateLimited
			}
			return nil
		})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("TransientExhausted", func(t *testing.T) {
		calls := 0
		err := policy.Retry(ctx, func(context.Context) error {
			calls++
			return shared.ErrTimeout
		})
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected timeout error, got %v", err)
		}
		if calls != policy.MaxAttempts {
			t.Errorf("expected %d calls, got %d", policy.MaxAttempts, calls)
		}
	})

	t.Run("CancelledDuringBackoff", func(t *testing.T) {
		slow := BackoffPolicy{Base: time.Second, Cap: time.Second, MaxAttempts: 3}
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		err := slow.Retry(cctx, func(context.Context) error {
			calls++
			return shared.ErrRateLimited
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context cancellation, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})
}
