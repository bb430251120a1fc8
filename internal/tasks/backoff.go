package tasks

import (
	"context"
	"math/rand"
	"time"

	"github.com/desertthunder/tunesync/internal/shared"
)

// BackoffPolicy controls retries of transient adapter failures. Delay
// grows exponentially from Base up to Cap with full jitter so parallel
// workers do not retry in lockstep.
type BackoffPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// Delay returns the sleep before retry number attempt (0-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	d := p.Base << uint(attempt)
	if d <= 0 || d > p.Cap {
		d = p.Cap
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// Retry runs op up to MaxAttempts times, sleeping between attempts.
// Only transient errors are retried; anything else, including context
// cancellation, returns immediately.
func (p BackoffPolicy) Retry(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err = op(ctx); err == nil || !shared.IsTransient(err) {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
