package tasks

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Platform budgets are process-wide, not per-job: two concurrent jobs
// talking to the same platform share one limiter and one concurrency
// gate.
var (
	limiterMu sync.Mutex
	limiters  = make(map[string]*rate.Limiter)
	gates     = make(map[string]chan struct{})
)

// limiterFor returns the shared rate limiter for a platform, creating
// it on first use. The rate is fixed at creation.
func limiterFor(platform string, rps float64) *rate.Limiter {
	limiterMu.Lock()
	defer limiterMu.Unlock()
	if l, ok := limiters[platform]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rps), 1)
	limiters[platform] = l
	return l
}

// gateFor returns the shared concurrency gate for a platform.
func gateFor(platform string, size int) chan struct{} {
	limiterMu.Lock()
	defer limiterMu.Unlock()
	if g, ok := gates[platform]; ok {
		return g
	}
	g := make(chan struct{}, size)
	gates[platform] = g
	return g
}

// acquire takes a slot on the platform gate, respecting cancellation.
// The returned release func must be called exactly once.
func acquire(ctx context.Context, gate chan struct{}) (func(), error) {
	select {
	case gate <- struct{}{}:
		return func() { <-gate }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
