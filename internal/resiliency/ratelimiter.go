package resiliency

import (
	"context"
	"sync"
	"time"

	"github.com/clearfab/gateway/internal/faults"
)

// RateLimiter throttles admission to the bulkhead: LimitForPeriod permits
// per refresh period, with a bounded wait for the next period. A refusal
// surfaces ResourceExhausted; the caller re-submits, the executor does not
// retry it.
type RateLimiter struct {
	name string
	cfg  RateLimiterPolicy

	mu          sync.Mutex
	permits     int
	windowStart time.Time
}

func NewRateLimiter(name string, cfg RateLimiterPolicy) *RateLimiter {
	if cfg.LimitForPeriod <= 0 {
		cfg.LimitForPeriod = 100
	}
	if cfg.LimitRefreshPeriod <= 0 {
		cfg.LimitRefreshPeriod = time.Second
	}
	return &RateLimiter{
		name:        name,
		cfg:         cfg,
		permits:     cfg.LimitForPeriod,
		windowStart: time.Now(),
	}
}

// Acquire takes a permit, waiting up to the acquisition timeout for the next
// refresh when the current period is spent.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	deadline := time.Now().Add(rl.cfg.TimeoutDuration)
	for {
		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}
		if time.Now().Add(wait).After(deadline) {
			return faults.Newf(faults.ResourceExhausted, "rate limit reached for %s (%d/%s)",
				rl.name, rl.cfg.LimitForPeriod, rl.cfg.LimitRefreshPeriod)
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return faults.Wrap(faults.Timeout, "cancelled while rate-limited on "+rl.name, ctx.Err())
		}
	}
}

// tryAcquire returns (waitUntilRefresh, acquired).
func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.windowStart); elapsed >= rl.cfg.LimitRefreshPeriod {
		rl.permits = rl.cfg.LimitForPeriod
		rl.windowStart = now
	}
	if rl.permits > 0 {
		rl.permits--
		return 0, true
	}
	return rl.cfg.LimitRefreshPeriod - now.Sub(rl.windowStart), false
}

// AvailablePermits reports the permits left in the current period.
func (rl *RateLimiter) AvailablePermits() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if time.Since(rl.windowStart) >= rl.cfg.LimitRefreshPeriod {
		return rl.cfg.LimitForPeriod
	}
	return rl.permits
}
