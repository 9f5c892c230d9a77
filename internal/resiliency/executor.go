package resiliency

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/clearfab/gateway/internal/faults"
)

// Op is one outbound call. Implementations must honor ctx cancellation; the
// time limiter relies on it.
type Op func(ctx context.Context) (interface{}, error)

// Decorator wraps an Op with one policy element.
type Decorator func(Op) Op

// Fallback handles a terminally-failed call (typically by queueing the
// message for later). When it returns nil the executor reports its result
// instead of the failure.
type Fallback func(ctx context.Context, cause error) (interface{}, error)

// HealthRecorder receives the outcome of every executed call. The monitoring
// package implements it; tests use fakes.
type HealthRecorder interface {
	RecordSuccess(service string)
	RecordFailure(service string, err error)
}

// Executor runs operations for one service under the full protection stack.
// Build one per service through the Registry.
type Executor struct {
	service     string
	policy      Policy
	breaker     *CircuitBreaker
	bulkhead    *Bulkhead
	rateLimiter *RateLimiter
	health      HealthRecorder
	logger      *log.Logger
}

// Execute runs op under the composed stack and reports the outcome to the
// health recorder. On terminal failure the fallback (when non-nil) gets the
// classified fault.
func (e *Executor) Execute(ctx context.Context, op Op, fallback Fallback) (interface{}, error) {
	// Right-to-left composition; the order is load-bearing. See package doc.
	decorated := e.timeLimit(e.rateLimit(e.bulkheadGate(e.retry(e.breakerGate(e.classified(op))))))

	result, err := decorated(ctx)
	if err == nil {
		if e.health != nil {
			e.health.RecordSuccess(e.service)
		}
		return result, nil
	}

	if e.health != nil {
		e.health.RecordFailure(e.service, err)
	}
	if fallback != nil {
		if fbResult, fbErr := fallback(ctx, err); fbErr == nil {
			return fbResult, nil
		}
	}
	return nil, err
}

// classified is the innermost layer: the single place raw transport errors
// become typed faults. Upstream components see kinds, never net or http
// internals.
func (e *Executor) classified(op Op) Op {
	return func(ctx context.Context) (interface{}, error) {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		return nil, Classify(e.service, err)
	}
}

func (e *Executor) breakerGate(op Op) Op {
	return func(ctx context.Context) (interface{}, error) {
		gen, err := e.breaker.Acquire()
		if err != nil {
			return nil, err
		}
		result, err := op(ctx)
		if err != nil && errors.Is(ctx.Err(), context.Canceled) {
			// Cooperative cancellation: outcome unknowable, return the
			// trial slot without poisoning the window.
			e.breaker.Release(gen)
			return nil, err
		}
		e.breaker.Record(gen, err == nil)
		return result, err
	}
}

// retry re-runs transient failures. It sits outside the breaker so every
// attempt counts against the breaker's window, and inside the bulkhead so
// retried attempts hold their slot. Cancelled attempts do not consume an
// attempt; completed-but-failed ones do.
func (e *Executor) retry(op Op) Op {
	cfg := e.policy.Retry
	return func(ctx context.Context) (interface{}, error) {
		var lastErr error
		for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
			result, err := op(ctx)
			if err == nil {
				return result, nil
			}
			lastErr = err

			if ctx.Err() != nil {
				// deadline or cancellation, not a completed attempt
				return nil, lastErr
			}
			if !retryable(err) {
				return nil, lastErr
			}
			if attempt == cfg.MaxAttempts {
				break
			}

			wait := cfg.WaitBetween
			if cfg.Exponential {
				wait = time.Duration(float64(cfg.WaitBetween) * math.Pow(cfg.Multiplier, float64(attempt-1)))
				if cfg.MaxWait > 0 && wait > cfg.MaxWait {
					wait = cfg.MaxWait
				}
			}
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, lastErr
			}
		}
		return nil, lastErr
	}
}

func (e *Executor) bulkheadGate(op Op) Op {
	return func(ctx context.Context) (interface{}, error) {
		if err := e.bulkhead.Acquire(ctx); err != nil {
			return nil, err
		}
		defer e.bulkhead.Release()
		return op(ctx)
	}
}

func (e *Executor) rateLimit(op Op) Op {
	return func(ctx context.Context) (interface{}, error) {
		if err := e.rateLimiter.Acquire(ctx); err != nil {
			return nil, err
		}
		return op(ctx)
	}
}

func (e *Executor) timeLimit(op Op) Op {
	return func(ctx context.Context) (interface{}, error) {
		timeout := e.policy.TimeLimiter.Timeout
		if timeout <= 0 {
			return op(ctx)
		}
		bounded, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, err := op(bounded)
		if err != nil && errors.Is(bounded.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, faults.Wrap(faults.Timeout,
				fmt.Sprintf("%s did not answer within %s", e.service, timeout), err)
		}
		return result, err
	}
}

// Breaker exposes the service's breaker for admission checks and resets.
func (e *Executor) Breaker() *CircuitBreaker { return e.breaker }

// Snapshot captures the executor's live protection state for health queries.
func (e *Executor) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Service:           e.service,
		CircuitState:      e.breaker.State().String(),
		FailureRate:       e.breaker.FailureRate(),
		BulkheadFreeSlots: e.bulkhead.FreeSlots(),
		RateLimitPermits:  e.rateLimiter.AvailablePermits(),
	}
}

// MetricsSnapshot is the per-service protection snapshot refreshed before
// health queries are answered.
type MetricsSnapshot struct {
	Service           string  `json:"service"`
	CircuitState      string  `json:"circuit_state"`
	FailureRate       float64 `json:"failure_rate"`
	BulkheadFreeSlots int     `json:"bulkhead_free_slots"`
	RateLimitPermits  int     `json:"rate_limit_permits"`
}

// HTTPStatusError carries an adapter HTTP status for classification.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("adapter returned HTTP %d", e.StatusCode)
}

// Classify maps a raw outbound error to the gateway taxonomy. Already-typed
// faults pass through untouched.
func Classify(service string, err error) error {
	var f *faults.Fault
	if errors.As(err, &f) {
		return err
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests:
			return faults.Wrap(faults.Timeout, fmt.Sprintf("%s throttled or timed out upstream", service), err)
		case statusErr.StatusCode >= 500:
			return faults.Wrap(faults.AdapterUnavailable, fmt.Sprintf("%s failed upstream", service), err)
		case statusErr.StatusCode >= 400:
			return faults.Wrap(faults.SchemeRejected, fmt.Sprintf("%s rejected the message", service), err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return faults.Wrap(faults.Timeout, service+" call deadline exceeded", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return faults.Wrap(faults.Timeout, service+" network timeout", err)
		}
		return faults.Wrap(faults.AdapterUnavailable, service+" unreachable", err)
	}
	return faults.Wrap(faults.Internal, service+" call failed", err)
}

// retryable applies the retry policy's transience rules: network timeouts,
// upstream 5xx (classified AdapterUnavailable) and upstream throttling.
// Business rejections, validation problems and idempotency conflicts are
// never retried, and neither is local backpressure.
func retryable(err error) bool {
	switch faults.KindOf(err) {
	case faults.Timeout:
		// only upstream timeouts; a cancelled local deadline is handled by
		// the retry loop's ctx check before we get here
		return true
	case faults.AdapterUnavailable:
		// circuit-open and bulkhead rejections are local backpressure, not
		// transience: the breaker would reject every attempt anyway and a
		// bulkhead rejection must not consume retry attempts
		return !errors.Is(err, ErrCircuitOpen) &&
			!errors.Is(err, ErrTooManyRequests) &&
			!errors.Is(err, ErrBulkheadFull)
	default:
		return false
	}
}
