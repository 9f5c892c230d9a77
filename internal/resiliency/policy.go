// Package resiliency wraps every outbound scheme call with the gateway's
// protection stack: circuit breaker, retry, bulkhead, rate limiter and time
// limiter, composed in a fixed order, plus an optional fallback.
//
// The composition is a function-of-functions: each policy element is
// fn(Op) -> Op and the decorators are applied right-to-left so the breaker
// sits closest to the call, retries count against it, the bulkhead bounds
// in-flight work including retried attempts, the rate limiter throttles
// admission to the bulkhead, and the time limiter bounds the whole.
package resiliency

import (
	"strings"
	"time"
)

// Policy is the per-service protection configuration. The zero value is not
// usable; start from DefaultPolicy and override.
type Policy struct {
	CircuitBreaker CircuitBreakerPolicy `yaml:"circuit_breaker" json:"circuitBreaker"`
	Retry          RetryPolicy          `yaml:"retry" json:"retry"`
	TimeLimiter    TimeLimiterPolicy    `yaml:"time_limiter" json:"timeLimiter"`
	Bulkhead       BulkheadPolicy       `yaml:"bulkhead" json:"bulkhead"`
	RateLimiter    RateLimiterPolicy    `yaml:"rate_limiter" json:"rateLimiter"`
}

type CircuitBreakerPolicy struct {
	// FailureRateThreshold is the percentage (0-100) of failed calls in the
	// sliding window that trips the breaker.
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" json:"failureRateThreshold"`
	// SlidingWindowSize is the number of most-recent calls considered.
	SlidingWindowSize int `yaml:"sliding_window_size" json:"slidingWindowSize"`
	// MinimumNumberOfCalls gates tripping until enough calls were observed.
	MinimumNumberOfCalls int `yaml:"minimum_number_of_calls" json:"minimumNumberOfCalls"`
	// WaitDurationInOpen is how long the breaker stays OPEN before the
	// automatic transition to HALF_OPEN.
	WaitDurationInOpen time.Duration `yaml:"wait_duration_in_open" json:"waitDurationInOpen"`
	// PermittedCallsInHalfOpen is the number of trial calls in HALF_OPEN.
	PermittedCallsInHalfOpen int `yaml:"permitted_calls_in_half_open" json:"permittedCallsInHalfOpen"`
}

type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts" json:"maxAttempts"`
	WaitBetween time.Duration `yaml:"wait_between" json:"waitBetween"`
	// Exponential switches from fixed-delay to exponential backoff with the
	// given base multiplier, capped at MaxWait.
	Exponential bool          `yaml:"exponential" json:"exponential"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
	MaxWait     time.Duration `yaml:"max_wait" json:"maxWait"`
}

type TimeLimiterPolicy struct {
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type BulkheadPolicy struct {
	MaxConcurrentCalls int           `yaml:"max_concurrent_calls" json:"maxConcurrentCalls"`
	MaxWaitDuration    time.Duration `yaml:"max_wait_duration" json:"maxWaitDuration"`
}

type RateLimiterPolicy struct {
	LimitForPeriod     int           `yaml:"limit_for_period" json:"limitForPeriod"`
	LimitRefreshPeriod time.Duration `yaml:"limit_refresh_period" json:"limitRefreshPeriod"`
	TimeoutDuration    time.Duration `yaml:"timeout_duration" json:"timeoutDuration"`
}

// DefaultPolicy returns the registry defaults applied to any service without
// an override.
func DefaultPolicy() Policy {
	return Policy{
		CircuitBreaker: CircuitBreakerPolicy{
			FailureRateThreshold:     50,
			SlidingWindowSize:        20,
			MinimumNumberOfCalls:     5,
			WaitDurationInOpen:       30 * time.Second,
			PermittedCallsInHalfOpen: 5,
		},
		Retry: RetryPolicy{
			MaxAttempts: 3,
			WaitBetween: 500 * time.Millisecond,
			Multiplier:  2.0,
			MaxWait:     10 * time.Second,
		},
		TimeLimiter: TimeLimiterPolicy{Timeout: 30 * time.Second},
		Bulkhead: BulkheadPolicy{
			MaxConcurrentCalls: 20,
			MaxWaitDuration:    2 * time.Second,
		},
		RateLimiter: RateLimiterPolicy{
			LimitForPeriod:     100,
			LimitRefreshPeriod: time.Second,
			TimeoutDuration:    500 * time.Millisecond,
		},
	}
}

// normalizeServiceName lowercases and strips everything non-alphanumeric.
// Per-service overrides resolve by exact name first, then by normalized
// contains ("SamosAdapter" config matches service "samos-adapter").
func normalizeServiceName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
