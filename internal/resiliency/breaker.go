package resiliency

import (
	"errors"
	"sync"
	"time"

	"github.com/clearfab/gateway/internal/faults"
)

// Sentinel causes wrapped inside AdapterUnavailable faults so the retry
// layer can tell local fast-fails from upstream failures.
var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many trial requests in half-open state")
)

// State of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker guards one downstream service with a count-based sliding
// window. Counters are linearizable per service: all reads and writes go
// through one mutex.
//
// CLOSED -> OPEN on failure-rate breach over the window (once the minimum
// call count is reached). OPEN -> HALF_OPEN automatically after the wait
// duration. HALF_OPEN -> CLOSED after the permitted trial calls all succeed,
// or back to OPEN on any trial failure.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerPolicy

	mu         sync.Mutex
	state      State
	generation uint64

	// sliding window ring: true = failure
	window []bool
	head   int
	filled int
	fails  int

	openedAt time.Time

	// half-open bookkeeping
	trialInFlight  int
	trialSuccesses int

	onStateChange func(name string, from, to State)
}

// NewCircuitBreaker builds a breaker for one service name.
func NewCircuitBreaker(name string, cfg CircuitBreakerPolicy, onStateChange func(string, State, State)) *CircuitBreaker {
	if cfg.SlidingWindowSize <= 0 {
		cfg.SlidingWindowSize = 20
	}
	return &CircuitBreaker{
		name:          name,
		cfg:           cfg,
		state:         StateClosed,
		window:        make([]bool, cfg.SlidingWindowSize),
		onStateChange: onStateChange,
	}
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state, applying the automatic OPEN -> HALF_OPEN
// transition when the wait duration has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState(time.Now())
}

// FailureRate returns the failure percentage over the current window.
func (cb *CircuitBreaker) FailureRate() float64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.filled == 0 {
		return 0
	}
	return float64(cb.fails) / float64(cb.filled) * 100
}

// Acquire asks for admission. On success it returns the generation token the
// caller must pass back to Record; a generation mismatch means the breaker
// transitioned meanwhile and the result is discarded as stale.
func (cb *CircuitBreaker) Acquire() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	switch cb.currentState(now) {
	case StateOpen:
		return 0, faults.Wrap(faults.AdapterUnavailable, "circuit "+cb.name+" is open", ErrCircuitOpen)
	case StateHalfOpen:
		if cb.trialInFlight >= cb.cfg.PermittedCallsInHalfOpen {
			return 0, faults.Wrap(faults.AdapterUnavailable, "circuit "+cb.name+" is half-open and trial slots are taken", ErrTooManyRequests)
		}
		cb.trialInFlight++
	}
	return cb.generation, nil
}

// Record reports the outcome of an admitted call. A context-cancelled call
// whose outcome is unknowable should call Release instead.
func (cb *CircuitBreaker) Record(generation uint64, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state := cb.currentState(now)
	if generation != cb.generation {
		return // stale result from before a transition
	}

	switch state {
	case StateClosed:
		cb.push(!success)
		// The trip check runs only when a failure lands. A window whose rate
		// crosses the threshold through successes rotating out is noticed on
		// the next recorded failure.
		if !success && cb.filled >= cb.cfg.MinimumNumberOfCalls {
			rate := float64(cb.fails) / float64(cb.filled) * 100
			if rate >= cb.cfg.FailureRateThreshold {
				cb.transition(StateOpen, now)
			}
		}
	case StateHalfOpen:
		cb.trialInFlight--
		if !success {
			cb.transition(StateOpen, now)
			return
		}
		cb.trialSuccesses++
		if cb.trialSuccesses >= cb.cfg.PermittedCallsInHalfOpen {
			cb.transition(StateClosed, now)
		}
	}
}

// Release returns a half-open trial slot without recording an outcome.
func (cb *CircuitBreaker) Release(generation uint64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if generation == cb.generation && cb.state == StateHalfOpen && cb.trialInFlight > 0 {
		cb.trialInFlight--
	}
}

// ForceReset closes the breaker and clears the window. This is the only
// manual transition; it backs the administrative reset operation and the
// self-healing monitor's recovery action.
func (cb *CircuitBreaker) ForceReset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed, time.Now())
}

func (cb *CircuitBreaker) push(failure bool) {
	if cb.filled == len(cb.window) {
		if cb.window[cb.head] {
			cb.fails--
		}
	} else {
		cb.filled++
	}
	cb.window[cb.head] = failure
	if failure {
		cb.fails++
	}
	cb.head = (cb.head + 1) % len(cb.window)
}

func (cb *CircuitBreaker) currentState(now time.Time) State {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.cfg.WaitDurationInOpen {
		cb.transition(StateHalfOpen, now)
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	if cb.state == to {
		// ForceReset while already closed still clears the window
		if to == StateClosed {
			cb.resetWindow()
		}
		return
	}
	from := cb.state
	cb.state = to
	cb.generation++
	cb.trialInFlight = 0
	cb.trialSuccesses = 0

	switch to {
	case StateOpen:
		cb.openedAt = now
	case StateClosed:
		cb.resetWindow()
	}

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

func (cb *CircuitBreaker) resetWindow() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.head = 0
	cb.filled = 0
	cb.fails = 0
}
