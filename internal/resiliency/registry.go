package resiliency

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/clearfab/gateway/internal/faults"
)

// Registry is the process-wide home of every executor and its policy. Its
// lifecycle is bound to process startup/shutdown; Shutdown disables
// admission before in-flight work is awaited.
type Registry struct {
	mu         sync.RWMutex
	defaults   Policy
	configured map[string]Policy    // policy name -> override
	executors  map[string]*Executor // service name -> executor
	resolved   map[string]Policy    // service name -> cached resolution
	health     HealthRecorder
	onBreaker  func(service string, from, to State)
	draining   bool
	logger     *log.Logger
}

// NewRegistry builds the registry with the library defaults.
func NewRegistry(health HealthRecorder) *Registry {
	return &Registry{
		defaults:   DefaultPolicy(),
		configured: make(map[string]Policy),
		executors:  make(map[string]*Executor),
		resolved:   make(map[string]Policy),
		health:     health,
		logger:     log.New(log.Writer(), "[RESILIENCY] ", log.LstdFlags),
	}
}

// OnBreakerTransition installs a hook fired on every circuit state change
// (monitoring uses it for the state gauge).
func (r *Registry) OnBreakerTransition(fn func(service string, from, to State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onBreaker = fn
}

// Configure installs or replaces a named policy override. Existing cached
// resolutions are invalidated so the next lookup re-resolves.
func (r *Registry) Configure(name string, p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configured[name] = p
	r.resolved = make(map[string]Policy)
}

// InvalidatePolicyCache drops all cached resolutions (administrative).
func (r *Registry) InvalidatePolicyCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = make(map[string]Policy)
}

// ResolvePolicy finds the policy for a service: exact configured name first,
// then case-insensitive alphanumeric-normalized contains match, then the
// registry default. The result is cached until invalidation.
func (r *Registry) ResolvePolicy(service string) Policy {
	r.mu.RLock()
	if p, ok := r.resolved[service]; ok {
		r.mu.RUnlock()
		return p
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.resolved[service]; ok {
		return p
	}

	policy := r.defaults
	if p, ok := r.configured[service]; ok {
		policy = p
	} else {
		normalized := normalizeServiceName(service)
		// deterministic fuzzy match: scan configured names in sorted order
		names := make([]string, 0, len(r.configured))
		for name := range r.configured {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			n := normalizeServiceName(name)
			if n != "" && (strings.Contains(normalized, n) || strings.Contains(n, normalized)) {
				policy = r.configured[name]
				break
			}
		}
	}
	r.resolved[service] = policy
	return policy
}

// Executor returns (creating on first use) the executor for a service.
// During shutdown drain, admission is refused.
func (r *Registry) Executor(service string) (*Executor, error) {
	r.mu.RLock()
	if r.draining {
		r.mu.RUnlock()
		return nil, faults.New(faults.AdapterUnavailable, "gateway is draining")
	}
	if e, ok := r.executors[service]; ok {
		r.mu.RUnlock()
		return e, nil
	}
	r.mu.RUnlock()

	policy := r.ResolvePolicy(service)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return nil, faults.New(faults.AdapterUnavailable, "gateway is draining")
	}
	if e, ok := r.executors[service]; ok {
		return e, nil
	}
	e := &Executor{
		service: service,
		policy:  policy,
		breaker: NewCircuitBreaker(service, policy.CircuitBreaker, func(name string, from, to State) {
			r.logger.Printf("circuit %s: %s -> %s", name, from, to)
			if r.onBreaker != nil {
				r.onBreaker(name, from, to)
			}
		}),
		bulkhead:    NewBulkhead(service, policy.Bulkhead),
		rateLimiter: NewRateLimiter(service, policy.RateLimiter),
		health:      r.health,
		logger:      r.logger,
	}
	r.executors[service] = e
	return e, nil
}

// ForceReset closes the named service's breaker. Unknown services error so
// operators notice typos instead of silently resetting nothing.
func (r *Registry) ForceReset(service string) error {
	r.mu.RLock()
	e, ok := r.executors[service]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no circuit registered for service %q", service)
	}
	e.Breaker().ForceReset()
	r.logger.Printf("circuit %s force-reset to CLOSED", service)
	return nil
}

// Snapshots refreshes and returns the protection snapshot of every service.
func (r *Registry) Snapshots() []MetricsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snaps := make([]MetricsSnapshot, 0, len(r.executors))
	for _, e := range r.executors {
		snaps = append(snaps, e.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Service < snaps[j].Service })
	return snaps
}

// Services lists registered service names.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown flips the registry into drain mode: new executions are refused
// while in-flight ones finish under their own deadlines.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draining = true
	r.logger.Printf("registry draining: admission disabled")
}
