// Package monitoring tracks per-service health and exports the gateway's
// Prometheus metrics.
package monitoring

import (
	"sync"
	"time"
)

// Health states of a downstream service.
const (
	StatusHealthy     = "HEALTHY"
	StatusDegraded    = "DEGRADED"
	StatusUnavailable = "UNAVAILABLE"
)

// unavailableAfter is the consecutive-failure count at which a service
// stops being merely degraded.
const unavailableAfter = 3

// ServiceHealth is the tracked status of one downstream service.
type ServiceHealth struct {
	ServiceName         string                 `json:"service_name"`
	Status              string                 `json:"status"`
	LastSuccessAt       *time.Time             `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time             `json:"last_failure_at,omitempty"`
	LastErrorMessage    string                 `json:"last_error_message,omitempty"`
	ConsecutiveFailures int                    `json:"consecutive_failures"`
	MetricsSnapshot     map[string]interface{} `json:"metrics_snapshot,omitempty"`
}

// HealthTracker keeps the ServiceHealth map. Writes come from whichever
// path most recently recorded a call (executor or health poller); reads are
// fine for dashboards but admission decisions must consult the breaker, not
// this map.
type HealthTracker struct {
	mu       sync.RWMutex
	services map[string]*ServiceHealth
	metrics  *Metrics
}

func NewHealthTracker(metrics *Metrics) *HealthTracker {
	return &HealthTracker{
		services: make(map[string]*ServiceHealth),
		metrics:  metrics,
	}
}

// RecordSuccess resets the service to HEALTHY.
func (t *HealthTracker) RecordSuccess(service string) {
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.entry(service)
	h.Status = StatusHealthy
	h.LastSuccessAt = &now
	h.ConsecutiveFailures = 0
	h.LastErrorMessage = ""
	if t.metrics != nil {
		t.metrics.ServiceHealthy.WithLabelValues(service).Set(1)
	}
}

// RecordFailure degrades the service; three consecutive failures make it
// UNAVAILABLE.
func (t *HealthTracker) RecordFailure(service string, err error) {
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.entry(service)
	h.ConsecutiveFailures++
	h.LastFailureAt = &now
	if err != nil {
		h.LastErrorMessage = err.Error()
	}
	if h.ConsecutiveFailures >= unavailableAfter {
		h.Status = StatusUnavailable
	} else {
		h.Status = StatusDegraded
	}
	if t.metrics != nil {
		t.metrics.ServiceHealthy.WithLabelValues(service).Set(0)
	}
}

func (t *HealthTracker) entry(service string) *ServiceHealth {
	h, ok := t.services[service]
	if !ok {
		h = &ServiceHealth{ServiceName: service, Status: StatusHealthy}
		t.services[service] = h
	}
	return h
}

// Get returns a copy of one service's health.
func (t *HealthTracker) Get(service string) (ServiceHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.services[service]
	if !ok {
		return ServiceHealth{}, false
	}
	return *h, true
}

// Status returns the current status string; unknown services report HEALTHY
// (no evidence against them yet).
func (t *HealthTracker) Status(service string) string {
	h, ok := t.Get(service)
	if !ok {
		return StatusHealthy
	}
	return h.Status
}

// All returns a copy of every tracked service, with the given per-service
// snapshot attached (the executor registry supplies it so health queries
// always see fresh breaker/bulkhead numbers).
func (t *HealthTracker) All(snapshots map[string]map[string]interface{}) []ServiceHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ServiceHealth, 0, len(t.services))
	for name, h := range t.services {
		cp := *h
		if snapshots != nil {
			cp.MetricsSnapshot = snapshots[name]
		}
		out = append(out, cp)
	}
	return out
}
