// Package healing runs the self-healing monitor: periodic health polls of
// every configured downstream service, recovery actions when a service comes
// back, and the queue drain and cleanup tickers.
package healing

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/clearfab/gateway/internal/monitoring"
	"github.com/clearfab/gateway/internal/queue"
	"github.com/clearfab/gateway/internal/resiliency"
	"github.com/clearfab/gateway/internal/store"
)

// Tick periods and per-tick deadlines.
const (
	healthPollPeriod   = 2 * time.Minute
	healthPollDeadline = 30 * time.Second

	queueDrainPeriod   = 5 * time.Minute
	queueDrainDeadline = 2 * time.Minute

	cleanupPeriod   = 60 * time.Minute
	cleanupDeadline = 5 * time.Minute

	// probe results stay valid this long; repeat checks within the window
	// are answered from cache
	healthCacheTTL = 5 * time.Minute
)

// Prober issues one health-check request.
type Prober interface {
	HealthProbe(ctx context.Context, method, url string, timeout time.Duration) (int, error)
}

// Cache is the health-result cache (Redis in production).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// ConfigSource lists the active resiliency configurations to poll.
type ConfigSource interface {
	ListActive(ctx context.Context) ([]*store.ResiliencyConfiguration, error)
}

// KeyPurger drops expired idempotency records during cleanup.
type KeyPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Monitor owns the three periodic tasks.
type Monitor struct {
	configs     ConfigSource
	idempotency KeyPurger
	prober      Prober
	cache       Cache
	health      *monitoring.HealthTracker
	registry    *resiliency.Registry
	drainer     *queue.Drainer
	logger      *log.Logger

	mu         sync.Mutex
	drainQueue map[string]struct{} // services scheduled for a recovery drain
}

func NewMonitor(configs ConfigSource, idem KeyPurger, prober Prober,
	cache Cache, health *monitoring.HealthTracker, registry *resiliency.Registry,
	drainer *queue.Drainer) *Monitor {
	return &Monitor{
		configs:     configs,
		idempotency: idem,
		prober:      prober,
		cache:       cache,
		health:      health,
		registry:    registry,
		drainer:     drainer,
		logger:      log.New(log.Writer(), "[HEALING] ", log.LstdFlags),
		drainQueue:  make(map[string]struct{}),
	}
}

// Start launches the tickers; they stop when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go m.loop(ctx, healthPollPeriod, healthPollDeadline, m.pollHealth)
	go m.loop(ctx, queueDrainPeriod, queueDrainDeadline, m.drainTick)
	go m.loop(ctx, cleanupPeriod, cleanupDeadline, m.cleanupTick)
	m.logger.Printf("monitor started (poll %s, drain %s, cleanup %s)",
		healthPollPeriod, queueDrainPeriod, cleanupPeriod)
}

func (m *Monitor) loop(ctx context.Context, period, deadline time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, deadline)
			tick(tickCtx)
			cancel()
		}
	}
}

type cachedResult struct {
	Healthy   bool      `json:"healthy"`
	Status    int       `json:"status"`
	CheckedAt time.Time `json:"checkedAt"`
}

// pollHealth probes every active resiliency configuration, classifies
// transitions, and runs recovery actions for services that came back.
func (m *Monitor) pollHealth(ctx context.Context) {
	configs, err := m.configs.ListActive(ctx)
	if err != nil {
		m.logger.Printf("health poll: failed to list configurations: %v", err)
		return
	}

	var failed, recovered []string
	for _, cfg := range configs {
		if ctx.Err() != nil {
			return
		}
		wasHealthy := m.health.Status(cfg.ServiceName) == monitoring.StatusHealthy
		healthy := m.checkService(ctx, cfg)

		if healthy {
			m.health.RecordSuccess(cfg.ServiceName)
		} else {
			m.health.RecordFailure(cfg.ServiceName, nil)
		}

		switch {
		case wasHealthy && !healthy:
			failed = append(failed, cfg.ServiceName)
		case !wasHealthy && healthy:
			recovered = append(recovered, cfg.ServiceName)
			m.recover(ctx, cfg.TenantID, cfg.ServiceName)
		}
	}

	if len(failed) > 0 || len(recovered) > 0 {
		m.logger.Printf("health poll: failed=%v recovered=%v", failed, recovered)
	}
}

// checkService answers from cache within the TTL, otherwise probes.
func (m *Monitor) checkService(ctx context.Context, cfg *store.ResiliencyConfiguration) bool {
	key := cacheKey(cfg.TenantID, cfg.ServiceName)
	if m.cache != nil {
		if raw, err := m.cache.Get(ctx, key); err == nil && raw != nil {
			var cached cachedResult
			if json.Unmarshal(raw, &cached) == nil {
				return cached.Healthy
			}
		}
	}

	status, err := m.prober.HealthProbe(ctx, cfg.HealthCheckMethod, cfg.HealthCheckEndpoint, cfg.HealthCheckTimeout())
	healthy := err == nil && cfg.StatusExpected(status)

	if m.cache != nil {
		raw, _ := json.Marshal(cachedResult{Healthy: healthy, Status: status, CheckedAt: time.Now().UTC()})
		if err := m.cache.Set(ctx, key, raw, healthCacheTTL); err != nil {
			m.logger.Printf("failed to cache health result for %s: %v", cfg.ServiceName, err)
		}
	}
	return healthy
}

// recover runs the recovery actions for a service that transitioned back to
// healthy: invalidate its cache entry, close its breaker, schedule a drain.
func (m *Monitor) recover(ctx context.Context, tenantID, service string) {
	if m.cache != nil {
		if err := m.cache.Del(ctx, cacheKey(tenantID, service)); err != nil {
			m.logger.Printf("failed to invalidate health cache for %s: %v", service, err)
		}
	}
	if err := m.registry.ForceReset(service); err != nil {
		// the service may simply have no executor yet; nothing to reset
		m.logger.Printf("breaker reset for %s: %v", service, err)
	}
	m.mu.Lock()
	m.drainQueue[service] = struct{}{}
	m.mu.Unlock()
	m.logger.Printf("service %s recovered, drain scheduled", service)
}

// drainTick drains recovery-scheduled services first, then the general
// backlog.
func (m *Monitor) drainTick(ctx context.Context) {
	m.mu.Lock()
	scheduled := make([]string, 0, len(m.drainQueue))
	for s := range m.drainQueue {
		scheduled = append(scheduled, s)
	}
	m.drainQueue = make(map[string]struct{})
	m.mu.Unlock()

	for _, service := range scheduled {
		if _, err := m.drainer.Drain(ctx, service); err != nil {
			m.logger.Printf("drain of %s failed: %v", service, err)
		}
	}
	if _, err := m.drainer.Drain(ctx, ""); err != nil {
		m.logger.Printf("general drain failed: %v", err)
	}
}

// cleanupTick expires overdue queued messages and purges dead idempotency
// keys.
func (m *Monitor) cleanupTick(ctx context.Context) {
	if _, err := m.drainer.ExpireOverdue(ctx); err != nil {
		m.logger.Printf("expiry sweep failed: %v", err)
	}
	if m.idempotency != nil {
		if n, err := m.idempotency.PurgeExpired(ctx, time.Now().UTC()); err != nil {
			m.logger.Printf("idempotency purge failed: %v", err)
		} else if n > 0 {
			m.logger.Printf("purged %d expired idempotency key(s)", n)
		}
	}
}

func cacheKey(tenantID, service string) string {
	return "health:" + tenantID + ":" + service
}
