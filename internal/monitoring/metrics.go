package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Flow metrics
	FlowsTotal   *prometheus.CounterVec
	FlowDuration *prometheus.HistogramVec

	// Transformation metrics
	TransformTotal    *prometheus.CounterVec
	TransformDuration *prometheus.HistogramVec

	// Resiliency metrics
	CircuitState  *prometheus.GaugeVec
	DispatchTotal *prometheus.CounterVec

	// Idempotency metrics
	IdempotencyReplays   prometheus.Counter
	IdempotencyConflicts prometheus.Counter

	// Queue metrics
	QueueDepth    *prometheus.GaugeVec
	QueueDrained  *prometheus.CounterVec
	QueueExpired  prometheus.Counter
	OrphanInbound prometheus.Counter

	// Health metrics
	ServiceHealthy *prometheus.GaugeVec
}

// NewMetrics creates and registers all gateway metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		FlowsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_flows_total",
				Help: "Message flows processed, by direction and terminal status",
			},
			[]string{"tenant_id", "direction", "status"},
		),
		FlowDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_flow_duration_seconds",
				Help:    "End-to-end processing time of a message flow",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"message_type"},
		),
		TransformTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_transformations_total",
				Help: "Message transformations, by source/destination pair and result",
			},
			[]string{"source_type", "dest_type", "result"},
		),
		TransformDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_transform_duration_seconds",
				Help:    "Duration of dialect transformation",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
			[]string{"source_type"},
		),
		CircuitState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_circuit_state",
				Help: "Circuit breaker state per service (0 closed, 1 half-open, 2 open)",
			},
			[]string{"service"},
		),
		DispatchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_dispatches_total",
				Help: "Outbound adapter dispatches, by service and outcome",
			},
			[]string{"service", "outcome"},
		),
		IdempotencyReplays: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_idempotency_replays_total",
				Help: "Requests answered from the idempotency store",
			},
		),
		IdempotencyConflicts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_idempotency_conflicts_total",
				Help: "Requests rejected for reusing a key with a different body",
			},
		),
		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_queued_messages",
				Help: "Messages waiting in the queued-message store, by service",
			},
			[]string{"service"},
		),
		QueueDrained: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_queue_drained_total",
				Help: "Queued messages re-submitted by the self-healing monitor",
			},
			[]string{"service", "result"},
		),
		QueueExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_queue_expired_total",
				Help: "Queued messages that reached expiry before recovery",
			},
		),
		OrphanInbound: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_orphan_responses_total",
				Help: "Inbound scheme messages with no matching flow record",
			},
		),
		ServiceHealthy: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_service_healthy",
				Help: "1 when the last recorded call to the service succeeded",
			},
			[]string{"service"},
		),
	}
}

// CircuitStateValue maps a breaker state name to its gauge value.
func CircuitStateValue(state string) float64 {
	switch state {
	case "HALF_OPEN":
		return 1
	case "OPEN":
		return 2
	default:
		return 0
	}
}
