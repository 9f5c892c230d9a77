// Package api is the gateway's HTTP surface: the payment ingress, the scheme
// callback, the admin plane, metrics and the live ops feed.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clearfab/gateway/internal/events"
	"github.com/clearfab/gateway/internal/flow"
	"github.com/clearfab/gateway/internal/idempotency"
	"github.com/clearfab/gateway/internal/middleware"
	"github.com/clearfab/gateway/internal/monitoring"
	"github.com/clearfab/gateway/internal/resiliency"
	"github.com/clearfab/gateway/internal/store"
	"github.com/clearfab/gateway/internal/tenant"
)

// Server wires the handlers to their collaborators.
type Server struct {
	engine   *flow.Engine
	registry *resiliency.Registry
	health   *monitoring.HealthTracker
	metrics  *monitoring.Metrics
	store    *store.Store
	resolver *tenant.Resolver
	gate     *idempotency.Gate
	bus      *events.Bus
	emitter  events.Emitter
	adapters AdapterAdmin
	feed     *Feed
	logger   *log.Logger

	httpServer *http.Server
}

// Deps bundles the server's collaborators.
type Deps struct {
	Engine   *flow.Engine
	Registry *resiliency.Registry
	Health   *monitoring.HealthTracker
	Metrics  *monitoring.Metrics
	Store    *store.Store
	Resolver *tenant.Resolver
	Gate     *idempotency.Gate
	Bus      *events.Bus
	Emitter  events.Emitter // defaults to Bus
	Adapters AdapterAdmin
}

func NewServer(d Deps) *Server {
	s := &Server{
		engine:   d.Engine,
		registry: d.Registry,
		health:   d.Health,
		metrics:  d.Metrics,
		store:    d.Store,
		resolver: d.Resolver,
		gate:     d.Gate,
		bus:      d.Bus,
		emitter:  d.Emitter,
		adapters: d.Adapters,
		logger:   log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
	if s.emitter == nil {
		s.emitter = d.Bus
	}
	s.feed = NewFeed(d.Bus)
	return s
}

// Router builds the route table. Ingress goes through tenant resolution then
// the idempotency gate; the admin plane only through tenant resolution.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	tenanted := func(h http.HandlerFunc) http.Handler {
		return middleware.Tenant(s.resolver, h)
	}
	gated := func(h http.HandlerFunc) http.Handler {
		return middleware.Tenant(s.resolver, middleware.Idempotency(s.gate, h))
	}

	// ingress and scheme callback
	r.Handle("/api/v1/payments/{messageType}", gated(s.handleSubmit)).Methods("POST")
	r.Handle("/api/v1/callbacks/{messageType}", tenanted(s.handleCallback)).Methods("POST")

	// admin plane
	r.HandleFunc("/health", s.handleLiveness).Methods("GET")
	r.HandleFunc("/health/services", s.handleServiceHealth).Methods("GET")
	r.HandleFunc("/admin/circuits/{service}/reset", s.handleCircuitReset).Methods("POST")
	r.Handle("/admin/policies/{name}", tenanted(s.handleConfigurePolicy)).Methods("PUT")
	r.HandleFunc("/api/v1/uetr/{uetr}/journey", s.handleJourney).Methods("GET")

	// adapter management
	r.Handle("/admin/adapters", tenanted(s.handleCreateAdapter)).Methods("POST")
	r.Handle("/admin/adapters/{adapterID}/routes", tenanted(s.handleAddRoute)).Methods("POST")
	r.Handle("/admin/adapters/{adapterID}/activate", tenanted(s.handleAdapterStatus(true))).Methods("POST")
	r.Handle("/admin/adapters/{adapterID}/deactivate", tenanted(s.handleAdapterStatus(false))).Methods("POST")
	r.Handle("/admin/adapters/{adapterID}/configuration", tenanted(s.handleUpdateAdapterConfig)).Methods("PUT")
	r.Handle("/admin/adapters/{adapterID}/logs", tenanted(s.handleAdapterLogs)).Methods("GET")

	// observability
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/ops/feed", s.feed.Handle)

	return r
}

// Start serves until ctx is cancelled, then drains within the timeout.
func (s *Server) Start(ctx context.Context, port string, shutdownTimeout time.Duration) error {
	s.feed.Run(ctx)
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on :%s", port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Printf("draining connections")
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(drainCtx)
}
