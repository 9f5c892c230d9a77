package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clearfab/gateway/internal/api"
	"github.com/clearfab/gateway/internal/clearing"
	"github.com/clearfab/gateway/internal/config"
	"github.com/clearfab/gateway/internal/events"
	"github.com/clearfab/gateway/internal/flow"
	"github.com/clearfab/gateway/internal/healing"
	"github.com/clearfab/gateway/internal/idempotency"
	"github.com/clearfab/gateway/internal/infra"
	"github.com/clearfab/gateway/internal/monitoring"
	"github.com/clearfab/gateway/internal/queue"
	"github.com/clearfab/gateway/internal/resiliency"
	"github.com/clearfab/gateway/internal/store"
	"github.com/clearfab/gateway/internal/tenant"
	"github.com/clearfab/gateway/internal/uetr"
)

// Exit codes: 0 clean shutdown, 1 startup failure, 2 configuration invalid,
// 3 unrecoverable runtime error.
const (
	exitOK      = 0
	exitStartup = 1
	exitConfig  = 2
	exitRuntime = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := log.New(log.Writer(), "[GATEWAY] ", log.LstdFlags)

	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Printf("invalid configuration: %v", err)
		return exitConfig
	}
	if cfg.Database.DSN == "" {
		logger.Printf("invalid configuration: database DSN is required")
		return exitConfig
	}

	db, err := store.Open(cfg.Database.DSN)
	if err != nil {
		logger.Printf("startup failed: %v", err)
		return exitStartup
	}
	defer db.Close()

	// observability and event plumbing
	metrics := monitoring.NewMetrics()
	health := monitoring.NewHealthTracker(metrics)
	var emitter events.Emitter
	bus := events.NewBus()
	emitter = bus
	if cfg.PubSub.ProjectID != "" {
		psBus, err := events.NewPubSubBus(cfg.PubSub.ProjectID, cfg.PubSub.Topic)
		if err != nil {
			logger.Printf("startup failed: pubsub: %v", err)
			return exitStartup
		}
		defer psBus.Close()
		emitter = psBus
		bus = psBus.Bus
	}

	// protection stack
	registry := resiliency.NewRegistry(health)
	registry.OnBreakerTransition(func(service string, _, to resiliency.State) {
		metrics.CircuitState.WithLabelValues(service).Set(monitoring.CircuitStateValue(to.String()))
	})
	for name, pc := range cfg.Policies {
		registry.Configure(name, pc.Policy)
	}

	dispatcher := infra.NewHTTPDispatcher(cfg.Adapters)
	gen := uetr.NewGenerator(cfg.UETR.SystemID)

	engine := flow.NewEngine(flow.Config{
		Store:       db.Flows,
		Router:      newRouter(db),
		Transformer: newTransformer(gen),
		Registry:    registry,
		Dispatcher:  dispatcher,
		Queue:       db.Queue,
		Generator:   gen,
		Tracker:     uetrTracker{repo: db.UETR},
		Auditor:     clearing.NewAuditTrail(db.Clearing, domainEventPublisher{emitter: emitter}),
		Emitter:     emitter,
		Metrics:     metrics,
		QueueExpiry: cfg.QueueExpiry(),
	})

	drainer := queue.NewDrainer(db.Queue, engine, cfg.Queue.DrainWorkers, metrics)

	// health cache: Redis when configured, otherwise probes are uncached
	var cache healing.Cache
	if cfg.Redis.Addr != "" {
		redisCache, err := infra.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Printf("startup failed: redis: %v", err)
			return exitStartup
		}
		defer redisCache.Close()
		cache = redisCache
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := healing.NewMonitor(db.Resiliency, db.Idempotency, dispatcher, cache, health, registry, drainer)
	monitor.Start(ctx)

	server := api.NewServer(api.Deps{
		Engine:   engine,
		Registry: registry,
		Health:   health,
		Metrics:  metrics,
		Store:    db,
		Resolver: tenant.NewResolver(db.APIKeys),
		Gate:     idempotency.NewGate(db.Idempotency, cfg.IdempotencyTTL()),
		Bus:      bus,
		Emitter:  emitter,
		Adapters: db.Clearing,
	})

	drainWindow := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if err := server.Start(ctx, cfg.Server.Port, drainWindow); err != nil {
		logger.Printf("unrecoverable runtime error: %v", err)
		registry.Shutdown()
		return exitRuntime
	}

	// stop admitting new executions, then let the HTTP drain window finish
	registry.Shutdown()
	logger.Printf("clean shutdown")
	return exitOK
}
