package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openfleet/flowcore/api"
	"github.com/openfleet/flowcore/approval"
	"github.com/openfleet/flowcore/audit"
	"github.com/openfleet/flowcore/config"
	"github.com/openfleet/flowcore/dispatch"
	"github.com/openfleet/flowcore/eventbus"
	"github.com/openfleet/flowcore/internal/metrics"
	"github.com/openfleet/flowcore/internal/telemetry"
	"github.com/openfleet/flowcore/llm/openai"
	"github.com/openfleet/flowcore/memory"
	"github.com/openfleet/flowcore/ratelimit"
	"github.com/openfleet/flowcore/registry"
	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/types"
	"github.com/openfleet/flowcore/workflow"
)

// auditCleanupInterval is how often the retention sweep runs.
const auditCleanupInterval = 24 * time.Hour

// Server wires the engine and its HTTP surface.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpServer *http.Server
	otel       *telemetry.Providers
	approvals  *approval.Manager
	sink       *audit.Sink
	memClose   func() error

	bgCancel context.CancelFunc
}

// NewServer builds the full engine from the configuration.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	otelProviders, err := telemetry.Init(telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	stores, err := store.Open(store.Backend(cfg.Store.Backend), cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("flowcore", promReg)

	bus := eventbus.New(logger)
	bus.OnDrop(func(kind types.EventType) {
		collector.RecordEventDrop(string(kind))
	})

	sink := audit.NewSink(stores.Audit, bus, collector, logger)
	agents := registry.New(stores.Agents, stores.Executions, sink, logger)

	mem, limiter, memClose, err := buildCollaborators(cfg)
	if err != nil {
		return nil, err
	}

	provider := openai.New(openai.Config{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Model:   cfg.Provider.Model,
		Timeout: cfg.Provider.Timeout,
	}, logger)

	dispatcher := dispatch.NewOrchestrator(agents, provider, mem, limiter, sink, bus, nil, logger)
	dispatcher.SetDefaultRetry(types.RetryPolicy{
		MaxAttempts:       cfg.Engine.DefaultRetryMaxAttempts,
		BackoffMs:         int(cfg.Engine.DefaultRetryBackoff.Milliseconds()),
		BackoffMultiplier: 2.0,
		MaxBackoffMs:      30000,
	})
	approvals := approval.NewManager(stores.Approvals, bus, collector, sink, logger)
	definitions := workflow.NewService(stores.Workflows, logger)
	executor := workflow.NewExecutor(definitions, stores.Executions, dispatcher, approvals, sink, bus, collector, logger)

	mux := http.NewServeMux()
	api.NewHandler(definitions, executor, stores.Executions, agents, approvals, sink, logger).Register(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.Handle("/events", eventbus.NewWebSocketSink(bus, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if status, err := provider.HealthCheck(ctx); err != nil || !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "provider unhealthy: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	return &Server{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
			Handler:      mux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		otel:      otelProviders,
		approvals: approvals,
		sink:      sink,
		memClose:  memClose,
	}, nil
}

// buildCollaborators picks redis-backed or in-process memory and rate
// limiting depending on whether a redis address is configured.
func buildCollaborators(cfg *config.Config) (memory.Store, ratelimit.Limiter, func() error, error) {
	if cfg.Redis.Addr == "" {
		return memory.NewInMemoryStore(cfg.Engine.MemoryEntriesPerAgent), ratelimit.NewLocalLimiter(), nil, nil
	}

	mem, err := memory.NewRedisStore(memory.RedisConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		MaxEntries: cfg.Engine.MemoryEntriesPerAgent,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect redis memory store: %w", err)
	}

	limiterClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	limiter := ratelimit.NewRedisLimiter(limiterClient, "flowcore:")

	closeAll := func() error {
		err := mem.Close()
		if cerr := limiterClient.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return mem, limiter, closeAll, nil
}

// Start launches the HTTP listener and the background sweepers.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if err := s.sink.LogSystemEvent(ctx, "engine started", map[string]any{
		"addr":    s.httpServer.Addr,
		"backend": s.cfg.Store.Backend,
	}); err != nil {
		s.logger.Warn("audit append failed", zap.Error(err))
	}

	go s.approvals.RunSweeper(ctx, s.cfg.Engine.ApprovalSweepInterval)
	go s.runAuditCleanup(ctx)

	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) runAuditCleanup(ctx context.Context) {
	ticker := time.NewTicker(auditCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.sink.Cleanup(ctx, s.cfg.Engine.AuditRetentionDays); err != nil {
				s.logger.Warn("audit cleanup failed", zap.Error(err))
			}
		}
	}
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then drains.
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.logger.Info("shutting down")
	if s.bgCancel != nil {
		s.bgCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.sink.LogSystemEvent(ctx, "engine shutting down", nil); err != nil {
		s.logger.Warn("audit append failed", zap.Error(err))
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown failed", zap.Error(err))
	}
	if s.memClose != nil {
		if err := s.memClose(); err != nil {
			s.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
}
