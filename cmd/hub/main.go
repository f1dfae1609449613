package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/agents"
	"github.com/vendemais/vendas-hub-go/internal/config"
	"github.com/vendemais/vendas-hub-go/internal/handler"
	"github.com/vendemais/vendas-hub-go/internal/hub"
	"github.com/vendemais/vendas-hub-go/internal/infra/cache"
	"github.com/vendemais/vendas-hub-go/internal/infra/client"
	"github.com/vendemais/vendas-hub-go/internal/infra/observability"
	"github.com/vendemais/vendas-hub-go/internal/infra/outcome"
	"github.com/vendemais/vendas-hub-go/internal/infra/resilience"
	"github.com/vendemais/vendas-hub-go/internal/lock"
	"github.com/vendemais/vendas-hub-go/internal/port"
	"github.com/vendemais/vendas-hub-go/internal/service"
	"github.com/vendemais/vendas-hub-go/internal/store/sqlite"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("sqlite_path", cfg.SQLitePath),
		zap.Duration("lock_ttl", cfg.LockTTL),
		zap.Duration("lock_max_wait", cfg.LockMaxWait),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "vendas-hub")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Store ---
	store, err := sqlite.New(cfg.SQLitePath, logger)
	if err != nil {
		logger.Fatal("failed to open lead store", zap.Error(err))
	}
	defer store.Close()

	// --- Contact locks ---
	locks := lock.NewManager(lock.Options{
		TTL:          cfg.LockTTL,
		MaxWait:      cfg.LockMaxWait,
		PollInterval: cfg.LockPollInterval,
	}, logger)
	defer locks.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	classifierClient := client.NewClassifierClient(
		httpClient,
		cfg.ClassifierAPIURL,
		resilience.NewCircuitBreaker("classifier"),
		resilienceCfg,
	)
	crmClient := client.NewCRMClient(
		httpClient,
		cfg.CRMAPIURL,
		resilience.NewCircuitBreaker("crm"),
		resilienceCfg,
		cache.New[string](cfg.CacheTTL),
		metrics,
		logger,
	)

	// --- Hub ---
	h := hub.New(hub.Deps{
		Classifier: classifierClient,
		Agents: []port.Agent{
			agents.NewSDR(logger),
			agents.NewSpecialist(logger),
			agents.NewScheduler(logger),
			agents.NewAtendimento(logger),
		},
		Store:    store,
		Locks:    locks,
		CRM:      crmClient,
		Outcomes: outcome.NewLogSink(logger),
		Metrics:  metrics,
		Logger:   logger,
		Bulkhead: resilience.NewBulkhead(cfg.MaxConcurrency),
	})

	// --- Auth ---
	authSvc := service.NewAuthService(cfg.AdminPasswordHash, cfg.JWTSecret, cfg.JWTAccessTTL, logger)
	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set, admin routes will reject all logins")
	}

	// --- Router ---
	router := handler.NewRouter(h, authSvc, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
