// Command api runs the PeakForm API server: the coach catalog, Stripe
// checkout and webhook reconciliation, and the access status endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/peakform/peakform/internal/access"
	"github.com/peakform/peakform/internal/api"
	"github.com/peakform/peakform/internal/audit"
	"github.com/peakform/peakform/internal/auth"
	"github.com/peakform/peakform/internal/config"
	"github.com/peakform/peakform/internal/db"
	"github.com/peakform/peakform/internal/health"
	"github.com/peakform/peakform/internal/idempotency"
	"github.com/peakform/peakform/internal/jobs"
	"github.com/peakform/peakform/internal/middleware"
	"github.com/peakform/peakform/internal/payment"
	"github.com/peakform/peakform/internal/program"
	"github.com/peakform/peakform/internal/tracing"
)

const serviceName = "peakform-api"

// Idempotency keys outlive a checkout retry window, not much more.
const (
	idempotencyKeyExpiry     = 24 * time.Hour
	idempotencyCleanupPeriod = time.Hour
)

// Anonymize audit IPs on a daily sweep once records age past retention.
const auditAnonymizePeriod = 24 * time.Hour

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	cfg, errs := config.Load(*configPath)

	logger := middleware.NewLogger(envOrDefault(cfg))
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("configuration error", "error", err)
		}
		os.Exit(1)
	}

	logCfg := make([]any, 0, 2*len(cfg.LogSummary()))
	for k, v := range cfg.LogSummary() {
		logCfg = append(logCfg, k, v)
	}
	logger.Info("configuration loaded", logCfg...)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func envOrDefault(cfg *config.Config) string {
	if cfg != nil && cfg.Env != "" {
		return cfg.Env
	}
	return config.DefaultEnv
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampling,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()
	logger.Info("database connected")

	// Grants and payment events are the durable reconciliation state; the
	// catalog and audit log run in memory until they earn persistence.
	accessRepo := access.NewPostgresRepository(conn, logger)
	eventRepo := payment.NewPostgresEventRepository(conn, logger)
	programRepo := program.NewInMemoryRepository()
	auditRepo := audit.NewInMemoryRepository()
	idempotencyRepo := idempotency.NewInMemoryRepository()

	stripeClient := payment.NewStripeClient(cfg.StripeAPIKey)
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	// Metrics registry: runtime collectors, HTTP middleware, webhook pipeline.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		return fmt.Errorf("failed to register HTTP metrics: %w", err)
	}
	webhookMetrics := api.NewWebhookMetrics()
	if err := webhookMetrics.Register(registry); err != nil {
		return fmt.Errorf("failed to register webhook metrics: %w", err)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		return fmt.Errorf("failed to register job metrics: %w", err)
	}

	var (
		rateLimitStore middleware.RateLimitStore
		redisChecker   api.HealthChecker
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		rateLimitStore = middleware.NewRedisRateLimitStoreWithMetrics(redisClient, httpMetrics)
		redisChecker = health.NewRedisChecker(redisClient)
		logger.Info("redis rate limit store enabled", "addr", cfg.RedisAddr)
	} else {
		rateLimitStore = middleware.NewInMemoryRateLimitStore()
		logger.Info("using in-memory rate limit store")
	}

	stopJobs := make(chan struct{})
	defer close(stopJobs)
	go jobs.RunPeriodic(jobs.JobIdempotencyCleanup, idempotencyCleanupPeriod, jobMetrics, logger, stopJobs, func() (int64, error) {
		return idempotency.CleanupOldKeys(idempotencyRepo, idempotencyKeyExpiry)
	})
	go jobs.RunPeriodic(jobs.JobAuditAnonymize, auditAnonymizePeriod, jobMetrics, logger, stopJobs, auditAnonymizeFunc(auditRepo))

	router := api.NewRouter(api.RouterConfig{
		Logger: logger,

		Webhook:  api.NewWebhookHandlers(cfg.StripeWebhookSecret, eventRepo, accessRepo, webhookMetrics),
		Access:   api.NewAccessHandlers(accessRepo, programRepo, auditRepo),
		Checkout: api.NewCheckoutHandlers(programRepo, accessRepo, stripeClient, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL),
		Catalog:  api.NewCatalogHandlers(programRepo, auditRepo),
		Health: api.NewHealthHandlers(api.HealthHandlersConfig{
			DBChecker:    health.NewDBChecker(conn),
			RedisChecker: redisChecker,
		}),

		TokenValidator: jwtService,

		RateLimitStore:  rateLimitStore,
		IdempotencyRepo: idempotencyRepo,

		HTTPMetrics:    httpMetrics,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),

		ServiceName: serviceName,
		CORSOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// auditAnonymizeFunc strips IPs from audit records past the retention window.
func auditAnonymizeFunc(repo *audit.InMemoryRepository) jobs.Func {
	return func() (int64, error) {
		return int64(repo.AnonymizeOlderThan(audit.AnonymizationCutoff())), nil
	}
}
