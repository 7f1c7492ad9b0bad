package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/job-queue/pkg/broker"
	"github.com/abdul-hamid-achik/job-queue/pkg/middleware"
	"github.com/abdul-hamid-achik/job-queue/pkg/worker"
	"github.com/brandstamp/brandstamp/internal/catalog"
	"github.com/brandstamp/brandstamp/internal/config"
	"github.com/brandstamp/brandstamp/internal/db"
	"github.com/brandstamp/brandstamp/internal/health"
	"github.com/brandstamp/brandstamp/internal/imagefetch"
	"github.com/brandstamp/brandstamp/internal/logger"
	"github.com/brandstamp/brandstamp/internal/metrics"
	"github.com/brandstamp/brandstamp/internal/ratelimit"
	"github.com/brandstamp/brandstamp/internal/storage"
	"github.com/brandstamp/brandstamp/internal/tracing"
	"github.com/brandstamp/brandstamp/internal/watermark"
	bsworker "github.com/brandstamp/brandstamp/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()

	log.Info("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "brandstamp-worker",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTLPEndpoint != "",
		SampleRate:     1.0,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	zerologger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	log.Info("applying database migrations")
	if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info("connecting to database")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("database connected")

	log.Info("connecting to archive storage")
	store, err := storage.NewMinIOStorage(&storage.Config{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		UseSSL:    cfg.MinIOUseSSL,
		Region:    cfg.MinIORegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure archive bucket: %w", err)
	}
	log.Info("archive storage connected")

	log.Info("connecting to redis")
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpt)
	defer func() { _ = redisClient.Close() }()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	b := broker.NewRedisStreamsBroker(redisClient,
		broker.WithWorkerID(fmt.Sprintf("worker-%d", os.Getpid())),
	)
	log.Info("broker initialized")

	queries := db.New(pool)

	metrics.SetAppInfo(version, cfg.Environment, "worker")
	metrics.SetWorkerPoolSize(cfg.WorkerConcurrency)

	instrumentedStore := metrics.NewInstrumentedStorage(store)

	// One shared bucket per shop keeps every worker process inside the
	// platform's per-store call budget.
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.CatalogBurst, cfg.CatalogRPS, time.Minute)

	compositor := watermark.New()
	fetcher := imagefetch.NewFetcher(imagefetch.Config{
		MaxBytes: cfg.MaxImageBytes,
		MinDim:   cfg.MinImageDim,
		MaxDim:   cfg.MaxImageDim,
		Timeout:  cfg.FetchTimeout,
	})

	deps := &bsworker.Dependencies{
		Queries: queries,
		Storage: instrumentedStore,
		Tokens:  bsworker.NewCachedTokenSource(queries, redisClient, cfg.TokenCacheTTL),
		CatalogFactory: func(shop, token string) catalog.API {
			return catalog.NewClient(catalog.ClientConfig{
				BaseURL:    cfg.CatalogAPIBase,
				APIVersion: cfg.CatalogAPIVersion,
				Shop:       shop,
				Token:      token,
				Limiter:    limiter,
			})
		},
		Pipeline:           imagefetch.NewPipeline(fetcher, compositor),
		Compositor:         compositor,
		ProductConcurrency: cfg.ProductConcurrency,
		ScopeMaxProduct:    cfg.ScopeMaxProduct,
		VerifyAttempts:     cfg.VerifyAttempts,
		VerifyInterval:     cfg.VerifyInterval,
	}

	log.Info("registering job handlers")
	registry := worker.NewRegistry()
	_ = registry.Register(bsworker.JobTypeApply, bsworker.ApplyHandler(deps))
	_ = registry.Register(bsworker.JobTypeRollback, bsworker.RollbackHandler(deps))

	registry.Use(
		middleware.RecoveryMiddleware(zerologger),
		middleware.LoggingMiddleware(zerologger),
		middleware.TimeoutMiddleware(cfg.JobTimeout),
		middleware.MetricsMiddleware(metrics.NewPrometheusCollector()),
	)

	log.Info("creating worker pool", "concurrency", cfg.WorkerConcurrency)

	workerPool := worker.NewPool(b, registry,
		worker.WithConcurrency(cfg.WorkerConcurrency),
		worker.WithPoolQueues([]string{"default"}),
		worker.WithPoolPollInterval(time.Second),
		worker.WithShutdownTimeout(30*time.Second),
		worker.WithPoolLogger(zerologger),
	)

	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		metricsPort = "9090"
	}

	checker := health.NewChecker(pool, redisClient).WithStorage(store)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/health/live", health.LivenessHandler())
	metricsMux.HandleFunc("/health/ready", health.ReadinessHandler(checker))

	metricsServer := &http.Server{
		Addr:    ":" + metricsPort,
		Handler: metricsMux,
	}

	go func() {
		log.Info("metrics server starting", "port", metricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	poolErr := make(chan error, 1)
	go func() {
		log.Info("starting worker pool")
		poolErr <- workerPool.Start(ctx)
	}()

	select {
	case err := <-poolErr:
		if err != nil && err != context.Canceled {
			return fmt.Errorf("worker pool error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := workerPool.Stop(shutdownCtx); err != nil {
			log.Error("error stopping pool", "error", err)
		}

		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("error stopping metrics server", "error", err)
		}

		cancel()
	}

	log.Info("worker pool stopped gracefully")
	return nil
}
