package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/application/services"
	"github.com/bimakw/transfer-indexer/internal/config"
	"github.com/bimakw/transfer-indexer/internal/infrastructure/cache"
	"github.com/bimakw/transfer-indexer/internal/infrastructure/database"
	"github.com/bimakw/transfer-indexer/internal/infrastructure/ethereum"
	"github.com/bimakw/transfer-indexer/internal/infrastructure/logging"
	"github.com/bimakw/transfer-indexer/internal/infrastructure/metrics"
	"github.com/bimakw/transfer-indexer/internal/presentation/handlers"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting transfer indexer",
		zap.Strings("tokens", cfg.Indexer.TokenAddresses),
		zap.String("rpc_url", cfg.Ethereum.RPCURL),
		zap.String("db_engine", cfg.Database.Engine),
		zap.Duration("poll_interval", cfg.Indexer.PollInterval),
		zap.Int64("start_block", cfg.Indexer.StartBlock),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// Chain access
	ethClient, err := ethereum.NewClient(cfg.Ethereum, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Ethereum node", zap.Error(err))
	}
	defer ethClient.Close()

	reader := ethereum.NewReader(ethClient, cfg.Indexer, logger)
	transferRepo := database.NewTransferRepo(db)
	watermarkRepo := database.NewWatermarkRepo(db)

	// Cached API responses are dropped after new records land (optional)
	var invalidator services.CacheInvalidator
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Redis, cfg.API.CacheTTL, logger)
		if err != nil {
			logger.Warn("Failed to connect to Redis, cache invalidation disabled", zap.Error(err))
		} else {
			defer redisCache.Close()
			invalidator = redisCache
		}
	}

	indexerMetrics := metrics.NewIndexerMetrics(prometheus.DefaultRegisterer)
	indexer := services.NewRangeIndexer(reader, transferRepo, cfg.Indexer, indexerMetrics, logger)
	scheduler := services.NewScheduler(reader, indexer, watermarkRepo, invalidator, cfg.Indexer, logger)

	metricsServer := newMetricsServer(cfg.Indexer.MetricsPort, handlers.NewHealthHandler(db, nil, ethClient))
	go func() {
		logger.Info("Starting metrics server", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	scheduler.Start(ctx)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, stopping indexer...")

	// An in-flight scan is bounded by INDEXER_MAX_SCAN_DURATION and still records its watermark
	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}

	logger.Info("Indexer stopped")
}

func newMetricsServer(port int, health *handlers.HealthHandler) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Get("/live", health.Live)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
