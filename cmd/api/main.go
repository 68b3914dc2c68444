package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
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
	"github.com/bimakw/transfer-indexer/internal/presentation/middleware"
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

	logger.Info("Starting transfer indexer API",
		zap.Int("port", cfg.API.Port),
		zap.String("db_engine", cfg.Database.Engine),
		zap.Bool("index_enabled", cfg.API.IndexEnabled),
	)

	// Connect to database
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// Connect to Redis cache (optional)
	var (
		responseCache services.ResponseCache
		invalidator   services.CacheInvalidator
		cacheChecker  handlers.HealthChecker
	)
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Redis, cfg.API.CacheTTL, logger)
		if err != nil {
			logger.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
		} else {
			defer redisCache.Close()
			responseCache = redisCache
			invalidator = redisCache
			cacheChecker = redisCache
		}
	}

	// Create repositories
	transferRepo := database.NewTransferRepo(db)
	watermarkRepo := database.NewWatermarkRepo(db)

	// Create services and handlers
	queryService := services.NewQueryService(transferRepo, watermarkRepo, responseCache, cfg.API, logger)
	transferHandler := handlers.NewTransferHandler(queryService, logger)
	statsHandler := handlers.NewStatsHandler(queryService, logger)

	// Manual indexing needs a node; the query API keeps working without one
	var (
		indexHandler *handlers.IndexHandler
		nodeChecker  handlers.HealthChecker
	)
	if cfg.API.IndexEnabled {
		ethClient, err := ethereum.NewClient(cfg.Ethereum, logger)
		if err != nil {
			logger.Warn("Failed to connect to Ethereum node, index endpoints disabled", zap.Error(err))
		} else {
			defer ethClient.Close()
			nodeChecker = ethClient

			reader := ethereum.NewReader(ethClient, cfg.Indexer, logger)
			indexMetrics := metrics.NewIndexerMetrics(prometheus.DefaultRegisterer)
			indexer := services.NewRangeIndexer(reader, transferRepo, cfg.Indexer, indexMetrics, logger)
			indexService := services.NewIndexService(reader, indexer, invalidator, cfg.Indexer.LatestBlocks, logger)
			indexHandler = handlers.NewIndexHandler(indexService, logger)
		}
	}

	healthHandler := handlers.NewHealthHandler(db, cacheChecker, nodeChecker)

	// Setup router
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(prometheus.DefaultRegisterer))
	r.Use(chimiddleware.Recoverer)

	// Health endpoints (no rate limiting)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))

		transferHandler.RegisterRoutes(r)
		statsHandler.RegisterRoutes(r)
		if indexHandler != nil {
			indexHandler.RegisterRoutes(r)
		}
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Run server in goroutine
	go func() {
		logger.Info("API server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}
