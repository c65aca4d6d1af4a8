// Package main is the entry point for the Onda feed ranking API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/onda-social/onda/internal/api"
	"github.com/onda-social/onda/internal/audit"
	"github.com/onda-social/onda/internal/auth"
	"github.com/onda-social/onda/internal/config"
	"github.com/onda-social/onda/internal/db"
	"github.com/onda-social/onda/internal/health"
	"github.com/onda-social/onda/internal/idempotency"
	"github.com/onda-social/onda/internal/ingest"
	"github.com/onda-social/onda/internal/jobs"
	"github.com/onda-social/onda/internal/middleware"
	"github.com/onda-social/onda/internal/post"
	"github.com/onda-social/onda/internal/ranking"
	"github.com/onda-social/onda/internal/tracing"
	"github.com/onda-social/onda/internal/viewer"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Onda API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx := context.Background()

	// Tracing
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  api.ServiceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.OTLPExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TraceSampleRate,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracer provider", "error", err)
		}
	}()

	// Database. Posts are durable in Postgres; viewer profiles, ranking
	// preferences and audit logs are in-process stores.
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register HTTP metrics", "error", err)
		os.Exit(1)
	}
	rankingMetrics := ranking.NewMetrics()
	if err := rankingMetrics.Register(registry); err != nil {
		logger.Error("failed to register ranking metrics", "error", err)
		os.Exit(1)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	// Rate limiting. Redis shares limits across replicas; the in-memory
	// store is the single-replica fallback.
	var rateLimitStore middleware.RateLimitStore
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient, httpMetrics, logger)
		logger.Info("using redis rate limit store", "addr", cfg.RedisAddr)
	} else {
		rateLimitStore = middleware.NewInMemoryRateLimitStore()
		logger.Info("using in-memory rate limit store")
	}

	// Ranking engine
	weights, err := loadWeights(cfg.RankingCalibrationPath)
	if err != nil {
		logger.Error("failed to load ranking calibration", "error", err, "path", cfg.RankingCalibrationPath)
		os.Exit(1)
	}
	engine := ranking.NewEngine(
		ranking.WithWeights(weights),
		ranking.WithLogger(logger),
		ranking.WithMetrics(rankingMetrics),
	)

	// Repositories
	posts := post.NewPostgresPostRepository(pool, logger)
	viewers := viewer.NewInMemoryViewerRepository()
	prefs := ranking.NewInMemoryPreferenceStore()
	audits := audit.NewInMemoryRepository()
	idemRepo := idempotency.NewInMemoryRepository()

	// Auth
	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTSecretPrevious)

	// Handlers
	feedHandlers := api.NewFeedHandlers(posts, viewers, prefs, engine)
	postHandlers := api.NewPostHandlers(posts)
	postHandlers.SetAuditRepository(audits)
	viewerHandlers := api.NewViewerHandlers(viewers, prefs)
	viewerHandlers.SetAuditRepository(audits)
	authHandlers := api.NewAuthHandlers(jwtService, viewers)
	authHandlers.SetAuditRepository(audits)

	// Background jobs. Audit log IPs older than the retention window are
	// anonymized once a day.
	jobCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	anonymizer := jobs.NewRunner(jobs.JobTypeAuditAnonymize, 24*time.Hour, func(context.Context) error {
		_, err := audit.AnonymizeOldIPs(audits, logger)
		return err
	}, jobMetrics, logger)
	go anonymizer.Run(jobCtx)
	idemCleanup := jobs.NewRunner("idempotency_cleanup", time.Hour, func(context.Context) error {
		_, err := idempotency.CleanupOldKeys(idemRepo, idempotency.DefaultExpiry)
		return err
	}, jobMetrics, logger)
	go idemCleanup.Run(jobCtx)

	healthConfig := api.HealthHandlersConfig{
		DBChecker:     health.NewDBChecker(pool),
		IngestChecker: health.NewHubChecker(hubProbeURL(cfg.SignalStreamURL)),
	}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}
	healthHandlers := api.NewHealthHandlers(healthConfig)

	// Calibration experiment
	experiment := middleware.NewExperimentRouter(middleware.ExperimentConfig{
		Enabled:          cfg.RankingCandidatePath != "" && cfg.ExperimentTrafficPercent > 0,
		TrafficPercent:   cfg.ExperimentTrafficPercent,
		ErrorThreshold:   5,
		LatencyThreshold: 2,
		AutoRollback:     true,
		Calibration:      cfg.RankingCandidatePath,
	}, logger)
	experiment.SetPrometheusMetrics(httpMetrics)
	if cfg.RankingCandidatePath != "" {
		candidateWeights, err := ranking.LoadCalibration(cfg.RankingCandidatePath)
		if err != nil {
			logger.Error("failed to load candidate calibration", "error", err, "path", cfg.RankingCandidatePath)
			os.Exit(1)
		}
		feedHandlers.SetCandidateEngine(ranking.NewEngine(
			ranking.WithWeights(candidateWeights),
			ranking.WithLogger(logger),
			ranking.WithMetrics(rankingMetrics),
		))
		logger.Info("candidate calibration loaded",
			"path", cfg.RankingCandidatePath,
			"traffic_percent", cfg.ExperimentTrafficPercent,
		)
	}

	mux := api.NewRouter(api.RouterConfig{
		Feed:        feedHandlers,
		Posts:       postHandlers,
		Viewers:     viewerHandlers,
		Auth:        authHandlers,
		Health:      healthHandlers,
		RequireAuth: middleware.RequireAuth(jwtService),
	})
	mux.Handle("GET /metrics", ingest.InternalAuthMiddleware(cfg.MetricsInternalToken)(ingest.MetricsHandler(registry)))

	// Innermost wrappers first: pprof in development only, then duplicate
	// POST suppression on the creation routes.
	var inner http.Handler = experiment.Middleware(mux)
	if cfg.Env == "development" {
		inner = middleware.Profiling(middleware.ProfilingConfig{
			Enabled:     true,
			Environment: cfg.Env,
		})(inner)
		logger.Warn("pprof endpoints enabled at /debug/pprof")
	}
	inner = middleware.IdempotencyMiddleware(idemRepo, map[string]bool{
		"/posts":   true,
		"/viewers": true,
	})(inner)

	// Middleware chain, outermost first.
	handler := middleware.RequestID(
		middleware.Tracing(api.ServiceName)(
			middleware.Logging(logger)(
				middleware.HTTPMetrics(httpMetrics)(
					middleware.CORS(middleware.CORSConfig{
						AllowedOrigins:   cfg.CORSOrigins(),
						AllowCredentials: true,
						MaxAge:           300,
					})(
						middleware.RateLimiter(rateLimitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc(), httpMetrics)(
							inner,
						),
					),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// loadWeights loads calibration weights from the given path, or returns the
// defaults when no path is configured.
func loadWeights(path string) (*ranking.Weights, error) {
	if path == "" {
		return ranking.DefaultWeights(), nil
	}
	return ranking.LoadCalibration(path)
}

// hubProbeURL converts the signal stream WebSocket URL into the HTTP URL
// the readiness probe hits.
func hubProbeURL(streamURL string) string {
	switch {
	case strings.HasPrefix(streamURL, "wss://"):
		return "https://" + strings.TrimPrefix(streamURL, "wss://")
	case strings.HasPrefix(streamURL, "ws://"):
		return "http://" + strings.TrimPrefix(streamURL, "ws://")
	}
	return streamURL
}
