// Package main is the entry point for the signal ingest worker. It
// subscribes to the content-value pipeline's WebSocket stream and applies
// quality scores, fact-check verdicts, and audience embeddings to posts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onda-social/onda/internal/config"
	"github.com/onda-social/onda/internal/db"
	"github.com/onda-social/onda/internal/ingest"
	"github.com/onda-social/onda/internal/middleware"
	"github.com/onda-social/onda/internal/post"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Onda Signal Ingest Worker")
		fmt.Println()
		fmt.Println("Usage: ingest [options]")
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

	// Metrics
	registry := prometheus.NewRegistry()
	metrics := ingest.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		logger.Error("failed to register ingest metrics", "error", err)
		os.Exit(1)
	}

	// Signals land in the same posts table the API serves from.
	pool, err := db.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	posts := post.NewPostgresPostRepository(pool, logger)
	processor := ingest.NewProcessor(posts, logger, metrics)

	client, err := ingest.NewClient(ingest.DefaultConfig(cfg.SignalStreamURL), processor.Handle, logger)
	if err != nil {
		logger.Error("failed to create signal stream client", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Internal HTTP surface for scraping and liveness.
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", ingest.InternalAuthMiddleware(cfg.MetricsInternalToken)(ingest.MetricsHandler(registry)))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if client.IsConnected() {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"status":"healthy","stream":"connected"}`)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"status":"unhealthy","stream":"disconnected"}`)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      middleware.RequestID(middleware.Logging(logger)(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting ingest metrics server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	logger.Info("starting signal stream consumer", "url", cfg.SignalStreamURL)
	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("signal stream consumer failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutting down ingest worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server forced to shutdown", "error", err)
	}

	logger.Info("ingest worker stopped")
}
