package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meetscribe/ingest-service/internal/blob"
	"github.com/meetscribe/ingest-service/internal/config"
	"github.com/meetscribe/ingest-service/internal/httpapi"
	"github.com/meetscribe/ingest-service/internal/observability"
	"github.com/meetscribe/ingest-service/internal/pipeline"
	"github.com/meetscribe/ingest-service/internal/resilience"
	"github.com/meetscribe/ingest-service/internal/store"
	"github.com/meetscribe/ingest-service/internal/stt"
	"github.com/meetscribe/ingest-service/internal/summarize"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("blob_backend", cfg.BlobBackend).
		Str("stt_backend", cfg.STTBackend).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Ingest Service starting")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer st.Close()

	blobs, err := newBlobStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize chunk storage")
	}

	transcriber, err := stt.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize transcription backend")
	}
	summarizer := summarize.NewOpenAISummarizer(cfg.OpenAIAPIKey, cfg.SummaryModel)

	breaker := resilience.NewCircuitBreaker(
		"summarizer",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)

	queue := pipeline.NewQueue(cfg.QueueBacklog)
	pipe := pipeline.New(st, blobs, transcriber, summarizer, queue, pipeline.SettingsFromConfig(cfg), breaker)

	// Background workers and the janitor run until shutdown.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	go func() {
		if err := queue.RunWorkers(workerCtx, cfg.WorkerCount, pipe.Handle); err != nil && workerCtx.Err() == nil {
			logger.Error().Err(err).Msg("Worker pool stopped")
		}
	}()
	go func() {
		if err := pipe.RunJanitor(workerCtx, cfg.JanitorPeriod()); err != nil && workerCtx.Err() == nil {
			logger.Error().Err(err).Msg("Janitor stopped")
		}
	}()
	logger.Info().
		Int("workers", cfg.WorkerCount).
		Dur("janitor_period", cfg.JanitorPeriod()).
		Msg("Background workers started")

	// Create HTTP server
	mux := http.NewServeMux()

	checks := map[string]observability.HealthCheckFunc{
		"database": func(ctx context.Context) (bool, error) {
			err := st.Ping(ctx)
			return err == nil, err
		},
	}
	httpapi.RegisterRoutes(mux, httpapi.NewHandlers(pipe, st), checks)

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	stopWorkers()
	logger.Info().Msg("Server exited gracefully")
}

func newBlobStore(cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case "azure":
		return blob.NewAzureStore(cfg.AzureConnStr, cfg.AzureContainer)
	default:
		return blob.NewDiskStore(cfg.AudioDir)
	}
}
