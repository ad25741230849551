package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dunamismax/previewflow/internal/config"
	"github.com/dunamismax/previewflow/internal/logging"
	"github.com/dunamismax/previewflow/internal/pipeline"
	"github.com/dunamismax/previewflow/internal/preview"
	"github.com/dunamismax/previewflow/internal/storage"
	"github.com/dunamismax/previewflow/internal/store"
	"github.com/dunamismax/previewflow/internal/telemetry"
	"github.com/dunamismax/previewflow/internal/webhook"
	"github.com/dunamismax/previewflow/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := logging.New("worker", cfg.LogLevel)
	ctx := context.Background()

	logger.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Int("max_active_jobs", cfg.Worker.MaxActiveJobs).
		Str("queue", cfg.Queue.Name).
		Str("redis", cfg.Queue.RedisAddr).
		Msg("starting worker")

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "previewflow-worker",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	previewCfg, err := config.LoadPreview(cfg.Preview.File)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.Preview.File).Msg("invalid preview config")
	}

	if err := preview.Startup(); err != nil {
		logger.Fatal().Err(err).Msg("image runtime startup failed")
	}
	defer preview.Shutdown()

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("storage client setup failed")
	}

	jobStore, closeStore, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("job store setup failed")
	}
	defer closeStore()

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	})

	srv, err := worker.NewServer(logger, cfg, storageClient, webhookClient, jobStore, previewCfg, pipeline.NewRenderer())
	if err != nil {
		logger.Fatal().Err(err).Msg("worker setup failed")
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Worker.MetricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	defer metricsServer.Close()

	// Run blocks until SIGINT or SIGTERM.
	if err := srv.Run(); err != nil {
		logger.Error().Err(err).Msg("worker failed")
	}
}
