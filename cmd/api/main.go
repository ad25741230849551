package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/previewflow/internal/api"
	"github.com/dunamismax/previewflow/internal/config"
	"github.com/dunamismax/previewflow/internal/logging"
	"github.com/dunamismax/previewflow/internal/pipeline"
	"github.com/dunamismax/previewflow/internal/preview"
	"github.com/dunamismax/previewflow/internal/queue"
	"github.com/dunamismax/previewflow/internal/ratelimit"
	"github.com/dunamismax/previewflow/internal/storage"
	"github.com/dunamismax/previewflow/internal/store"
	"github.com/dunamismax/previewflow/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := logging.New("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "previewflow-api",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}

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
	if err := storageClient.EnsureBucket(ctx); err != nil {
		logger.Fatal().Err(err).Str("bucket", storageClient.Bucket()).Msg("bucket setup failed")
	}

	jobStore, closeStore, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("job store setup failed")
	}
	defer closeStore()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name,
		queue.WithMaxRetry(cfg.Queue.MaxRetry),
		queue.WithTimeout(cfg.Queue.TaskTimeout),
		queue.WithRetention(cfg.Queue.Retention),
	)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("queue client close failed")
		}
	}()

	deps := api.Deps{
		Queue:      queueClient,
		JobStore:   jobStore,
		Storage:    storageClient,
		Previews:   pipeline.NewRenderer(),
		PreviewCfg: previewCfg,
	}
	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
		if err != nil {
			logger.Fatal().Err(err).Msg("rate limiter setup failed")
		}
		deps.RateLimiter = limiter
	}

	app := api.NewServer(logger, deps, api.Options{
		PresignTTL:      cfg.API.PresignTTL,
		MaxUploadBytes:  cfg.API.MaxUploadBytes,
		RateLimitHeader: cfg.API.RateLimitHeader,
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.API.Addr).
			Int("max_width", previewCfg.MaxWidth).
			Int("max_height", previewCfg.MaxHeight).
			Int("brand_height", previewCfg.BrandHeight).
			Str("store", cfg.Database.Driver).
			Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracing shutdown failed")
	}
}
