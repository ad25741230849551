package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dunamismax/previewflow/internal/config"
	"github.com/dunamismax/previewflow/internal/domain"
	"github.com/dunamismax/previewflow/internal/logging"
	"github.com/dunamismax/previewflow/internal/pipeline"
	"github.com/dunamismax/previewflow/internal/preview"
	"github.com/dunamismax/previewflow/internal/queue"
	"github.com/dunamismax/previewflow/internal/storage"
	"github.com/dunamismax/previewflow/internal/store"
	"github.com/dunamismax/previewflow/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const statusRetrying = "retrying"

type Server struct {
	logger        zerolog.Logger
	server        *asynq.Server
	sem           chan struct{}
	processors    map[string]processor
	base          preview.Config
	webhookClient webhookSender
	jobStore      store.JobStore
	metrics       *metrics
	tracer        trace.Tracer
}

type processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Output, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger zerolog.Logger,
	cfg config.Config,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
	base preview.Config,
	renderer pipeline.Renderer,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("preview config: %w", err)
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			cfg.Queue.RedisClientOpt(),
			asynq.Config{
				Concurrency: cfg.Worker.Concurrency,
				Queues: map[string]int{
					cfg.Queue.Name: 1,
				},
				Logger:   logging.AsynqLogger{Logger: logger.With().Str("subsystem", "asynq").Logger()},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Warn().Err(err).Str("type", task.Type()).Int("retry", retried).Int("max_retry", maxRetry).Msg("task failed")
				}),
			},
		),
		sem:        make(chan struct{}, max(1, cfg.Worker.MaxActiveJobs)),
		processors: make(map[string]processor, 2),
		base:       base,
		jobStore:   jobStore,
		metrics:    newMetrics(),
		tracer:     otel.Tracer("previewflow/worker"),
	}
	s.processors[domain.SourceTypeLocalFile] = pipeline.NewLocalProcessor(cfg.Worker.LocalOutputDir, cfg.API.MaxUploadBytes, renderer)
	s.processors[domain.SourceTypeS3Presigned] = pipeline.NewObjectStoreProcessor(
		storageClient,
		cfg.Storage.OutputPrefix,
		cfg.API.MaxUploadBytes,
		renderer,
	)
	if webhookClient != nil {
		s.webhookClient = webhookClient
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeGeneratePreview, s.handleGeneratePreview)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleGeneratePreview(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseGeneratePreviewPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.generate_preview", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.String("preview.bundle", preview.BundleName),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		// asynq redelivers the task, the job row is left untouched.
		outcome = statusRetrying
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	logger := s.logger.With().
		Str("job_id", payload.JobID).
		Str("source_type", payload.SourceType).
		Str("object_key", payload.ObjectKey).
		Logger()
	logger.Info().Msg("rendering preview")

	s.updateJobStatus(ctx, logger, payload.JobID, domain.JobStatusProcessing)

	job := payload.Job()
	var out pipeline.Output
	proc, ok := s.processors[job.SourceType]
	if !ok {
		err = fmt.Errorf("%w: %s", pipeline.ErrUnsupportedSourceType, job.SourceType)
	} else {
		out, err = proc.Process(ctx, pipeline.RequestFromJob(job, s.base))
	}
	if err != nil {
		final := permanent(err) || lastAttempt(ctx)
		if !final {
			outcome = statusRetrying
		}
		return s.fail(ctx, logger, span, payload, err, final)
	}

	span.SetAttributes(
		attribute.Int("preview.width", out.Width),
		attribute.Int("preview.height", out.Height),
		attribute.Int("preview.bytes", out.Bytes),
	)
	logger.Info().
		Str("output_key", out.Path).
		Int("width", out.Width).
		Int("height", out.Height).
		Int("bytes", out.Bytes).
		Dur("duration", out.Duration).
		Msg("preview stored")

	if s.jobStore != nil {
		if _, err := s.jobStore.Finish(ctx, payload.JobID, domain.JobStatusSucceeded, out.Path, ""); err != nil {
			logger.Error().Err(err).Msg("job finish failed")
		}
	}
	s.metrics.previewBytesTotal.Add(float64(out.Bytes))
	s.metrics.sourcePixelsTotal.Add(float64(out.SourceWidth) * float64(out.SourceHeight))

	s.dispatchWebhook(ctx, logger, payload, webhook.EventPreviewCompleted, webhook.Payload{
		JobID:       payload.JobID,
		Status:      domain.JobStatusSucceeded,
		SourceType:  payload.SourceType,
		ObjectKey:   payload.ObjectKey,
		Bundle:      preview.BundleName,
		OutputKey:   out.Path,
		Width:       out.Width,
		Height:      out.Height,
		Bytes:       out.Bytes,
		RequestedAt: payload.RequestedAt,
		FinishedAt:  time.Now().UTC(),
	})

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "rendered")
	return nil
}

// fail records a failed attempt. Only a final failure marks the job failed
// and notifies the webhook; earlier attempts put the job back in the queue.
func (s *Server) fail(ctx context.Context, logger zerolog.Logger, span trace.Span, payload queue.GeneratePreviewPayload, err error, final bool) error {
	kind := failureKind(err)
	s.metrics.failuresTotal.WithLabelValues(kind).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "preview failed")

	if !final {
		logger.Warn().Err(err).Str("kind", kind).Msg("preview attempt failed, will retry")
		s.updateJobStatus(ctx, logger, payload.JobID, domain.JobStatusQueued)
		return fmt.Errorf("render preview: %w", err)
	}

	logger.Error().Err(err).Str("kind", kind).Msg("preview failed")
	if s.jobStore != nil {
		if _, storeErr := s.jobStore.Finish(ctx, payload.JobID, domain.JobStatusFailed, "", err.Error()); storeErr != nil {
			logger.Error().Err(storeErr).Msg("job finish failed")
		}
	}

	s.dispatchWebhook(ctx, logger, payload, webhook.EventPreviewFailed, webhook.Payload{
		JobID:       payload.JobID,
		Status:      domain.JobStatusFailed,
		SourceType:  payload.SourceType,
		ObjectKey:   payload.ObjectKey,
		Bundle:      preview.BundleName,
		Error:       err.Error(),
		RequestedAt: payload.RequestedAt,
		FinishedAt:  time.Now().UTC(),
	})

	if permanent(err) {
		return fmt.Errorf("render preview: %v: %w", err, asynq.SkipRetry)
	}
	return fmt.Errorf("render preview: %w", err)
}

func (s *Server) updateJobStatus(ctx context.Context, logger zerolog.Logger, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		logger.Warn().Err(err).Str("status", status).Msg("job status update failed")
	}
}

// dispatchWebhook never fails the job; the preview is already stored.
func (s *Server) dispatchWebhook(ctx context.Context, logger zerolog.Logger, payload queue.GeneratePreviewPayload, event string, body webhook.Payload) {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.metrics.webhookFailureTotal.Inc()
		logger.Warn().Err(err).Str("event", event).Msg("webhook delivery failed")
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, preview.ErrDecode):
		return "decode"
	case errors.Is(err, preview.ErrConfig):
		return "config"
	case errors.Is(err, preview.ErrScale):
		return "scale"
	case errors.Is(err, preview.ErrBrand):
		return "brand"
	case errors.Is(err, preview.ErrEncode):
		return "encode"
	case errors.Is(err, pipeline.ErrUnsupportedSourceType):
		return "source_type"
	case errors.Is(err, storage.ErrObjectTooLarge):
		return "too_large"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "io"
	}
}

// permanent reports whether retrying err can never succeed.
func permanent(err error) bool {
	switch failureKind(err) {
	case "io", "timeout":
		return false
	default:
		return true
	}
}

func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
