package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dunamismax/previewflow/internal/domain"
	"github.com/dunamismax/previewflow/internal/id"
	"github.com/dunamismax/previewflow/internal/preview"
	"github.com/dunamismax/previewflow/internal/queue"
	"github.com/dunamismax/previewflow/internal/ratelimit"
	"github.com/dunamismax/previewflow/internal/storage"
	"github.com/dunamismax/previewflow/internal/store"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger                zerolog.Logger
	queueClient           QueueEnqueuer
	jobStore              store.JobStore
	storage               ObjectStorage
	previews              PreviewRenderer
	previewCfg            preview.Config
	presignTTL            time.Duration
	maxUploadBytes        int64
	rateLimiter           ratelimit.Limiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

type QueueEnqueuer interface {
	EnqueueGeneratePreview(ctx context.Context, payload queue.GeneratePreviewPayload) (*asynq.TaskInfo, error)
}

type ObjectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

// PreviewRenderer is satisfied by *preview.Transformer.
type PreviewRenderer interface {
	Render(ctx context.Context, cfg preview.Config, src []byte, identifier string, verbose io.Writer) (preview.Result, error)
}

type Deps struct {
	Queue       QueueEnqueuer
	JobStore    store.JobStore
	Storage     ObjectStorage
	Previews    PreviewRenderer
	PreviewCfg  preview.Config
	RateLimiter ratelimit.Limiter
}

type Options struct {
	PresignTTL      time.Duration
	MaxUploadBytes  int64
	RateLimitHeader string
}

func NewServer(logger zerolog.Logger, deps Deps, opts Options) *Server {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if strings.TrimSpace(opts.RateLimitHeader) == "" {
		opts.RateLimitHeader = "X-User-ID"
	}
	if deps.Storage == nil {
		deps.Storage = unavailableObjectStorage{}
	}

	s := &Server{
		logger:                logger,
		queueClient:           deps.Queue,
		jobStore:              deps.JobStore,
		storage:               deps.Storage,
		previews:              deps.Previews,
		previewCfg:            deps.PreviewCfg,
		presignTTL:            opts.PresignTTL,
		maxUploadBytes:        opts.MaxUploadBytes,
		rateLimiter:           deps.RateLimiter,
		rateLimitUserIDHeader: opts.RateLimitHeader,
		metrics:               newMetrics(),
		tracer:                otel.Tracer("previewflow/api"),
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) PresignedGetURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /v1/filter", s.handleFilterInfo)
	s.mux.HandleFunc("POST /v1/previews", s.handleRenderPreview)
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("POST /v1/jobs/{id}/start", s.handleStartJob)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFilterInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, preview.Info())
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	jobID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	objectKey := strings.TrimSpace(req.ObjectKey)
	uploadState := "not_required"
	presignedPutURL := ""

	if sourceType == domain.SourceTypeS3Presigned {
		objectKey = storage.SourceKey(jobID)
		url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
		if err != nil {
			s.logger.Error().Err(err).Str("job_id", jobID).Msg("generate presigned url failed")
			writeError(w, http.StatusInternalServerError, "failed to generate upload URL")
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	job := domain.Job{
		ID:         jobID,
		Status:     domain.JobStatusCreated,
		SourceType: sourceType,
		SourceName: strings.TrimSpace(req.SourceName),
		ObjectKey:  objectKey,
		Identifier: strings.TrimSpace(req.Identifier),
		WebhookURL: req.WebhookURL,
		Options:    req.Options,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("create job failed")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"upload": map[string]string{
			"object_key":          job.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"start_url": fmt.Sprintf("/v1/jobs/%s/start", job.ID),
	})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if !id.Valid(jobID) {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("fetch job failed")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	if err := s.verifySourceExists(r.Context(), job); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	job, err = s.jobStore.Transition(r.Context(), job.ID, domain.JobStatusCreated, domain.JobStatusQueued)
	if errors.Is(err, store.ErrInvalidTransition) {
		writeError(w, http.StatusConflict, "job has already been started")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("queue transition failed")
		writeError(w, http.StatusInternalServerError, "failed to start job")
		return
	}

	taskInfo, err := s.queueClient.EnqueueGeneratePreview(r.Context(), queue.PayloadFromJob(job))
	if errors.Is(err, queue.ErrAlreadyQueued) {
		writeError(w, http.StatusConflict, "job has already been queued")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("enqueue failed")
		if _, revertErr := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusCreated); revertErr != nil {
			s.logger.Error().Err(revertErr).Str("job_id", job.ID).Msg("status revert failed")
		}
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

type jobResponse struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	SourceType  string    `json:"source_type"`
	SourceName  string    `json:"source_name,omitempty"`
	Identifier  string    `json:"identifier,omitempty"`
	ObjectKey   string    `json:"object_key"`
	Bundle      string    `json:"bundle"`
	OutputKey   string    `json:"output_key,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if !id.Valid(jobID) {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("fetch job failed")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	resp := jobResponse{
		JobID:      job.ID,
		Status:     job.Status,
		SourceType: job.SourceType,
		SourceName: job.SourceName,
		Identifier: job.Identifier,
		ObjectKey:  job.ObjectKey,
		Bundle:     preview.BundleName,
		OutputKey:  job.OutputKey,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
	if job.Status == domain.JobStatusSucceeded && job.SourceType == domain.SourceTypeS3Presigned && job.OutputKey != "" {
		url, err := s.storage.PresignedGetURL(r.Context(), job.OutputKey, s.presignTTL)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("presign download failed")
		} else {
			resp.DownloadURL = url
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) verifySourceExists(ctx context.Context, job domain.Job) error {
	switch job.SourceType {
	case domain.SourceTypeLocalFile:
		if _, err := os.Stat(job.ObjectKey); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("source object is missing: %s", job.ObjectKey)
			}
			return fmt.Errorf("source object check failed: %w", err)
		}
		return nil
	default:
		exists, err := s.storage.ObjectExists(ctx, job.ObjectKey)
		if err != nil {
			return fmt.Errorf("source object check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("source object is missing: %s", job.ObjectKey)
		}
		return nil
	}
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
