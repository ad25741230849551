package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/previewflow/internal/brand"
	"github.com/dunamismax/previewflow/internal/domain"
	"github.com/dunamismax/previewflow/internal/id"
	"github.com/dunamismax/previewflow/internal/preview"
	"github.com/dunamismax/previewflow/internal/queue"
	"github.com/dunamismax/previewflow/internal/ratelimit"
	"github.com/dunamismax/previewflow/internal/store"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	server  *Server
	handler http.Handler
	jobs    *store.MemoryJobStore
	queue   *fakeQueue
	storage *fakeStorage
}

func newHarness(t *testing.T, limiter ratelimit.Limiter) *harness {
	t.Helper()

	h := &harness{
		jobs:    store.NewMemoryJobStore(),
		queue:   &fakeQueue{},
		storage: &fakeStorage{objects: map[string]bool{}},
	}
	h.server = NewServer(zerolog.Nop(), Deps{
		Queue:    h.queue,
		JobStore: h.jobs,
		Storage:  h.storage,
		Previews: preview.NewTransformer(brand.NewRenderer()),
		PreviewCfg: preview.Config{
			MaxWidth:    400,
			MaxHeight:   400,
			BrandHeight: 20,
			BrandName:   "Repository",
			BrandAbbrev: "REPO",
		},
		RateLimiter: limiter,
	}, Options{MaxUploadBytes: 4 << 20})
	h.handler = h.server.Handler()
	return h
}

func (h *harness) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthzAndFilterInfo(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/filter", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody(t, rec)
	assert.Equal(t, "BRANDED_PREVIEW", info["bundle_name"])
	assert.Equal(t, "JPEG", info["format"])
	assert.Equal(t, "Generated Branded Preview", info["description"])
}

func TestJobLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/v1/jobs", []byte(`{"source_type":"s3_presigned","source_name":"scan.tif","identifier":"123456789/42"}`))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	jobID := created["job_id"].(string)
	require.True(t, id.Valid(jobID))

	upload := created["upload"].(map[string]any)
	assert.Equal(t, "uploads/"+jobID+"/source", upload["object_key"])
	assert.Equal(t, "ready", upload["presigned_url_state"])
	assert.NotEmpty(t, upload["presigned_put_url"])

	// source not uploaded yet
	rec = h.do(t, http.MethodPost, "/v1/jobs/"+jobID+"/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	h.storage.put("uploads/" + jobID + "/source")
	rec = h.do(t, http.MethodPost, "/v1/jobs/"+jobID+"/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, domain.JobStatusQueued, decodeBody(t, rec)["status"])

	rec = h.do(t, http.MethodPost, "/v1/jobs/"+jobID+"/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Len(t, h.queue.payloads, 1)
	payload := h.queue.payloads[0]
	assert.Equal(t, jobID, payload.JobID)
	assert.Equal(t, "scan.tif", payload.SourceName)
	assert.Equal(t, "123456789/42", payload.Identifier)

	_, err := h.jobs.Finish(context.Background(), jobID, domain.JobStatusSucceeded, "outputs/BRANDED_PREVIEW/"+jobID+"/scan.tif.preview.jpg", "")
	require.NoError(t, err)

	rec = h.do(t, http.MethodGet, "/v1/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, domain.JobStatusSucceeded, got["status"])
	assert.Equal(t, "BRANDED_PREVIEW", got["bundle"])
	assert.Equal(t, "https://minio.test/outputs/BRANDED_PREVIEW/"+jobID+"/scan.tif.preview.jpg?get", got["download_url"])
}

func TestStartJobEnqueueFailureRevertsStatus(t *testing.T) {
	h := newHarness(t, nil)
	h.queue.err = errors.New("redis down")

	rec := h.do(t, http.MethodPost, "/v1/jobs", []byte(`{"source_type":"s3_presigned"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decodeBody(t, rec)["job_id"].(string)
	h.storage.put("uploads/" + jobID + "/source")

	rec = h.do(t, http.MethodPost, "/v1/jobs/"+jobID+"/start", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	job, _, err := h.jobs.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCreated, job.Status)
}

func TestStartJobAlreadyQueuedKeepsStatus(t *testing.T) {
	h := newHarness(t, nil)
	h.queue.err = fmt.Errorf("%w: job x", queue.ErrAlreadyQueued)

	rec := h.do(t, http.MethodPost, "/v1/jobs", []byte(`{"source_type":"s3_presigned"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decodeBody(t, rec)["job_id"].(string)
	h.storage.put("uploads/" + jobID + "/source")

	rec = h.do(t, http.MethodPost, "/v1/jobs/"+jobID+"/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	job, _, err := h.jobs.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
}

func TestJobRequestErrors(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{name: "empty create", method: http.MethodPost, target: "/v1/jobs", body: `{}`, want: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, target: "/v1/jobs", body: `{"source_type":"s3_presigned","pipeline":[]}`, want: http.StatusBadRequest},
		{name: "bad options", method: http.MethodPost, target: "/v1/jobs", body: `{"source_type":"s3_presigned","options":{"max_width":-3}}`, want: http.StatusBadRequest},
		{name: "bad id on start", method: http.MethodPost, target: "/v1/jobs/not-an-id/start", want: http.StatusBadRequest},
		{name: "unknown job", method: http.MethodGet, target: "/v1/jobs/" + id.New(), want: http.StatusNotFound},
		{name: "unknown job start", method: http.MethodPost, target: "/v1/jobs/" + id.New() + "/start", want: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, tc.method, tc.target, []byte(tc.body))
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRenderPreview(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/v1/previews?identifier=123456789/42&verbose=1&name=scan.png", testPNG(t, 800, 600))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "400", rec.Header().Get(HeaderPreviewWidth))
	assert.Equal(t, "320", rec.Header().Get(HeaderPreviewHeight))
	assert.Equal(t,
		"original size: 800,600; x scale factor: 0.5; new size: 400,300; created thumbnail size: 400,300",
		rec.Header().Get(HeaderPreviewTrace))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "scan.png.preview.jpg")

	cfg, format, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 320, cfg.Height)
}

func TestRenderPreviewWithoutVerboseHasNoTrace(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/v1/previews", testPNG(t, 50, 40))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderPreviewTrace))
	assert.Equal(t, "60", rec.Header().Get(HeaderPreviewHeight))
}

func TestRenderPreviewErrors(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/v1/previews", []byte("definitely not an image"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/previews", bytes.Repeat([]byte{0}, 5<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRateLimitRejects(t *testing.T) {
	limiter := &fakeLimiter{allow: false}
	h := newHarness(t, limiter)

	req := httptest.NewRequest(http.MethodPost, "/v1/previews", bytes.NewReader(testPNG(t, 10, 10)))
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"alice:/v1/previews"}, limiter.subjects)
	assert.Equal(t, []int{previewRenderCost}, limiter.costs)

	// reads are never limited
	rec = h.do(t, http.MethodGet, "/v1/filter", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, limiter.subjects, 1)
}

func TestRateLimitFailsOpen(t *testing.T) {
	h := newHarness(t, &fakeLimiter{err: errors.New("redis down")})
	rec := h.do(t, http.MethodPost, "/v1/jobs", []byte(`{"source_type":"s3_presigned"}`))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/v1/jobs/{id}/start", routeLabel("/v1/jobs/abc/start"))
	assert.Equal(t, "/v1/jobs/{id}", routeLabel("/v1/jobs/abc"))
	assert.Equal(t, "/v1/previews", routeLabel("/v1/previews"))
	assert.Equal(t, "other", routeLabel("/wp-admin"))
}

func TestTraceHeader(t *testing.T) {
	assert.Equal(t, "a; b", traceHeader("a\nb\n"))
	assert.Equal(t, "a", traceHeader("a"))
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeQueue struct {
	err      error
	payloads []queue.GeneratePreviewPayload
}

func (q *fakeQueue) EnqueueGeneratePreview(_ context.Context, payload queue.GeneratePreviewPayload) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.payloads = append(q.payloads, payload)
	return &asynq.TaskInfo{
		ID:            payload.JobID,
		Queue:         "previews",
		State:         asynq.TaskStatePending,
		NextProcessAt: time.Now(),
	}, nil
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]bool
}

func (s *fakeStorage) put(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = true
}

func (s *fakeStorage) PresignedPutURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://minio.test/" + key + "?put", nil
}

func (s *fakeStorage) PresignedGetURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://minio.test/" + key + "?get", nil
}

func (s *fakeStorage) ObjectExists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[strings.TrimSpace(key)], nil
}

type fakeLimiter struct {
	allow    bool
	err      error
	subjects []string
	costs    []int
}

func (l *fakeLimiter) AllowN(_ context.Context, subject string, cost int) (ratelimit.Decision, error) {
	if l.err != nil {
		return ratelimit.Decision{}, l.err
	}
	l.subjects = append(l.subjects, subject)
	l.costs = append(l.costs, cost)
	return ratelimit.Decision{Allowed: l.allow, RetryAfter: 1500 * time.Millisecond}, nil
}

func TestRenderOutcome(t *testing.T) {
	assert.Equal(t, "decode_failed", renderOutcome(fmt.Errorf("wrap: %w", preview.ErrDecode)))
	assert.Equal(t, "brand_failed", renderOutcome(preview.ErrBrand))
	assert.Equal(t, "failed", renderOutcome(errors.New("boom")))
}
