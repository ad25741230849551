package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/previewflow/internal/preview"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	queueEnqueued     *prometheus.CounterVec
	previewsRendered  *prometheus.CounterVec
	renderDuration    prometheus.Histogram
	previewBytes      prometheus.Histogram
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "previewflow_api_requests_total",
			Help: "HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "previewflow_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "previewflow_api_rate_limit_rejections_total",
			Help: "API requests rejected by rate limiting.",
		}, []string{"route"}),
		queueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "previewflow_queue_jobs_enqueued_total",
			Help: "Preview jobs handed to the worker queue.",
		}, []string{"queue"}),
		previewsRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "previewflow_api_sync_previews_total",
			Help: "Synchronous previews rendered by the API, by outcome.",
		}, []string{"outcome"}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "previewflow_api_sync_render_seconds",
			Help:    "Time spent rendering synchronous previews.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		previewBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "previewflow_api_sync_preview_bytes",
			Help:    "Size of synchronously rendered JPEG previews.",
			Buckets: prometheus.ExponentialBuckets(4<<10, 2, 10),
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.queueEnqueued,
		m.previewsRendered,
		m.renderDuration,
		m.previewBytes,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// observeRender records one synchronous render. Failures are labelled with
// the preview error they wrap.
func (m *metrics) observeRender(res preview.Result, elapsed time.Duration, err error) {
	m.renderDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.previewsRendered.WithLabelValues(renderOutcome(err)).Inc()
		return
	}
	m.previewsRendered.WithLabelValues("succeeded").Inc()
	m.previewBytes.Observe(float64(len(res.Data)))
}

func renderOutcome(err error) string {
	switch {
	case errors.Is(err, preview.ErrDecode):
		return "decode_failed"
	case errors.Is(err, preview.ErrConfig):
		return "config_failed"
	case errors.Is(err, preview.ErrScale):
		return "scale_failed"
	case errors.Is(err, preview.ErrBrand):
		return "brand_failed"
	case errors.Is(err, preview.ErrEncode):
		return "encode_failed"
	default:
		return "failed"
	}
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses job ids so label cardinality stays bounded.
func routeLabel(path string) string {
	rest, isJob := strings.CutPrefix(path, "/v1/jobs/")
	switch {
	case isJob && strings.HasSuffix(rest, "/start"):
		return "/v1/jobs/{id}/start"
	case isJob:
		return "/v1/jobs/{id}"
	}
	switch path {
	case "/v1/jobs", "/v1/previews", "/v1/filter", "/healthz", "/metrics":
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
