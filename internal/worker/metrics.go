package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry            *prometheus.Registry
	jobsTotal           *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
	activeJobs          prometheus.Gauge
	failuresTotal       *prometheus.CounterVec
	previewBytesTotal   prometheus.Counter
	sourcePixelsTotal   prometheus.Counter
	webhookFailureTotal prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "previewflow_worker_jobs_total",
			Help: "Total preview jobs by source type and final status.",
		}, []string{"source_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "previewflow_worker_job_duration_seconds",
			Help:    "Fetch, render and store duration for each preview job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "previewflow_worker_active_jobs",
			Help: "Current number of previews being rendered.",
		}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "previewflow_worker_failures_total",
			Help: "Failed preview attempts by failure kind.",
		}, []string{"kind"}),
		previewBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "previewflow_worker_preview_bytes_total",
			Help: "Total JPEG bytes written for successful previews.",
		}),
		sourcePixelsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "previewflow_worker_source_pixels_total",
			Help: "Total source pixels decoded for successful previews.",
		}),
		webhookFailureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "previewflow_worker_webhook_failures_total",
			Help: "Webhook deliveries that failed after all attempts.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.failuresTotal,
		m.previewBytesTotal,
		m.sourcePixelsTotal,
		m.webhookFailureTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
