package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	jobsTotal            *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	activeJobs           prometheus.Gauge
	imagesTotal          *prometheus.CounterVec
	recompressFallbacks  prometheus.Counter
	webhookFailures      *prometheus.CounterVec
	pixelsProcessedTotal prometheus.Counter
	bytesSavedTotal      prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	return &metrics{
		registry: registry,
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cutout_worker_jobs_total",
			Help: "Total worker jobs by source type and outcome.",
		}, []string{"source_type", "status"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cutout_worker_job_duration_seconds",
			Help:    "Total processing duration for each worker job.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"source_type", "status"}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cutout_worker_active_jobs",
			Help: "Current number of active processing jobs in the worker.",
		}),
		imagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cutout_worker_images_total",
			Help: "Total processed images by output format.",
		}, []string{"format"}),
		recompressFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "cutout_worker_recompress_fallbacks_total",
			Help: "Total images that kept the lossless intermediate after a recompress failure.",
		}),
		webhookFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cutout_worker_webhook_failures_total",
			Help: "Total webhook deliveries that failed after all retries.",
		}, []string{"event"}),
		pixelsProcessedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cutout_usage_pixels_processed_total",
			Help: "Total pixels processed across all successful jobs.",
		}),
		bytesSavedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cutout_usage_bytes_saved_total",
			Help: "Total bytes saved across all successful jobs.",
		}),
		computeTimeMSTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cutout_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across successful jobs.",
		}),
	}
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
