// Package metrics exposes the Prometheus instruments of both services.
// Every method is safe on a nil *Metrics so components can run without them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "video_pipeline"

// Metrics owns a private registry so tests can build as many as they like
type Metrics struct {
	registry *prometheus.Registry

	httpDuration     *prometheus.HistogramVec
	uploadsIssued    prometheus.Counter
	intakeTotal      *prometheus.CounterVec
	publishDuration  prometheus.Histogram
	progressUpdates  *prometheus.CounterVec
	redrivePublished prometheus.Counter
	subscribers      prometheus.Gauge
	eventsDropped    prometheus.Counter
	workerJobs       *prometheus.CounterVec
	workerDuration   prometheus.Histogram
}

// New registers all instruments plus the Go and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		uploadsIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_sessions_issued_total",
			Help:      "Presigned upload URLs issued.",
		}),
		intakeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_total",
			Help:      "Upload completions by result (ok, invalid, persist_failed, publish_failed).",
		}, []string{"result"}),
		publishDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "intake_publish_duration_seconds",
			Help:      "Time spent publishing processing requests, retries included.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		progressUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_updates_total",
			Help:      "Status updates received on the internal gateway by outcome.",
		}, []string{"outcome"}),
		redrivePublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redrive_published_total",
			Help:      "Processing requests re-published for jobs that were never enqueued.",
		}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_subscribers",
			Help:      "Currently connected live notification subscribers.",
		}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_events_dropped_total",
			Help:      "Progress events dropped because a subscriber was not keeping up.",
		}),
		workerJobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_jobs_total",
			Help:      "Jobs handled by the worker by result.",
		}, []string{"result"}),
		workerDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_job_duration_seconds",
			Help:      "End-to-end processing time of a job in the worker.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) UploadIssued() {
	if m == nil {
		return
	}
	m.uploadsIssued.Inc()
}

func (m *Metrics) Intake(result string) {
	if m == nil {
		return
	}
	m.intakeTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePublish(d time.Duration) {
	if m == nil {
		return
	}
	m.publishDuration.Observe(d.Seconds())
}

func (m *Metrics) ProgressUpdate(outcome string) {
	if m == nil {
		return
	}
	m.progressUpdates.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Redriven() {
	if m == nil {
		return
	}
	m.redrivePublished.Inc()
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) WorkerJob(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.workerJobs.WithLabelValues(result).Inc()
	m.workerDuration.Observe(d.Seconds())
}
