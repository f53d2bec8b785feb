// Package metrics exposes Prometheus instrumentation for the estimator.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "damage_estimator"

// Metrics owns a private registry so tests can create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	imageOutcomes    *prometheus.CounterVec
	estimatedCost    *prometheus.HistogramVec
	classifyDuration *prometheus.HistogramVec
	batchSize        prometheus.Histogram
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		requestInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
		}),
		imageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "estimation",
			Name:      "images_total",
			Help:      "Processed images by outcome kind and reason.",
		}, []string{"kind", "reason"}),
		estimatedCost: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "estimation",
			Name:      "adjusted_cost",
			Help:      "Distribution of adjusted repair costs.",
			Buckets:   []float64{1000, 2000, 3000, 5000, 10000, 50000, 100000, 150000},
		}, []string{"severity"}),
		classifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "duration_seconds",
			Help:      "Classifier call latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"status"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "estimation",
			Name:      "batch_images",
			Help:      "Images accepted per predict request.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6},
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.imageOutcomes,
		m.estimatedCost,
		m.classifyDuration,
		m.batchSize,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latencies by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.requestTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveOutcome counts one processed image. Successful images use kind "success".
func (m *Metrics) ObserveOutcome(kind, reason string) {
	if reason == "" {
		reason = "none"
	}
	m.imageOutcomes.WithLabelValues(kind, reason).Inc()
}

// ObserveCost records the adjusted cost of a persisted estimate.
func (m *Metrics) ObserveCost(severity string, cost int) {
	m.estimatedCost.WithLabelValues(severity).Observe(float64(cost))
}

// ObserveClassification records a classifier call.
func (m *Metrics) ObserveClassification(elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.classifyDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveBatch records how many images a request carried after truncation.
func (m *Metrics) ObserveBatch(images int) {
	m.batchSize.Observe(float64(images))
}
