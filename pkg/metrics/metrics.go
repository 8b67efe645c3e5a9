// Package metrics provides per-worker metrics collection exposed for
// external scraping. Each worker instance owns its own registry; nothing is
// shared process-globally, so tests and partition loops stay isolated.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes metrics for one worker instance.
type Collector struct {
	registry *prometheus.Registry

	processedTotal       prometheus.Counter
	errorsTotal          *prometheus.CounterVec
	alertsGeneratedTotal prometheus.Counter
	processingLatencyMs  prometheus.Histogram
	bufferUtilizationPct prometheus.Histogram
}

// NewCollector creates a metrics collector for the named worker, backed by a
// registry owned by the returned Collector.
func NewCollector(worker string) *Collector {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"worker": worker}

	c := &Collector{
		registry: registry,
		processedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "processed_total",
			Help:        "Batches processed successfully.",
			ConstLabels: labels,
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "errors_total",
			Help:        "Processing failures by error kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		alertsGeneratedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "alerts_generated_total",
			Help:        "Alerts generated and handed to distribution.",
			ConstLabels: labels,
		}),
		processingLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "processing_latency_ms",
			Help:        "Per-batch processing latency in milliseconds.",
			ConstLabels: labels,
			Buckets:     []float64{1, 2, 5, 10, 25, 50, 75, 100, 250, 500, 1000},
		}),
		bufferUtilizationPct: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "buffer_utilization_pct",
			Help:        "Utilization of bounded pipeline buffers at sample time, 0-100.",
			ConstLabels: labels,
			Buckets:     []float64{10, 25, 50, 75, 90, 95, 100},
		}),
	}

	registry.MustRegister(
		c.processedTotal,
		c.errorsTotal,
		c.alertsGeneratedTotal,
		c.processingLatencyMs,
		c.bufferUtilizationPct,
	)

	return c
}

// RecordProcessed increments the processed counter and records the batch latency.
func (c *Collector) RecordProcessed(latency time.Duration) {
	c.processedTotal.Inc()
	c.processingLatencyMs.Observe(float64(latency.Nanoseconds()) / 1e6)
}

// RecordError increments the error counter for the given kind.
func (c *Collector) RecordError(kind string) {
	c.errorsTotal.WithLabelValues(kind).Inc()
}

// AddAlertsGenerated adds n to the generated-alerts counter.
func (c *Collector) AddAlertsGenerated(n int) {
	c.alertsGeneratedTotal.Add(float64(n))
}

// RecordBufferUtilization records a buffer utilization sample in percent.
func (c *Collector) RecordBufferUtilization(pct float64) {
	c.bufferUtilizationPct.Observe(pct)
}

// Handler returns an HTTP handler exposing this collector's registry in the
// Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, primarily for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
