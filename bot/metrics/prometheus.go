// Package metrics exports routing-pipeline metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter owns the metric vectors for the routing pipeline.
type Exporter struct {
	registry *prometheus.Registry

	routeRequests *prometheus.CounterVec
	routeLatency  *prometheus.HistogramVec
	layerMatched  *prometheus.CounterVec
	fallbackCalls *prometheus.CounterVec
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one).
	Registry *prometheus.Registry

	// Buckets for the latency histogram, in seconds.
	LatencyBuckets []float64
}

// DefaultConfig returns the default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}
}

// NewExporter creates and registers the routing metric vectors.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.routeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shoptalk",
			Subsystem: "router",
			Name:      "requests_total",
			Help:      "Total routed requests by final layer and mode",
		},
		[]string{"final_layer", "mode"},
	)
	e.routeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shoptalk",
			Subsystem: "router",
			Name:      "latency_seconds",
			Help:      "Routing latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"mode"},
	)
	e.layerMatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shoptalk",
			Subsystem: "router",
			Name:      "layer_matched_total",
			Help:      "Matches per cascade layer",
		},
		[]string{"layer_name"},
	)
	e.fallbackCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shoptalk",
			Subsystem: "fallback",
			Name:      "requests_total",
			Help:      "Generative backend dispatches by backend and status",
		},
		[]string{"backend", "status"},
	)

	registry.MustRegister(e.routeRequests, e.routeLatency, e.layerMatched, e.fallbackCalls)
	return e
}

// ObserveRoute records one completed routing request.
func (e *Exporter) ObserveRoute(finalLayer int, layerName, mode string, elapsed time.Duration) {
	e.routeRequests.WithLabelValues(strconv.Itoa(finalLayer), mode).Inc()
	e.routeLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
	e.layerMatched.WithLabelValues(layerName).Inc()
}

// ObserveFallback records one generative dispatch attempt.
func (e *Exporter) ObserveFallback(backend, status string) {
	e.fallbackCalls.WithLabelValues(backend, status).Inc()
}

// Handler returns the scrape handler for this exporter's registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
