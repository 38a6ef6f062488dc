// Package telemetry exposes Prometheus counters for the inference service.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "redshift"

// Metrics groups the collectors registered by the server.
type Metrics struct {
	registry *prometheus.Registry

	Predictions    *prometheus.CounterVec
	Failures       *prometheus.CounterVec
	Latency        *prometheus.HistogramVec
	CandidateSaves prometheus.Counter
	ModelLoaded    prometheus.Gauge
}

// New creates the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Rows scored, by predicted class.",
		}, []string{"class"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_failures_total",
			Help:      "Rows rejected before scoring, by error kind.",
		}, []string{"kind"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"route"}),
		CandidateSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_saved_total",
			Help:      "Candidate records persisted.",
		}),
		ModelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "1 once the model artifact is in memory.",
		}),
	}
	reg.MustRegister(
		m.Predictions,
		m.Failures,
		m.Latency,
		m.CandidateSaves,
		m.ModelLoaded,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePrediction counts one scored row.
func (m *Metrics) ObservePrediction(class string) {
	m.Predictions.WithLabelValues(class).Inc()
}

// ObserveFailure counts one rejected row.
func (m *Metrics) ObserveFailure(kind string) {
	m.Failures.WithLabelValues(kind).Inc()
}

// Time records the time since start against route.
func (m *Metrics) Time(route string, start time.Time) {
	m.Latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
}
