package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink aggregates invocation events into Prometheus metrics held in
// a private registry.
type PrometheusSink struct {
	registry *prometheus.Registry
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	waits    *prometheus.HistogramVec
}

// NewPrometheusSink creates a sink with its own registry.
func NewPrometheusSink() *PrometheusSink {
	s := &PrometheusSink{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grantwriter",
			Name:      "invocation_attempts_total",
			Help:      "Model invocation attempts by stage and outcome.",
		}, []string{"stage", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grantwriter",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of individual model calls.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage", "provider"}),
		waits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grantwriter",
			Name:      "backoff_wait_seconds",
			Help:      "Backoff waits before retried attempts.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 60},
		}, []string{"stage"}),
	}
	s.registry.MustRegister(s.attempts, s.latency, s.waits)
	return s
}

func (s *PrometheusSink) Record(e Event) {
	s.attempts.WithLabelValues(e.Stage, string(e.Outcome)).Inc()
	s.latency.WithLabelValues(e.Stage, e.Provider).Observe(e.Elapsed.Seconds())
	if e.Attempt > 1 {
		s.waits.WithLabelValues(e.Stage).Observe(e.Wait.Seconds())
	}
}

// Registry exposes the underlying registry.
func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

// WriteTextfile writes the current metrics in the text exposition format,
// suitable for a node exporter textfile collector.
func (s *PrometheusSink) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, s.registry)
}
