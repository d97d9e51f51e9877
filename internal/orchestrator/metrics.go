package orchestrator

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds one orchestrator's counters in its own registry.
type metrics struct {
	registry   *prometheus.Registry
	entries    *prometheus.CounterVec
	generation prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aiunit_entries_total",
			Help: "Gap report entries handled, by outcome.",
		}, []string{"status"}),
		generation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aiunit_generation_seconds",
			Help:    "Latency of generation service calls.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
	}
	m.registry.MustRegister(m.entries, m.generation)
	return m
}

// WriteMetrics writes the run metrics in the node-exporter textfile
// format.
func (o *Orchestrator) WriteMetrics(path string) error {
	if err := prometheus.WriteToTextfile(path, o.metrics.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Gatherer exposes the registry, e.g. for an HTTP handler.
func (o *Orchestrator) Gatherer() prometheus.Gatherer {
	return o.metrics.registry
}
