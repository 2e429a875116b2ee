package reminder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the reminder subsystem.
type Metrics struct {
	// DispatchedTotal counts dispatched reminders by send outcome.
	DispatchedTotal *prometheus.CounterVec

	// MaterializedTotal counts reminder rows written.
	MaterializedTotal prometheus.Counter

	// TicksSkippedTotal counts ticks skipped by the single-flight guard.
	TicksSkippedTotal prometheus.Counter

	// TickDuration is the time to drain one due set.
	TickDuration prometheus.Histogram
}

// NewMetrics creates and registers Prometheus metrics for reminders.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		DispatchedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_dispatched_total",
				Help:      "Total number of reminders dispatched",
			},
			[]string{"status"},
		),

		MaterializedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_materialized_total",
				Help:      "Total number of reminder rows written",
			},
		),

		TicksSkippedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatcher_ticks_skipped_total",
				Help:      "Ticks skipped because the previous one was still running",
			},
		),

		TickDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatcher_tick_duration_seconds",
				Help:      "Time to drain one batch of due reminders",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5},
			},
		),
	}
}

// IncDispatched increments the dispatch counter for an outcome.
func (m *Metrics) IncDispatched(status string) {
	m.DispatchedTotal.WithLabelValues(status).Inc()
}

// AddMaterialized adds to the materialized counter.
func (m *Metrics) AddMaterialized(count int) {
	m.MaterializedTotal.Add(float64(count))
}

// IncTickSkipped increments the skipped-tick counter.
func (m *Metrics) IncTickSkipped() {
	m.TicksSkippedTotal.Inc()
}

// ObserveTickDuration records the time taken by one tick.
func (m *Metrics) ObserveTickDuration(seconds float64) {
	m.TickDuration.Observe(seconds)
}
