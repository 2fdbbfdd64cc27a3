package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// ImportMetrics records import runs and the per-item outcomes of each phase.
type ImportMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	items    *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

// NewImportMetrics registers the import metrics on the provided registerer.
func NewImportMetrics(reg prometheus.Registerer) *ImportMetrics {
	if reg == nil {
		return &ImportMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_import_runs_total",
		Help: "Import runs by terminal status.",
	}, []string{"status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_import_phase_duration_seconds",
		Help:    "Duration of each import phase in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"phase"})
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_import_items_total",
		Help: "Items processed by the batched executor.",
	}, []string{"phase", "outcome"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_import_retries_total",
		Help: "Retry attempts triggered by transient remote failures.",
	}, []string{"phase"})
	reg.MustRegister(runs, duration, items, retries)
	return &ImportMetrics{
		runs:     runs,
		duration: duration,
		items:    items,
		retries:  retries,
	}
}

// IncRun counts a run that reached the given terminal status.
func (m *ImportMetrics) IncRun(status string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(status)).Inc()
}

// ObservePhase records how long a phase took.
func (m *ImportMetrics) ObservePhase(phase string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(phase)).Observe(d.Seconds())
}

// AddItems adds n items with the given outcome to the phase counter.
func (m *ImportMetrics) AddItems(phase, outcome string, n int) {
	if m == nil || m.items == nil || n <= 0 {
		return
	}
	m.items.WithLabelValues(normalizeLabel(phase), normalizeLabel(outcome)).Add(float64(n))
}

// IncRetry counts one retry in the phase.
func (m *ImportMetrics) IncRetry(phase string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(phase)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
