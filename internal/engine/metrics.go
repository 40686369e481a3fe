package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's lifecycle counters. Labels carry outcomes and
// reasons only, never source identifiers, to keep cardinality bounded.
type Metrics struct {
	Decisions      *prometheus.CounterVec
	Removals       *prometheus.CounterVec
	CancelFailures prometheus.Counter
	PostFailures   prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kyuubimask",
				Name:      "decisions_total",
				Help:      "Posted notifications by terminal outcome",
			},
			[]string{"outcome", "reason"},
		),
		Removals: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kyuubimask",
				Name:      "removals_total",
				Help:      "Removed notifications",
			},
			[]string{"kind"}, // kind=masked/original
		),
		CancelFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "kyuubimask",
				Name:      "cancel_failures_total",
				Help:      "Originals that could not be cancelled",
			},
		),
		PostFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "kyuubimask",
				Name:      "post_failures_total",
				Help:      "Replacements dropped after the original was cancelled",
			},
		),
	}
}

func (m *Metrics) observe(d Decision) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(string(d.Outcome), string(d.Reason)).Inc()
	switch d.Reason {
	case ReasonCancelFailed:
		m.CancelFailures.Inc()
	case ReasonPostFailed:
		m.PostFailures.Inc()
	}
}

func (m *Metrics) removed(kind string) {
	if m == nil {
		return
	}
	m.Removals.WithLabelValues(kind).Inc()
}
