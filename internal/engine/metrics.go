package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// eventsRecorded counts ingested funnel events.
	// Labels: kind (impression, click, conversion), outcome (counted, uncounted, duplicate, rejected)
	eventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "offer_goat",
		Subsystem: "events",
		Name:      "recorded_total",
		Help:      "Funnel events recorded by kind and outcome",
	}, []string{"kind", "outcome"})

	// assignments counts variant assignments.
	// Labels: variant
	assignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "offer_goat",
		Subsystem: "assignment",
		Name:      "total",
		Help:      "Variant assignments by variant",
	}, []string{"variant"})

	// transitions counts lifecycle transitions.
	// Labels: action, result (ok, rejected)
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "offer_goat",
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Experiment lifecycle transitions by action and result",
	}, []string{"action", "result"})

	recalcDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "offer_goat",
		Subsystem: "stats",
		Name:      "recalculate_duration_seconds",
		Help:      "Time to recompute and persist experiment statistics",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	autoWinnerPasses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "offer_goat",
		Subsystem: "auto_winner",
		Name:      "passes_total",
		Help:      "Completed auto-winner passes",
	})

	autoWinnerPromotions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "offer_goat",
		Subsystem: "auto_winner",
		Name:      "promotions_total",
		Help:      "Experiments promoted to winner_selected by the auto-winner pass",
	})

	autoWinnerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "offer_goat",
		Subsystem: "auto_winner",
		Name:      "failures_total",
		Help:      "Experiments the auto-winner pass could not evaluate",
	})
)
