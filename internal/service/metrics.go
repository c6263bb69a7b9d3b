package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scene_turns_total",
		Help: "Processed turns by kind and outcome.",
	}, []string{"kind", "outcome"})

	prepareDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scene_turn_prepare_duration_seconds",
		Help:    "Duration of turn preparation: history, memories, enhancement, plan.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scene_step_duration_seconds",
		Help:    "Duration of a single plan step.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	}, []string{"mode", "step_type", "outcome"})

	planSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scene_plan_steps",
		Help:    "Number of steps in executed plans.",
		Buckets: prometheus.LinearBuckets(1, 1, 6),
	})
)
