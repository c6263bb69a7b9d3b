package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memory_index_tasks_received_total",
		Help: "Memory index tasks received from the queue.",
	})
	tasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memory_index_tasks_processed_total",
		Help: "Memory index tasks by outcome.",
	}, []string{"outcome"})
	taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "memory_index_task_duration_seconds",
		Help:    "Time spent indexing one task.",
		Buckets: prometheus.DefBuckets,
	})
)
