package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scene_memory_retrieval_duration_seconds",
		Help:    "Duration of a full memory retrieval.",
		Buckets: prometheus.DefBuckets,
	})
	retrievedItems = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scene_memory_retrieved_items",
		Help:    "Number of memories returned per retrieval, by kind.",
		Buckets: prometheus.LinearBuckets(0, 2, 10),
	}, []string{"kind"})
	memoryWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scene_memory_writes_total",
		Help: "Memories written or skipped, by kind and outcome.",
	}, []string{"kind", "outcome"})
)
