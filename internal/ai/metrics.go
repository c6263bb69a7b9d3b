package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scene_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"model", "tag", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scene_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "tag"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scene_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(500, 500, 20),
		},
		[]string{"model", "tag"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scene_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(50, 50, 20),
		},
		[]string{"model", "tag"},
	)
	aiRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scene_ai_retries_total",
			Help: "Total number of retried AI calls.",
		},
		[]string{"operation"},
	)
	embeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scene_embedding_requests_total",
			Help: "Total number of embedding requests.",
		},
		[]string{"model", "status"},
	)
)

func observeUsage(model, tag string, usage UsageInfo) {
	if usage.TotalTokens <= 0 {
		return
	}
	aiPromptTokens.WithLabelValues(model, tag).Observe(float64(usage.PromptTokens))
	aiCompletionTokens.WithLabelValues(model, tag).Observe(float64(usage.CompletionTokens))
}
