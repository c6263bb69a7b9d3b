package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Embedder превращает тексты в векторы для семантического поиска.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderConfig - настройки OpenAI-совместимого эндпоинта эмбеддингов.
type EmbedderConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// OpenAIEmbedder вызывает /embeddings OpenAI-совместимого API.
type OpenAIEmbedder struct {
	client     *openaigo.Client
	model      string
	dimensions int
	logger     *zap.Logger
}

func NewOpenAIEmbedder(cfg EmbedderConfig, logger *zap.Logger) *OpenAIEmbedder {
	clientCfg := openaigo.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAIEmbedder{
		client:     openaigo.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		logger:     logger.Named("OpenAIEmbedder"),
	}
}

// Embed возвращает по одному вектору на каждый текст в том же порядке.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openaigo.EmbeddingRequest{
		Input: texts,
		Model: openaigo.EmbeddingModel(e.model),
	})
	if err != nil {
		embeddingRequestsTotal.WithLabelValues(e.model, "error").Inc()
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		embeddingRequestsTotal.WithLabelValues(e.model, "error").Inc()
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		if e.dimensions > 0 && len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: want %d, got %d", e.dimensions, len(d.Embedding))
		}
		out[d.Index] = d.Embedding
	}
	embeddingRequestsTotal.WithLabelValues(e.model, "success").Inc()
	e.logger.Debug("Embeddings created", zap.Int("count", len(out)), zap.Int("tokens", resp.Usage.TotalTokens))
	return out, nil
}
