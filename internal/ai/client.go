// Package ai - клиенты генеративного бэкенда и эмбеддингов.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scene-server/internal/models"

	openaigo "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

var (
	// ErrAIGenerationFailed - ошибка при обращении к генеративному бэкенду.
	ErrAIGenerationFailed = errors.New("ai generation failed")
	// ErrEmptyResponse - бэкенд вернул пустой ответ.
	ErrEmptyResponse = errors.New("ai returned empty response")
	// ErrInvalidOutput - структурированный ответ не прошёл разбор или проверку.
	ErrInvalidOutput = errors.New("ai returned invalid structured output")
)

// GenerationParams - параметры сэмплинга. nil означает значение бэкенда по умолчанию.
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// Schema - JSON-схема структурированного ответа.
type Schema struct {
	Name        string
	Description string
	Definition  jsonschema.Definition
}

// CompletionRequest - запрос к модели.
type CompletionRequest struct {
	// Model переопределяет модель клиента, если не пусто.
	Model    string
	Messages []models.PromptMessage
	// Schema включает структурированный вывод.
	Schema *Schema
	Params GenerationParams
	// Tag - метка вызывающего компонента для метрик и логов.
	Tag string
}

// UsageInfo содержит информацию об использовании токенов.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client - генеративный бэкенд. Реализации безопасны для конкурентного использования.
type Client interface {
	// Complete возвращает полный ответ модели.
	Complete(ctx context.Context, req CompletionRequest) (string, UsageInfo, error)
	// CompleteStream вызывает chunkHandler для каждого фрагмента по порядку.
	// Ошибка из chunkHandler прерывает поток и возвращается вызывающему.
	CompleteStream(ctx context.Context, req CompletionRequest, chunkHandler func(string) error) (UsageInfo, error)
}

// ClientConfig - настройки подключения к бэкенду.
type ClientConfig struct {
	Type    string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient создает клиент в зависимости от типа бэкенда.
func NewClient(cfg ClientConfig, logger *zap.Logger) (Client, error) {
	switch strings.ToLower(cfg.Type) {
	case "openai":
		openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
		openaiConfig.BaseURL = cfg.BaseURL
		openaiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		logger.Info("OpenAI client created",
			zap.String("baseURL", cfg.BaseURL), zap.String("model", cfg.Model), zap.Duration("timeout", cfg.Timeout))
		return &openAIClient{
			client: openaigo.NewClientWithConfig(openaiConfig),
			model:  cfg.Model,
			logger: logger.Named("OpenAIClient"),
		}, nil
	case "ollama":
		return newOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("неизвестный тип AI клиента: '%s'", cfg.Type)
	}
}

func modelOrDefault(req CompletionRequest, def string) string {
	if req.Model != "" {
		return req.Model
	}
	return def
}

func tagOrDefault(tag string) string {
	if tag == "" {
		return "unknown"
	}
	return tag
}
