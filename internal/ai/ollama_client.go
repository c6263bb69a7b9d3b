package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// ollamaClient реализует Client через нативный API Ollama.
type ollamaClient struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

func newOllamaClient(cfg ClientConfig, logger *zap.Logger) (Client, error) {
	// api.NewClient ждёт URL без суффикса /v1
	baseURL := strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/v1")
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", baseURL, err)
	}
	logger.Info("Ollama client created",
		zap.String("baseURL", baseURL), zap.String("model", cfg.Model), zap.Duration("timeout", cfg.Timeout))
	return &ollamaClient{
		client: api.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout}),
		model:  cfg.Model,
		logger: logger.Named("OllamaClient"),
	}, nil
}

func (c *ollamaClient) buildRequest(req CompletionRequest, stream bool) (*api.ChatRequest, error) {
	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: string(m.Role), Content: m.Content})
	}
	options := map[string]interface{}{}
	if req.Params.Temperature != nil {
		options["temperature"] = *req.Params.Temperature
	}
	if req.Params.TopP != nil {
		options["top_p"] = *req.Params.TopP
	}
	if req.Params.MaxTokens != nil {
		options["num_predict"] = *req.Params.MaxTokens
	}
	out := &api.ChatRequest{
		Model:    modelOrDefault(req, c.model),
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
	if req.Schema != nil {
		def := req.Schema.Definition
		format, err := json.Marshal(&def)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response schema %s: %w", req.Schema.Name, err)
		}
		out.Format = format
	}
	return out, nil
}

func (c *ollamaClient) Complete(ctx context.Context, req CompletionRequest) (string, UsageInfo, error) {
	usage := UsageInfo{}
	model := modelOrDefault(req, c.model)
	tag := tagOrDefault(req.Tag)
	chatReq, err := c.buildRequest(req, false)
	if err != nil {
		return "", usage, err
	}

	startTime := time.Now()
	var resp api.ChatResponse
	err = c.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("Ollama request failed", zap.String("model", model), zap.String("tag", tag), zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(model, tag, "error").Inc()
		return "", usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, err)
	}
	if resp.Message.Content == "" {
		aiRequestsTotal.WithLabelValues(model, tag, "error_empty_response").Inc()
		return "", usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, ErrEmptyResponse)
	}

	aiRequestsTotal.WithLabelValues(model, tag, "success").Inc()
	aiRequestDuration.WithLabelValues(model, tag).Observe(duration.Seconds())
	usage = UsageInfo{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	observeUsage(model, tag, usage)
	return resp.Message.Content, usage, nil
}

func (c *ollamaClient) CompleteStream(ctx context.Context, req CompletionRequest, chunkHandler func(string) error) (UsageInfo, error) {
	usage := UsageInfo{}
	model := modelOrDefault(req, c.model)
	tag := tagOrDefault(req.Tag)
	chatReq, err := c.buildRequest(req, true)
	if err != nil {
		return usage, err
	}

	var handlerErr error
	received := 0
	startTime := time.Now()
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			received += len(resp.Message.Content)
			if chunkHandler != nil {
				if err := chunkHandler(resp.Message.Content); err != nil {
					handlerErr = err
					return err
				}
			}
		}
		if resp.Done {
			usage = UsageInfo{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			}
			if resp.DoneReason != "" && resp.DoneReason != "stop" {
				c.logger.Warn("Ollama stream finished with unexpected reason", zap.String("reason", resp.DoneReason))
			}
		}
		return nil
	})
	duration := time.Since(startTime)

	if handlerErr != nil {
		aiRequestsTotal.WithLabelValues(model, tag, "aborted").Inc()
		return usage, handlerErr
	}
	if err != nil {
		c.logger.Warn("Ollama stream failed", zap.String("model", model), zap.String("tag", tag), zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(model, tag, "error_stream").Inc()
		return usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, err)
	}
	if received == 0 {
		aiRequestsTotal.WithLabelValues(model, tag, "error_empty_response").Inc()
		return usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, ErrEmptyResponse)
	}

	aiRequestsTotal.WithLabelValues(model, tag, "success_stream").Inc()
	aiRequestDuration.WithLabelValues(model, tag).Observe(duration.Seconds())
	observeUsage(model, tag, usage)
	return usage, nil
}
