package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAIClient реализует Client через OpenAI-совместимый API.
type openAIClient struct {
	client *openaigo.Client
	model  string
	logger *zap.Logger
}

func (c *openAIClient) buildRequest(req CompletionRequest, stream bool) openaigo.ChatCompletionRequest {
	messages := make([]openaigo.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openaigo.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	out := openaigo.ChatCompletionRequest{
		Model:       modelOrDefault(req, c.model),
		Messages:    messages,
		Temperature: float32Val(req.Params.Temperature),
		MaxTokens:   intVal(req.Params.MaxTokens),
		TopP:        float32Val(req.Params.TopP),
	}
	if req.Schema != nil {
		def := req.Schema.Definition
		out.ResponseFormat = &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openaigo.ChatCompletionResponseFormatJSONSchema{
				Name:        req.Schema.Name,
				Description: req.Schema.Description,
				Schema:      &def,
				Strict:      true,
			},
		}
	}
	if stream {
		out.Stream = true
		out.StreamOptions = &openaigo.StreamOptions{IncludeUsage: true}
	}
	return out
}

func (c *openAIClient) Complete(ctx context.Context, req CompletionRequest) (string, UsageInfo, error) {
	usage := UsageInfo{}
	model := modelOrDefault(req, c.model)
	tag := tagOrDefault(req.Tag)
	if len(req.Messages) == 0 {
		aiRequestsTotal.WithLabelValues(model, tag, "error").Inc()
		return "", usage, fmt.Errorf("%w: no messages", ErrAIGenerationFailed)
	}

	startTime := time.Now()
	c.logger.Debug("Sending AI request", zap.String("model", model), zap.String("tag", tag), zap.Int("messages", len(req.Messages)))

	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req, false))
	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("AI request failed", zap.String("model", model), zap.String("tag", tag), zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(model, tag, "error").Inc()
		return "", usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		aiRequestsTotal.WithLabelValues(model, tag, "error_empty_response").Inc()
		return "", usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, ErrEmptyResponse)
	}

	aiRequestsTotal.WithLabelValues(model, tag, "success").Inc()
	aiRequestDuration.WithLabelValues(model, tag).Observe(duration.Seconds())
	usage = UsageInfo{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	observeUsage(model, tag, usage)
	c.logger.Debug("AI response received",
		zap.String("model", model), zap.String("tag", tag), zap.Duration("duration", duration),
		zap.Int("promptTokens", usage.PromptTokens), zap.Int("completionTokens", usage.CompletionTokens))

	return resp.Choices[0].Message.Content, usage, nil
}

func (c *openAIClient) CompleteStream(ctx context.Context, req CompletionRequest, chunkHandler func(string) error) (UsageInfo, error) {
	usage := UsageInfo{}
	model := modelOrDefault(req, c.model)
	tag := tagOrDefault(req.Tag)
	if len(req.Messages) == 0 {
		return usage, fmt.Errorf("%w: no messages", ErrAIGenerationFailed)
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
	if err != nil {
		c.logger.Warn("AI stream init failed", zap.String("model", model), zap.String("tag", tag), zap.Error(err))
		aiRequestsTotal.WithLabelValues(model, tag, "error_stream_init").Inc()
		return usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, err)
	}
	defer stream.Close()

	startTime := time.Now()
	var received strings.Builder
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			aiRequestsTotal.WithLabelValues(model, tag, "error_stream_read").Inc()
			return usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, err)
		}
		if response.Usage != nil && response.Usage.TotalTokens > 0 {
			usage = UsageInfo{
				PromptTokens:     response.Usage.PromptTokens,
				CompletionTokens: response.Usage.CompletionTokens,
				TotalTokens:      response.Usage.TotalTokens,
			}
		}
		if len(response.Choices) == 0 {
			continue
		}
		chunk := response.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		received.WriteString(chunk)
		if chunkHandler != nil {
			if err := chunkHandler(chunk); err != nil {
				aiRequestsTotal.WithLabelValues(model, tag, "aborted").Inc()
				return usage, err
			}
		}
	}

	duration := time.Since(startTime)
	if received.Len() == 0 {
		aiRequestsTotal.WithLabelValues(model, tag, "error_empty_response").Inc()
		return usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, ErrEmptyResponse)
	}
	aiRequestsTotal.WithLabelValues(model, tag, "success_stream").Inc()
	aiRequestDuration.WithLabelValues(model, tag).Observe(duration.Seconds())
	observeUsage(model, tag, usage)
	c.logger.Debug("AI stream finished",
		zap.String("model", model), zap.String("tag", tag), zap.Duration("duration", duration), zap.Int("chars", received.Len()))
	return usage, nil
}

func float32Val(f64 *float64) float32 {
	if f64 == nil {
		// 0 опускается при сериализации, бэкенд подставит своё значение
		return 0
	}
	return float32(*f64)
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
