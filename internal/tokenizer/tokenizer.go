// Package tokenizer считает токены текста для бюджетирования памяти и истории.
package tokenizer

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

const fallbackEncoding = "o200k_base"

// Counter считает токены в тексте.
type Counter interface {
	Count(text string) int
}

// Tiktoken - Counter на базе BPE-словаря tiktoken.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken загружает словарь для модели, а при неизвестной модели - o200k_base.
func NewTiktoken(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load tiktoken encoding for %s: %w", model, err)
		}
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Estimate - грубая оценка: четыре символа на токен.
type Estimate struct{}

func (Estimate) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// New возвращает Tiktoken, а если словарь недоступен (нет сети) - Estimate.
func New(model string, logger *zap.Logger) Counter {
	tk, err := NewTiktoken(model)
	if err != nil {
		logger.Warn("Tokenizer unavailable, falling back to estimate", zap.String("model", model), zap.Error(err))
		return Estimate{}
	}
	return tk
}
