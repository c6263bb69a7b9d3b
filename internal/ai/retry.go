package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ollama/ollama/api"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// RetryPolicy - экспоненциальные повторы с джиттером и дедлайном на каждую попытку.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// Permanent помечает ошибку как не подлежащую повтору.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do выполняет fn до MaxAttempts раз. Повторяются только временные ошибки
// (см. IsTransient); отмена родительского контекста прекращает повторы сразу.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, operation string, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = p.BaseDelay
	expBackoff.MaxInterval = maxDelay
	expBackoff.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		defer cancel()

		err := fn(attemptCtx, attempt)
		if err == nil {
			return nil
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return err
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		aiRetriesTotal.WithLabelValues(operation).Inc()
		logger.Warn("Retrying after transient error",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxAttempts),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(maxAttempts-1)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return fmt.Errorf("%s failed after %d attempt(s): %w", operation, attempt, err)
	}
	return nil
}

// IsTransient сообщает, имеет ли смысл повторить вызов после ошибки.
// Отмена контекста и ошибки 4xx (кроме 408 и 429) считаются постоянными.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrInvalidOutput) {
		return true
	}

	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openaigo.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 0 || retryableStatus(reqErr.HTTPStatusCode)
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Прочие ошибки бэкенда (обрыв потока, некорректный ответ) повторяем
	return errors.Is(err, ErrAIGenerationFailed)
}

func retryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	case code == 0:
		return true
	default:
		return false
	}
}
