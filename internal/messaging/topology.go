// Package messaging доставляет задачи индексации памяти через RabbitMQ.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// DefaultMemoryIndexQueue - очередь задач индексации памяти.
	DefaultMemoryIndexQueue = "memory_index_tasks"
	dlqRoutingKey           = "dlq"
)

// Topology - имена очереди задач и её dead letter пары.
type Topology struct {
	Queue string
}

func (t Topology) queue() string {
	if t.Queue == "" {
		return DefaultMemoryIndexQueue
	}
	return t.Queue
}

// DLX - dead letter exchange очереди.
func (t Topology) DLX() string { return t.queue() + "_dlx" }

// DLQ - очередь отклонённых задач.
func (t Topology) DLQ() string { return t.queue() + "_dlq" }

// Declare объявляет DLX, DLQ и основную durable очередь с перенаправлением отказов в DLX.
// Повторный вызов с теми же аргументами безопасен.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.DLX(), "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLX '%s': %w", t.DLX(), err)
	}
	if _, err := ch.QueueDeclare(t.DLQ(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ '%s': %w", t.DLQ(), err)
	}
	if err := ch.QueueBind(t.DLQ(), dlqRoutingKey, t.DLX(), false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ '%s' to '%s': %w", t.DLQ(), t.DLX(), err)
	}
	args := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    t.DLX(),
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
	if _, err := ch.QueueDeclare(t.queue(), true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", t.queue(), err)
	}
	return nil
}

// Dial подключается к RabbitMQ с экспоненциальными повторами, пока не истечёт maxWait или ctx.
func Dial(ctx context.Context, url string, maxWait time.Duration, logger *zap.Logger) (*amqp.Connection, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = maxWait

	var conn *amqp.Connection
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		c, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("RabbitMQ connection failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempt(s): %w", attempt, err)
	}
	logger.Info("Connected to RabbitMQ", zap.Int("attempt", attempt))
	return conn, nil
}
