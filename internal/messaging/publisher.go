package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"scene-server/internal/memory"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// MemoryIndexPublisher публикует задачи индексации в очередь.
// Реализует диспетчер записей памяти для режима MEMORY_WRITE_MODE=queue.
type MemoryIndexPublisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	topology Topology
	timeout  time.Duration
	log      zerolog.Logger
}

// NewMemoryIndexPublisher открывает канал и объявляет топологию очереди.
// Соединение conn управляется вызывающим кодом.
func NewMemoryIndexPublisher(conn *amqp.Connection, topology Topology, timeout time.Duration, log zerolog.Logger) (*MemoryIndexPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}
	ch, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open a channel")
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := topology.Declare(ch); err != nil {
		_ = ch.Close()
		log.Error().Err(err).Str("queue", topology.queue()).Msg("Failed to declare memory index topology")
		return nil, err
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	log.Info().Str("queue", topology.queue()).Msg("Memory index queue declared")
	return &MemoryIndexPublisher{
		ch:       ch,
		topology: topology,
		timeout:  timeout,
		log:      log.With().Str("component", "MemoryIndexPublisher").Logger(),
	}, nil
}

// Dispatch публикует задачу; ход не ждёт её обработки.
func (p *MemoryIndexPublisher) Dispatch(ctx context.Context, req memory.PutRequest) error {
	if req.Empty() {
		return nil
	}
	task := MemoryIndexTask{TaskID: uuid.NewString(), Request: req, CreatedAt: time.Now().UTC()}
	return p.Publish(ctx, task)
}

// Publish отправляет задачу как persistent сообщение.
func (p *MemoryIndexPublisher) Publish(ctx context.Context, task MemoryIndexTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		p.log.Error().Err(err).Str("task_id", task.TaskID).Msg("Failed to marshal memory index task")
		return fmt.Errorf("failed to marshal memory index task: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx, "", p.topology.queue(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    task.TaskID,
		Timestamp:    task.CreatedAt,
		Body:         body,
	})
	p.mu.Unlock()
	if err != nil {
		p.log.Error().Err(err).Str("task_id", task.TaskID).Msg("Failed to publish memory index task")
		return fmt.Errorf("failed to publish memory index task: %w", err)
	}
	p.log.Debug().
		Str("task_id", task.TaskID).
		Int("profiles", len(task.Request.Profiles)).
		Int("events", len(task.Request.Events)).
		Msg("Memory index task published")
	return nil
}

// Close закрывает канал RabbitMQ.
func (p *MemoryIndexPublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}
