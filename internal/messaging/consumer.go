package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"scene-server/internal/memory"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MemoryPutter - запись пакета памяти в индексы.
type MemoryPutter interface {
	Put(ctx context.Context, req memory.PutRequest) (memory.PutResult, error)
}

// ConsumerConfig - параметры обработки задач.
type ConsumerConfig struct {
	Topology    Topology
	Concurrency int
	TaskTimeout time.Duration
}

// MemoryIndexConsumer читает задачи индексации с ручным подтверждением.
// Некорректные задачи сразу уходят в DLQ. Сбой записи возвращает задачу
// в очередь один раз; повторный сбой отправляет её в DLQ.
type MemoryIndexConsumer struct {
	conn    *amqp.Connection
	putter  MemoryPutter
	cfg     ConsumerConfig
	logger  *zap.Logger
	channel *amqp.Channel
	tag     string
	wg      sync.WaitGroup
}

func NewMemoryIndexConsumer(conn *amqp.Connection, putter MemoryPutter, cfg ConsumerConfig, logger *zap.Logger) *MemoryIndexConsumer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	return &MemoryIndexConsumer{
		conn:   conn,
		putter: putter,
		cfg:    cfg,
		logger: logger.Named("MemoryIndexConsumer"),
		tag:    "memory-indexer-" + uuid.NewString(),
	}
}

// Start объявляет топологию и запускает Concurrency обработчиков.
// Обработчики завершаются, когда закрыт канал доставки или отменён ctx.
func (c *MemoryIndexConsumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		c.logger.Error("Failed to open channel for memory index consumer", zap.Error(err))
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := c.cfg.Topology.Declare(ch); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(c.cfg.Concurrency, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	queue := c.cfg.Topology.queue()
	msgs, err := ch.Consume(queue, c.tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		c.logger.Error("Failed to register memory index consumer", zap.String("queue", queue), zap.Error(err))
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	c.channel = ch
	c.logger.Info("Memory index consumer started", zap.String("queue", queue), zap.Int("concurrency", c.cfg.Concurrency))

	for i := 0; i < c.cfg.Concurrency; i++ {
		c.wg.Add(1)
		go func(worker int) {
			defer c.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Panic recovered in memory index worker", zap.Int("worker", worker), zap.Any("panic", r))
				}
			}()
			for {
				select {
				case msg, ok := <-msgs:
					if !ok {
						c.logger.Info("Delivery channel closed", zap.Int("worker", worker))
						return
					}
					c.handleDelivery(ctx, msg)
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}
	return nil
}

// handleDelivery обрабатывает одно сообщение и подтверждает или отклоняет его.
func (c *MemoryIndexConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	tasksReceived.Inc()
	start := time.Now()
	defer func() { taskDuration.Observe(time.Since(start).Seconds()) }()

	var task MemoryIndexTask
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		c.logger.Error("Failed to unmarshal memory index task, sending to DLQ", zap.Error(err), zap.ByteString("body", msg.Body))
		tasksProcessed.WithLabelValues("malformed").Inc()
		_ = msg.Nack(false, false)
		return
	}
	log := c.logger.With(zap.String("taskID", task.TaskID))

	taskCtx, cancel := context.WithTimeout(ctx, c.cfg.TaskTimeout)
	defer cancel()
	res, err := c.putter.Put(taskCtx, task.Request)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			log.Info("Shutdown during indexing, returning task to queue")
			_ = msg.Nack(false, true)
			return
		}
		requeue := !msg.Redelivered
		log.Error("Memory index task failed", zap.Bool("requeue", requeue), zap.Error(err))
		if requeue {
			tasksProcessed.WithLabelValues("requeued").Inc()
		} else {
			tasksProcessed.WithLabelValues("dead_lettered").Inc()
		}
		_ = msg.Nack(false, requeue)
		return
	}

	log.Info("Memory index task processed",
		zap.Int("profiles", res.Profiles),
		zap.Int("events", res.Events),
		zap.Int("skipped", res.Skipped),
	)
	tasksProcessed.WithLabelValues("ok").Inc()
	_ = msg.Ack(false)
}

// Stop отменяет подписку, ждёт завершения обработчиков не дольше timeout и закрывает канал.
func (c *MemoryIndexConsumer) Stop(timeout time.Duration) {
	c.logger.Info("Stopping memory index consumer...")
	if c.channel == nil {
		return
	}
	if err := c.channel.Cancel(c.tag, false); err != nil {
		c.logger.Warn("Error cancelling memory index subscription", zap.Error(err))
	}
	defer func() {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn("Error closing consumer channel", zap.Error(err))
		}
	}()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.logger.Info("Memory index consumer stopped")
	case <-time.After(timeout):
		c.logger.Warn("Timeout waiting for memory index workers to stop")
	}
}
