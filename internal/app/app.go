// Package app собирает зависимости сервиса сцен из конфигурации.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scene-server/internal/ai"
	"scene-server/internal/config"
	"scene-server/internal/database"
	"scene-server/internal/interfaces"
	"scene-server/internal/memory"
	"scene-server/internal/messaging"
	"scene-server/internal/repository"
	"scene-server/internal/scene"
	"scene-server/internal/service"
	"scene-server/internal/tokenizer"
	"scene-server/pkg/migration"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/zap"
)

// Infra - внешние соединения процесса.
type Infra struct {
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Rabbit *amqp.Connection
}

// Close закрывает все открытые соединения.
func (i *Infra) Close() {
	if i.Rabbit != nil {
		_ = i.Rabbit.Close()
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
}

// ConnectPostgres подключается к PostgreSQL с повторами до maxWait.
func ConnectPostgres(ctx context.Context, cfg *config.Config, maxWait time.Duration, logger *zap.Logger) (*pgxpool.Pool, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = maxWait

	var pool *pgxpool.Pool
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		p, err := database.Connect(ctx, database.PoolConfig{
			DSN:         cfg.GetDSN(),
			MaxConns:    cfg.DBMaxConns,
			IdleTimeout: cfg.DBIdleTimeout,
		}, logger)
		if err != nil {
			logger.Warn("Postgres connection failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		pool = p
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres after %d attempt(s): %w", attempt, err)
	}
	return pool, nil
}

// NewMigrator возвращает мигратор встроенных миграций схемы.
func NewMigrator(pool *pgxpool.Pool, log zerolog.Logger) *migration.Migrator {
	return migration.NewMigrator(migration.Config{
		MigrationsFS:   database.MigrationsFS,
		MigrationsPath: database.MigrationsPath,
	}, pool, log)
}

// Memory - извлечение и запись долговременной памяти.
type Memory struct {
	Retriever *memory.Retriever
	Writer    *memory.Writer
	Counter   tokenizer.Counter
}

// NewMemory собирает индексы памяти поверх PostgreSQL. Redis необязателен:
// без него статическая память читается напрямую из базы.
func NewMemory(cfg *config.Config, infra *Infra, logger *zap.Logger) *Memory {
	counter := tokenizer.New(cfg.TokenizerModel, logger)

	var embedder ai.Embedder
	if cfg.EmbeddingAPIKey != "" {
		embedder = ai.NewOpenAIEmbedder(ai.EmbedderConfig{
			BaseURL:    cfg.EmbeddingBaseURL,
			APIKey:     cfg.EmbeddingAPIKey,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDimensions,
			Timeout:    cfg.AITimeout,
		}, logger)
	} else {
		logger.Warn("Embedding API key is not set, memory search is lexical only")
	}

	index := repository.NewPgMemoryIndex(infra.Pool, embedder, cfg.SemanticRatio, cfg.ChunkTokenLimit, logger)
	var static memory.StaticSource = repository.NewPgStaticRepository(infra.Pool, logger)
	if infra.Redis != nil {
		static = repository.NewRedisStaticCache(static, infra.Redis, cfg.StaticCacheTTL, logger)
	}

	limits := memory.Limits{
		StaticTokenLimit: cfg.StaticTokenLimit,
		ChunkTokenLimit:  cfg.ChunkTokenLimit,
		RecentEventDays:  cfg.RecentEventDays,
	}
	return &Memory{
		Retriever: memory.NewRetriever(index, index, static, counter, limits, logger),
		Writer:    memory.NewWriter(index, index, counter, limits, logger),
		Counter:   counter,
	}
}

// Turns - оркестратор хода и его фоновые части.
type Turns struct {
	Service *service.TurnService
	Chats   interfaces.ChatStore
	// Wait дожидается фоновых записей памяти при остановке.
	Wait func()
	// Close освобождает издателя очереди, если он создан.
	Close func()
}

// NewTurns собирает пайплайн хода: классификатор, планировщик, актёр и диспетчер записей памяти.
func NewTurns(cfg *config.Config, infra *Infra, mem *Memory, logger *zap.Logger, bootLog zerolog.Logger) (*Turns, error) {
	if strings.EqualFold(cfg.AIClientType, "openai") && cfg.AIAPIKey == "" {
		return nil, fmt.Errorf("secret 'ai_api_key' is required for the openai client")
	}
	client, err := ai.NewClient(ai.ClientConfig{
		Type:    cfg.AIClientType,
		BaseURL: cfg.AIBaseURL,
		APIKey:  cfg.AIAPIKey,
		Model:   cfg.ActorModel,
		Timeout: cfg.AITimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	prompts, err := scene.NewPromptProvider(cfg.PromptsDir, logger)
	if err != nil {
		return nil, err
	}
	retry := ai.RetryPolicy{
		MaxAttempts:    cfg.AIMaxAttempts,
		BaseDelay:      cfg.AIBaseRetryDelay,
		AttemptTimeout: cfg.AITimeout,
	}

	turns := &Turns{
		Chats: repository.NewPgChatRepository(infra.Pool, logger),
		Wait:  func() {},
		Close: func() {},
	}

	var writes service.MemoryWriteDispatcher
	switch cfg.MemoryWriteMode {
	case "queue":
		if infra.Rabbit == nil {
			return nil, fmt.Errorf("memory write mode 'queue' requires a RabbitMQ connection")
		}
		pub, err := messaging.NewMemoryIndexPublisher(infra.Rabbit, messaging.Topology{Queue: cfg.MemoryIndexQueue}, 5*time.Second, bootLog)
		if err != nil {
			return nil, err
		}
		writes = pub
		turns.Close = func() { _ = pub.Close() }
	default:
		async := memory.NewAsyncWriter(mem.Writer, cfg.MemoryWriteTimeout, logger)
		writes = async
		turns.Wait = async.Wait
	}

	turns.Service = service.NewTurnService(
		turns.Chats,
		mem.Retriever,
		scene.NewEnhancer(client, prompts, cfg.EnhancerModel, retry, logger),
		scene.NewPlanner(client, prompts, cfg.PlannerModel, retry, logger),
		scene.NewActor(client, prompts, cfg.ActorModel, retry, logger),
		writes,
		mem.Counter,
		service.TurnConfig{
			MemoryTokenBudget: cfg.MemoryTokenBudget,
			HistoryTokenLimit: cfg.HistoryTokenLimit,
			ReserveReplySlot:  cfg.ReserveReplySlot,
		},
		logger,
	)
	return turns, nil
}
