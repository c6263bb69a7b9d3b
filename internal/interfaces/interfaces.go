package interfaces

import (
	"context"

	"scene-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX - общий интерфейс для *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// ChatStore - хранилище чатов и сообщений.
type ChatStore interface {
	// GetChatWithHistory возвращает models.ErrNotFound, если чата нет.
	GetChatWithHistory(ctx context.Context, chatID uuid.UUID) (*models.ChatWithHistory, error)
	CreateMessage(ctx context.Context, msg models.NewMessage) (*models.ChatMessage, error)
	// UpdateMessage меняет только заданные поля; Metadata сливается с существующей.
	UpdateMessage(ctx context.Context, id uuid.UUID, upd models.MessageUpdate) error
	DeleteMessage(ctx context.Context, id uuid.UUID) error
}
