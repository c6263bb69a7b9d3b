package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scene-server/internal/interfaces"
	"scene-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ interfaces.ChatStore = (*pgChatRepository)(nil)

type pgChatRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

func NewPgChatRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.ChatStore {
	return &pgChatRepository{
		db:     db,
		logger: logger.Named("PgChatRepo"),
	}
}

const getChatQuery = `
SELECT id, story_id, pov_character_id, npc_character_ids, created_at
FROM chats
WHERE id = $1`

const listChatMessagesQuery = `
SELECT id, chat_id, role, status, content, character_id, metadata, created_at, updated_at
FROM chat_messages
WHERE chat_id = $1
ORDER BY created_at ASC, id ASC`

const createMessageQuery = `
INSERT INTO chat_messages (id, chat_id, role, status, content, character_id, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $8)`

const updateMessageQuery = `
UPDATE chat_messages
SET status     = COALESCE($2, status),
    content    = COALESCE($3, content),
    metadata   = CASE WHEN $4::jsonb IS NULL THEN metadata ELSE COALESCE(metadata, '{}'::jsonb) || $4::jsonb END,
    updated_at = now()
WHERE id = $1`

const deleteMessageQuery = `DELETE FROM chat_messages WHERE id = $1`

func (r *pgChatRepository) GetChatWithHistory(ctx context.Context, chatID uuid.UUID) (*models.ChatWithHistory, error) {
	log := r.logger.With(zap.String("chatID", chatID.String()))

	var chat models.Chat
	if err := pgxscan.Get(ctx, r.db, &chat, getChatQuery, chatID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Warn("Chat not found")
			return nil, models.ErrNotFound
		}
		log.Error("Failed to get chat", zap.Error(err))
		return nil, fmt.Errorf("ошибка получения чата %s: %w", chatID, err)
	}

	var messages []models.ChatMessage
	if err := pgxscan.Select(ctx, r.db, &messages, listChatMessagesQuery, chatID); err != nil {
		log.Error("Failed to list chat messages", zap.Error(err))
		return nil, fmt.Errorf("ошибка получения сообщений чата %s: %w", chatID, err)
	}
	log.Debug("Chat history loaded", zap.Int("messages", len(messages)))
	return &models.ChatWithHistory{Chat: chat, Messages: messages}, nil
}

func (r *pgChatRepository) CreateMessage(ctx context.Context, msg models.NewMessage) (*models.ChatMessage, error) {
	metadata, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := &models.ChatMessage{
		ID:          uuid.New(),
		ChatID:      msg.ChatID,
		Role:        msg.Role,
		Status:      msg.Status,
		Content:     msg.Content,
		CharacterID: msg.CharacterID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if metadata != nil {
		out.Metadata = json.RawMessage(*metadata)
	}

	if _, err := r.db.Exec(ctx, createMessageQuery,
		out.ID, out.ChatID, out.Role, out.Status, out.Content, out.CharacterID, metadata, now,
	); err != nil {
		r.logger.Error("Failed to create message", zap.String("chatID", msg.ChatID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка создания сообщения: %w", err)
	}
	r.logger.Debug("Message created",
		zap.String("messageID", out.ID.String()), zap.String("role", string(out.Role)), zap.String("status", string(out.Status)))
	return out, nil
}

func (r *pgChatRepository) UpdateMessage(ctx context.Context, id uuid.UUID, upd models.MessageUpdate) error {
	metadata, err := marshalMetadata(upd.Metadata)
	if err != nil {
		return err
	}
	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}

	tag, err := r.db.Exec(ctx, updateMessageQuery, id, status, upd.Content, metadata)
	if err != nil {
		r.logger.Error("Failed to update message", zap.String("messageID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка обновления сообщения %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgChatRepository) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, deleteMessageQuery, id)
	if err != nil {
		r.logger.Error("Failed to delete message", zap.String("messageID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка удаления сообщения %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func marshalMetadata(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		s := string(raw)
		return &s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message metadata: %w", err)
	}
	s := string(b)
	return &s, nil
}
