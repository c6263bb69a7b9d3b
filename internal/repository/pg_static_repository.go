package repository

import (
	"context"
	"errors"
	"fmt"

	"scene-server/internal/interfaces"
	"scene-server/internal/memory"
	"scene-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ memory.StaticSource = (*PgStaticRepository)(nil)

// PgStaticRepository читает промпт истории и анкеты персонажей.
type PgStaticRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

func NewPgStaticRepository(db interfaces.DBTX, logger *zap.Logger) *PgStaticRepository {
	return &PgStaticRepository{db: db, logger: logger.Named("PgStaticRepo")}
}

const getStoryPromptByChatQuery = `
SELECT s.static_prompt
FROM chats c
JOIN stories s ON s.id = c.story_id
WHERE c.id = $1::uuid`

const getCharacterSheetsQuery = `
SELECT id, name, description
FROM characters
WHERE id = ANY($1)`

func (r *PgStaticRepository) StoryPrompt(ctx context.Context, chatID string) (string, error) {
	var prompt string
	err := r.db.QueryRow(ctx, getStoryPromptByChatQuery, chatID).Scan(&prompt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrNotFound
		}
		r.logger.Error("Failed to get story prompt", zap.String("chatID", chatID), zap.Error(err))
		return "", fmt.Errorf("ошибка получения промпта истории для чата %s: %w", chatID, err)
	}
	return prompt, nil
}

// CharacterSheets возвращает анкеты в порядке ids; отсутствующие пропускаются.
func (r *PgStaticRepository) CharacterSheets(ctx context.Context, ids []string) ([]models.CharacterSheet, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var sheets []models.CharacterSheet
	if err := pgxscan.Select(ctx, r.db, &sheets, getCharacterSheetsQuery, ids); err != nil {
		r.logger.Error("Failed to get character sheets", zap.Strings("ids", ids), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения анкет персонажей: %w", err)
	}
	return orderSheets(sheets, ids), nil
}

func orderSheets(sheets []models.CharacterSheet, ids []string) []models.CharacterSheet {
	byID := make(map[string]models.CharacterSheet, len(sheets))
	for _, s := range sheets {
		byID[s.ID] = s
	}
	out := make([]models.CharacterSheet, 0, len(sheets))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s)
			delete(byID, id)
		}
	}
	return out
}
