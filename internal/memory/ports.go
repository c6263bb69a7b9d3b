// Package memory извлекает и записывает долговременную память чата
// с учётом бюджета токенов.
package memory

import (
	"context"
	"time"

	"scene-server/internal/models"
)

// ProfileQuery - гибридный поиск по профилям.
type ProfileQuery struct {
	Text   string
	Limit  int
	Filter CharacterFilter
}

// EventQuery - гибридный поиск по событиям одного чата.
// Нулевое Since означает поиск за всё время.
type EventQuery struct {
	Text   string
	Limit  int
	ChatID string
	Since  time.Time
}

// ProfileIndex - индекс профилей персонажей и отношений.
type ProfileIndex interface {
	AddProfiles(ctx context.Context, profiles []models.ProfileMemory) error
	SearchProfiles(ctx context.Context, q ProfileQuery) ([]models.ProfileMemory, error)
}

// EventIndex - индекс событий чатов.
type EventIndex interface {
	AddEvents(ctx context.Context, events []models.EventMemory) error
	SearchEvents(ctx context.Context, q EventQuery) ([]models.EventMemory, error)
}

// StaticSource - источник статической памяти: промпт истории и анкеты персонажей.
type StaticSource interface {
	// StoryPrompt возвращает models.ErrNotFound, если у чата нет истории.
	StoryPrompt(ctx context.Context, chatID string) (string, error)
	CharacterSheets(ctx context.Context, ids []string) ([]models.CharacterSheet, error)
}
