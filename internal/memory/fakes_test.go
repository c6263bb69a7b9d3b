package memory

import (
	"context"
	"strings"
	"sync"

	"scene-server/internal/models"
)

// wordCounter - один токен на слово.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

type fakeProfiles struct {
	mu      sync.Mutex
	added   []models.ProfileMemory
	results []models.ProfileMemory
	queries []ProfileQuery
	err     error
}

func (f *fakeProfiles) AddProfiles(_ context.Context, p []models.ProfileMemory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, p...)
	return f.err
}

func (f *fakeProfiles) SearchProfiles(_ context.Context, q ProfileQuery) ([]models.ProfileMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return head(f.results, q.Limit), nil
}

type fakeEvents struct {
	mu      sync.Mutex
	added   []models.EventMemory
	allTime []models.EventMemory
	recent  []models.EventMemory
	queries []EventQuery
	err     error
}

func (f *fakeEvents) AddEvents(_ context.Context, e []models.EventMemory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, e...)
	return f.err
}

func (f *fakeEvents) SearchEvents(_ context.Context, q EventQuery) ([]models.EventMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	if q.Since.IsZero() {
		return head(f.allTime, q.Limit), nil
	}
	return head(f.recent, q.Limit), nil
}

type fakeStatic struct {
	story    string
	storyErr error
	sheets   []models.CharacterSheet
}

func (f *fakeStatic) StoryPrompt(context.Context, string) (string, error) {
	return f.story, f.storyErr
}

func (f *fakeStatic) CharacterSheets(_ context.Context, ids []string) ([]models.CharacterSheet, error) {
	var out []models.CharacterSheet
	for _, id := range ids {
		for _, s := range f.sheets {
			if s.ID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func head[T any](items []T, n int) []T {
	if n < len(items) {
		return items[:n]
	}
	return items
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("w ", n))
}

func profilesOf(n, tokens int) []models.ProfileMemory {
	out := make([]models.ProfileMemory, n)
	for i := range out {
		out[i] = models.ProfileMemory{Type: models.ProfileCharacter, CharacterIDs: []string{"alice"}, Content: words(tokens), Tokens: tokens}
	}
	return out
}

func eventsOf(n, tokens int) []models.EventMemory {
	out := make([]models.EventMemory, n)
	for i := range out {
		out[i] = models.EventMemory{Type: models.EventChat, ChatID: "chat-1", Content: words(tokens), Tokens: tokens}
	}
	return out
}
