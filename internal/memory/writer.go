package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"scene-server/internal/models"
	"scene-server/internal/tokenizer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProfileInput - новый факт о персонаже или отношениях.
type ProfileInput struct {
	Type         models.ProfileType `json:"type"`
	CharacterIDs []string           `json:"characterIds"`
	Content      string             `json:"content"`
	Importance   float64            `json:"importance"`
}

// EventInput - новое событие чата.
type EventInput struct {
	Type       models.EventType `json:"type"`
	ChatID     string           `json:"chatId"`
	Content    string           `json:"content"`
	Importance float64          `json:"importance"`
}

// PutRequest - пакет записей для индексации.
type PutRequest struct {
	Profiles []ProfileInput `json:"profiles,omitempty"`
	Events   []EventInput   `json:"events,omitempty"`
}

func (r PutRequest) Empty() bool {
	return len(r.Profiles) == 0 && len(r.Events) == 0
}

// PutResult - сколько записей принято и пропущено.
type PutResult struct {
	Profiles int `json:"profiles"`
	Events   int `json:"events"`
	Skipped  int `json:"skipped"`
}

// CheckProfile проверяет, может ли профиль попасть в индекс.
func CheckProfile(p models.ProfileMemory, chunkLimit int) error {
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown profile type %q", models.ErrInvalidMemory, p.Type)
	}
	if n := len(p.CharacterIDs); n == 0 || n > 2 || n != p.Type.RequiredCharacters() {
		return fmt.Errorf("%w: %s profile requires %d character id(s), got %d",
			models.ErrInvalidMemory, p.Type, p.Type.RequiredCharacters(), n)
	}
	if chunkLimit > 0 && p.Tokens > chunkLimit {
		return fmt.Errorf("%w: profile has %d tokens, limit %d", models.ErrInvalidMemory, p.Tokens, chunkLimit)
	}
	return nil
}

// CheckEvent проверяет, может ли событие попасть в индекс.
func CheckEvent(e models.EventMemory, chunkLimit int) error {
	if e.ChatID == "" {
		return fmt.Errorf("%w: event without chat id", models.ErrInvalidMemory)
	}
	if chunkLimit > 0 && e.Tokens > chunkLimit {
		return fmt.Errorf("%w: event has %d tokens, limit %d", models.ErrInvalidMemory, e.Tokens, chunkLimit)
	}
	return nil
}

// Writer считает токены и записывает память в индексы.
type Writer struct {
	profiles ProfileIndex
	events   EventIndex
	counter  tokenizer.Counter
	limits   Limits
	now      func() time.Time
	logger   *zap.Logger
}

func NewWriter(profiles ProfileIndex, events EventIndex, counter tokenizer.Counter, limits Limits, logger *zap.Logger) *Writer {
	return &Writer{
		profiles: profiles,
		events:   events,
		counter:  counter,
		limits:   limits,
		now:      time.Now,
		logger:   logger.Named("MemoryWriter"),
	}
}

// Put записывает профили и события. Непригодные записи пропускаются с предупреждением.
func (w *Writer) Put(ctx context.Context, req PutRequest) (PutResult, error) {
	res := PutResult{}
	now := w.now().UTC()

	profiles := make([]models.ProfileMemory, 0, len(req.Profiles))
	for _, in := range req.Profiles {
		p := models.ProfileMemory{
			ID:           memoryID(string(in.Type), in.CharacterIDs),
			Type:         in.Type,
			CharacterIDs: append([]string(nil), in.CharacterIDs...),
			Content:      strings.TrimSpace(in.Content),
			Importance:   in.Importance,
			CreatedAt:    now,
		}
		p.Tokens = w.counter.Count(p.Content)
		if err := CheckProfile(p, w.limits.ChunkTokenLimit); err != nil {
			w.logger.Warn("Skipping profile memory", zap.Strings("characterIDs", p.CharacterIDs), zap.Error(err))
			memoryWritesTotal.WithLabelValues(string(models.MemoryKindProfile), "skipped").Inc()
			res.Skipped++
			continue
		}
		profiles = append(profiles, p)
	}

	events := make([]models.EventMemory, 0, len(req.Events))
	for _, in := range req.Events {
		eventType := in.Type
		if eventType == "" {
			eventType = models.EventChat
		}
		e := models.EventMemory{
			ID:         memoryID(string(eventType), []string{in.ChatID}),
			Type:       eventType,
			ChatID:     in.ChatID,
			Content:    strings.TrimSpace(in.Content),
			Importance: in.Importance,
			CreatedAt:  now,
		}
		e.Tokens = w.counter.Count(e.Content)
		if err := CheckEvent(e, w.limits.ChunkTokenLimit); err != nil {
			w.logger.Warn("Skipping event memory", zap.String("chatID", e.ChatID), zap.Error(err))
			memoryWritesTotal.WithLabelValues(string(models.MemoryKindEvent), "skipped").Inc()
			res.Skipped++
			continue
		}
		events = append(events, e)
	}

	if len(profiles) > 0 {
		if err := w.profiles.AddProfiles(ctx, profiles); err != nil {
			return res, fmt.Errorf("failed to add profiles: %w", err)
		}
		res.Profiles = len(profiles)
		memoryWritesTotal.WithLabelValues(string(models.MemoryKindProfile), "written").Add(float64(len(profiles)))
	}
	if len(events) > 0 {
		if err := w.events.AddEvents(ctx, events); err != nil {
			return res, fmt.Errorf("failed to add events: %w", err)
		}
		res.Events = len(events)
		memoryWritesTotal.WithLabelValues(string(models.MemoryKindEvent), "written").Add(float64(len(events)))
	}
	w.logger.Debug("Memories written", zap.Int("profiles", res.Profiles), zap.Int("events", res.Events), zap.Int("skipped", res.Skipped))
	return res, nil
}

func memoryID(kind string, owners []string) string {
	return fmt.Sprintf("%s:%s:%s", kind, strings.Join(owners, "-"), uuid.NewString())
}

// AsyncWriter выполняет Put в фоне с собственным таймаутом.
// Ошибки только логируются: ход чата не ждёт индексации.
type AsyncWriter struct {
	writer  *Writer
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewAsyncWriter(writer *Writer, timeout time.Duration, logger *zap.Logger) *AsyncWriter {
	return &AsyncWriter{writer: writer, timeout: timeout, logger: logger.Named("AsyncMemoryWriter")}
}

// Dispatch запускает запись и сразу возвращается.
func (a *AsyncWriter) Dispatch(_ context.Context, req PutRequest) error {
	if req.Empty() {
		return nil
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if _, err := a.writer.Put(ctx, req); err != nil {
			a.logger.Error("Background memory write failed", zap.Error(err))
		}
	}()
	return nil
}

// Wait дожидается завершения запущенных записей.
func (a *AsyncWriter) Wait() {
	a.wg.Wait()
}
