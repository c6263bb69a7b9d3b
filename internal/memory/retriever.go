package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scene-server/internal/models"
	"scene-server/internal/tokenizer"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Limits - параметры бюджетирования памяти.
type Limits struct {
	StaticTokenLimit int
	ChunkTokenLimit  int
	RecentEventDays  int
}

// DefaultLimits - 2000 токенов на статику, 256 на запись, окно свежих событий 7 дней.
func DefaultLimits() Limits {
	return Limits{StaticTokenLimit: 2000, ChunkTokenLimit: 256, RecentEventDays: 7}
}

// GetRequest - запрос на извлечение памяти для хода.
type GetRequest struct {
	Query           string
	Tokens          int
	POVCharacterID  string
	NPCCharacterIDs []string
	ChatID          string
}

// Retriever собирает память трёх видов в пределах общего бюджета токенов.
type Retriever struct {
	profiles ProfileIndex
	events   EventIndex
	static   StaticSource
	counter  tokenizer.Counter
	limits   Limits
	now      func() time.Time
	logger   *zap.Logger
}

func NewRetriever(profiles ProfileIndex, events EventIndex, static StaticSource, counter tokenizer.Counter, limits Limits, logger *zap.Logger) *Retriever {
	return &Retriever{
		profiles: profiles,
		events:   events,
		static:   static,
		counter:  counter,
		limits:   limits,
		now:      time.Now,
		logger:   logger.Named("MemoryRetriever"),
	}
}

// Get возвращает статическую, профильную и событийную память.
// Сумма токенов результата никогда не превышает req.Tokens.
func (r *Retriever) Get(ctx context.Context, req GetRequest) (models.MemoryGetResult, error) {
	start := time.Now()
	defer func() { retrievalDuration.Observe(time.Since(start).Seconds()) }()

	log := r.logger.With(zap.String("chatID", req.ChatID), zap.Int("budget", req.Tokens))
	result := models.MemoryGetResult{}
	if req.Tokens <= 0 {
		log.Debug("Zero memory budget, skipping retrieval")
		return result, nil
	}

	static, staticSpent, err := r.getStatic(ctx, req, log)
	if err != nil {
		return result, err
	}
	result.Static = static

	remaining := req.Tokens - staticSpent
	profileBudget := remaining / 2
	eventBudget := remaining - profileBudget
	allTimeBudget := eventBudget / 2
	recentBudget := eventBudget - allTimeBudget

	var (
		profiles      []models.ProfileMemory
		allTimeEvents []models.EventMemory
		recentEvents  []models.EventMemory
	)
	g, gctx := errgroup.WithContext(ctx)
	if limit := r.limitFor(profileBudget); limit > 0 {
		filter := BuildCharacterFilter(append([]string{req.POVCharacterID}, req.NPCCharacterIDs...)...)
		g.Go(func() error {
			found, err := r.profiles.SearchProfiles(gctx, ProfileQuery{Text: req.Query, Limit: limit, Filter: filter})
			if err != nil {
				return fmt.Errorf("profile search failed: %w", err)
			}
			profiles = fitBudget(found, profileBudget, r.limits.ChunkTokenLimit)
			return nil
		})
	}
	if limit := r.limitFor(allTimeBudget); limit > 0 {
		g.Go(func() error {
			found, err := r.events.SearchEvents(gctx, EventQuery{Text: req.Query, Limit: limit, ChatID: req.ChatID})
			if err != nil {
				return fmt.Errorf("event search failed: %w", err)
			}
			allTimeEvents = fitBudget(found, allTimeBudget, r.limits.ChunkTokenLimit)
			return nil
		})
	}
	if limit := r.limitFor(recentBudget); limit > 0 {
		since := r.now().AddDate(0, 0, -r.limits.RecentEventDays)
		g.Go(func() error {
			found, err := r.events.SearchEvents(gctx, EventQuery{Text: req.Query, Limit: limit, ChatID: req.ChatID, Since: since})
			if err != nil {
				return fmt.Errorf("recent event search failed: %w", err)
			}
			recentEvents = fitBudget(found, recentBudget, r.limits.ChunkTokenLimit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.MemoryGetResult{}, err
	}

	result.Profile = profiles
	result.Event = append(allTimeEvents, recentEvents...)

	retrievedItems.WithLabelValues(string(models.MemoryKindStatic)).Observe(float64(len(result.Static)))
	retrievedItems.WithLabelValues(string(models.MemoryKindProfile)).Observe(float64(len(result.Profile)))
	retrievedItems.WithLabelValues(string(models.MemoryKindEvent)).Observe(float64(len(result.Event)))
	log.Debug("Memory retrieved",
		zap.Int("staticTokens", staticSpent),
		zap.Int("profileBudget", profileBudget),
		zap.Int("eventBudget", eventBudget),
		zap.Int("static", len(result.Static)),
		zap.Int("profile", len(result.Profile)),
		zap.Int("event", len(result.Event)),
		zap.Int("tokens", result.TotalTokens()),
	)
	return result, nil
}

// getStatic набирает статическую память в пределах min(StaticTokenLimit, Tokens).
// Первая не поместившаяся запись исчерпывает статический бюджет целиком.
func (r *Retriever) getStatic(ctx context.Context, req GetRequest, log *zap.Logger) ([]models.StaticMemory, int, error) {
	budget := min(r.limits.StaticTokenLimit, req.Tokens)
	var out []models.StaticMemory
	spent := 0

	storyPrompt, err := r.static.StoryPrompt(ctx, req.ChatID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, 0, fmt.Errorf("failed to load story prompt: %w", err)
	}
	if err != nil || strings.TrimSpace(storyPrompt) == "" {
		log.Warn("Story prompt not found, using general information fallback")
		storyPrompt = fmt.Sprintf("General Information: Today is %s.", r.now().Format("Monday, January 2, 2006"))
	}

	story := models.StaticMemory{Content: storyPrompt, Tokens: r.counter.Count(storyPrompt)}
	if story.Tokens > budget {
		log.Warn("Static memory budget exhausted by story prompt",
			zap.Int("storyTokens", story.Tokens), zap.Int("staticBudget", budget))
		return nil, budget, nil
	}
	out = append(out, story)
	spent += story.Tokens

	ids := append([]string{req.POVCharacterID}, req.NPCCharacterIDs...)
	sheets, err := r.static.CharacterSheets(ctx, nonEmpty(ids))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load character sheets: %w", err)
	}
	for _, sheet := range sheets {
		content := FormatCharacterSheet(sheet)
		tokens := r.counter.Count(content)
		if spent+tokens > budget {
			log.Warn("Static memory budget exhausted, skipping remaining character sheets",
				zap.String("characterID", sheet.ID),
				zap.Int("shortfall", spent+tokens-budget))
			return out, budget, nil
		}
		out = append(out, models.StaticMemory{CharacterID: sheet.ID, Name: sheet.Name, Content: content, Tokens: tokens})
		spent += tokens
	}
	return out, spent, nil
}

func (r *Retriever) limitFor(tokens int) int {
	if tokens <= 0 || r.limits.ChunkTokenLimit <= 0 {
		return 0
	}
	return tokens / r.limits.ChunkTokenLimit
}

// FormatCharacterSheet форматирует анкету персонажа как запись статической памяти.
func FormatCharacterSheet(sheet models.CharacterSheet) string {
	return fmt.Sprintf("Character %s (id: %s):\n%s", sheet.Name, sheet.ID, sheet.Description)
}

// fitBudget оставляет префикс результатов, укладывающийся в бюджет.
// Записи больше потолка пропускаются.
func fitBudget[T models.Memory](items []T, budget, ceiling int) []T {
	out := make([]T, 0, len(items))
	spent := 0
	for _, item := range items {
		tokens := item.TokenCount()
		if ceiling > 0 && tokens > ceiling {
			continue
		}
		if spent+tokens > budget {
			break
		}
		spent += tokens
		out = append(out, item)
	}
	return out
}

func nonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
