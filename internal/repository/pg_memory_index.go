package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scene-server/internal/ai"
	"scene-server/internal/interfaces"
	"scene-server/internal/memory"
	"scene-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var (
	_ memory.ProfileIndex = (*PgMemoryIndex)(nil)
	_ memory.EventIndex   = (*PgMemoryIndex)(nil)
)

// PgMemoryIndex - гибридный индекс памяти в PostgreSQL: полнотекстовый ранг
// tsvector и косинусная близость pgvector, смешанные с весом semanticRatio.
type PgMemoryIndex struct {
	db            interfaces.DBTX
	embedder      ai.Embedder
	semanticRatio float64
	chunkLimit    int
	logger        *zap.Logger
}

// NewPgMemoryIndex создает индекс. embedder может быть nil - тогда поиск только полнотекстовый.
func NewPgMemoryIndex(db interfaces.DBTX, embedder ai.Embedder, semanticRatio float64, chunkLimit int, logger *zap.Logger) *PgMemoryIndex {
	return &PgMemoryIndex{
		db:            db,
		embedder:      embedder,
		semanticRatio: semanticRatio,
		chunkLimit:    chunkLimit,
		logger:        logger.Named("PgMemoryIndex"),
	}
}

const insertProfileQuery = `
INSERT INTO profile_memories (id, type, character_ids, content, tokens, importance, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8)
ON CONFLICT (id) DO NOTHING`

const insertEventQuery = `
INSERT INTO event_memories (id, type, chat_id, content, tokens, importance, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8)
ON CONFLICT (id) DO NOTHING`

// hybridScore: $1 - вес семантики, $2 - вектор запроса (или NULL), $3 - текст запроса.
const hybridScore = `($1::float8 * COALESCE(1 - (embedding <=> $2::vector), 0)
	+ (1 - $1::float8) * ts_rank_cd(search_tsv, websearch_to_tsquery('simple', $3), 32))`

const searchProfilesQueryTemplate = `
SELECT id, type, character_ids, content, tokens, importance, created_at
FROM profile_memories
WHERE %s
ORDER BY ` + hybridScore + ` DESC, importance DESC, created_at DESC
LIMIT $4`

const searchEventsQuery = `
SELECT id, type, chat_id, content, tokens, importance, created_at
FROM event_memories
WHERE chat_id = $5 AND ($6::timestamptz IS NULL OR created_at >= $6::timestamptz)
ORDER BY ` + hybridScore + ` DESC, importance DESC, created_at DESC
LIMIT $4`

func (r *PgMemoryIndex) AddProfiles(ctx context.Context, profiles []models.ProfileMemory) error {
	accepted := make([]models.ProfileMemory, 0, len(profiles))
	for _, p := range profiles {
		if err := memory.CheckProfile(p, r.chunkLimit); err != nil {
			r.logger.Warn("Profile rejected by index", zap.String("id", p.ID), zap.Error(err))
			continue
		}
		accepted = append(accepted, p)
	}
	if len(accepted) == 0 {
		return nil
	}

	texts := make([]string, len(accepted))
	for i, p := range accepted {
		texts[i] = p.Content
	}
	vectors, err := r.embed(ctx, texts)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, p := range accepted {
		batch.Queue(insertProfileQuery, profileInsertArgs(p, vectorAt(vectors, i))...)
	}
	if err := r.sendBatch(ctx, batch); err != nil {
		r.logger.Error("Failed to insert profiles", zap.Int("count", len(accepted)), zap.Error(err))
		return fmt.Errorf("ошибка записи профилей: %w", err)
	}
	r.logger.Debug("Profiles indexed", zap.Int("count", len(accepted)))
	return nil
}

func (r *PgMemoryIndex) AddEvents(ctx context.Context, events []models.EventMemory) error {
	accepted := make([]models.EventMemory, 0, len(events))
	for _, e := range events {
		if err := memory.CheckEvent(e, r.chunkLimit); err != nil {
			r.logger.Warn("Event rejected by index", zap.String("id", e.ID), zap.Error(err))
			continue
		}
		accepted = append(accepted, e)
	}
	if len(accepted) == 0 {
		return nil
	}

	texts := make([]string, len(accepted))
	for i, e := range accepted {
		texts[i] = e.Content
	}
	vectors, err := r.embed(ctx, texts)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, e := range accepted {
		batch.Queue(insertEventQuery, eventInsertArgs(e, vectorAt(vectors, i))...)
	}
	if err := r.sendBatch(ctx, batch); err != nil {
		r.logger.Error("Failed to insert events", zap.Int("count", len(accepted)), zap.Error(err))
		return fmt.Errorf("ошибка записи событий: %w", err)
	}
	r.logger.Debug("Events indexed", zap.Int("count", len(accepted)))
	return nil
}

// Эмбеддинг передаётся текстовым литералом pgvector: у типа vector нет кодека в pgx.
func profileInsertArgs(p models.ProfileMemory, vec []float32) []any {
	return []any{p.ID, string(p.Type), p.CharacterIDs, p.Content, p.Tokens, p.Importance, vectorLiteral(vec), p.CreatedAt}
}

func eventInsertArgs(e models.EventMemory, vec []float32) []any {
	return []any{e.ID, string(e.Type), e.ChatID, e.Content, e.Tokens, e.Importance, vectorLiteral(vec), e.CreatedAt}
}

func (r *PgMemoryIndex) SearchProfiles(ctx context.Context, q memory.ProfileQuery) ([]models.ProfileMemory, error) {
	if q.Limit <= 0 || q.Filter.Empty() {
		return nil, nil
	}
	queryVec, err := r.embedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	args := []any{r.semanticRatio, queryVec, q.Text, q.Limit}
	where := profileFilterSQL(q.Filter, &args)
	sql := fmt.Sprintf(searchProfilesQueryTemplate, where)

	var out []models.ProfileMemory
	if err := pgxscan.Select(ctx, r.db, &out, sql, args...); err != nil {
		r.logger.Error("Profile search failed", zap.String("filter", q.Filter.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка поиска профилей: %w", err)
	}
	return out, nil
}

func (r *PgMemoryIndex) SearchEvents(ctx context.Context, q memory.EventQuery) ([]models.EventMemory, error) {
	if q.Limit <= 0 || q.ChatID == "" {
		return nil, nil
	}
	queryVec, err := r.embedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	var since *time.Time
	if !q.Since.IsZero() {
		since = &q.Since
	}

	var out []models.EventMemory
	if err := pgxscan.Select(ctx, r.db, &out, searchEventsQuery, r.semanticRatio, queryVec, q.Text, q.Limit, q.ChatID, since); err != nil {
		r.logger.Error("Event search failed", zap.String("chatID", q.ChatID), zap.Error(err))
		return nil, fmt.Errorf("ошибка поиска событий: %w", err)
	}
	return out, nil
}

// profileFilterSQL превращает CharacterFilter в условие WHERE, дописывая параметры в args.
func profileFilterSQL(f memory.CharacterFilter, args *[]any) string {
	next := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}
	parts := []string{fmt.Sprintf("(characters_count = 1 AND character_ids[1] = ANY(%s::text[]))", next(f.Singles))}
	for _, p := range f.Pairs {
		parts = append(parts, fmt.Sprintf("(characters_count = 2 AND character_ids @> ARRAY[%s, %s]::text[])", next(p[0]), next(p[1])))
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func (r *PgMemoryIndex) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if r.embedder == nil {
		return nil, nil
	}
	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ошибка вычисления эмбеддингов: %w", err)
	}
	return vectors, nil
}

// embedQuery при сбое эмбеддинга деградирует до полнотекстового поиска.
func (r *PgMemoryIndex) embedQuery(ctx context.Context, text string) (*string, error) {
	if r.embedder == nil || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	vectors, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("Query embedding failed, using lexical search only", zap.Error(err))
		return nil, nil
	}
	return vectorLiteral(vectorAt(vectors, 0)), nil
}

func (r *PgMemoryIndex) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	results := r.db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

func vectorAt(vectors [][]float32, i int) []float32 {
	if i < len(vectors) {
		return vectors[i]
	}
	return nil
}
