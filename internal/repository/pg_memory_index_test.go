package repository

import (
	"context"
	"errors"
	"testing"

	"scene-server/internal/memory"
	"scene-server/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProfileFilterSQL(t *testing.T) {
	args := []any{0.75, nil, "query", 5}
	where := profileFilterSQL(memory.BuildCharacterFilter("a", "b", "c"), &args)

	assert.Equal(t,
		"((characters_count = 1 AND character_ids[1] = ANY($5::text[]))"+
			" OR (characters_count = 2 AND character_ids @> ARRAY[$6, $7]::text[])"+
			" OR (characters_count = 2 AND character_ids @> ARRAY[$8, $9]::text[])"+
			" OR (characters_count = 2 AND character_ids @> ARRAY[$10, $11]::text[]))",
		where)
	assert.Equal(t, []any{0.75, nil, "query", 5, []string{"a", "b", "c"}, "a", "b", "a", "c", "b", "c"}, args)
}

func TestProfileFilterSQL_SingleCharacter(t *testing.T) {
	var args []any
	where := profileFilterSQL(memory.BuildCharacterFilter("a"), &args)
	assert.Equal(t, "((characters_count = 1 AND character_ids[1] = ANY($1::text[])))", where)
	assert.Len(t, args, 1)
}

func TestVectorLiteral(t *testing.T) {
	assert.Nil(t, vectorLiteral(nil))
	got := vectorLiteral([]float32{0.5, -1, 0.25})
	if assert.NotNil(t, got) {
		assert.Equal(t, "[0.5,-1,0.25]", *got)
	}
}

type batchRecorder struct {
	batches []*pgx.Batch
}

func (b *batchRecorder) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (b *batchRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (b *batchRecorder) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (b *batchRecorder) SendBatch(_ context.Context, batch *pgx.Batch) pgx.BatchResults {
	b.batches = append(b.batches, batch)
	return okBatchResults{}
}

type okBatchResults struct{}

func (okBatchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, nil }
func (okBatchResults) Query() (pgx.Rows, error)         { return nil, errors.New("not supported") }
func (okBatchResults) QueryRow() pgx.Row                { return nil }
func (okBatchResults) Close() error                     { return nil }

type fixedEmbedder struct {
	vector []float32
}

func (e fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

func TestPgMemoryIndex_AddPassesVectorLiteral(t *testing.T) {
	db := &batchRecorder{}
	idx := NewPgMemoryIndex(db, fixedEmbedder{vector: []float32{0.5, -1, 0.25}}, 0.75, 256, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, idx.AddProfiles(ctx, []models.ProfileMemory{{
		ID: "character:a:1", Type: models.ProfileCharacter, CharacterIDs: []string{"a"}, Content: "любит море", Tokens: 3,
	}}))
	require.NoError(t, idx.AddEvents(ctx, []models.EventMemory{{
		ID: "chat:c:1", Type: models.EventChat, ChatID: "c", Content: "пришли в порт", Tokens: 4,
	}}))

	require.Len(t, db.batches, 2)
	for _, batch := range db.batches {
		require.Len(t, batch.QueuedQueries, 1)
		args := batch.QueuedQueries[0].Arguments
		require.Len(t, args, 8)
		literal, ok := args[6].(*string)
		require.True(t, ok, "embedding must be sent as text, got %T", args[6])
		require.NotNil(t, literal)
		assert.Equal(t, "[0.5,-1,0.25]", *literal)
	}
}

func TestPgMemoryIndex_AddWithoutEmbedderSendsNull(t *testing.T) {
	db := &batchRecorder{}
	idx := NewPgMemoryIndex(db, nil, 0.75, 256, zap.NewNop())

	require.NoError(t, idx.AddEvents(context.Background(), []models.EventMemory{{
		ID: "chat:c:1", Type: models.EventChat, ChatID: "c", Content: "тишина", Tokens: 1,
	}}))

	require.Len(t, db.batches, 1)
	assert.Nil(t, db.batches[0].QueuedQueries[0].Arguments[6])
}
