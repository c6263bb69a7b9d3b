package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"scene-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRetriever(p *fakeProfiles, e *fakeEvents, s *fakeStatic) *Retriever {
	r := NewRetriever(p, e, s, wordCounter{}, DefaultLimits(), zap.NewNop())
	r.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestRetriever_BudgetSplit(t *testing.T) {
	p := &fakeProfiles{results: profilesOf(20, 200)}
	e := &fakeEvents{allTime: eventsOf(20, 200), recent: eventsOf(20, 200)}
	// История и анкета вместе дают 1200 токенов
	s := &fakeStatic{
		story:  words(1000),
		sheets: []models.CharacterSheet{{ID: "alice", Name: "Alice", Description: words(196)}},
	}
	r := newTestRetriever(p, e, s)

	res, err := r.Get(context.Background(), GetRequest{
		Query: "hello", Tokens: 5000, POVCharacterID: "alice", NPCCharacterIDs: []string{"bob"}, ChatID: "chat-1",
	})
	require.NoError(t, err)

	require.Len(t, res.Static, 2)
	assert.Equal(t, 1200, res.Static[0].Tokens+res.Static[1].Tokens)

	// 3800 остатка: 1900 на профили (лимит 7), по 950 на события (лимит 3)
	require.Len(t, p.queries, 1)
	assert.Equal(t, 7, p.queries[0].Limit)
	assert.Len(t, res.Profile, 7)

	require.Len(t, e.queries, 2)
	for _, q := range e.queries {
		assert.Equal(t, 3, q.Limit)
		assert.Equal(t, "chat-1", q.ChatID)
	}
	assert.Len(t, res.Event, 6)
	assert.LessOrEqual(t, res.TotalTokens(), 5000)
}

func TestRetriever_ProfileFilterCoversPairs(t *testing.T) {
	p := &fakeProfiles{}
	r := newTestRetriever(p, &fakeEvents{}, &fakeStatic{story: "world"})

	_, err := r.Get(context.Background(), GetRequest{
		Query: "q", Tokens: 3000, POVCharacterID: "a", NPCCharacterIDs: []string{"b", "c"}, ChatID: "chat-1",
	})
	require.NoError(t, err)
	require.Len(t, p.queries, 1)
	f := p.queries[0].Filter
	assert.Equal(t, []string{"a", "b", "c"}, f.Singles)
	assert.ElementsMatch(t, [][2]string{{"a", "b"}, {"a", "c"}, {"b", "c"}}, f.Pairs)
}

func TestRetriever_RecentEventsUseWindow(t *testing.T) {
	e := &fakeEvents{allTime: eventsOf(2, 10), recent: eventsOf(2, 20)}
	r := newTestRetriever(&fakeProfiles{}, e, &fakeStatic{story: "world"})

	res, err := r.Get(context.Background(), GetRequest{Query: "q", Tokens: 3000, ChatID: "chat-1"})
	require.NoError(t, err)

	var sawWindow bool
	for _, q := range e.queries {
		if !q.Since.IsZero() {
			sawWindow = true
			assert.Equal(t, time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC), q.Since)
		}
	}
	assert.True(t, sawWindow)
	// Сначала события за всё время, затем свежие
	require.Len(t, res.Event, 4)
	assert.Equal(t, 10, res.Event[0].Tokens)
	assert.Equal(t, 20, res.Event[3].Tokens)
}

func TestRetriever_StoryFallback(t *testing.T) {
	r := newTestRetriever(&fakeProfiles{}, &fakeEvents{}, &fakeStatic{storyErr: models.ErrNotFound})

	res, err := r.Get(context.Background(), GetRequest{Query: "q", Tokens: 100, ChatID: "chat-1"})
	require.NoError(t, err)
	require.Len(t, res.Static, 1)
	assert.Equal(t, "General Information: Today is Monday, March 10, 2025.", res.Static[0].Content)
}

func TestRetriever_StoryHardErrorIsFatal(t *testing.T) {
	r := newTestRetriever(&fakeProfiles{}, &fakeEvents{}, &fakeStatic{storyErr: errors.New("db down")})
	_, err := r.Get(context.Background(), GetRequest{Query: "q", Tokens: 100, ChatID: "chat-1"})
	assert.Error(t, err)
}

func TestRetriever_SearchErrorIsFatal(t *testing.T) {
	r := newTestRetriever(&fakeProfiles{err: errors.New("index down")}, &fakeEvents{}, &fakeStatic{story: "w"})
	_, err := r.Get(context.Background(), GetRequest{Query: "q", Tokens: 3000, ChatID: "chat-1"})
	assert.Error(t, err)
}

func TestRetriever_StaticOverflowExhaustsBudget(t *testing.T) {
	p := &fakeProfiles{results: profilesOf(10, 100)}
	e := &fakeEvents{allTime: eventsOf(10, 100), recent: eventsOf(10, 100)}
	r := newTestRetriever(p, e, &fakeStatic{story: words(1500)})

	res, err := r.Get(context.Background(), GetRequest{Query: "q", Tokens: 1000, ChatID: "chat-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count())
	assert.Empty(t, p.queries)
	assert.Empty(t, e.queries)
}

func TestRetriever_ZeroBudget(t *testing.T) {
	r := newTestRetriever(&fakeProfiles{}, &fakeEvents{}, &fakeStatic{story: "w"})
	res, err := r.Get(context.Background(), GetRequest{Query: "q", Tokens: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count())
}

func TestRetriever_Conservation(t *testing.T) {
	p := &fakeProfiles{results: profilesOf(50, 256)}
	e := &fakeEvents{allTime: eventsOf(50, 256), recent: eventsOf(50, 256)}
	s := &fakeStatic{
		story: words(300),
		sheets: []models.CharacterSheet{
			{ID: "a", Name: "A", Description: words(400)},
			{ID: "b", Name: "B", Description: words(900)},
		},
	}
	r := newTestRetriever(p, e, s)

	prevCount := -1
	for budget := 6000; budget >= 0; budget -= 97 {
		res, err := r.Get(context.Background(), GetRequest{Query: "q", Tokens: budget, POVCharacterID: "a", NPCCharacterIDs: []string{"b"}, ChatID: "chat-1"})
		require.NoError(t, err)
		assert.LessOrEqual(t, res.TotalTokens(), budget, "budget %d", budget)
		if prevCount >= 0 {
			assert.LessOrEqual(t, res.Count(), prevCount, "budget %d", budget)
		}
		prevCount = res.Count()
	}
}

func TestFitBudget(t *testing.T) {
	items := []models.EventMemory{{Tokens: 100}, {Tokens: 300}, {Tokens: 100}, {Tokens: 100}}
	got := fitBudget(items, 250, 256)
	// 300 превышает потолок и пропускается; третья запись уже не помещается
	assert.Len(t, got, 2)
}
