package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"scene-server/internal/memory"
	"scene-server/internal/mocks"
	"scene-server/internal/models"
	"scene-server/internal/scene"
	"scene-server/internal/tokenizer"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRetriever struct {
	got models.MemoryGetResult
	req memory.GetRequest
	err error
}

func (f *fakeRetriever) Get(_ context.Context, req memory.GetRequest) (models.MemoryGetResult, error) {
	f.req = req
	return f.got, f.err
}

type fakeEnhancer struct {
	out     models.EnhanceOutput
	err     error
	history []models.PromptMessage
}

func (f *fakeEnhancer) Enhance(_ context.Context, history []models.PromptMessage, _ models.MemoryGetResult) (models.EnhanceOutput, error) {
	f.history = history
	return f.out, f.err
}

type fakePlanner struct {
	plan   models.ScenePlan
	err    error
	policy models.ScenePolicy
}

func (f *fakePlanner) Plan(_ context.Context, p models.ScenePolicy, _ models.MemoryGetResult, _ []models.PromptMessage) (models.ScenePlan, error) {
	f.policy = p
	return f.plan, f.err
}

// fakeActor отдаёт заранее заданные фрагменты для каждого шага.
type fakeActor struct {
	mu       sync.Mutex
	chunks   map[int][]string
	failAt   map[int]error
	requests []scene.ActRequest
	// block останавливает поток шага до отмены контекста.
	block map[int]bool
}

func (f *fakeActor) record(req scene.ActRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

func (f *fakeActor) Act(_ context.Context, req scene.ActRequest) (string, error) {
	f.record(req)
	if err := f.failAt[req.Index]; err != nil {
		return "", err
	}
	out := ""
	for _, c := range f.chunks[req.Index] {
		out += c
	}
	return out, nil
}

func (f *fakeActor) ActStream(ctx context.Context, req scene.ActRequest) (*scene.TextStream, error) {
	f.record(req)
	return scene.Produce(ctx, func(ctx context.Context, emit func(string) error) error {
		for _, c := range f.chunks[req.Index] {
			if err := emit(c); err != nil {
				return err
			}
		}
		if f.block[req.Index] {
			<-ctx.Done()
			return ctx.Err()
		}
		return f.failAt[req.Index]
	}), nil
}

type fakeDispatcher struct {
	reqs []memory.PutRequest
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req memory.PutRequest) error {
	f.reqs = append(f.reqs, req)
	return nil
}

type turnFixture struct {
	store      *mocks.MockChatStore
	retriever  *fakeRetriever
	enhancer   *fakeEnhancer
	planner    *fakePlanner
	actor      *fakeActor
	dispatcher *fakeDispatcher
	svc        *TurnService
	chatID     uuid.UUID
	created    []models.NewMessage
	updates    map[uuid.UUID][]models.MessageUpdate
	stepErr    error
	mu         sync.Mutex
}

func isStepMessage(msg models.NewMessage) bool {
	_, ok := msg.Metadata["stepIndex"]
	return msg.Role == models.RoleAI && ok
}

func storyPlan() models.ScenePlan {
	return models.ScenePlan{
		{Type: models.StepWorld, Description: "rain starts"},
		{Type: models.StepSpeech, CharacterID: "c1", Description: "Анна greets"},
		{Type: models.StepThoughts, CharacterID: "c1", Description: "Анна worries"},
	}
}

func newTurnFixture(t *testing.T, history []models.ChatMessage) *turnFixture {
	t.Helper()
	f := &turnFixture{
		store:     mocks.NewMockChatStore(t),
		retriever: &fakeRetriever{got: models.MemoryGetResult{Static: []models.StaticMemory{{Content: "story", Tokens: 1}}}},
		enhancer: &fakeEnhancer{out: models.EnhanceOutput{
			InteractionIntent: models.IntentCasualDialogue,
			UserEmotion:       models.EmotionNeutral,
			SceneFlowType:     models.FlowDialogue,
		}},
		planner:    &fakePlanner{plan: storyPlan()},
		actor:      &fakeActor{chunks: map[int][]string{0: {"It ", "rains."}, 1: {"Hello!"}, 2: {"Hmm."}}},
		dispatcher: &fakeDispatcher{},
		chatID:     uuid.New(),
		updates:    map[uuid.UUID][]models.MessageUpdate{},
	}
	chat := &models.ChatWithHistory{
		Chat:     models.Chat{ID: f.chatID, POVCharacterID: "pov", NPCCharacterIDs: []string{"c1"}},
		Messages: history,
	}
	f.store.On("GetChatWithHistory", mock.Anything, f.chatID).Return(chat, nil).Maybe()
	f.store.On("CreateMessage", mock.Anything, mock.Anything).Return(
		func(_ context.Context, msg models.NewMessage) *models.ChatMessage {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.stepErr != nil && isStepMessage(msg) {
				return nil
			}
			f.created = append(f.created, msg)
			return &models.ChatMessage{ID: uuid.New(), ChatID: msg.ChatID, Role: msg.Role, Status: msg.Status, Content: msg.Content, CharacterID: msg.CharacterID}
		},
		func(_ context.Context, msg models.NewMessage) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			if isStepMessage(msg) {
				return f.stepErr
			}
			return nil
		},
	).Maybe()
	f.store.On("UpdateMessage", mock.Anything, mock.Anything, mock.Anything).Return(
		func(_ context.Context, id uuid.UUID, upd models.MessageUpdate) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.updates[id] = append(f.updates[id], upd)
			return nil
		},
	).Maybe()

	f.svc = NewTurnService(f.store, f.retriever, f.enhancer, f.planner, f.actor, f.dispatcher,
		tokenizer.Estimate{}, TurnConfig{MemoryTokenBudget: 1000, HistoryTokenLimit: 1000}, zap.NewNop())
	return f
}

func collectEvents(t *testing.T, f *turnFixture, kind models.TurnKind, mode Mode) ([]models.TurnEvent, error) {
	t.Helper()
	var events []models.TurnEvent
	err := f.svc.Submit(context.Background(), TurnRequest{ChatID: f.chatID, Query: "hi there", Kind: kind}, mode, func(ev models.TurnEvent) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}

func eventTypes(events []models.TurnEvent) []models.TurnEventType {
	out := make([]models.TurnEventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestTurnService_StreamOrdering(t *testing.T) {
	f := newTurnFixture(t, nil)

	events, err := collectEvents(t, f, models.TurnStory, ModeStream)
	require.NoError(t, err)

	assert.Equal(t, []models.TurnEventType{
		models.EventStepStart, models.EventChunk, models.EventChunk, models.EventStepDone,
		models.EventStepStart, models.EventChunk, models.EventStepDone,
		models.EventStepStart, models.EventChunk, models.EventStepDone,
		models.EventDone,
	}, eventTypes(events))

	start := events[0].Data.(models.StepStartData)
	chunk := events[1].Data.(models.ChunkData)
	done := events[3].Data.(models.StepDoneData)
	assert.Equal(t, start.MsgID, chunk.MsgID)
	assert.Equal(t, start.MsgID, done.MsgID)
	assert.Equal(t, "It ", chunk.Text)
	assert.Equal(t, 3, events[len(events)-1].Data.(models.DoneData).TotalSteps)

	// сообщение пользователя + три шага
	require.Len(t, f.created, 4)
	assert.Equal(t, models.RoleUser, f.created[0].Role)
	assert.Nil(t, f.created[1].CharacterID, "world step has no character")
	require.NotNil(t, f.created[2].CharacterID)
	assert.Equal(t, "c1", *f.created[2].CharacterID)
	for _, msg := range f.created[1:] {
		assert.Equal(t, models.StatusStreaming, msg.Status)
	}

	ups := f.updates[start.MsgID]
	require.Len(t, ups, 1)
	assert.Equal(t, models.StatusFinal, *ups[0].Status)
	assert.Equal(t, "It rains.", *ups[0].Content)

	// следующий шаг видит текст предыдущего в истории
	require.Len(t, f.actor.requests, 3)
	last := f.actor.requests[2].History
	assert.Equal(t, "c1: Hello!", last[len(last)-1].Content)
	assert.Equal(t, "It rains.", last[len(last)-2].Content)
}

func TestTurnService_BlockingEmitsOneChunkPerStep(t *testing.T) {
	f := newTurnFixture(t, nil)

	events, err := collectEvents(t, f, models.TurnStory, ModeBlocking)
	require.NoError(t, err)
	assert.Equal(t, []models.TurnEventType{
		models.EventStepStart, models.EventChunk, models.EventStepDone,
		models.EventStepStart, models.EventChunk, models.EventStepDone,
		models.EventStepStart, models.EventChunk, models.EventStepDone,
		models.EventDone,
	}, eventTypes(events))
	assert.Equal(t, "It rains.", events[1].Data.(models.ChunkData).Text)
}

func TestTurnService_StepFailureStopsPlan(t *testing.T) {
	f := newTurnFixture(t, nil)
	genErr := errors.New("backend exploded")
	f.actor.failAt = map[int]error{1: genErr}
	f.actor.chunks[1] = nil

	events, err := collectEvents(t, f, models.TurnStory, ModeStream)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.Index)
	assert.ErrorIs(t, err, genErr)

	assert.Equal(t, []models.TurnEventType{
		models.EventStepStart, models.EventChunk, models.EventChunk, models.EventStepDone,
		models.EventStepStart, models.EventStepError,
	}, eventTypes(events))
	assert.Len(t, f.actor.requests, 2, "step 2 is never started")

	ups := f.updates[stepErr.MsgID]
	require.Len(t, ups, 1)
	assert.Equal(t, models.StatusFinal, *ups[0].Status)
	assert.Equal(t, StepErrorPlaceholder, *ups[0].Content)
	assert.Empty(t, f.dispatcher.reqs)
}

func TestTurnService_StepMessageCreateFailureEndsWithError(t *testing.T) {
	f := newTurnFixture(t, nil)
	f.stepErr = errors.New("db down")

	var events []models.TurnEvent
	for ev := range f.svc.Events(context.Background(), TurnRequest{ChatID: f.chatID, Query: "hi there", Kind: models.TurnStory}, ModeStream) {
		events = append(events, ev)
	}

	require.Len(t, events, 1)
	assert.Equal(t, models.EventError, events[0].Type)
	data, ok := events[0].Data.(models.ErrorData)
	require.True(t, ok)
	assert.Contains(t, data.Error, "db down")
	assert.Empty(t, f.actor.requests)
	assert.Empty(t, f.dispatcher.reqs)
}

func TestTurnService_PartialTextKeptOnFailure(t *testing.T) {
	f := newTurnFixture(t, nil)
	f.actor.failAt = map[int]error{0: errors.New("cut")}

	_, err := collectEvents(t, f, models.TurnStory, ModeStream)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "It rains.", *f.updates[stepErr.MsgID][0].Content)
}

func TestTurnService_CancelLeavesMessageStreaming(t *testing.T) {
	f := newTurnFixture(t, nil)
	f.actor.block = map[int]bool{1: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var events []models.TurnEvent
	err := f.svc.Submit(ctx, TurnRequest{ChatID: f.chatID, Query: "hi"}, ModeStream, func(ev models.TurnEvent) error {
		events = append(events, ev)
		if ev.Type == models.EventChunk && ev.Data.(models.ChunkData).StepIndex == 1 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	last := events[len(events)-1]
	assert.Equal(t, models.EventChunk, last.Type)
	msgID := last.Data.(models.ChunkData).MsgID
	assert.Empty(t, f.updates[msgID], "canceled step message is not finalized")
	assert.Empty(t, f.dispatcher.reqs)
}

func TestTurnService_FriendCollapsesPlan(t *testing.T) {
	f := newTurnFixture(t, nil)
	f.actor.chunks = map[int][]string{0: {"Hey!"}}

	events, err := collectEvents(t, f, models.TurnFriend, ModeStream)
	require.NoError(t, err)
	assert.Equal(t, []models.TurnEventType{
		models.EventStepStart, models.EventChunk, models.EventStepDone, models.EventDone,
	}, eventTypes(events))

	step := events[0].Data.(models.StepStartData).Step
	assert.Equal(t, models.StepSpeech, step.Type)
	assert.Equal(t, "c1", step.CharacterID)
	require.Len(t, f.actor.requests, 1)
	assert.Equal(t, models.TurnFriend, f.actor.requests[0].Kind)
}

func TestTurnService_PrepareFailureEmitsError(t *testing.T) {
	f := newTurnFixture(t, nil)
	f.planner.err = errors.New("planner down")

	events, err := collectEvents(t, f, models.TurnStory, ModeStream)
	require.Error(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventError, events[0].Type)
	assert.Contains(t, events[0].Data.(models.ErrorData).Error, "planner down")
	assert.Empty(t, f.actor.requests)
}

func TestTurnService_EmptyQuery(t *testing.T) {
	f := newTurnFixture(t, nil)
	err := f.svc.Submit(context.Background(), TurnRequest{ChatID: f.chatID, Query: "  "}, ModeStream, func(models.TurnEvent) error { return nil })
	assert.ErrorIs(t, err, models.ErrEmptyQuery)
	f.store.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestTurnService_PrepareUsesTrimmedHistoryAndSavesMetadata(t *testing.T) {
	c1 := "c1"
	history := []models.ChatMessage{
		{Role: models.RoleUser, Status: models.StatusFinal, Content: "old old old old old old old old"},
		{Role: models.RoleAI, Status: models.StatusStreaming, Content: "half"},
		{Role: models.RoleAI, Status: models.StatusFinal, Content: "recent", CharacterID: &c1},
	}
	f := newTurnFixture(t, history)
	f.svc.cfg.HistoryTokenLimit = 4

	turn, err := f.svc.Prepare(context.Background(), TurnRequest{ChatID: f.chatID, Query: "and now?"})
	require.NoError(t, err)

	assert.Equal(t, []models.PromptMessage{
		{Role: models.PromptAssistant, Content: "c1: recent"},
		{Role: models.PromptUser, Content: "and now?"},
	}, turn.History)
	assert.Equal(t, turn.History, f.enhancer.history)
	assert.Equal(t, models.TurnStory, turn.Request.Kind)
	assert.Equal(t, models.IntentCasualDialogue, f.planner.policy.Intent)

	assert.Equal(t, 1000, f.retriever.req.Tokens)
	assert.Equal(t, "pov", f.retriever.req.POVCharacterID)
	assert.Equal(t, f.chatID.String(), f.retriever.req.ChatID)

	ups := f.updates[turn.UserMessage.ID]
	require.Len(t, ups, 1)
	meta := ups[0].Metadata.(map[string]any)
	assert.Contains(t, meta, "enhance")
	assert.Contains(t, meta, "policy")
	assert.Contains(t, meta, "plan")
}

func TestTurnService_ReserveReplySlot(t *testing.T) {
	f := newTurnFixture(t, nil)
	f.svc.cfg.ReserveReplySlot = true
	f.store.On("DeleteMessage", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.svc.Prepare(context.Background(), TurnRequest{ChatID: f.chatID, Query: "hi"})
	require.NoError(t, err)
	require.Len(t, f.created, 2)
	assert.Equal(t, models.RoleAI, f.created[1].Role)
	assert.Equal(t, models.StatusStreaming, f.created[1].Status)
}

func TestTurnService_DispatchesMemoryWrites(t *testing.T) {
	f := newTurnFixture(t, nil)
	f.enhancer.out.MemoryWrites = []models.MemoryWriteSuggestion{
		{Kind: models.MemoryKindProfile, ProfileType: models.ProfileCharacter, CharacterIDs: []string{"c1"}, Content: "likes rain", Importance: 0.7},
		{Kind: models.MemoryKindEvent, Content: "they met", Importance: 0.4},
	}

	_, err := collectEvents(t, f, models.TurnStory, ModeStream)
	require.NoError(t, err)

	require.Len(t, f.dispatcher.reqs, 1)
	req := f.dispatcher.reqs[0]
	require.Len(t, req.Profiles, 1)
	assert.Equal(t, "likes rain", req.Profiles[0].Content)
	require.Len(t, req.Events, 2)
	assert.Equal(t, "they met", req.Events[0].Content)
	assert.Equal(t, "hi there", req.Events[1].Content)
	assert.Equal(t, f.chatID.String(), req.Events[1].ChatID)
}

func TestTurnService_EventsChannelClosesAfterDone(t *testing.T) {
	f := newTurnFixture(t, nil)

	var got []models.TurnEventType
	for ev := range f.svc.Events(context.Background(), TurnRequest{ChatID: f.chatID, Query: "hi"}, ModeStream) {
		got = append(got, ev.Type)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, models.EventDone, got[len(got)-1])
}
