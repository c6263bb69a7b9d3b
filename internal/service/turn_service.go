// Package service исполняет ход чата: подготовка (история, память, классификация,
// политика, план) и последовательное исполнение шагов плана с потоком событий.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scene-server/internal/interfaces"
	"scene-server/internal/memory"
	"scene-server/internal/models"
	"scene-server/internal/policy"
	"scene-server/internal/scene"
	"scene-server/internal/tokenizer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StepErrorPlaceholder сохраняется в сообщение шага, если до сбоя не пришло ни одного фрагмента.
const StepErrorPlaceholder = "Error occurred during generation"

// Mode - способ исполнения шагов.
type Mode string

const (
	ModeStream   Mode = "stream"
	ModeBlocking Mode = "blocking"
)

func (m Mode) Valid() bool {
	return m == ModeStream || m == ModeBlocking
}

// MemoryRetriever - извлечение памяти для хода.
type MemoryRetriever interface {
	Get(ctx context.Context, req memory.GetRequest) (models.MemoryGetResult, error)
}

// Enhancer - классификация последнего хода.
type Enhancer interface {
	Enhance(ctx context.Context, history []models.PromptMessage, mems models.MemoryGetResult) (models.EnhanceOutput, error)
}

// Planner - построение плана сцены.
type Planner interface {
	Plan(ctx context.Context, policy models.ScenePolicy, mems models.MemoryGetResult, history []models.PromptMessage) (models.ScenePlan, error)
}

// Actor - исполнение одного шага.
type Actor interface {
	Act(ctx context.Context, req scene.ActRequest) (string, error)
	ActStream(ctx context.Context, req scene.ActRequest) (*scene.TextStream, error)
}

// MemoryWriteDispatcher принимает записи памяти после хода и не блокирует ход.
type MemoryWriteDispatcher interface {
	Dispatch(ctx context.Context, req memory.PutRequest) error
}

// TurnConfig - параметры хода.
type TurnConfig struct {
	MemoryTokenBudget int
	HistoryTokenLimit int
	// ReserveReplySlot создаёт и сразу удаляет заготовку ответа, проверяя доступ на запись до долгого планирования.
	ReserveReplySlot bool
}

// TurnRequest - запрос пользователя на ход.
type TurnRequest struct {
	ChatID uuid.UUID       `json:"chatId"`
	Query  string          `json:"query"`
	Kind   models.TurnKind `json:"kind"`
}

// PreparedTurn - всё, что известно о ходе до исполнения шагов.
type PreparedTurn struct {
	Request     TurnRequest
	Chat        models.Chat
	History     []models.PromptMessage
	UserMessage *models.ChatMessage
	Memories    models.MemoryGetResult
	Enhancement models.EnhanceOutput
	Policy      models.ScenePolicy
	RawPlan     models.ScenePlan
	Plan        models.ScenePlan
}

// EmitFunc отправляет событие клиенту. Ошибка означает, что клиент ушёл.
type EmitFunc func(models.TurnEvent) error

// StepError - сбой конкретного шага; событие step_error уже отправлено.
type StepError struct {
	Index int
	MsgID uuid.UUID
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d failed: %v", e.Index, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// TurnService - оркестратор хода.
type TurnService struct {
	chats     interfaces.ChatStore
	retriever MemoryRetriever
	enhancer  Enhancer
	planner   Planner
	actor     Actor
	writes    MemoryWriteDispatcher
	counter   tokenizer.Counter
	cfg       TurnConfig
	logger    *zap.Logger
}

func NewTurnService(
	chats interfaces.ChatStore,
	retriever MemoryRetriever,
	enhancer Enhancer,
	planner Planner,
	actor Actor,
	writes MemoryWriteDispatcher,
	counter tokenizer.Counter,
	cfg TurnConfig,
	logger *zap.Logger,
) *TurnService {
	return &TurnService{
		chats:     chats,
		retriever: retriever,
		enhancer:  enhancer,
		planner:   planner,
		actor:     actor,
		writes:    writes,
		counter:   counter,
		cfg:       cfg,
		logger:    logger.Named("TurnService"),
	}
}

// Prepare загружает историю, сохраняет сообщение пользователя, извлекает память,
// классифицирует запрос, выводит политику и строит план.
// Любая ошибка здесь фатальна для хода; сообщения шагов ещё не созданы.
func (s *TurnService) Prepare(ctx context.Context, req TurnRequest) (*PreparedTurn, error) {
	start := time.Now()
	defer func() { prepareDuration.Observe(time.Since(start).Seconds()) }()

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, models.ErrEmptyQuery
	}
	if req.Kind == "" {
		req.Kind = models.TurnStory
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unknown turn kind %q", req.Kind)
	}
	log := s.logger.With(zap.String("chatID", req.ChatID.String()), zap.String("kind", string(req.Kind)))

	chat, err := s.chats.GetChatWithHistory(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	history := buildHistory(chat.Messages, s.counter, s.cfg.HistoryTokenLimit)
	history = append(history, models.PromptMessage{Role: models.PromptUser, Content: req.Query})

	userMsg, err := s.chats.CreateMessage(ctx, models.NewMessage{
		ChatID:  req.ChatID,
		Role:    models.RoleUser,
		Status:  models.StatusFinal,
		Content: req.Query,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	if s.cfg.ReserveReplySlot {
		if err := s.reserveReplySlot(ctx, req.ChatID); err != nil {
			return nil, err
		}
	}

	mems, err := s.retriever.Get(ctx, memory.GetRequest{
		Query:           req.Query,
		Tokens:          s.cfg.MemoryTokenBudget,
		POVCharacterID:  chat.Chat.POVCharacterID,
		NPCCharacterIDs: chat.Chat.NPCCharacterIDs,
		ChatID:          req.ChatID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("memory retrieval failed: %w", err)
	}

	enhancement, err := s.enhancer.Enhance(ctx, history, mems)
	if err != nil {
		return nil, fmt.Errorf("enhancement failed: %w", err)
	}
	scenePolicy := policy.Derive(enhancement)

	rawPlan, err := s.planner.Plan(ctx, scenePolicy, mems, history)
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}
	plan := rawPlan
	if req.Kind == models.TurnFriend {
		plan, err = scene.CollapseForFriend(rawPlan, friendCharacter(chat.Chat))
		if err != nil {
			return nil, err
		}
	}

	if err := s.chats.UpdateMessage(ctx, userMsg.ID, models.MessageUpdate{
		Metadata: map[string]any{
			"enhance": enhancement,
			"policy":  scenePolicy,
			"plan":    rawPlan,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to save turn metadata: %w", err)
	}

	log.Info("Turn prepared",
		zap.Int("historyMessages", len(history)),
		zap.Int("memories", mems.Count()),
		zap.Int("memoryTokens", mems.TotalTokens()),
		zap.String("intent", string(enhancement.InteractionIntent)),
		zap.Int("steps", len(plan)),
		zap.Duration("duration", time.Since(start)),
	)
	return &PreparedTurn{
		Request:     req,
		Chat:        chat.Chat,
		History:     history,
		UserMessage: userMsg,
		Memories:    mems,
		Enhancement: enhancement,
		Policy:      scenePolicy,
		RawPlan:     rawPlan,
		Plan:        plan,
	}, nil
}

func (s *TurnService) reserveReplySlot(ctx context.Context, chatID uuid.UUID) error {
	placeholder, err := s.chats.CreateMessage(ctx, models.NewMessage{
		ChatID: chatID,
		Role:   models.RoleAI,
		Status: models.StatusStreaming,
	})
	if err != nil {
		return fmt.Errorf("failed to reserve reply slot: %w", err)
	}
	if err := s.chats.DeleteMessage(ctx, placeholder.ID); err != nil {
		return fmt.Errorf("failed to release reply slot: %w", err)
	}
	return nil
}

// friendCharacter - собеседник в режиме friend: первый NPC чата.
func friendCharacter(chat models.Chat) string {
	for _, id := range chat.NPCCharacterIDs {
		if id != "" {
			return id
		}
	}
	return ""
}

// Run исполняет шаги строго по очереди. Шаг i+1 начинается только после
// финализации сообщения шага i. Сбой шага финализирует его сообщение и
// прерывает оставшийся план. Отмена ctx оставляет текущее сообщение в статусе streaming.
func (s *TurnService) Run(ctx context.Context, turn *PreparedTurn, mode Mode, emit EmitFunc) error {
	if !mode.Valid() {
		mode = ModeStream
	}
	kind := string(turn.Request.Kind)
	history := append([]models.PromptMessage(nil), turn.History...)
	planSteps.Observe(float64(len(turn.Plan)))

	for i, step := range turn.Plan {
		text, msgID, err := s.runStep(ctx, turn, mode, i, history, emit)
		if err != nil {
			var stepErr *StepError
			if errors.As(err, &stepErr) {
				turnsTotal.WithLabelValues(kind, "step_error").Inc()
			} else {
				turnsTotal.WithLabelValues(kind, "canceled").Inc()
			}
			return err
		}
		history = append(history, stepHistoryMessage(step, text))
		s.logger.Debug("Step finished", zap.Int("stepIndex", i), zap.String("msgID", msgID.String()), zap.Int("chars", len(text)))
	}

	s.dispatchMemoryWrites(ctx, turn)
	turnsTotal.WithLabelValues(kind, "done").Inc()
	return emit(models.TurnEvent{Type: models.EventDone, Data: models.DoneData{TotalSteps: len(turn.Plan)}})
}

func (s *TurnService) runStep(ctx context.Context, turn *PreparedTurn, mode Mode, idx int, history []models.PromptMessage, emit EmitFunc) (string, uuid.UUID, error) {
	step := turn.Plan[idx]
	start := time.Now()
	log := s.logger.With(zap.String("chatID", turn.Request.ChatID.String()), zap.Int("stepIndex", idx), zap.String("stepType", string(step.Type)))

	var characterID *string
	if step.CharacterID != "" {
		id := step.CharacterID
		characterID = &id
	}
	msg, err := s.chats.CreateMessage(ctx, models.NewMessage{
		ChatID:      turn.Request.ChatID,
		Role:        models.RoleAI,
		Status:      models.StatusStreaming,
		CharacterID: characterID,
		Metadata:    map[string]any{"step": step, "stepIndex": idx},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", uuid.Nil, ctx.Err()
		}
		log.Error("Failed to create step message", zap.Error(err))
		stepDuration.WithLabelValues(string(mode), string(step.Type), "error").Observe(time.Since(start).Seconds())
		// Сообщения шага нет, поэтому поток завершается событием error
		_ = emit(models.TurnEvent{Type: models.EventError, Data: models.ErrorData{Error: err.Error()}})
		return "", uuid.Nil, &StepError{Index: idx, Err: fmt.Errorf("failed to create step message: %w", err)}
	}
	if err := emit(models.TurnEvent{Type: models.EventStepStart, Data: models.StepStartData{StepIndex: idx, MsgID: msg.ID, Step: step}}); err != nil {
		return "", msg.ID, err
	}

	req := scene.ActRequest{
		Kind:     turn.Request.Kind,
		Plan:     turn.Plan,
		Index:    idx,
		Memories: turn.Memories,
		History:  history,
	}
	text, genErr := s.generate(ctx, mode, req, msg.ID, emit)
	observe := func(outcome string) {
		stepDuration.WithLabelValues(string(mode), string(step.Type), outcome).Observe(time.Since(start).Seconds())
	}

	if ctx.Err() != nil || errors.Is(genErr, errClientGone) {
		observe("canceled")
		log.Info("Turn canceled, step message left streaming", zap.String("msgID", msg.ID.String()))
		if genErr == nil {
			genErr = ctx.Err()
		}
		return text, msg.ID, genErr
	}

	if genErr != nil {
		observe("error")
		log.Error("Step generation failed", zap.String("msgID", msg.ID.String()), zap.Error(genErr))
		content := text
		if content == "" {
			content = StepErrorPlaceholder
		}
		final := models.StatusFinal
		if err := s.chats.UpdateMessage(ctx, msg.ID, models.MessageUpdate{
			Status:   &final,
			Content:  &content,
			Metadata: map[string]any{"step": step, "error": genErr.Error()},
		}); err != nil {
			log.Error("Failed to finalize failed step message", zap.Error(err))
		}
		_ = emit(models.TurnEvent{Type: models.EventStepError, Data: models.StepErrorData{StepIndex: idx, MsgID: msg.ID, Error: genErr.Error()}})
		return text, msg.ID, &StepError{Index: idx, MsgID: msg.ID, Err: genErr}
	}

	final := models.StatusFinal
	if err := s.chats.UpdateMessage(ctx, msg.ID, models.MessageUpdate{Status: &final, Content: &text}); err != nil {
		observe("error")
		_ = emit(models.TurnEvent{Type: models.EventStepError, Data: models.StepErrorData{StepIndex: idx, MsgID: msg.ID, Error: err.Error()}})
		return text, msg.ID, &StepError{Index: idx, MsgID: msg.ID, Err: fmt.Errorf("failed to finalize step message: %w", err)}
	}
	observe("done")
	if err := emit(models.TurnEvent{Type: models.EventStepDone, Data: models.StepDoneData{StepIndex: idx, MsgID: msg.ID}}); err != nil {
		return text, msg.ID, err
	}
	return text, msg.ID, nil
}

// errClientGone - клиент перестал принимать события.
var errClientGone = errors.New("client stopped receiving events")

// generate возвращает накопленный текст даже при ошибке.
func (s *TurnService) generate(ctx context.Context, mode Mode, req scene.ActRequest, msgID uuid.UUID, emit EmitFunc) (string, error) {
	chunk := func(text string) error {
		if err := emit(models.TurnEvent{Type: models.EventChunk, Data: models.ChunkData{Text: text, MsgID: msgID, StepIndex: req.Index}}); err != nil {
			return fmt.Errorf("%w: %v", errClientGone, err)
		}
		return nil
	}

	if mode == ModeBlocking {
		text, err := s.actor.Act(ctx, req)
		if err != nil {
			return "", err
		}
		return text, chunk(text)
	}

	stream, err := s.actor.ActStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for text := range stream.Chunks() {
		b.WriteString(text)
		if err := chunk(text); err != nil {
			return b.String(), err
		}
	}
	if err := stream.Err(); err != nil {
		return b.String(), err
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: empty step output", models.ErrGenerationFailed)
	}
	return b.String(), nil
}

// dispatchMemoryWrites передаёт предложения классификатора и сам запрос в индексацию.
// Ошибка только логируется.
func (s *TurnService) dispatchMemoryWrites(ctx context.Context, turn *PreparedTurn) {
	if s.writes == nil {
		return
	}
	req := memoryWrites(turn)
	if req.Empty() {
		return
	}
	if err := s.writes.Dispatch(context.WithoutCancel(ctx), req); err != nil {
		s.logger.Warn("Memory write dispatch failed", zap.String("chatID", turn.Request.ChatID.String()), zap.Error(err))
	}
}

// userQueryImportance - важность события-запроса пользователя.
const userQueryImportance = 0.5

func memoryWrites(turn *PreparedTurn) memory.PutRequest {
	chatID := turn.Request.ChatID.String()
	var req memory.PutRequest
	for _, w := range turn.Enhancement.MemoryWrites {
		switch w.Kind {
		case models.MemoryKindProfile:
			req.Profiles = append(req.Profiles, memory.ProfileInput{
				Type:         w.ProfileType,
				CharacterIDs: w.CharacterIDs,
				Content:      w.Content,
				Importance:   w.Importance,
			})
		case models.MemoryKindEvent:
			req.Events = append(req.Events, memory.EventInput{
				Type:       models.EventChat,
				ChatID:     chatID,
				Content:    w.Content,
				Importance: w.Importance,
			})
		default:
		}
	}
	req.Events = append(req.Events, memory.EventInput{
		Type:       models.EventChat,
		ChatID:     chatID,
		Content:    turn.Request.Query,
		Importance: userQueryImportance,
	})
	return req
}

// Submit = Prepare + Run. Ошибка подготовки отправляется событием error;
// сбой шага уже отправлен как step_error.
func (s *TurnService) Submit(ctx context.Context, req TurnRequest, mode Mode, emit EmitFunc) error {
	turn, err := s.Prepare(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			kind := string(req.Kind)
			if kind == "" {
				kind = string(models.TurnStory)
			}
			turnsTotal.WithLabelValues(kind, "error").Inc()
			s.logger.Error("Turn preparation failed", zap.String("chatID", req.ChatID.String()), zap.Error(err))
			_ = emit(models.TurnEvent{Type: models.EventError, Data: models.ErrorData{Error: err.Error()}})
		}
		return err
	}
	return s.Run(ctx, turn, mode, emit)
}

// Events запускает ход и отдаёт события через канал ёмкостью 1: медленный
// читатель приостанавливает генерацию. Канал закрывается после терминального события
// или отмены ctx.
func (s *TurnService) Events(ctx context.Context, req TurnRequest, mode Mode) <-chan models.TurnEvent {
	events := make(chan models.TurnEvent, 1)
	go func() {
		defer close(events)
		_ = s.Submit(ctx, req, mode, func(ev models.TurnEvent) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return events
}
