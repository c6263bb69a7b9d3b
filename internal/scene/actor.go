package scene

import (
	"context"
	"fmt"
	"strings"

	"scene-server/internal/ai"
	"scene-server/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var actorChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "scene_actor_chunks_total",
	Help: "Text chunks delivered by the scene actor stream.",
}, []string{"kind", "step_type"})

// ActRequest - всё, что нужно для исполнения одного шага.
type ActRequest struct {
	Kind     models.TurnKind
	Plan     models.ScenePlan
	Index    int
	Memories models.MemoryGetResult
	History  []models.PromptMessage
}

// Actor превращает шаг плана в текст.
type Actor struct {
	client  ai.Client
	prompts *PromptProvider
	model   string
	retry   ai.RetryPolicy
	logger  *zap.Logger
}

func NewActor(client ai.Client, prompts *PromptProvider, model string, retry ai.RetryPolicy, logger *zap.Logger) *Actor {
	return &Actor{
		client:  client,
		prompts: prompts,
		model:   model,
		retry:   retry,
		logger:  logger.Named("Actor"),
	}
}

// Act генерирует текст шага целиком.
func (a *Actor) Act(ctx context.Context, req ActRequest) (string, error) {
	completion, err := a.completionRequest(req)
	if err != nil {
		return "", err
	}
	var text string
	err = a.retry.Do(ctx, a.logger, "act", func(ctx context.Context, _ int) error {
		out, _, err := a.client.Complete(ctx, completion)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// ActStream запускает генерацию шага в отдельной горутине. Повтор возможен только
// до первого отданного фрагмента; сбой после него приходит через Err(),
// а уже отданный текст остаётся у читателя.
func (a *Actor) ActStream(ctx context.Context, req ActRequest) (*TextStream, error) {
	completion, err := a.completionRequest(req)
	if err != nil {
		return nil, err
	}
	step := req.Plan[req.Index]
	chunks := actorChunksTotal.WithLabelValues(string(req.Kind), string(step.Type))

	stream := Produce(ctx, func(streamCtx context.Context, emit func(string) error) error {
		delivered := false
		err := a.retry.Do(streamCtx, a.logger, "act_stream", func(attemptCtx context.Context, _ int) error {
			_, err := a.client.CompleteStream(attemptCtx, completion, func(text string) error {
				if err := emit(text); err != nil {
					return err
				}
				delivered = true
				chunks.Inc()
				return nil
			})
			if err != nil && delivered {
				return ai.Permanent(err)
			}
			return err
		})
		if err != nil && streamCtx.Err() == nil {
			a.logger.Error("Step stream failed",
				zap.Int("stepIndex", req.Index), zap.Bool("partial", delivered), zap.Error(err))
		}
		return err
	})
	return stream, nil
}

func (a *Actor) completionRequest(req ActRequest) (ai.CompletionRequest, error) {
	messages, err := a.buildMessages(req)
	if err != nil {
		return ai.CompletionRequest{}, err
	}
	return ai.CompletionRequest{
		Model:    a.model,
		Messages: messages,
		Tag:      "act_" + string(req.Kind),
	}, nil
}

func (a *Actor) buildMessages(req ActRequest) ([]models.PromptMessage, error) {
	if req.Index < 0 || req.Index >= len(req.Plan) {
		return nil, fmt.Errorf("%w: step index %d out of range [0, %d)", models.ErrInvalidPlan, req.Index, len(req.Plan))
	}
	step := req.Plan[req.Index]

	var out []models.PromptMessage
	out = section(out, "General information", staticItems(req.Memories))
	out = withHistory(out, "Chat history", req.History)
	out = section(out, "Event memories", eventItems(req.Memories))
	out = section(out, "Profile memories", profileItems(req.Memories))

	if prev := req.Plan.Processed(req.Index); len(prev) > 0 {
		lines := make([]string, len(prev))
		for i, s := range prev {
			lines[i] = "- " + stepLine(s)
		}
		out = append(out, system("Previous steps in the scene:\n"+strings.Join(lines, "\n")))
	}
	out = append(out, system(fmt.Sprintf("Current scene plan:\n%s (%s): %s", step.Type, step.Actor(), step.Description)))

	instruction, err := a.instruction(req.Kind, step, req.Memories)
	if err != nil {
		return nil, err
	}
	return append(out, system(instruction)), nil
}

// instruction выбирает шаблон по паре (kind, step.Type).
func (a *Actor) instruction(kind models.TurnKind, step models.SceneStep, mems models.MemoryGetResult) (string, error) {
	vars := characterVars(step.CharacterID, mems)
	switch kind {
	case models.TurnFriend:
		return a.prompts.Get(PromptFriend, vars), nil
	case models.TurnStory:
		switch step.Type {
		case models.StepWorld:
			return a.prompts.Get(PromptWorld, nil), nil
		case models.StepThoughts:
			return a.prompts.Get(PromptThoughts, vars), nil
		case models.StepSpeech:
			return a.prompts.Get(PromptSpeech, vars), nil
		default:
			return "", fmt.Errorf("%w: unknown step type %q", models.ErrInvalidPlan, step.Type)
		}
	default:
		return "", fmt.Errorf("unknown turn kind %q", kind)
	}
}

// characterVars подставляет анкету и имя персонажа; без анкеты используется id.
func characterVars(characterID string, mems models.MemoryGetResult) map[string]string {
	sheet, ok := mems.Character(characterID)
	if !ok {
		return map[string]string{"character": characterID, "name": characterID}
	}
	name := sheet.Name
	if name == "" {
		name = characterID
	}
	return map[string]string{"character": sheet.Content, "name": name}
}
