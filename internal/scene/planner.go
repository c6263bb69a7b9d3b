package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"scene-server/internal/ai"
	"scene-server/internal/models"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

// Planner строит план сцены в рамках политики.
type Planner struct {
	client  ai.Client
	prompts *PromptProvider
	model   string
	retry   ai.RetryPolicy
	logger  *zap.Logger
}

func NewPlanner(client ai.Client, prompts *PromptProvider, model string, retry ai.RetryPolicy, logger *zap.Logger) *Planner {
	return &Planner{
		client:  client,
		prompts: prompts,
		model:   model,
		retry:   retry,
		logger:  logger.Named("Planner"),
	}
}

type planWire struct {
	Steps []models.SceneStep `json:"steps"`
}

var planSchema = ai.Schema{
	Name:        "steps",
	Description: "Ordered steps of the next scene beat",
	Definition: jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"steps": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"type": {
							Type:        jsonschema.String,
							Enum:        []string{string(models.StepWorld), string(models.StepThoughts), string(models.StepSpeech)},
							Description: "world: environment or mood; thoughts: a character's inner reaction; speech: a character's dialogue",
						},
						"characterId": {Type: jsonschema.String, Description: "empty for world steps"},
						"description": {Type: jsonschema.String},
					},
					Required:             []string{"type", "characterId", "description"},
					AdditionalProperties: false,
				},
			},
		},
		Required:             []string{"steps"},
		AdditionalProperties: false,
	},
}

// Plan запрашивает план до исчерпания попыток. Неразборчивый ответ и нарушение
// политики считаются поводом перепланировать.
func (p *Planner) Plan(ctx context.Context, policy models.ScenePolicy, mems models.MemoryGetResult, history []models.PromptMessage) (models.ScenePlan, error) {
	messages, err := p.buildMessages(policy, mems, history)
	if err != nil {
		return nil, err
	}
	req := ai.CompletionRequest{
		Model:    p.model,
		Messages: messages,
		Schema:   &planSchema,
		Tag:      "plan",
	}

	var plan models.ScenePlan
	err = p.retry.Do(ctx, p.logger, "plan", func(ctx context.Context, attempt int) error {
		raw, _, err := p.client.Complete(ctx, req)
		if err != nil {
			return err
		}
		parsed, err := parsePlan(raw, policy)
		if err != nil {
			p.logger.Warn("Plan rejected", zap.Int("attempt", attempt), zap.String("raw", raw), zap.Error(err))
			return err
		}
		plan = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Scene planned", zap.Int("steps", len(plan)))
	return plan, nil
}

func (p *Planner) buildMessages(policy models.ScenePolicy, mems models.MemoryGetResult, history []models.PromptMessage) ([]models.PromptMessage, error) {
	var out []models.PromptMessage
	out = section(out, "General information", staticItems(mems))
	out = withHistory(out, "Chat history", history)
	out = section(out, "Event memories", eventItems(mems))
	out = section(out, "Profile memories", profileItems(mems))

	rawPolicy, err := json.MarshalIndent(policy, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy: %w", err)
	}
	out = append(out, system(compilePolicy(p.prompts, policy)+
		"\n\nMUST FOLLOW THESE RULES FOR THE SCENE PLANNING:\n"+string(rawPolicy)))
	return out, nil
}

func compilePolicy(prompts *PromptProvider, policy models.ScenePolicy) string {
	return prompts.Get(PromptPlan, map[string]string{
		"intent":           string(policy.Intent),
		"sceneFlowType":    string(policy.SceneFlowType),
		"userEmotion":      string(policy.UserEmotion),
		"tempo":            string(policy.Tempo),
		"detailLevel":      string(policy.DetailLevel),
		"dialogueDensity":  string(policy.DialogueDensity),
		"thoughtsDensity":  string(policy.ThoughtsDensity),
		"worldDensity":     string(policy.WorldDensity),
		"maxBeats":         strconv.Itoa(policy.MaxBeats),
		"maxBeatsPerActor": strconv.Itoa(policy.MaxBeatsPerActor),
	})
}

func parsePlan(raw string, policy models.ScenePolicy) (models.ScenePlan, error) {
	var wire planWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrInvalidOutput, err)
	}
	plan := models.ScenePlan(wire.Steps)
	if err := plan.Validate(policy); err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrInvalidOutput, err)
	}
	return plan, nil
}
