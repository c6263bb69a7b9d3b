package scene

import (
	"context"
	"encoding/json"
	"fmt"

	"scene-server/internal/ai"
	"scene-server/internal/models"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

// Enhancer классифицирует последний ход пользователя.
type Enhancer struct {
	client  ai.Client
	prompts *PromptProvider
	model   string
	retry   ai.RetryPolicy
	logger  *zap.Logger
}

func NewEnhancer(client ai.Client, prompts *PromptProvider, model string, retry ai.RetryPolicy, logger *zap.Logger) *Enhancer {
	return &Enhancer{
		client:  client,
		prompts: prompts,
		model:   model,
		retry:   retry,
		logger:  logger.Named("Enhancer"),
	}
}

type moodDeltaWire struct {
	CharacterID string           `json:"characterId"`
	Delta       models.MoodDelta `json:"delta"`
}

type enhanceWire struct {
	InteractionIntent     models.SceneIntent             `json:"interactionIntent"`
	UserEmotion           models.UserEmotion             `json:"userEmotion"`
	SceneFlowType         models.SceneFlowType           `json:"sceneFlowType"`
	PerCharacterMoodDelta []moodDeltaWire                `json:"perCharacterMoodDelta"`
	MemoryWrites          []models.MemoryWriteSuggestion `json:"memoryWrites"`
}

var enhanceSchema = ai.Schema{
	Name:        "query_enhancement",
	Description: "Classification of the latest user turn",
	Definition: jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"interactionIntent": {Type: jsonschema.String, Enum: enumStrings(models.AllSceneIntents())},
			"userEmotion":       {Type: jsonschema.String, Enum: enumStrings(models.AllUserEmotions())},
			"sceneFlowType":     {Type: jsonschema.String, Enum: enumStrings(models.AllSceneFlowTypes())},
			"perCharacterMoodDelta": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"characterId": {Type: jsonschema.String},
						"delta": {Type: jsonschema.String, Enum: []string{
							string(models.MoodIncreased), string(models.MoodDecreased), string(models.MoodNeutral),
						}},
					},
					Required:             []string{"characterId", "delta"},
					AdditionalProperties: false,
				},
			},
			"memoryWrites": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"kind": {Type: jsonschema.String, Enum: []string{string(models.MemoryKindProfile), string(models.MemoryKindEvent)}},
						"profileType": {Type: jsonschema.String, Enum: []string{
							string(models.ProfileCharacter), string(models.ProfileRelationship), "",
						}},
						"characterIds": {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
						"content":      {Type: jsonschema.String},
						"importance":   {Type: jsonschema.Number},
					},
					Required:             []string{"kind", "profileType", "characterIds", "content", "importance"},
					AdditionalProperties: false,
				},
			},
		},
		Required:             []string{"interactionIntent", "userEmotion", "sceneFlowType", "perCharacterMoodDelta", "memoryWrites"},
		AdditionalProperties: false,
	},
}

// Enhance возвращает классификацию. Повторяются только временные сбои бэкенда;
// неразборчивый или невалидный ответ сразу даёт models.ErrInvalidEnhancement.
func (e *Enhancer) Enhance(ctx context.Context, history []models.PromptMessage, mems models.MemoryGetResult) (models.EnhanceOutput, error) {
	req := ai.CompletionRequest{
		Model:    e.model,
		Messages: e.buildMessages(history, mems),
		Schema:   &enhanceSchema,
		Tag:      "enhance",
	}

	var raw string
	err := e.retry.Do(ctx, e.logger, "enhance", func(ctx context.Context, _ int) error {
		text, _, err := e.client.Complete(ctx, req)
		if err != nil {
			return err
		}
		raw = text
		return nil
	})
	if err != nil {
		return models.EnhanceOutput{}, err
	}

	out, err := parseEnhancement(raw)
	if err != nil {
		e.logger.Error("Invalid enhancement output", zap.String("raw", raw), zap.Error(err))
		return models.EnhanceOutput{}, err
	}
	e.logger.Debug("Query enhanced",
		zap.String("intent", string(out.InteractionIntent)),
		zap.String("emotion", string(out.UserEmotion)),
		zap.String("flow", string(out.SceneFlowType)),
		zap.Int("memoryWrites", len(out.MemoryWrites)),
	)
	return out, nil
}

func (e *Enhancer) buildMessages(history []models.PromptMessage, mems models.MemoryGetResult) []models.PromptMessage {
	out := []models.PromptMessage{system(e.prompts.Get(PromptEnhance, nil))}
	out = section(out, "General information", staticItems(mems))

	split := len(history) - intentTargetSize
	if split < 0 {
		split = 0
	}
	out = withHistory(out, "Conversation context", history[:split])
	out = withHistory(out, "Intent target", history[split:])

	out = section(out, "Event memories", eventItems(mems))
	out = section(out, "Profile memories", profileItems(mems))
	return out
}

func parseEnhancement(raw string) (models.EnhanceOutput, error) {
	var wire enhanceWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return models.EnhanceOutput{}, fmt.Errorf("%w: %v", models.ErrInvalidEnhancement, err)
	}
	out := models.EnhanceOutput{
		InteractionIntent:     wire.InteractionIntent,
		UserEmotion:           wire.UserEmotion,
		SceneFlowType:         wire.SceneFlowType,
		PerCharacterMoodDelta: make(map[string]models.MoodDelta, len(wire.PerCharacterMoodDelta)),
	}
	for _, d := range wire.PerCharacterMoodDelta {
		if d.CharacterID == "" {
			continue
		}
		out.PerCharacterMoodDelta[d.CharacterID] = d.Delta
	}
	for _, w := range wire.MemoryWrites {
		if w.Kind == models.MemoryKindEvent {
			w.ProfileType = ""
			w.CharacterIDs = nil
		}
		out.MemoryWrites = append(out.MemoryWrites, w)
	}
	if err := out.Validate(); err != nil {
		return models.EnhanceOutput{}, err
	}
	return out, nil
}

func enumStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
