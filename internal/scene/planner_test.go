package scene

import (
	"context"
	"strings"
	"testing"

	"scene-server/internal/ai"
	"scene-server/internal/mocks"
	"scene-server/internal/models"
	"scene-server/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPolicy() models.ScenePolicy {
	p := policy.Derive(models.EnhanceOutput{
		InteractionIntent: models.IntentSeriousTalk,
		UserEmotion:       models.EmotionNeutral,
		SceneFlowType:     models.FlowDialogue,
	})
	p.MaxBeats = 4
	p.MaxBeatsPerActor = 2
	return p
}

const (
	validPlan = `{"steps":[
		{"type":"world","characterId":"","description":"Дождь стихает"},
		{"type":"thoughts","characterId":"c1","description":"Анна сомневается"},
		{"type":"speech","characterId":"c1","description":"Анна задаёт вопрос"}
	]}`
	overActorPlan = `{"steps":[
		{"type":"world","characterId":"","description":"Дождь стихает"},
		{"type":"thoughts","characterId":"c1","description":"Анна сомневается"},
		{"type":"speech","characterId":"c1","description":"Анна задаёт вопрос"},
		{"type":"speech","characterId":"c1","description":"Анна настаивает"}
	]}`
)

func TestPlanner_Plan(t *testing.T) {
	client := mocks.NewMockAIClient(t)
	var captured ai.CompletionRequest
	client.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(ai.CompletionRequest) }).
		Return(validPlan, ai.UsageInfo{}, nil).Once()

	p := NewPlanner(client, testPrompts(t), "grok-3-mini", fastRetry, zap.NewNop())
	plan, err := p.Plan(context.Background(), testPolicy(), testMemories(), history(2))
	require.NoError(t, err)
	require.Len(t, plan, 3)
	assert.Equal(t, models.StepWorld, plan[0].Type)
	assert.Empty(t, plan[0].CharacterID)
	assert.Equal(t, "c1", plan[2].CharacterID)

	require.NotNil(t, captured.Schema)
	assert.Equal(t, "steps", captured.Schema.Name)

	msgs := captured.Messages
	general := indexOf(msgs, "General information:")
	chat := indexOf(msgs, "Chat history:")
	events := indexOf(msgs, "Event memories:")
	profiles := indexOf(msgs, "Profile memories:")
	assert.True(t, general < chat && chat < events && events < profiles)

	last := msgs[len(msgs)-1].Content
	assert.Contains(t, last, "intent: seriousTalk")
	assert.Contains(t, last, "between 1 and 4 steps")
	assert.Contains(t, last, "more than 2 steps")
	assert.Contains(t, last, `"maxBeatsPerActor": 2`)
	assert.NotContains(t, last, "{maxBeats}")
}

func TestPlanner_ReplansOnPolicyViolation(t *testing.T) {
	client := mocks.NewMockAIClient(t)
	client.On("Complete", mock.Anything, mock.Anything).Return(overActorPlan, ai.UsageInfo{}, nil).Once()
	client.On("Complete", mock.Anything, mock.Anything).Return("not json", ai.UsageInfo{}, nil).Once()
	client.On("Complete", mock.Anything, mock.Anything).Return(validPlan, ai.UsageInfo{}, nil).Once()

	p := NewPlanner(client, testPrompts(t), "", fastRetry, zap.NewNop())
	plan, err := p.Plan(context.Background(), testPolicy(), models.MemoryGetResult{}, nil)
	require.NoError(t, err)
	assert.Len(t, plan, 3)
	client.AssertNumberOfCalls(t, "Complete", 3)
}

func TestPlanner_GivesUpAfterFiveAttempts(t *testing.T) {
	client := mocks.NewMockAIClient(t)
	client.On("Complete", mock.Anything, mock.Anything).Return(overActorPlan, ai.UsageInfo{}, nil).Times(5)

	p := NewPlanner(client, testPrompts(t), "", fastRetry, zap.NewNop())
	_, err := p.Plan(context.Background(), testPolicy(), models.MemoryGetResult{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidPlan)
	assert.True(t, strings.Contains(err.Error(), "5 attempt"), err.Error())
	client.AssertNumberOfCalls(t, "Complete", 5)
}

func TestParsePlan_WorldStepWithCharacterIsRejected(t *testing.T) {
	_, err := parsePlan(`{"steps":[{"type":"world","characterId":"c1","description":"x"}]}`, testPolicy())
	assert.ErrorIs(t, err, ai.ErrInvalidOutput)
	assert.ErrorIs(t, err, models.ErrInvalidPlan)
}
