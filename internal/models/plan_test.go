package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(maxBeats, perActor int) ScenePolicy {
	return ScenePolicy{
		Tempo: TempoNormal, DetailLevel: LevelMedium,
		DialogueDensity: LevelMedium, ThoughtsDensity: LevelMedium, WorldDensity: LevelMedium,
		MaxBeats: maxBeats, MaxBeatsPerActor: perActor,
	}
}

func TestScenePlan_Validate(t *testing.T) {
	tests := []struct {
		name    string
		plan    ScenePlan
		policy  ScenePolicy
		wantErr bool
	}{
		{
			name: "valid mixed plan",
			plan: ScenePlan{
				{Type: StepWorld, Description: "rain starts"},
				{Type: StepSpeech, CharacterID: "alice", Description: "greets"},
				{Type: StepThoughts, CharacterID: "bob", Description: "worries"},
			},
			policy: testPolicy(3, 1),
		},
		{
			name: "too many steps",
			plan: ScenePlan{
				{Type: StepWorld, Description: "a"},
				{Type: StepWorld, Description: "b"},
				{Type: StepWorld, Description: "c"},
			},
			policy:  testPolicy(2, 2),
			wantErr: true,
		},
		{
			name: "actor over limit",
			plan: ScenePlan{
				{Type: StepSpeech, CharacterID: "alice", Description: "a"},
				{Type: StepThoughts, CharacterID: "alice", Description: "b"},
				{Type: StepSpeech, CharacterID: "alice", Description: "c"},
			},
			policy:  testPolicy(5, 2),
			wantErr: true,
		},
		{
			name:    "world with character",
			plan:    ScenePlan{{Type: StepWorld, CharacterID: "alice", Description: "a"}},
			policy:  testPolicy(3, 2),
			wantErr: true,
		},
		{
			name:    "speech without character",
			plan:    ScenePlan{{Type: StepSpeech, Description: "a"}},
			policy:  testPolicy(3, 2),
			wantErr: true,
		},
		{
			name:    "empty plan",
			plan:    ScenePlan{},
			policy:  testPolicy(3, 2),
			wantErr: true,
		},
		{
			name:    "unknown type",
			plan:    ScenePlan{{Type: "dance", CharacterID: "alice", Description: "a"}},
			policy:  testPolicy(3, 2),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate(tt.policy)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidPlan)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestScenePlan_ProcessedIsCopy(t *testing.T) {
	plan := ScenePlan{
		{Type: StepWorld, Description: "a"},
		{Type: StepSpeech, CharacterID: "alice", Description: "b"},
		{Type: StepSpeech, CharacterID: "bob", Description: "c"},
	}

	assert.Nil(t, plan.Processed(0))
	prefix := plan.Processed(2)
	require.Len(t, prefix, 2)
	prefix[0].Description = "changed"
	assert.Equal(t, "a", plan[0].Description)
	assert.Len(t, plan.Processed(10), 3)
}

func TestEnhanceOutput_Validate(t *testing.T) {
	ok := EnhanceOutput{
		InteractionIntent:     IntentRomanticFlirt,
		UserEmotion:           EmotionGood,
		SceneFlowType:         FlowBanter,
		PerCharacterMoodDelta: map[string]MoodDelta{"alice": MoodIncreased},
	}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.UserEmotion = "ecstatic"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidEnhancement)

	badMood := ok
	badMood.PerCharacterMoodDelta = map[string]MoodDelta{"alice": "sideways"}
	assert.ErrorIs(t, badMood.Validate(), ErrInvalidEnhancement)

	badWrite := ok
	badWrite.MemoryWrites = []MemoryWriteSuggestion{{Kind: MemoryKindProfile, ProfileType: "pet", Content: "x"}}
	assert.ErrorIs(t, badWrite.Validate(), ErrInvalidEnhancement)
}

func TestMemoryGetResult_TotalsAndClone(t *testing.T) {
	r := MemoryGetResult{
		Static:  []StaticMemory{{Content: "s", Tokens: 10}},
		Profile: []ProfileMemory{{Content: "p", Tokens: 5, CharacterIDs: []string{"alice"}}},
		Event:   []EventMemory{{Content: "e", Tokens: 7}},
	}
	assert.Equal(t, 22, r.TotalTokens())
	assert.Equal(t, 3, r.Count())

	c := r.Clone()
	c.Profile[0].CharacterIDs[0] = "bob"
	assert.Equal(t, "alice", r.Profile[0].CharacterIDs[0])
}
