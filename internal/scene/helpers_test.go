package scene

import (
	"testing"
	"time"

	"scene-server/internal/ai"
	"scene-server/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fastRetry = ai.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func testPrompts(t *testing.T) *PromptProvider {
	t.Helper()
	p, err := NewPromptProvider("", zap.NewNop())
	require.NoError(t, err)
	return p
}

func testMemories() models.MemoryGetResult {
	return models.MemoryGetResult{
		Static: []models.StaticMemory{
			{Content: "Портовый город, осень.", Tokens: 4},
			{CharacterID: "c1", Name: "Анна", Content: "Character Анна (id: c1):\nлучница", Tokens: 6},
		},
		Profile: []models.ProfileMemory{{ID: "p1", Content: "Анна не доверяет морякам", Tokens: 4}},
		Event:   []models.EventMemory{{ID: "e1", Content: "Вчера был шторм", Tokens: 3}},
	}
}

func history(n int) []models.PromptMessage {
	out := make([]models.PromptMessage, n)
	for i := range out {
		role := models.PromptUser
		if i%2 == 1 {
			role = models.PromptAssistant
		}
		out[i] = models.PromptMessage{Role: role, Content: "msg" + string(rune('0'+i))}
	}
	return out
}

func indexOf(messages []models.PromptMessage, content string) int {
	for i, m := range messages {
		if m.Content == content {
			return i
		}
	}
	return -1
}
