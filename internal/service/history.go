package service

import (
	"fmt"

	"scene-server/internal/models"
	"scene-server/internal/tokenizer"
)

// buildHistory превращает финальные сообщения чата в контекст модели.
// Сообщения включаются от новых к старым, пока помещаются в limit токенов,
// затем возвращаются в хронологическом порядке.
func buildHistory(messages []models.ChatMessage, counter tokenizer.Counter, limit int) []models.PromptMessage {
	var picked []models.PromptMessage
	used := 0
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Status != models.StatusFinal || msg.Content == "" {
			continue
		}
		pm := toPromptMessage(msg)
		tokens := counter.Count(pm.Content)
		if limit > 0 && used+tokens > limit {
			break
		}
		used += tokens
		picked = append(picked, pm)
	}
	for l, r := 0, len(picked)-1; l < r; l, r = l+1, r-1 {
		picked[l], picked[r] = picked[r], picked[l]
	}
	return picked
}

func toPromptMessage(msg models.ChatMessage) models.PromptMessage {
	switch msg.Role {
	case models.RoleAI:
		content := msg.Content
		if msg.CharacterID != nil && *msg.CharacterID != "" {
			content = fmt.Sprintf("%s: %s", *msg.CharacterID, msg.Content)
		}
		return models.PromptMessage{Role: models.PromptAssistant, Content: content}
	case models.RoleUser:
		return models.PromptMessage{Role: models.PromptUser, Content: msg.Content}
	default:
		return models.PromptMessage{Role: models.PromptUser, Content: msg.Content}
	}
}

func stepHistoryMessage(step models.SceneStep, text string) models.PromptMessage {
	content := text
	if step.CharacterID != "" {
		content = fmt.Sprintf("%s: %s", step.CharacterID, text)
	}
	return models.PromptMessage{Role: models.PromptAssistant, Content: content}
}
