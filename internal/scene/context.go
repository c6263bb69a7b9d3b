// Package scene - генеративные этапы хода: классификация запроса,
// планирование сцены и исполнение шагов плана.
package scene

import (
	"fmt"
	"strings"

	"scene-server/internal/models"
)

// intentTargetSize - сколько последних сообщений считается целью классификации.
const intentTargetSize = 3

func system(content string) models.PromptMessage {
	return models.PromptMessage{Role: models.PromptSystem, Content: content}
}

func user(content string) models.PromptMessage {
	return models.PromptMessage{Role: models.PromptUser, Content: content}
}

// section добавляет заголовок и маркированный список; пустой список пропускается.
func section(out []models.PromptMessage, title string, items []string) []models.PromptMessage {
	if len(items) == 0 {
		return out
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(item)
	}
	return append(out, system(title+":"), user(b.String()))
}

func staticItems(mems models.MemoryGetResult) []string {
	out := make([]string, 0, len(mems.Static))
	for _, m := range mems.Static {
		out = append(out, m.Content)
	}
	return out
}

func eventItems(mems models.MemoryGetResult) []string {
	out := make([]string, 0, len(mems.Event))
	for _, m := range mems.Event {
		out = append(out, m.Content)
	}
	return out
}

func profileItems(mems models.MemoryGetResult) []string {
	out := make([]string, 0, len(mems.Profile))
	for _, m := range mems.Profile {
		out = append(out, m.Content)
	}
	return out
}

func withHistory(out []models.PromptMessage, title string, history []models.PromptMessage) []models.PromptMessage {
	if len(history) == 0 {
		return out
	}
	out = append(out, system(title+":"))
	return append(out, history...)
}

// stepLine - компактная строка шага для журнала сыгранных шагов.
func stepLine(step models.SceneStep) string {
	return fmt.Sprintf("%s (%s): %s", step.Type, step.CharacterID, step.Description)
}
