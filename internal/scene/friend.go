package scene

import (
	"fmt"
	"strings"

	"scene-server/internal/models"
)

// CollapseForFriend сворачивает план сцены в один шаг speech для режима friend.
// Описание - описания шагов speech и thoughts по порядку через перевод строки.
// Если таких шагов нет, берутся описания всех шагов. Персонаж - friendID,
// а если он пуст, первый персонаж исходного плана.
func CollapseForFriend(plan models.ScenePlan, friendID string) (models.ScenePlan, error) {
	var parts, all []string
	firstActor := ""
	for _, step := range plan {
		all = append(all, step.Description)
		switch step.Type {
		case models.StepSpeech, models.StepThoughts:
			parts = append(parts, step.Description)
			if firstActor == "" {
				firstActor = step.CharacterID
			}
		case models.StepWorld:
		default:
		}
	}
	if len(parts) == 0 {
		parts = all
	}

	characterID := friendID
	if characterID == "" {
		characterID = firstActor
	}
	if characterID == "" {
		return nil, fmt.Errorf("%w: no character to speak in friend mode", models.ErrInvalidPlan)
	}
	description := strings.TrimSpace(strings.Join(parts, "\n"))
	if description == "" {
		return nil, fmt.Errorf("%w: nothing to say in friend mode", models.ErrInvalidPlan)
	}
	return models.ScenePlan{{
		Type:        models.StepSpeech,
		CharacterID: characterID,
		Description: description,
	}}, nil
}
