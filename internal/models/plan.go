package models

import "fmt"

// StepType - тип шага сцены.
type StepType string

const (
	StepWorld    StepType = "world"
	StepThoughts StepType = "thoughts"
	StepSpeech   StepType = "speech"
)

func (t StepType) Valid() bool {
	switch t {
	case StepWorld, StepThoughts, StepSpeech:
		return true
	default:
		return false
	}
}

// SceneStep - один шаг плана. У шага world нет персонажа,
// у thoughts и speech персонаж обязателен.
type SceneStep struct {
	Type        StepType `json:"type"`
	CharacterID string   `json:"characterId,omitempty"`
	Description string   `json:"description"`
}

// Actor возвращает идентификатор персонажа или "world" для шага мира.
func (s SceneStep) Actor() string {
	if s.Type == StepWorld {
		return "world"
	}
	return s.CharacterID
}

// ScenePlan - упорядоченная последовательность шагов.
type ScenePlan []SceneStep

// Validate проверяет структуру плана и его соответствие политике.
func (p ScenePlan) Validate(policy ScenePolicy) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: plan is empty", ErrInvalidPlan)
	}
	if len(p) > policy.MaxBeats {
		return fmt.Errorf("%w: %d steps exceed maxBeats %d", ErrInvalidPlan, len(p), policy.MaxBeats)
	}
	perActor := make(map[string]int)
	for i, step := range p {
		switch step.Type {
		case StepWorld:
			if step.CharacterID != "" {
				return fmt.Errorf("%w: step %d: world step must not have characterId", ErrInvalidPlan, i)
			}
		case StepThoughts, StepSpeech:
			if step.CharacterID == "" {
				return fmt.Errorf("%w: step %d: %s step requires characterId", ErrInvalidPlan, i, step.Type)
			}
			perActor[step.CharacterID]++
			if perActor[step.CharacterID] > policy.MaxBeatsPerActor {
				return fmt.Errorf("%w: character %s has more than %d steps", ErrInvalidPlan, step.CharacterID, policy.MaxBeatsPerActor)
			}
		default:
			return fmt.Errorf("%w: step %d: unknown type %q", ErrInvalidPlan, i, step.Type)
		}
		if step.Description == "" {
			return fmt.Errorf("%w: step %d: empty description", ErrInvalidPlan, i)
		}
	}
	return nil
}

// Processed возвращает копию уже сыгранного префикса [0, idx).
func (p ScenePlan) Processed(idx int) ScenePlan {
	if idx <= 0 {
		return nil
	}
	if idx > len(p) {
		idx = len(p)
	}
	out := make(ScenePlan, idx)
	copy(out, p[:idx])
	return out
}
