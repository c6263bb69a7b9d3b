package models

import "fmt"

// Tempo - темп развития сцены.
type Tempo string

const (
	TempoSlow   Tempo = "slow"
	TempoNormal Tempo = "normal"
	TempoFast   Tempo = "fast"
)

// Level - общая шкала low/medium/high для детализации и плотности.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

func (l Level) Valid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh:
		return true
	default:
		return false
	}
}

func (t Tempo) Valid() bool {
	switch t {
	case TempoSlow, TempoNormal, TempoFast:
		return true
	default:
		return false
	}
}

// ScenePolicy - ограничения, которым должен подчиняться план сцены.
type ScenePolicy struct {
	Intent        SceneIntent   `json:"intent"`
	SceneFlowType SceneFlowType `json:"sceneFlowType"`
	UserEmotion   UserEmotion   `json:"userEmotion"`

	Tempo            Tempo `json:"tempo"`
	DetailLevel      Level `json:"detailLevel"`
	DialogueDensity  Level `json:"dialogueDensity"`
	ThoughtsDensity  Level `json:"thoughtsDensity"`
	WorldDensity     Level `json:"worldDensity"`
	MaxBeats         int   `json:"maxBeats"`
	MaxBeatsPerActor int   `json:"maxBeatsPerActor"`
}

// Validate проверяет инварианты политики.
func (p ScenePolicy) Validate() error {
	if !p.Tempo.Valid() {
		return fmt.Errorf("%w: tempo %q", ErrInvalidPolicy, p.Tempo)
	}
	for name, l := range map[string]Level{
		"detailLevel":     p.DetailLevel,
		"dialogueDensity": p.DialogueDensity,
		"thoughtsDensity": p.ThoughtsDensity,
		"worldDensity":    p.WorldDensity,
	} {
		if !l.Valid() {
			return fmt.Errorf("%w: %s %q", ErrInvalidPolicy, name, l)
		}
	}
	if p.MaxBeats < 1 {
		return fmt.Errorf("%w: maxBeats must be >= 1, got %d", ErrInvalidPolicy, p.MaxBeats)
	}
	if p.MaxBeatsPerActor < 1 {
		return fmt.Errorf("%w: maxBeatsPerActor must be >= 1, got %d", ErrInvalidPolicy, p.MaxBeatsPerActor)
	}
	return nil
}
