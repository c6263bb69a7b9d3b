// Package policy выводит ограничения сцены из классификации запроса.
package policy

import "scene-server/internal/models"

const (
	maxBeatsCeiling = 6
	minBeats        = 1
)

// baseRows - базовая строка таблицы для каждого намерения.
var baseRows = map[models.SceneIntent]models.ScenePolicy{
	models.IntentCasualDialogue: {
		Tempo: models.TempoNormal, DetailLevel: models.LevelLow,
		DialogueDensity: models.LevelHigh, ThoughtsDensity: models.LevelLow, WorldDensity: models.LevelLow,
		MaxBeats: 3, MaxBeatsPerActor: 2,
	},
	models.IntentSeriousTalk: {
		Tempo: models.TempoSlow, DetailLevel: models.LevelMedium,
		DialogueDensity: models.LevelHigh, ThoughtsDensity: models.LevelMedium, WorldDensity: models.LevelLow,
		MaxBeats: 4, MaxBeatsPerActor: 2,
	},
	models.IntentRomanticFlirt: {
		Tempo: models.TempoNormal, DetailLevel: models.LevelMedium,
		DialogueDensity: models.LevelHigh, ThoughtsDensity: models.LevelMedium, WorldDensity: models.LevelLow,
		MaxBeats: 4, MaxBeatsPerActor: 2,
	},
	models.IntentIntimateEmotional: {
		Tempo: models.TempoSlow, DetailLevel: models.LevelHigh,
		DialogueDensity: models.LevelMedium, ThoughtsDensity: models.LevelHigh, WorldDensity: models.LevelMedium,
		MaxBeats: 5, MaxBeatsPerActor: 3,
	},
	models.IntentSexualEncounter: {
		Tempo: models.TempoSlow, DetailLevel: models.LevelHigh,
		DialogueDensity: models.LevelMedium, ThoughtsDensity: models.LevelMedium, WorldDensity: models.LevelHigh,
		MaxBeats: 5, MaxBeatsPerActor: 3,
	},
	models.IntentHighTensionAction: {
		Tempo: models.TempoFast, DetailLevel: models.LevelMedium,
		DialogueDensity: models.LevelLow, ThoughtsDensity: models.LevelLow, WorldDensity: models.LevelHigh,
		MaxBeats: 5, MaxBeatsPerActor: 2,
	},
	models.IntentStoryContinuation: {
		Tempo: models.TempoNormal, DetailLevel: models.LevelMedium,
		DialogueDensity: models.LevelMedium, ThoughtsDensity: models.LevelMedium, WorldDensity: models.LevelMedium,
		MaxBeats: 5, MaxBeatsPerActor: 2,
	},
	models.IntentEmotionalSupport: {
		Tempo: models.TempoSlow, DetailLevel: models.LevelMedium,
		DialogueDensity: models.LevelHigh, ThoughtsDensity: models.LevelMedium, WorldDensity: models.LevelLow,
		MaxBeats: 3, MaxBeatsPerActor: 2,
	},
	models.IntentExposition: {
		Tempo: models.TempoSlow, DetailLevel: models.LevelHigh,
		DialogueDensity: models.LevelLow, ThoughtsDensity: models.LevelLow, WorldDensity: models.LevelHigh,
		MaxBeats: 4, MaxBeatsPerActor: 2,
	},
}

// Derive - чистая функция: одинаковый вход всегда даёт одинаковую политику.
func Derive(in models.EnhanceOutput) models.ScenePolicy {
	in = normalize(in)
	p := baseRows[in.InteractionIntent]

	switch in.SceneFlowType {
	case models.FlowDialogue:
		p.DialogueDensity = raise(p.DialogueDensity)
	case models.FlowBanter:
		p.Tempo = models.TempoFast
		p.DialogueDensity = models.LevelHigh
		p.WorldDensity = lower(p.WorldDensity)
		p.MaxBeatsPerActor++
	case models.FlowIntimate:
		p.Tempo = models.TempoSlow
		p.ThoughtsDensity = raise(p.ThoughtsDensity)
	case models.FlowAction:
		p.Tempo = models.TempoFast
		p.WorldDensity = raise(p.WorldDensity)
		p.ThoughtsDensity = lower(p.ThoughtsDensity)
		p.MaxBeats++
	case models.FlowExposition:
		p.WorldDensity = raise(p.WorldDensity)
		p.DetailLevel = raise(p.DetailLevel)
	default:
	}

	switch in.UserEmotion {
	case models.EmotionBad, models.EmotionAnxious:
		p.Tempo = slower(p.Tempo)
		p.ThoughtsDensity = raise(p.ThoughtsDensity)
		p.MaxBeats--
	case models.EmotionExcited, models.EmotionAngry:
		p.Tempo = faster(p.Tempo)
		p.MaxBeats++
	case models.EmotionHorny:
		p.DetailLevel = raise(p.DetailLevel)
	case models.EmotionNeutral, models.EmotionGood:
	default:
	}

	p.Intent = in.InteractionIntent
	p.SceneFlowType = in.SceneFlowType
	p.UserEmotion = in.UserEmotion
	return clamp(p)
}

// normalize заменяет значения вне перечислений нейтральными.
func normalize(in models.EnhanceOutput) models.EnhanceOutput {
	if _, ok := baseRows[in.InteractionIntent]; !ok {
		in.InteractionIntent = models.IntentStoryContinuation
	}
	if !in.SceneFlowType.Valid() {
		in.SceneFlowType = models.FlowDialogue
	}
	if !in.UserEmotion.Valid() {
		in.UserEmotion = models.EmotionNeutral
	}
	return in
}

func clamp(p models.ScenePolicy) models.ScenePolicy {
	if p.MaxBeats > maxBeatsCeiling {
		p.MaxBeats = maxBeatsCeiling
	}
	if p.MaxBeats < minBeats {
		p.MaxBeats = minBeats
	}
	if p.MaxBeatsPerActor > p.MaxBeats {
		p.MaxBeatsPerActor = p.MaxBeats
	}
	if p.MaxBeatsPerActor < 1 {
		p.MaxBeatsPerActor = 1
	}
	return p
}

func raise(l models.Level) models.Level {
	switch l {
	case models.LevelLow:
		return models.LevelMedium
	default:
		return models.LevelHigh
	}
}

func lower(l models.Level) models.Level {
	switch l {
	case models.LevelHigh:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

func slower(t models.Tempo) models.Tempo {
	switch t {
	case models.TempoFast:
		return models.TempoNormal
	default:
		return models.TempoSlow
	}
}

func faster(t models.Tempo) models.Tempo {
	switch t {
	case models.TempoSlow:
		return models.TempoNormal
	default:
		return models.TempoFast
	}
}
