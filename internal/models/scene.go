package models

// SceneIntent - намерение пользователя в текущем ходе.
type SceneIntent string

const (
	IntentCasualDialogue    SceneIntent = "casualDialogue"
	IntentSeriousTalk       SceneIntent = "seriousTalk"
	IntentRomanticFlirt     SceneIntent = "romanticFlirt"
	IntentIntimateEmotional SceneIntent = "intimateEmotional"
	IntentSexualEncounter   SceneIntent = "sexualEncounter"
	IntentHighTensionAction SceneIntent = "highTensionAction"
	IntentStoryContinuation SceneIntent = "storyContinuation"
	IntentEmotionalSupport  SceneIntent = "emotionalSupport"
	IntentExposition        SceneIntent = "exposition"
)

// AllSceneIntents возвращает все допустимые намерения в стабильном порядке.
func AllSceneIntents() []SceneIntent {
	return []SceneIntent{
		IntentCasualDialogue, IntentSeriousTalk, IntentRomanticFlirt,
		IntentIntimateEmotional, IntentSexualEncounter, IntentHighTensionAction,
		IntentStoryContinuation, IntentEmotionalSupport, IntentExposition,
	}
}

func (i SceneIntent) Valid() bool {
	for _, v := range AllSceneIntents() {
		if v == i {
			return true
		}
	}
	return false
}

// UserEmotion - эмоция пользователя, распознанная усилителем запроса.
type UserEmotion string

const (
	EmotionNeutral UserEmotion = "neutral"
	EmotionGood    UserEmotion = "good"
	EmotionBad     UserEmotion = "bad"
	EmotionAnxious UserEmotion = "anxious"
	EmotionExcited UserEmotion = "excited"
	EmotionHorny   UserEmotion = "horny"
	EmotionAngry   UserEmotion = "angry"
)

func AllUserEmotions() []UserEmotion {
	return []UserEmotion{
		EmotionNeutral, EmotionGood, EmotionBad, EmotionAnxious,
		EmotionExcited, EmotionHorny, EmotionAngry,
	}
}

func (e UserEmotion) Valid() bool {
	for _, v := range AllUserEmotions() {
		if v == e {
			return true
		}
	}
	return false
}

// SceneFlowType - ожидаемая форма развития сцены.
type SceneFlowType string

const (
	FlowDialogue   SceneFlowType = "dialogue"
	FlowBanter     SceneFlowType = "banter"
	FlowIntimate   SceneFlowType = "intimate"
	FlowAction     SceneFlowType = "action"
	FlowExposition SceneFlowType = "exposition"
)

func AllSceneFlowTypes() []SceneFlowType {
	return []SceneFlowType{FlowDialogue, FlowBanter, FlowIntimate, FlowAction, FlowExposition}
}

func (f SceneFlowType) Valid() bool {
	for _, v := range AllSceneFlowTypes() {
		if v == f {
			return true
		}
	}
	return false
}

// MoodDelta - направление изменения настроения персонажа.
type MoodDelta string

const (
	MoodIncreased MoodDelta = "increased"
	MoodDecreased MoodDelta = "decreased"
	MoodNeutral   MoodDelta = "neutral"
)

func (m MoodDelta) Valid() bool {
	switch m {
	case MoodIncreased, MoodDecreased, MoodNeutral:
		return true
	default:
		return false
	}
}

// EnhanceOutput - результат классификации запроса пользователя.
type EnhanceOutput struct {
	InteractionIntent     SceneIntent          `json:"interactionIntent"`
	UserEmotion           UserEmotion          `json:"userEmotion"`
	SceneFlowType         SceneFlowType        `json:"sceneFlowType"`
	PerCharacterMoodDelta map[string]MoodDelta `json:"perCharacterMoodDelta"`
	// MemoryWrites - факты и события, которые стоит запомнить после хода.
	MemoryWrites []MemoryWriteSuggestion `json:"memoryWrites,omitempty"`
}

// Validate проверяет, что все перечисления находятся в допустимых множествах.
func (o EnhanceOutput) Validate() error {
	if !o.InteractionIntent.Valid() {
		return invalidEnhancement("interactionIntent", string(o.InteractionIntent))
	}
	if !o.UserEmotion.Valid() {
		return invalidEnhancement("userEmotion", string(o.UserEmotion))
	}
	if !o.SceneFlowType.Valid() {
		return invalidEnhancement("sceneFlowType", string(o.SceneFlowType))
	}
	for id, d := range o.PerCharacterMoodDelta {
		if !d.Valid() {
			return invalidEnhancement("perCharacterMoodDelta["+id+"]", string(d))
		}
	}
	for _, w := range o.MemoryWrites {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MemoryWriteSuggestion - предложение записи в долговременную память.
type MemoryWriteSuggestion struct {
	Kind         MemoryKind  `json:"kind"`
	ProfileType  ProfileType `json:"profileType,omitempty"`
	CharacterIDs []string    `json:"characterIds,omitempty"`
	Content      string      `json:"content"`
	Importance   float64     `json:"importance"`
}

func (s MemoryWriteSuggestion) Validate() error {
	switch s.Kind {
	case MemoryKindProfile:
		if !s.ProfileType.Valid() {
			return invalidEnhancement("memoryWrites.profileType", string(s.ProfileType))
		}
	case MemoryKindEvent:
	default:
		return invalidEnhancement("memoryWrites.kind", string(s.Kind))
	}
	if s.Content == "" {
		return invalidEnhancement("memoryWrites.content", "")
	}
	return nil
}
