package models

import "time"

// MemoryKind - вид записи памяти.
type MemoryKind string

const (
	MemoryKindStatic  MemoryKind = "static"
	MemoryKindProfile MemoryKind = "profile"
	MemoryKindEvent   MemoryKind = "event"
)

// ProfileType - тип профильной записи.
type ProfileType string

const (
	ProfileCharacter    ProfileType = "character"
	ProfileRelationship ProfileType = "relationship"
)

func (t ProfileType) Valid() bool {
	return t == ProfileCharacter || t == ProfileRelationship
}

// RequiredCharacters - сколько персонажей должна упоминать запись данного типа.
func (t ProfileType) RequiredCharacters() int {
	if t == ProfileRelationship {
		return 2
	}
	return 1
}

// EventType - тип записи о событии.
type EventType string

const (
	EventChat EventType = "chat"
)

// Memory - закрытое объединение записей памяти.
type Memory interface {
	Kind() MemoryKind
	Text() string
	TokenCount() int
	isMemory()
}

// StaticMemory - постоянные сведения: промпт истории или анкета персонажа.
// Пустой CharacterID означает общие сведения о мире.
type StaticMemory struct {
	CharacterID string `json:"characterId,omitempty"`
	Name        string `json:"name,omitempty"`
	Content     string `json:"content"`
	Tokens      int    `json:"tokens"`
}

// ProfileMemory - факт о персонаже (1 id) или об отношениях (2 id).
type ProfileMemory struct {
	ID           string      `json:"id" db:"id"`
	Type         ProfileType `json:"type" db:"type"`
	CharacterIDs []string    `json:"characterIds" db:"character_ids"`
	Content      string      `json:"content" db:"content"`
	Tokens       int         `json:"tokens" db:"tokens"`
	Importance   float64     `json:"importance" db:"importance"`
	CreatedAt    time.Time   `json:"createdAt" db:"created_at"`
}

// EventMemory - событие, привязанное к конкретному чату.
type EventMemory struct {
	ID         string    `json:"id" db:"id"`
	Type       EventType `json:"type" db:"type"`
	ChatID     string    `json:"chatId" db:"chat_id"`
	Content    string    `json:"content" db:"content"`
	Tokens     int       `json:"tokens" db:"tokens"`
	Importance float64   `json:"importance" db:"importance"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

func (StaticMemory) Kind() MemoryKind   { return MemoryKindStatic }
func (m StaticMemory) Text() string     { return m.Content }
func (m StaticMemory) TokenCount() int  { return m.Tokens }
func (StaticMemory) isMemory()          {}
func (ProfileMemory) Kind() MemoryKind  { return MemoryKindProfile }
func (m ProfileMemory) Text() string    { return m.Content }
func (m ProfileMemory) TokenCount() int { return m.Tokens }
func (ProfileMemory) isMemory()         {}
func (EventMemory) Kind() MemoryKind    { return MemoryKindEvent }
func (m EventMemory) Text() string      { return m.Content }
func (m EventMemory) TokenCount() int   { return m.Tokens }
func (EventMemory) isMemory()           {}

// MemoryGetResult - результат извлечения памяти, сгруппированный по видам.
type MemoryGetResult struct {
	Static  []StaticMemory  `json:"static"`
	Profile []ProfileMemory `json:"profile"`
	Event   []EventMemory   `json:"event"`
}

// TotalTokens суммирует токены всех записей.
func (r MemoryGetResult) TotalTokens() int {
	total := 0
	for _, m := range r.Static {
		total += m.Tokens
	}
	for _, m := range r.Profile {
		total += m.Tokens
	}
	for _, m := range r.Event {
		total += m.Tokens
	}
	return total
}

// Count возвращает общее количество записей.
func (r MemoryGetResult) Count() int {
	return len(r.Static) + len(r.Profile) + len(r.Event)
}

// Clone возвращает независимую копию результата.
func (r MemoryGetResult) Clone() MemoryGetResult {
	out := MemoryGetResult{
		Static:  append([]StaticMemory(nil), r.Static...),
		Profile: make([]ProfileMemory, len(r.Profile)),
		Event:   append([]EventMemory(nil), r.Event...),
	}
	for i, p := range r.Profile {
		p.CharacterIDs = append([]string(nil), p.CharacterIDs...)
		out.Profile[i] = p
	}
	return out
}

// Character возвращает анкету персонажа из статической памяти.
func (r MemoryGetResult) Character(id string) (StaticMemory, bool) {
	for _, m := range r.Static {
		if m.CharacterID != "" && m.CharacterID == id {
			return m, true
		}
	}
	return StaticMemory{}, false
}
