package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageRole - автор сообщения в чате.
type MessageRole string

const (
	RoleUser MessageRole = "user"
	RoleAI   MessageRole = "ai"
)

// MessageStatus - состояние сообщения. streaming означает, что текст ещё дописывается.
type MessageStatus string

const (
	StatusStreaming MessageStatus = "streaming"
	StatusFinal     MessageStatus = "final"
)

// TurnKind - режим хода: friend (один собеседник) или story (полная сцена).
type TurnKind string

const (
	TurnFriend TurnKind = "friend"
	TurnStory  TurnKind = "story"
)

func (k TurnKind) Valid() bool {
	return k == TurnFriend || k == TurnStory
}

// Chat - чат с историей и набором персонажей.
type Chat struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	StoryID         *uuid.UUID `json:"storyId,omitempty" db:"story_id"`
	POVCharacterID  string     `json:"povCharacterId" db:"pov_character_id"`
	NPCCharacterIDs []string   `json:"npcCharacterIds" db:"npc_character_ids"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
}

// CharacterIDs возвращает POV-персонажа и всех NPC.
func (c Chat) CharacterIDs() []string {
	ids := make([]string, 0, len(c.NPCCharacterIDs)+1)
	if c.POVCharacterID != "" {
		ids = append(ids, c.POVCharacterID)
	}
	return append(ids, c.NPCCharacterIDs...)
}

// ChatMessage - сообщение чата.
type ChatMessage struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	ChatID      uuid.UUID       `json:"chatId" db:"chat_id"`
	Role        MessageRole     `json:"role" db:"role"`
	Status      MessageStatus   `json:"status" db:"status"`
	Content     string          `json:"content" db:"content"`
	CharacterID *string         `json:"characterId,omitempty" db:"character_id"`
	Metadata    json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// NewMessage описывает сообщение, которое нужно создать.
type NewMessage struct {
	ChatID      uuid.UUID
	Role        MessageRole
	Status      MessageStatus
	Content     string
	CharacterID *string
	Metadata    any
}

// MessageUpdate - частичное обновление сообщения. nil-поля не меняются.
type MessageUpdate struct {
	Status   *MessageStatus
	Content  *string
	Metadata any
}

// ChatWithHistory - чат вместе с сообщениями в хронологическом порядке.
type ChatWithHistory struct {
	Chat     Chat
	Messages []ChatMessage
}

// PromptRole - роль сообщения в контексте модели.
type PromptRole string

const (
	PromptSystem    PromptRole = "system"
	PromptUser      PromptRole = "user"
	PromptAssistant PromptRole = "assistant"
)

// PromptMessage - сообщение, передаваемое генеративной модели.
type PromptMessage struct {
	Role    PromptRole `json:"role"`
	Content string     `json:"content"`
}

// CharacterSheet - анкета персонажа для статической памяти и промптов актёра.
type CharacterSheet struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
}
