package models

import "github.com/google/uuid"

// TurnEventType - тип события потока хода.
type TurnEventType string

const (
	EventStepStart TurnEventType = "step_start"
	EventChunk     TurnEventType = "chunk"
	EventStepDone  TurnEventType = "step_done"
	EventStepError TurnEventType = "step_error"
	EventDone      TurnEventType = "done"
	EventError     TurnEventType = "error"
)

// TurnEvent - событие, отправляемое клиенту в ходе выполнения хода.
type TurnEvent struct {
	Type TurnEventType `json:"type"`
	Data any           `json:"data"`
}

type StepStartData struct {
	StepIndex int       `json:"stepIndex"`
	MsgID     uuid.UUID `json:"msgId"`
	Step      SceneStep `json:"step"`
}

type ChunkData struct {
	Text      string    `json:"text"`
	MsgID     uuid.UUID `json:"msgId"`
	StepIndex int       `json:"stepIndex"`
}

type StepDoneData struct {
	StepIndex int       `json:"stepIndex"`
	MsgID     uuid.UUID `json:"msgId"`
}

type StepErrorData struct {
	StepIndex int       `json:"stepIndex"`
	MsgID     uuid.UUID `json:"msgId"`
	Error     string    `json:"error"`
}

type DoneData struct {
	TotalSteps int `json:"totalSteps"`
}

type ErrorData struct {
	Error string `json:"error"`
}
