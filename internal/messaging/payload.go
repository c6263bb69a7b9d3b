package messaging

import (
	"time"

	"scene-server/internal/memory"
)

// MemoryIndexTask - задача индексации записей памяти после хода.
type MemoryIndexTask struct {
	TaskID    string            `json:"task_id"`
	Request   memory.PutRequest `json:"request"`
	CreatedAt time.Time         `json:"created_at"`
}
