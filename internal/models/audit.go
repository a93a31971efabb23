package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is an immutable record of a task lifecycle action, created by
// the audit recorder from a consumed task event. Never mutated or deleted.
// State store key: audit:{user_id}:{entry_id}
type AuditEntry struct {
	ID            uuid.UUID `json:"id"`
	TaskID        uuid.UUID `json:"task_id"`
	UserID        string    `json:"user_id"`
	Action        string    `json:"action"`
	TaskSnapshot  *Task     `json:"task_snapshot,omitempty"`
	PreviousState any       `json:"previous_state,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
	EventID       uuid.UUID `json:"event_id"`
}

// AuditKeyPrefix is the state store key prefix for a user's audit entries
func AuditKeyPrefix(userID string) string {
	return fmt.Sprintf("audit:%s:", userID)
}

// StateKey returns the state store key for this audit entry
func (e *AuditEntry) StateKey() string {
	return AuditKeyPrefix(e.UserID) + e.ID.String()
}
