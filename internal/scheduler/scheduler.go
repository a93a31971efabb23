// Package scheduler issues and cancels delayed reminder triggers. Jobs are
// keyed by (owner, task), so a task has at most one live reminder; scheduling
// over an existing key replaces it and cancelling a missing key is a no-op.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskloop/taskloop/internal/models"
)

// JobKey identifies a reminder job by its owning user and task. A composite
// type rather than a formatted string keeps user ids with colons from
// colliding in parsing.
type JobKey struct {
	UserID string
	TaskID uuid.UUID
}

// String renders the canonical job key used for storage and logging
func (k JobKey) String() string {
	return fmt.Sprintf("reminder:%s:%s", k.UserID, k.TaskID)
}

// FireFunc is invoked when a scheduled reminder comes due. It owns no
// durable state: if it fails, the reminder is lost (no retry at this layer).
type FireFunc func(ctx context.Context, payload models.ReminderEventData) error

// Scheduler schedules and cancels reminder jobs. Both operations are
// idempotent.
type Scheduler interface {
	Schedule(ctx context.Context, key JobKey, fireAt time.Time, payload models.ReminderEventData) error
	Cancel(ctx context.Context, key JobKey) error
}
