package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the completion state of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// Priority represents the priority level of a task
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Rank orders priorities for sorting (High first)
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// RecurrencePattern governs automatic creation of the next occurrence
// when a task is completed. An empty pattern means the task does not recur.
type RecurrencePattern string

const (
	RecurrenceNone    RecurrencePattern = ""
	RecurrenceDaily   RecurrencePattern = "daily"
	RecurrenceWeekly  RecurrencePattern = "weekly"
	RecurrenceMonthly RecurrencePattern = "monthly"
)

// MaxTitleLength is the maximum length for a task title
const MaxTitleLength = 500

// MaxDescriptionLength is the maximum length for a task description
const MaxDescriptionLength = 2000

// Task represents a todo item owned by a single user.
// State store key: task:{user_id}:{task_id}
type Task struct {
	ID                uuid.UUID         `json:"id"`
	UserID            string            `json:"user_id"`
	Title             string            `json:"title"`
	Description       string            `json:"description,omitempty"`
	Status            TaskStatus        `json:"status"`
	Priority          Priority          `json:"priority"`
	Tags              []string          `json:"tags"`
	DueAt             *time.Time        `json:"due_at,omitempty"`
	RemindAt          *time.Time        `json:"remind_at,omitempty"`
	RecurrencePattern RecurrencePattern `json:"recurrence_pattern,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

// TaskKeyPrefix is the state store key prefix for a user's tasks
func TaskKeyPrefix(userID string) string {
	return fmt.Sprintf("task:%s:", userID)
}

// TaskKey builds the state store key for a task
func TaskKey(userID string, taskID uuid.UUID) string {
	return TaskKeyPrefix(userID) + taskID.String()
}

// StateKey returns the state store key for this task
func (t *Task) StateKey() string {
	return TaskKey(t.UserID, t.ID)
}

// MarkCompleted sets the task to completed at the given time
func (t *Task) MarkCompleted(now time.Time) {
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
}

// IsRecurring reports whether the task has a recurrence pattern
func (t *Task) IsRecurring() bool {
	return t.RecurrencePattern != RecurrenceNone
}

// Clone returns a deep copy of the task. Used to capture the pre-mutation
// snapshot for update events without aliasing the live tags slice.
func (t *Task) Clone() *Task {
	c := *t
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.DueAt != nil {
		due := *t.DueAt
		c.DueAt = &due
	}
	if t.RemindAt != nil {
		remind := *t.RemindAt
		c.RemindAt = &remind
	}
	if t.CompletedAt != nil {
		done := *t.CompletedAt
		c.CompletedAt = &done
	}
	return &c
}
