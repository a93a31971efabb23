package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Topic names on the event bus
const (
	TopicTaskEvents  = "task-events"
	TopicTaskUpdates = "task-updates"
	TopicReminders   = "reminders"
)

// EventType identifies a lifecycle event
type EventType string

const (
	EventTaskCreated   EventType = "task.created"
	EventTaskUpdated   EventType = "task.updated"
	EventTaskCompleted EventType = "task.completed"
	EventTaskDeleted   EventType = "task.deleted"
	EventReminderDue   EventType = "reminder.due"
)

// Action returns the trailing segment of the event type ("created", "updated", ...)
func (t EventType) Action() string {
	s := string(t)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Source action values carried in event metadata
const (
	SourceAPI       = "api"
	SourceChat      = "chat"
	SourceRecurring = "recurring"
)

// Metadata keys
const (
	MetaSourceAction  = "source_action"
	MetaPreviousState = "previous_state"
)

// SpecVersion is the CloudEvents spec version emitted by this system
const SpecVersion = "1.0"

// CloudEvent is the CloudEvents 1.0 envelope carried on every bus message.
// Data holds the raw payload; decode it with DecodeTaskEvent or
// DecodeReminderEvent after checking Type.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              uuid.UUID       `json:"id"`
	Source          string          `json:"source"`
	Type            EventType       `json:"type"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
}

// TaskEventData is the payload for task lifecycle events
type TaskEventData struct {
	EventType string         `json:"event_type"`
	TaskID    uuid.UUID      `json:"task_id"`
	TaskData  *Task          `json:"task_data"`
	UserID    string         `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ReminderEventData is the payload for reminder.due events
type ReminderEventData struct {
	TaskID               uuid.UUID  `json:"task_id"`
	Title                string     `json:"title"`
	DueAt                *time.Time `json:"due_at,omitempty"`
	RemindAt             time.Time  `json:"remind_at"`
	UserID               string     `json:"user_id"`
	NotificationChannels []string   `json:"notification_channels"`
}

func newEnvelope(eventType EventType, source string, data any) (*CloudEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return &CloudEvent{
		SpecVersion:     SpecVersion,
		ID:              uuid.New(),
		Source:          source,
		Type:            eventType,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            raw,
	}, nil
}

// NewTaskEvent builds a lifecycle event for a task. The task snapshot is
// omitted for deleted events; metadata must carry source_action and, for
// updates, the pre-mutation snapshot.
func NewTaskEvent(eventType EventType, task *Task, source string, metadata map[string]any) (*CloudEvent, error) {
	if metadata == nil {
		metadata = map[string]any{MetaSourceAction: SourceAPI}
	}
	var snapshot *Task
	if eventType != EventTaskDeleted {
		snapshot = task
	}
	return newEnvelope(eventType, source, TaskEventData{
		EventType: eventType.Action(),
		TaskID:    task.ID,
		TaskData:  snapshot,
		UserID:    task.UserID,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	})
}

// NewReminderEvent builds a reminder.due event from a reminder payload
func NewReminderEvent(source string, data ReminderEventData) (*CloudEvent, error) {
	if len(data.NotificationChannels) == 0 {
		data.NotificationChannels = []string{"in_app"}
	}
	return newEnvelope(EventReminderDue, source, data)
}

// DecodeTaskEvent validates the envelope carries a task lifecycle event
// and decodes its payload
func DecodeTaskEvent(ev *CloudEvent) (*TaskEventData, error) {
	switch ev.Type {
	case EventTaskCreated, EventTaskUpdated, EventTaskCompleted, EventTaskDeleted:
	default:
		return nil, fmt.Errorf("not a task event: %q", ev.Type)
	}
	var data TaskEventData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode task event data: %w", err)
	}
	if data.UserID == "" {
		return nil, fmt.Errorf("task event missing user_id")
	}
	return &data, nil
}

// DecodeReminderEvent validates the envelope carries a reminder.due event
// and decodes its payload
func DecodeReminderEvent(ev *CloudEvent) (*ReminderEventData, error) {
	if ev.Type != EventReminderDue {
		return nil, fmt.Errorf("not a reminder event: %q", ev.Type)
	}
	var data ReminderEventData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode reminder event data: %w", err)
	}
	return &data, nil
}
