package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func sampleTask() *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New(),
		UserID:    "user-1",
		Title:     "Buy milk",
		Status:    TaskStatusPending,
		Priority:  PriorityMedium,
		Tags:      []string{"errand"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestNewTaskEventEnvelope(t *testing.T) {
	task := sampleTask()
	ev, err := NewTaskEvent(EventTaskCreated, task, "task-api", nil)
	if err != nil {
		t.Fatalf("NewTaskEvent() error = %v", err)
	}

	if ev.SpecVersion != "1.0" {
		t.Errorf("specversion = %q, want %q", ev.SpecVersion, "1.0")
	}
	if ev.ID == uuid.Nil {
		t.Error("id is nil")
	}
	if ev.Source != "task-api" {
		t.Errorf("source = %q, want %q", ev.Source, "task-api")
	}
	if ev.DataContentType != "application/json" {
		t.Errorf("datacontenttype = %q, want application/json", ev.DataContentType)
	}
	if ev.Time.IsZero() {
		t.Error("time is zero")
	}

	// The wire shape uses the CloudEvents attribute names.
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	for _, field := range []string{"specversion", "id", "source", "type", "time", "datacontenttype", "data"} {
		if _, ok := wire[field]; !ok {
			t.Errorf("envelope missing %q field", field)
		}
	}
}

func TestNewTaskEventDefaultsMetadata(t *testing.T) {
	ev, err := NewTaskEvent(EventTaskCreated, sampleTask(), "task-api", nil)
	if err != nil {
		t.Fatalf("NewTaskEvent() error = %v", err)
	}
	data, err := DecodeTaskEvent(ev)
	if err != nil {
		t.Fatalf("DecodeTaskEvent() error = %v", err)
	}
	if data.Metadata[MetaSourceAction] != SourceAPI {
		t.Errorf("source_action = %v, want %q", data.Metadata[MetaSourceAction], SourceAPI)
	}
}

func TestDeletedEventOmitsSnapshot(t *testing.T) {
	task := sampleTask()
	ev, err := NewTaskEvent(EventTaskDeleted, task, "task-api", map[string]any{MetaSourceAction: SourceAPI})
	if err != nil {
		t.Fatalf("NewTaskEvent() error = %v", err)
	}
	data, err := DecodeTaskEvent(ev)
	if err != nil {
		t.Fatalf("DecodeTaskEvent() error = %v", err)
	}
	if data.TaskData != nil {
		t.Error("deleted event carries a task snapshot")
	}
	if data.TaskID != task.ID {
		t.Errorf("task_id = %s, want %s", data.TaskID, task.ID)
	}
}

func TestDecodeTaskEventRejectsWrongType(t *testing.T) {
	ev, err := NewReminderEvent("task-api", ReminderEventData{
		TaskID:   uuid.New(),
		Title:    "x",
		RemindAt: time.Now().UTC(),
		UserID:   "user-1",
	})
	if err != nil {
		t.Fatalf("NewReminderEvent() error = %v", err)
	}
	if _, err := DecodeTaskEvent(ev); err == nil {
		t.Error("DecodeTaskEvent() accepted a reminder event")
	}
}

func TestReminderEventDefaultsChannels(t *testing.T) {
	ev, err := NewReminderEvent("task-api", ReminderEventData{
		TaskID:   uuid.New(),
		Title:    "x",
		RemindAt: time.Now().UTC(),
		UserID:   "user-1",
	})
	if err != nil {
		t.Fatalf("NewReminderEvent() error = %v", err)
	}
	data, err := DecodeReminderEvent(ev)
	if err != nil {
		t.Fatalf("DecodeReminderEvent() error = %v", err)
	}
	if len(data.NotificationChannels) != 1 || data.NotificationChannels[0] != "in_app" {
		t.Errorf("channels = %v, want [in_app]", data.NotificationChannels)
	}
}

func TestEventTypeAction(t *testing.T) {
	cases := map[EventType]string{
		EventTaskCreated:   "created",
		EventTaskUpdated:   "updated",
		EventTaskCompleted: "completed",
		EventTaskDeleted:   "deleted",
		EventReminderDue:   "due",
	}
	for eventType, want := range cases {
		if got := eventType.Action(); got != want {
			t.Errorf("%q.Action() = %q, want %q", eventType, got, want)
		}
	}
}
