package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/store"
)

func sampleTask(userID string) *models.Task {
	now := time.Now().UTC()
	return &models.Task{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     "Audit me",
		Status:    models.TaskStatusPending,
		Priority:  models.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRecordsAllActionTypes(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewRecorder(st, zap.NewNop())
	task := sampleTask("user-1")

	types := []models.EventType{
		models.EventTaskCreated,
		models.EventTaskUpdated,
		models.EventTaskCompleted,
		models.EventTaskDeleted,
	}
	for _, eventType := range types {
		ev, err := models.NewTaskEvent(eventType, task, "task-api", map[string]any{
			models.MetaSourceAction: models.SourceChat,
		})
		if err != nil {
			t.Fatalf("NewTaskEvent(%s) error = %v", eventType, err)
		}
		if err := r.HandleTaskEvent(context.Background(), ev); err != nil {
			t.Fatalf("HandleTaskEvent(%s) error = %v", eventType, err)
		}
	}

	entries, err := r.List(context.Background(), "user-1", nil)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != len(types) {
		t.Fatalf("recorded %d entries, want %d", len(entries), len(types))
	}

	actions := make(map[string]bool)
	for _, entry := range entries {
		actions[entry.Action] = true
		if entry.TaskID != task.ID {
			t.Errorf("entry task_id = %v, want %v", entry.TaskID, task.ID)
		}
		if entry.Source != models.SourceChat {
			t.Errorf("entry source = %q, want %q", entry.Source, models.SourceChat)
		}
	}
	for _, action := range []string{"created", "updated", "completed", "deleted"} {
		if !actions[action] {
			t.Errorf("missing audit entry for action %q", action)
		}
	}
}

func TestDeletedEventHasNoSnapshot(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewRecorder(st, zap.NewNop())
	task := sampleTask("user-1")

	ev, err := models.NewTaskEvent(models.EventTaskDeleted, task, "task-api", nil)
	if err != nil {
		t.Fatalf("NewTaskEvent() error = %v", err)
	}
	if err := r.HandleTaskEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleTaskEvent() error = %v", err)
	}

	entries, err := r.List(context.Background(), "user-1", nil)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].TaskSnapshot != nil {
		t.Errorf("deleted entry snapshot = %+v, want nil", entries[0].TaskSnapshot)
	}
}

func TestListFiltersByTask(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewRecorder(st, zap.NewNop())

	taskA := sampleTask("user-1")
	taskB := sampleTask("user-1")
	for _, task := range []*models.Task{taskA, taskB} {
		ev, err := models.NewTaskEvent(models.EventTaskCreated, task, "task-api", nil)
		if err != nil {
			t.Fatalf("NewTaskEvent() error = %v", err)
		}
		if err := r.HandleTaskEvent(context.Background(), ev); err != nil {
			t.Fatalf("HandleTaskEvent() error = %v", err)
		}
	}

	entries, err := r.List(context.Background(), "user-1", &taskA.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].TaskID != taskA.ID {
		t.Errorf("filtered entries = %d, want 1 for task A", len(entries))
	}
}

type failingStore struct {
	*store.MemoryStore
}

func (s *failingStore) Put(ctx context.Context, key string, value any) error {
	return errors.New("store unavailable")
}

func TestPersistFailureStillProcessesEvent(t *testing.T) {
	r := NewRecorder(&failingStore{store.NewMemoryStore()}, zap.NewNop())
	task := sampleTask("user-1")

	ev, err := models.NewTaskEvent(models.EventTaskCreated, task, "task-api", nil)
	if err != nil {
		t.Fatalf("NewTaskEvent() error = %v", err)
	}

	if err := r.HandleTaskEvent(context.Background(), ev); err != nil {
		t.Errorf("HandleTaskEvent() error = %v, want nil (audit gaps are tolerated)", err)
	}
}

func TestMalformedEventNotRetried(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewRecorder(st, zap.NewNop())

	ev := &models.CloudEvent{
		SpecVersion: models.SpecVersion,
		ID:          uuid.New(),
		Source:      "task-api",
		Type:        models.EventTaskCreated,
		Time:        time.Now().UTC(),
		Data:        []byte(`{broken`),
	}

	if err := r.HandleTaskEvent(context.Background(), ev); err != nil {
		t.Errorf("HandleTaskEvent() error = %v, want nil for malformed payload", err)
	}
	if st.Len() != 0 {
		t.Errorf("store has %d entries, want 0", st.Len())
	}
}
