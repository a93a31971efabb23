package bus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskloop/taskloop/internal/models"
)

func testEvent(t *testing.T) *models.CloudEvent {
	t.Helper()
	now := time.Now().UTC()
	task := &models.Task{
		ID:        uuid.New(),
		UserID:    "user-1",
		Title:     "Buy milk",
		Status:    models.TaskStatusPending,
		Priority:  models.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ev, err := models.NewTaskEvent(models.EventTaskCreated, task, "task-api", nil)
	if err != nil {
		t.Fatalf("NewTaskEvent() error = %v", err)
	}
	return ev
}

func TestMemoryBusDispatchesToSubscribers(t *testing.T) {
	mb := NewMemoryBus()

	var seen []*models.CloudEvent
	mb.SubscribeFunc(models.TopicTaskEvents, func(ctx context.Context, ev *models.CloudEvent) error {
		seen = append(seen, ev)
		return nil
	})

	ev := testEvent(t)
	if err := mb.Publish(context.Background(), models.TopicTaskEvents, ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(seen) != 1 || seen[0].ID != ev.ID {
		t.Errorf("handler saw %d events, want the published one", len(seen))
	}
	if got := mb.Published(models.TopicTaskEvents); len(got) != 1 {
		t.Errorf("Published() = %d events, want 1", len(got))
	}
	// Other topics are untouched.
	if got := mb.Published(models.TopicReminders); len(got) != 0 {
		t.Errorf("reminders topic has %d events, want 0", len(got))
	}
}

func TestMemoryBusFailNextPublish(t *testing.T) {
	mb := NewMemoryBus()

	mb.FailNextPublish()
	if err := mb.Publish(context.Background(), models.TopicTaskEvents, testEvent(t)); err == nil {
		t.Fatal("Publish() error = nil, want simulated failure")
	}
	if got := mb.Published(models.TopicTaskEvents); len(got) != 0 {
		t.Errorf("failed publish recorded %d events, want 0", len(got))
	}

	// The failure is one-shot.
	if err := mb.Publish(context.Background(), models.TopicTaskEvents, testEvent(t)); err != nil {
		t.Errorf("Publish() after failure error = %v, want nil", err)
	}
}

func TestMemoryBusConsumeUnsupported(t *testing.T) {
	mb := NewMemoryBus()
	if _, _, err := mb.Consume(context.Background(), models.TopicTaskEvents, "group", 1); err == nil {
		t.Error("Consume() error = nil, want unsupported error")
	}
}
