package recurrence

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/bus"
	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/scheduler"
	"github.com/taskloop/taskloop/internal/store"
	"github.com/taskloop/taskloop/internal/tasks"
)

func newWorkerFixture(t *testing.T) (*Worker, *tasks.Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	mb := bus.NewMemoryBus()
	sched := scheduler.NewMemoryScheduler(func(ctx context.Context, payload models.ReminderEventData) error {
		return nil
	})
	t.Cleanup(func() { _ = sched.Close() })

	svc := tasks.NewService(st, mb, sched, "task-api", zap.NewNop())
	return NewWorker(svc, st, zap.NewNop()), svc, st
}

func completedEvent(t *testing.T, task *models.Task) *models.CloudEvent {
	t.Helper()
	ev, err := models.NewTaskEvent(models.EventTaskCompleted, task, "task-api", map[string]any{
		models.MetaSourceAction: models.SourceAPI,
	})
	if err != nil {
		t.Fatalf("NewTaskEvent() error = %v", err)
	}
	return ev
}

func TestWeeklyCompletionCreatesNextOccurrence(t *testing.T) {
	w, svc, _ := newWorkerFixture(t)
	ctx := context.Background()

	due := time.Date(2026, 2, 10, 17, 0, 0, 0, time.UTC)
	task, err := svc.Create(ctx, "user-1", tasks.CreateInput{
		Title:             "Weekly review",
		Priority:          models.PriorityHigh,
		Tags:              []string{"work", "ritual"},
		DueAt:             &due,
		RecurrencePattern: models.RecurrenceWeekly,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	done, err := svc.Complete(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if err := w.HandleTaskEvent(ctx, completedEvent(t, done)); err != nil {
		t.Fatalf("HandleTaskEvent() error = %v", err)
	}

	page, total, err := svc.List(ctx, "user-1", tasks.ListFilters{Status: models.TaskStatusPending})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 {
		t.Fatalf("pending total = %d, want 1", total)
	}

	next := page[0]
	wantDue := time.Date(2026, 2, 17, 17, 0, 0, 0, time.UTC)
	if next.DueAt == nil || !next.DueAt.Equal(wantDue) {
		t.Errorf("next due = %v, want %v", next.DueAt, wantDue)
	}
	if next.Title != "Weekly review" {
		t.Errorf("title = %q, want %q", next.Title, "Weekly review")
	}
	if next.Priority != models.PriorityHigh {
		t.Errorf("priority = %q, want High", next.Priority)
	}
	if len(next.Tags) != 2 || next.Tags[0] != "work" || next.Tags[1] != "ritual" {
		t.Errorf("tags = %v, want [work ritual]", next.Tags)
	}
	if next.RecurrencePattern != models.RecurrenceWeekly {
		t.Errorf("pattern = %q, want weekly", next.RecurrencePattern)
	}
	if next.ID == task.ID {
		t.Error("next occurrence reused the original task id")
	}
}

func TestDuplicateDeliveryCreatesOnlyOne(t *testing.T) {
	w, svc, _ := newWorkerFixture(t)
	ctx := context.Background()

	due := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	task, err := svc.Create(ctx, "user-1", tasks.CreateInput{
		Title:             "Daily standup",
		DueAt:             &due,
		RecurrencePattern: models.RecurrenceDaily,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	done, err := svc.Complete(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	ev := completedEvent(t, done)
	if err := w.HandleTaskEvent(ctx, ev); err != nil {
		t.Fatalf("first delivery error = %v", err)
	}
	if err := w.HandleTaskEvent(ctx, ev); err != nil {
		t.Fatalf("second delivery error = %v", err)
	}

	_, total, err := svc.List(ctx, "user-1", tasks.ListFilters{Status: models.TaskStatusPending})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 {
		t.Errorf("pending total = %d after duplicate delivery, want 1", total)
	}
}

func TestNonRecurringCompletionIgnored(t *testing.T) {
	w, svc, _ := newWorkerFixture(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, "user-1", tasks.CreateInput{Title: "One-off"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	done, err := svc.Complete(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if err := w.HandleTaskEvent(ctx, completedEvent(t, done)); err != nil {
		t.Fatalf("HandleTaskEvent() error = %v", err)
	}

	_, total, err := svc.List(ctx, "user-1", tasks.ListFilters{Status: models.TaskStatusPending})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 0 {
		t.Errorf("pending total = %d, want 0", total)
	}
}

func TestNonCompletionEventsIgnored(t *testing.T) {
	w, svc, _ := newWorkerFixture(t)
	ctx := context.Background()

	due := time.Now().Add(time.Hour)
	task, err := svc.Create(ctx, "user-1", tasks.CreateInput{
		Title:             "Recurring chore",
		DueAt:             &due,
		RecurrencePattern: models.RecurrenceDaily,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ev, err := models.NewTaskEvent(models.EventTaskCreated, task, "task-api", nil)
	if err != nil {
		t.Fatalf("NewTaskEvent() error = %v", err)
	}
	if err := w.HandleTaskEvent(ctx, ev); err != nil {
		t.Fatalf("HandleTaskEvent() error = %v", err)
	}

	_, total, err := svc.List(ctx, "user-1", tasks.ListFilters{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1 (no occurrence from created event)", total)
	}
}

// expiringStore is a MemoryStore that records the TTL of expiring puts
type expiringStore struct {
	*store.MemoryStore
	ttls map[string]time.Duration
}

func (s *expiringStore) PutWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.ttls[key] = ttl
	return s.MemoryStore.Put(ctx, key, value)
}

func TestDedupMarkersExpireWhenStoreSupportsTTL(t *testing.T) {
	st := &expiringStore{MemoryStore: store.NewMemoryStore(), ttls: map[string]time.Duration{}}
	mb := bus.NewMemoryBus()
	sched := scheduler.NewMemoryScheduler(func(ctx context.Context, payload models.ReminderEventData) error {
		return nil
	})
	t.Cleanup(func() { _ = sched.Close() })
	svc := tasks.NewService(st, mb, sched, "task-api", zap.NewNop())
	w := NewWorker(svc, st, zap.NewNop())
	ctx := context.Background()

	due := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	task, err := svc.Create(ctx, "user-1", tasks.CreateInput{
		Title:             "Water plants",
		DueAt:             &due,
		RecurrencePattern: models.RecurrenceDaily,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	done, err := svc.Complete(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if err := w.HandleTaskEvent(ctx, completedEvent(t, done)); err != nil {
		t.Fatalf("HandleTaskEvent() error = %v", err)
	}

	if len(st.ttls) != 1 {
		t.Fatalf("expiring puts = %d, want 1", len(st.ttls))
	}
	for key, ttl := range st.ttls {
		if ttl != markerRetention {
			t.Errorf("marker %q ttl = %v, want %v", key, ttl, markerRetention)
		}
	}
}

func TestRemindOffsetPreserved(t *testing.T) {
	w, svc, _ := newWorkerFixture(t)
	ctx := context.Background()

	due := time.Date(2026, 2, 10, 17, 0, 0, 0, time.UTC)
	remind := due.Add(-2 * time.Hour)
	task, err := svc.Create(ctx, "user-1", tasks.CreateInput{
		Title:             "Team sync",
		DueAt:             &due,
		RemindAt:          &remind,
		RecurrencePattern: models.RecurrenceWeekly,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	done, err := svc.Complete(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if err := w.HandleTaskEvent(ctx, completedEvent(t, done)); err != nil {
		t.Fatalf("HandleTaskEvent() error = %v", err)
	}

	page, _, err := svc.List(ctx, "user-1", tasks.ListFilters{Status: models.TaskStatusPending})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("pending = %d, want 1", len(page))
	}

	wantRemind := time.Date(2026, 2, 17, 15, 0, 0, 0, time.UTC)
	if page[0].RemindAt == nil || !page[0].RemindAt.Equal(wantRemind) {
		t.Errorf("remind_at = %v, want %v", page[0].RemindAt, wantRemind)
	}
}
