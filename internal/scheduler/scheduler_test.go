package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskloop/taskloop/internal/models"
)

func TestJobKeyString(t *testing.T) {
	taskID := uuid.MustParse("0b9cbee1-5aa3-4a33-9d8e-73a0d3a17069")
	key := JobKey{UserID: "user-123", TaskID: taskID}

	got := key.String()
	want := "reminder:user-123:0b9cbee1-5aa3-4a33-9d8e-73a0d3a17069"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

type fireRecorder struct {
	mu    sync.Mutex
	fired []models.ReminderEventData
	done  chan struct{}
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{done: make(chan struct{}, 8)}
}

func (r *fireRecorder) fire(ctx context.Context, payload models.ReminderEventData) error {
	r.mu.Lock()
	r.fired = append(r.fired, payload)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func (r *fireRecorder) waitForFire(t *testing.T) models.ReminderEventData {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job to fire")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fired[len(r.fired)-1]
}

func TestMemorySchedulerFires(t *testing.T) {
	rec := newFireRecorder()
	s := NewMemoryScheduler(rec.fire)
	defer func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	key := JobKey{UserID: "user-1", TaskID: uuid.New()}
	payload := models.ReminderEventData{
		TaskID:   key.TaskID,
		Title:    "Buy milk",
		RemindAt: time.Now(),
		UserID:   key.UserID,
	}

	if err := s.Schedule(context.Background(), key, time.Now().Add(10*time.Millisecond), payload); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if !s.Pending(key) {
		t.Error("expected job to be pending after Schedule")
	}

	got := rec.waitForFire(t)
	if got.TaskID != payload.TaskID {
		t.Errorf("fired task_id = %v, want %v", got.TaskID, payload.TaskID)
	}
	if got.Title != "Buy milk" {
		t.Errorf("fired title = %q, want %q", got.Title, "Buy milk")
	}
	if s.Pending(key) {
		t.Error("expected job to be cleared after firing")
	}
}

func TestMemorySchedulerPastFireTimeFiresImmediately(t *testing.T) {
	rec := newFireRecorder()
	s := NewMemoryScheduler(rec.fire)
	defer func() { _ = s.Close() }()

	key := JobKey{UserID: "user-1", TaskID: uuid.New()}
	if err := s.Schedule(context.Background(), key, time.Now().Add(-time.Hour), models.ReminderEventData{}); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	rec.waitForFire(t)
}

func TestMemorySchedulerCancel(t *testing.T) {
	rec := newFireRecorder()
	s := NewMemoryScheduler(rec.fire)
	defer func() { _ = s.Close() }()

	key := JobKey{UserID: "user-1", TaskID: uuid.New()}
	if err := s.Schedule(context.Background(), key, time.Now().Add(50*time.Millisecond), models.ReminderEventData{}); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if err := s.Cancel(context.Background(), key); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if s.Pending(key) {
		t.Error("expected no pending job after Cancel")
	}

	time.Sleep(100 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("fired %d times after cancel, want 0", rec.count())
	}
}

func TestMemorySchedulerCancelMissingKeyIsNoop(t *testing.T) {
	s := NewMemoryScheduler(func(ctx context.Context, payload models.ReminderEventData) error { return nil })
	defer func() { _ = s.Close() }()

	key := JobKey{UserID: "nobody", TaskID: uuid.New()}
	if err := s.Cancel(context.Background(), key); err != nil {
		t.Errorf("Cancel() on missing key error = %v, want nil", err)
	}
}

func TestMemorySchedulerRescheduleReplaces(t *testing.T) {
	rec := newFireRecorder()
	s := NewMemoryScheduler(rec.fire)
	defer func() { _ = s.Close() }()

	key := JobKey{UserID: "user-1", TaskID: uuid.New()}
	first := models.ReminderEventData{TaskID: key.TaskID, Title: "first", UserID: key.UserID}
	second := models.ReminderEventData{TaskID: key.TaskID, Title: "second", UserID: key.UserID}

	if err := s.Schedule(context.Background(), key, time.Now().Add(time.Hour), first); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if err := s.Schedule(context.Background(), key, time.Now().Add(10*time.Millisecond), second); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if got := s.PendingCount(); got != 1 {
		t.Errorf("PendingCount() = %d, want 1", got)
	}

	got := rec.waitForFire(t)
	if got.Title != "second" {
		t.Errorf("fired title = %q, want %q", got.Title, "second")
	}
	if rec.count() != 1 {
		t.Errorf("fired %d times, want 1", rec.count())
	}
}
