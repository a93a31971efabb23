package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/bus"
	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/scheduler"
	"github.com/taskloop/taskloop/internal/store"
	"github.com/taskloop/taskloop/internal/tasks"
)

func newDispatcher(t *testing.T) (*Dispatcher, *bus.MemoryBus) {
	t.Helper()
	st := store.NewMemoryStore()
	mb := bus.NewMemoryBus()
	sched := scheduler.NewMemoryScheduler(func(ctx context.Context, payload models.ReminderEventData) error {
		return nil
	})
	t.Cleanup(func() { _ = sched.Close() })

	svc := tasks.NewService(st, mb, sched, "task-api", zap.NewNop())
	return NewDispatcher(svc, zap.NewNop()), mb
}

func TestCreateCommandTagsEventsAsChat(t *testing.T) {
	d, mb := newDispatcher(t)

	resp, err := d.Execute(context.Background(), "user-1", Command{
		Action: ActionCreate,
		Create: &tasks.CreateInput{Title: "Buy milk"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.TaskID == nil {
		t.Fatal("response missing task_id")
	}
	if resp.Action != ActionCreate {
		t.Errorf("action = %q, want create", resp.Action)
	}

	events := mb.Published(models.TopicTaskEvents)
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	data, err := models.DecodeTaskEvent(events[0])
	if err != nil {
		t.Fatalf("DecodeTaskEvent() error = %v", err)
	}
	if got := data.Metadata[models.MetaSourceAction]; got != models.SourceChat {
		t.Errorf("source_action = %v, want chat", got)
	}
}

func TestCommandLifecycle(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	created, err := d.Execute(ctx, "user-1", Command{
		Action: ActionCreate,
		Create: &tasks.CreateInput{Title: "Walk dog", Tags: []string{"pets"}},
	})
	if err != nil {
		t.Fatalf("create error = %v", err)
	}
	id := *created.TaskID

	if _, err := d.Execute(ctx, "user-1", Command{
		Action: ActionAddTags,
		TaskID: &id,
		Tags:   []string{"daily"},
	}); err != nil {
		t.Fatalf("add_tags error = %v", err)
	}

	listed, err := d.Execute(ctx, "user-1", Command{Action: ActionList})
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if listed.Total != 1 || len(listed.Tasks) != 1 {
		t.Fatalf("list total = %d len = %d, want 1/1", listed.Total, len(listed.Tasks))
	}
	if len(listed.Tasks[0].Tags) != 2 {
		t.Errorf("tags = %v, want 2 tags", listed.Tasks[0].Tags)
	}

	found, err := d.Execute(ctx, "user-1", Command{Action: ActionSearch, Query: "walk"})
	if err != nil {
		t.Fatalf("search error = %v", err)
	}
	if found.Total != 1 {
		t.Errorf("search total = %d, want 1", found.Total)
	}

	completed, err := d.Execute(ctx, "user-1", Command{Action: ActionComplete, TaskID: &id})
	if err != nil {
		t.Fatalf("complete error = %v", err)
	}
	if completed.Action != ActionComplete {
		t.Errorf("action = %q, want complete", completed.Action)
	}

	if _, err := d.Execute(ctx, "user-1", Command{Action: ActionDelete, TaskID: &id}); err != nil {
		t.Fatalf("delete error = %v", err)
	}

	listed, err = d.Execute(ctx, "user-1", Command{Action: ActionList})
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if listed.Total != 0 {
		t.Errorf("total after delete = %d, want 0", listed.Total)
	}
}

func TestCommandValidation(t *testing.T) {
	d, _ := newDispatcher(t)
	id := uuid.New()

	tests := []struct {
		name string
		cmd  Command
	}{
		{"unknown action", Command{Action: "explode"}},
		{"create without payload", Command{Action: ActionCreate}},
		{"update without task id", Command{Action: ActionUpdate, Update: &tasks.UpdateInput{}}},
		{"update without payload", Command{Action: ActionUpdate, TaskID: &id}},
		{"complete without task id", Command{Action: ActionComplete}},
		{"delete without task id", Command{Action: ActionDelete}},
		{"search without query", Command{Action: ActionSearch}},
		{"add_tags without tags", Command{Action: ActionAddTags, TaskID: &id}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Execute(context.Background(), "user-1", tt.cmd)
			if _, ok := err.(*tasks.ValidationError); !ok {
				t.Errorf("Execute() error = %v, want *tasks.ValidationError", err)
			}
		})
	}
}

func TestDeleteUnknownTaskIsNotFound(t *testing.T) {
	d, _ := newDispatcher(t)
	id := uuid.New()

	_, err := d.Execute(context.Background(), "user-1", Command{Action: ActionDelete, TaskID: &id})
	if err != tasks.ErrNotFound {
		t.Errorf("Execute() error = %v, want ErrNotFound", err)
	}
}
