package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/tasks"
)

// Dispatcher executes chat commands against the task lifecycle engine.
// Every mutation it performs carries source_action="chat" in the emitted
// events.
type Dispatcher struct {
	svc    *tasks.Service
	logger *zap.Logger
}

// NewDispatcher wires the chat dispatcher
func NewDispatcher(svc *tasks.Service, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{svc: svc, logger: logger}
}

// Execute runs one command for a user. Validation failures surface as
// *tasks.ValidationError; unknown or not-owned task ids as
// tasks.ErrNotFound.
func (d *Dispatcher) Execute(ctx context.Context, userID string, cmd Command) (*Response, error) {
	d.logger.Info("chat_command",
		zap.String("user_id", userID),
		zap.String("action", string(cmd.Action)),
	)

	switch cmd.Action {
	case ActionCreate:
		return d.create(ctx, userID, cmd)
	case ActionUpdate:
		return d.update(ctx, userID, cmd)
	case ActionComplete:
		return d.complete(ctx, userID, cmd)
	case ActionDelete:
		return d.delete(ctx, userID, cmd)
	case ActionList:
		return d.list(ctx, userID, tasks.ListFilters{})
	case ActionSearch:
		if cmd.Query == "" {
			return nil, &tasks.ValidationError{Field: "query", Message: "required for search"}
		}
		return d.list(ctx, userID, tasks.ListFilters{Search: cmd.Query})
	case ActionAddTags:
		return d.tags(ctx, userID, cmd, true)
	case ActionRemoveTags:
		return d.tags(ctx, userID, cmd, false)
	default:
		return nil, &tasks.ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", cmd.Action)}
	}
}

func (d *Dispatcher) create(ctx context.Context, userID string, cmd Command) (*Response, error) {
	if cmd.Create == nil {
		return nil, &tasks.ValidationError{Field: "create", Message: "required for create"}
	}
	in := *cmd.Create
	in.SourceAction = models.SourceChat

	task, err := d.svc.Create(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	return &Response{
		Response: fmt.Sprintf("Created task %q", task.Title),
		Action:   ActionCreate,
		TaskID:   &task.ID,
	}, nil
}

func (d *Dispatcher) update(ctx context.Context, userID string, cmd Command) (*Response, error) {
	if cmd.TaskID == nil {
		return nil, &tasks.ValidationError{Field: "task_id", Message: "required for update"}
	}
	if cmd.Update == nil {
		return nil, &tasks.ValidationError{Field: "update", Message: "required for update"}
	}
	in := *cmd.Update
	in.SourceAction = models.SourceChat

	task, err := d.svc.Update(ctx, userID, *cmd.TaskID, in)
	if err != nil {
		return nil, err
	}
	return &Response{
		Response: fmt.Sprintf("Updated task %q", task.Title),
		Action:   ActionUpdate,
		TaskID:   &task.ID,
	}, nil
}

func (d *Dispatcher) complete(ctx context.Context, userID string, cmd Command) (*Response, error) {
	if cmd.TaskID == nil {
		return nil, &tasks.ValidationError{Field: "task_id", Message: "required for complete"}
	}

	task, err := d.svc.CompleteFrom(ctx, userID, *cmd.TaskID, models.SourceChat)
	if err != nil {
		return nil, err
	}
	return &Response{
		Response: fmt.Sprintf("Completed task %q", task.Title),
		Action:   ActionComplete,
		TaskID:   &task.ID,
	}, nil
}

func (d *Dispatcher) delete(ctx context.Context, userID string, cmd Command) (*Response, error) {
	if cmd.TaskID == nil {
		return nil, &tasks.ValidationError{Field: "task_id", Message: "required for delete"}
	}

	deleted, err := d.svc.DeleteFrom(ctx, userID, *cmd.TaskID, models.SourceChat)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, tasks.ErrNotFound
	}
	return &Response{
		Response: "Deleted task",
		Action:   ActionDelete,
		TaskID:   cmd.TaskID,
	}, nil
}

func (d *Dispatcher) list(ctx context.Context, userID string, filters tasks.ListFilters) (*Response, error) {
	page, total, err := d.svc.List(ctx, userID, filters)
	if err != nil {
		return nil, err
	}

	action := ActionList
	if filters.Search != "" {
		action = ActionSearch
	}
	return &Response{
		Response: fmt.Sprintf("Found %d task(s)", total),
		Action:   action,
		Tasks:    page,
		Total:    total,
	}, nil
}

func (d *Dispatcher) tags(ctx context.Context, userID string, cmd Command, add bool) (*Response, error) {
	if cmd.TaskID == nil {
		return nil, &tasks.ValidationError{Field: "task_id", Message: "required for tag operations"}
	}
	if len(cmd.Tags) == 0 {
		return nil, &tasks.ValidationError{Field: "tags", Message: "at least one tag required"}
	}

	var (
		task *models.Task
		err  error
	)
	if add {
		task, err = d.svc.AddTags(ctx, userID, *cmd.TaskID, cmd.Tags, models.SourceChat)
	} else {
		task, err = d.svc.RemoveTags(ctx, userID, *cmd.TaskID, cmd.Tags, models.SourceChat)
	}
	if err != nil {
		return nil, err
	}

	action := ActionAddTags
	verb := "Added tags to"
	if !add {
		action = ActionRemoveTags
		verb = "Removed tags from"
	}
	return &Response{
		Response: fmt.Sprintf("%s task %q", verb, task.Title),
		Action:   action,
		TaskID:   &task.ID,
	}, nil
}
