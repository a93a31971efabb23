// Package tasks implements the task lifecycle engine: CRUD and state
// transitions over the state store, lifecycle event emission on the
// task-events and task-updates topics, and reminder scheduling choreography.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/scheduler"
	"github.com/taskloop/taskloop/internal/store"
)

// Service owns the task entity: every mutation goes through here so the
// write-then-publish contract holds everywhere. The store is the source of
// truth; publishes and reminder scheduling after a successful write are
// best-effort and never roll it back.
type Service struct {
	store     store.StateStore
	publisher Publisher
	scheduler scheduler.Scheduler
	logger    *zap.Logger
	source    string

	nowFn func() time.Time
}

// Publisher is the bus surface the service needs
type Publisher interface {
	Publish(ctx context.Context, topic string, ev *models.CloudEvent) error
}

// NewService wires the task lifecycle engine. source is the CloudEvents
// source attribute stamped on emitted events.
func NewService(st store.StateStore, pub Publisher, sched scheduler.Scheduler, source string, logger *zap.Logger) *Service {
	return &Service{
		store:     st,
		publisher: pub,
		scheduler: sched,
		logger:    logger,
		source:    source,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput carries the fields accepted on task creation
type CreateInput struct {
	Title             string                   `json:"title"`
	Description       string                   `json:"description"`
	Priority          models.Priority          `json:"priority"`
	Tags              []string                 `json:"tags"`
	DueAt             *time.Time               `json:"due_at"`
	RemindAt          *time.Time               `json:"remind_at"`
	RecurrencePattern models.RecurrencePattern `json:"recurrence_pattern"`

	// SourceAction tags the event metadata: api, chat, or recurring.
	SourceAction string `json:"-"`
}

// UpdateInput is a partial update. Absent fields are unchanged; fields set
// to JSON null are cleared (title and priority cannot be cleared).
type UpdateInput struct {
	Title             Optional[string]                   `json:"title"`
	Description       Optional[string]                   `json:"description"`
	Priority          Optional[models.Priority]          `json:"priority"`
	Tags              Optional[[]string]                 `json:"tags"`
	DueAt             Optional[time.Time]                `json:"due_at"`
	RemindAt          Optional[time.Time]                `json:"remind_at"`
	RecurrencePattern Optional[models.RecurrencePattern] `json:"recurrence_pattern"`

	SourceAction string `json:"-"`
}

func validTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if len(title) > models.MaxTitleLength {
		return &ValidationError{Field: "title", Message: "must be at most 500 characters"}
	}
	return nil
}

func validDescription(desc string) error {
	if len(desc) > models.MaxDescriptionLength {
		return &ValidationError{Field: "description", Message: "must be at most 2000 characters"}
	}
	return nil
}

func validPriority(p models.Priority) error {
	switch p {
	case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
		return nil
	}
	return &ValidationError{Field: "priority", Message: "must be High, Medium, or Low"}
}

func validRecurrence(p models.RecurrencePattern) error {
	switch p {
	case models.RecurrenceNone, models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly:
		return nil
	}
	return &ValidationError{Field: "recurrence_pattern", Message: "must be daily, weekly, or monthly"}
}

func sourceAction(action string) string {
	if action == "" {
		return models.SourceAPI
	}
	return action
}

// Create validates the input, persists a new pending task, emits
// task.created on both topics, and schedules a reminder when remind_at is
// set.
func (s *Service) Create(ctx context.Context, owner string, in CreateInput) (*models.Task, error) {
	if err := validTitle(in.Title); err != nil {
		return nil, err
	}
	if err := validDescription(in.Description); err != nil {
		return nil, err
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if err := validPriority(in.Priority); err != nil {
		return nil, err
	}
	if err := validRecurrence(in.RecurrencePattern); err != nil {
		return nil, err
	}

	now := s.nowFn()
	task := &models.Task{
		ID:                uuid.New(),
		UserID:            owner,
		Title:             strings.TrimSpace(in.Title),
		Description:       in.Description,
		Status:            models.TaskStatusPending,
		Priority:          in.Priority,
		Tags:              normalizeTags(in.Tags),
		DueAt:             in.DueAt,
		RemindAt:          in.RemindAt,
		RecurrencePattern: in.RecurrencePattern,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.store.Put(ctx, task.StateKey(), task); err != nil {
		return nil, &InfrastructureError{Op: "store put", Err: err}
	}

	s.emit(ctx, models.EventTaskCreated, task, map[string]any{
		models.MetaSourceAction: sourceAction(in.SourceAction),
	})

	if task.RemindAt != nil {
		s.scheduleReminder(ctx, task)
	}

	s.logger.Info("task_created",
		zap.String("task_id", task.ID.String()),
		zap.String("user_id", task.UserID),
	)
	return task, nil
}

// Get loads a task owned by owner. Returns ErrNotFound for unknown or
// not-owned ids.
func (s *Service) Get(ctx context.Context, owner string, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := s.store.Get(ctx, models.TaskKey(owner, id), &task)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "store get", Err: err}
	}
	return &task, nil
}

// Update applies a partial update. Only fields present in the input change;
// explicit nulls clear description, tags, due_at, remind_at, and
// recurrence_pattern. The pre-mutation snapshot travels in the event's
// previous_state metadata. Reminder jobs are cancelled and re-scheduled
// when due_at or remind_at changed.
func (s *Service) Update(ctx context.Context, owner string, id uuid.UUID, in UpdateInput) (*models.Task, error) {
	task, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	previous := task.Clone()

	if in.Title.Set {
		if !in.Title.Valid {
			return nil, &ValidationError{Field: "title", Message: "cannot be null"}
		}
		if err := validTitle(in.Title.Value); err != nil {
			return nil, err
		}
		task.Title = strings.TrimSpace(in.Title.Value)
	}
	if in.Description.Set {
		if err := validDescription(in.Description.Value); err != nil {
			return nil, err
		}
		task.Description = in.Description.Value
	}
	if in.Priority.Set {
		if !in.Priority.Valid {
			return nil, &ValidationError{Field: "priority", Message: "cannot be null"}
		}
		if err := validPriority(in.Priority.Value); err != nil {
			return nil, err
		}
		task.Priority = in.Priority.Value
	}
	if in.Tags.Set {
		task.Tags = normalizeTags(in.Tags.Value)
	}
	if in.DueAt.Set {
		task.DueAt = in.DueAt.Pointer()
	}
	if in.RemindAt.Set {
		task.RemindAt = in.RemindAt.Pointer()
	}
	if in.RecurrencePattern.Set {
		if err := validRecurrence(in.RecurrencePattern.Value); err != nil {
			return nil, err
		}
		task.RecurrencePattern = in.RecurrencePattern.Value
	}

	task.UpdatedAt = s.nowFn()

	if err := s.store.Put(ctx, task.StateKey(), task); err != nil {
		return nil, &InfrastructureError{Op: "store put", Err: err}
	}

	s.emit(ctx, models.EventTaskUpdated, task, map[string]any{
		models.MetaSourceAction:  sourceAction(in.SourceAction),
		models.MetaPreviousState: previous,
	})

	if timeChanged(previous.DueAt, task.DueAt) || timeChanged(previous.RemindAt, task.RemindAt) {
		s.cancelReminder(ctx, task)
		if task.RemindAt != nil && task.Status == models.TaskStatusPending {
			s.scheduleReminder(ctx, task)
		}
	}

	s.logger.Info("task_updated",
		zap.String("task_id", task.ID.String()),
		zap.String("user_id", task.UserID),
	)
	return task, nil
}

// Complete marks a task completed and emits task.completed, the trigger the
// recurrence worker watches for. Completing an already-completed task is a
// no-op: the current task is returned with no write and no event.
func (s *Service) Complete(ctx context.Context, owner string, id uuid.UUID) (*models.Task, error) {
	return s.complete(ctx, owner, id, models.SourceAPI)
}

// CompleteFrom is Complete with an explicit source action for the event
// metadata
func (s *Service) CompleteFrom(ctx context.Context, owner string, id uuid.UUID, action string) (*models.Task, error) {
	return s.complete(ctx, owner, id, action)
}

func (s *Service) complete(ctx context.Context, owner string, id uuid.UUID, action string) (*models.Task, error) {
	task, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if task.Status == models.TaskStatusCompleted {
		return task, nil
	}

	task.MarkCompleted(s.nowFn())

	if err := s.store.Put(ctx, task.StateKey(), task); err != nil {
		return nil, &InfrastructureError{Op: "store put", Err: err}
	}

	s.emit(ctx, models.EventTaskCompleted, task, map[string]any{
		models.MetaSourceAction: sourceAction(action),
	})
	s.cancelReminder(ctx, task)

	s.logger.Info("task_completed",
		zap.String("task_id", task.ID.String()),
		zap.String("user_id", task.UserID),
	)
	return task, nil
}

// Delete removes a task and emits task.deleted with a null snapshot.
// Deleting an unknown id returns false with no error.
func (s *Service) Delete(ctx context.Context, owner string, id uuid.UUID) (bool, error) {
	return s.DeleteFrom(ctx, owner, id, models.SourceAPI)
}

// DeleteFrom is Delete with an explicit source action for the event metadata
func (s *Service) DeleteFrom(ctx context.Context, owner string, id uuid.UUID, action string) (bool, error) {
	task, err := s.Get(ctx, owner, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.store.Delete(ctx, task.StateKey()); err != nil {
		return false, &InfrastructureError{Op: "store delete", Err: err}
	}

	s.emit(ctx, models.EventTaskDeleted, task, map[string]any{
		models.MetaSourceAction: sourceAction(action),
	})
	s.cancelReminder(ctx, task)

	s.logger.Info("task_deleted",
		zap.String("task_id", task.ID.String()),
		zap.String("user_id", task.UserID),
	)
	return true, nil
}

// AddTags unions tags into the task's tag set and emits task.updated
func (s *Service) AddTags(ctx context.Context, owner string, id uuid.UUID, tags []string, action string) (*models.Task, error) {
	task, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	previous := task.Clone()

	seen := make(map[string]bool, len(task.Tags))
	for _, t := range task.Tags {
		seen[t] = true
	}
	for _, t := range normalizeTags(tags) {
		if !seen[t] {
			task.Tags = append(task.Tags, t)
			seen[t] = true
		}
	}

	return s.finishTagUpdate(ctx, task, previous, action)
}

// RemoveTags removes tags from the task's tag set and emits task.updated.
// Removing absent tags is not an error.
func (s *Service) RemoveTags(ctx context.Context, owner string, id uuid.UUID, tags []string, action string) (*models.Task, error) {
	task, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	previous := task.Clone()

	drop := make(map[string]bool, len(tags))
	for _, t := range tags {
		drop[strings.TrimSpace(t)] = true
	}
	kept := task.Tags[:0]
	for _, t := range task.Tags {
		if !drop[t] {
			kept = append(kept, t)
		}
	}
	task.Tags = kept

	return s.finishTagUpdate(ctx, task, previous, action)
}

func (s *Service) finishTagUpdate(ctx context.Context, task, previous *models.Task, action string) (*models.Task, error) {
	task.UpdatedAt = s.nowFn()

	if err := s.store.Put(ctx, task.StateKey(), task); err != nil {
		return nil, &InfrastructureError{Op: "store put", Err: err}
	}

	s.emit(ctx, models.EventTaskUpdated, task, map[string]any{
		models.MetaSourceAction:  sourceAction(action),
		models.MetaPreviousState: previous,
	})
	return task, nil
}

// List returns the owner's tasks matching the filters, plus the filtered
// total before pagination.
func (s *Service) List(ctx context.Context, owner string, filters ListFilters) ([]*models.Task, int, error) {
	items, err := s.store.Query(ctx, store.Query{Prefix: models.TaskKeyPrefix(owner)})
	if err != nil {
		return nil, 0, &InfrastructureError{Op: "store query", Err: err}
	}

	all := make([]*models.Task, 0, len(items))
	for _, item := range items {
		var task models.Task
		if err := json.Unmarshal(item.Value, &task); err != nil {
			s.logger.Warn("skipping_unreadable_task",
				zap.String("key", item.Key),
				zap.Error(err),
			)
			continue
		}
		all = append(all, &task)
	}

	page, total := filters.apply(all)
	return page, total, nil
}

// emit publishes the lifecycle event to both the canonical and the
// real-time topic. Exactly two publish attempts per mutation; failures are
// logged and never roll back the store write.
func (s *Service) emit(ctx context.Context, eventType models.EventType, task *models.Task, metadata map[string]any) {
	ev, err := models.NewTaskEvent(eventType, task, s.source, metadata)
	if err != nil {
		s.logger.Error("event_build_failed",
			zap.String("event_type", string(eventType)),
			zap.String("task_id", task.ID.String()),
			zap.Error(err),
		)
		return
	}
	for _, topic := range []string{models.TopicTaskEvents, models.TopicTaskUpdates} {
		if err := s.publisher.Publish(ctx, topic, ev); err != nil {
			s.logger.Error("event_publish_failed",
				zap.String("topic", topic),
				zap.String("event_type", string(eventType)),
				zap.String("task_id", task.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) scheduleReminder(ctx context.Context, task *models.Task) {
	key := scheduler.JobKey{UserID: task.UserID, TaskID: task.ID}
	payload := models.ReminderEventData{
		TaskID:   task.ID,
		Title:    task.Title,
		DueAt:    task.DueAt,
		RemindAt: *task.RemindAt,
		UserID:   task.UserID,
	}
	if err := s.scheduler.Schedule(ctx, key, *task.RemindAt, payload); err != nil {
		s.logger.Error("reminder_schedule_failed",
			zap.String("job_key", key.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) cancelReminder(ctx context.Context, task *models.Task) {
	key := scheduler.JobKey{UserID: task.UserID, TaskID: task.ID}
	if err := s.scheduler.Cancel(ctx, key); err != nil {
		s.logger.Error("reminder_cancel_failed",
			zap.String("job_key", key.String()),
			zap.Error(err),
		)
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func timeChanged(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil || b == nil:
		return true
	default:
		return !a.Equal(*b)
	}
}
