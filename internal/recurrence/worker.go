package recurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/store"
	"github.com/taskloop/taskloop/internal/tasks"
)

// markerRetention bounds how long dedup markers live on backends with
// expiry. Redeliveries arrive within the queue's retry window, far inside
// this bound, so expiring markers never reopens the duplicate window.
const markerRetention = 30 * 24 * time.Hour

// ttlStore is implemented by backends that can expire keys. Backends
// without expiry fall back to plain Put.
type ttlStore interface {
	PutWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error
}

// dedupMarker records that a next occurrence was already created for an
// (original task, next due date) pair. Written before the create so a
// redelivered completion event skips instead of duplicating.
type dedupMarker struct {
	TaskID    uuid.UUID `json:"task_id"`
	NextDue   time.Time `json:"next_due"`
	CreatedAt time.Time `json:"created_at"`
}

func dedupKey(taskID uuid.UUID, nextDue time.Time) string {
	return fmt.Sprintf("recurrence:%s:%s", taskID, nextDue.UTC().Format("2006-01-02"))
}

// Worker consumes task-events and creates the next occurrence of a
// recurring task when its completion event arrives.
type Worker struct {
	svc    *tasks.Service
	store  store.StateStore
	logger *zap.Logger
	nowFn  func() time.Time
}

// NewWorker wires the recurrence worker
func NewWorker(svc *tasks.Service, st store.StateStore, logger *zap.Logger) *Worker {
	return &Worker{
		svc:    svc,
		store:  st,
		logger: logger,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// HandleTaskEvent processes one task lifecycle event. Only completion
// events for recurring tasks do anything; everything else is acknowledged
// untouched. A returned error asks the bus to redeliver, so the dedup
// marker guards against duplicate occurrences.
func (w *Worker) HandleTaskEvent(ctx context.Context, ev *models.CloudEvent) error {
	if ev.Type != models.EventTaskCompleted {
		return nil
	}

	data, err := models.DecodeTaskEvent(ev)
	if err != nil {
		// Malformed payloads never improve on redelivery.
		w.logger.Warn("recurrence_event_decode_failed",
			zap.String("event_id", ev.ID.String()),
			zap.Error(err),
		)
		return nil
	}

	snapshot := data.TaskData
	if snapshot == nil || !snapshot.IsRecurring() {
		return nil
	}

	nextDue := NextDue(snapshot.DueAt, snapshot.RecurrencePattern, w.nowFn(), w.logger)
	key := dedupKey(snapshot.ID, nextDue)

	var existing dedupMarker
	err = w.store.Get(ctx, key, &existing)
	if err == nil {
		w.logger.Info("recurrence_duplicate_skipped",
			zap.String("task_id", snapshot.ID.String()),
			zap.Time("next_due", nextDue),
		)
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to check recurrence marker %q: %w", key, err)
	}

	marker := dedupMarker{TaskID: snapshot.ID, NextDue: nextDue, CreatedAt: w.nowFn()}
	if err := w.putMarker(ctx, key, marker); err != nil {
		return fmt.Errorf("failed to write recurrence marker %q: %w", key, err)
	}

	in := tasks.CreateInput{
		Title:             snapshot.Title,
		Description:       snapshot.Description,
		Priority:          snapshot.Priority,
		Tags:              append([]string(nil), snapshot.Tags...),
		DueAt:             &nextDue,
		RecurrencePattern: snapshot.RecurrencePattern,
		SourceAction:      models.SourceRecurring,
	}
	// Preserve the remind-to-due offset when the original carried both.
	if snapshot.DueAt != nil && snapshot.RemindAt != nil {
		remindAt := nextDue.Add(-snapshot.DueAt.Sub(*snapshot.RemindAt))
		in.RemindAt = &remindAt
	}

	created, err := w.svc.Create(ctx, snapshot.UserID, in)
	if err != nil {
		// Free the marker so redelivery can retry the create.
		if delErr := w.store.Delete(ctx, key); delErr != nil {
			w.logger.Warn("recurrence_marker_cleanup_failed",
				zap.String("key", key),
				zap.Error(delErr),
			)
		}
		return fmt.Errorf("failed to create next occurrence of %s: %w", snapshot.ID, err)
	}

	w.logger.Info("recurrence_task_created",
		zap.String("original_task_id", snapshot.ID.String()),
		zap.String("new_task_id", created.ID.String()),
		zap.String("pattern", string(snapshot.RecurrencePattern)),
		zap.Time("next_due", nextDue),
	)
	return nil
}

// putMarker writes the dedup marker with an expiry when the backend
// supports one, so marker keys do not accumulate forever
func (w *Worker) putMarker(ctx context.Context, key string, marker dedupMarker) error {
	if ts, ok := w.store.(ttlStore); ok {
		return ts.PutWithTTL(ctx, key, marker, markerRetention)
	}
	return w.store.Put(ctx, key, marker)
}
