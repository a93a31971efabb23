// Package audit records every task lifecycle event as an immutable audit
// entry. Entries are write-once; a persistence failure leaves a gap rather
// than blocking the event stream.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/store"
)

// Recorder consumes task-events and appends audit entries
type Recorder struct {
	store  store.StateStore
	logger *zap.Logger
}

// NewRecorder wires the audit recorder
func NewRecorder(st store.StateStore, logger *zap.Logger) *Recorder {
	return &Recorder{store: st, logger: logger}
}

// HandleTaskEvent records one lifecycle event. Every action type for every
// user is recorded, no filtering. Persistence failures are logged and the
// event is still treated as processed, so consumers must tolerate audit
// gaps.
func (r *Recorder) HandleTaskEvent(ctx context.Context, ev *models.CloudEvent) error {
	data, err := models.DecodeTaskEvent(ev)
	if err != nil {
		r.logger.Warn("audit_event_decode_failed",
			zap.String("event_id", ev.ID.String()),
			zap.Error(err),
		)
		return nil
	}

	source := ev.Source
	if action, ok := data.Metadata[models.MetaSourceAction].(string); ok && action != "" {
		source = action
	}

	entry := &models.AuditEntry{
		ID:            uuid.New(),
		TaskID:        data.TaskID,
		UserID:        data.UserID,
		Action:        ev.Type.Action(),
		TaskSnapshot:  data.TaskData,
		PreviousState: data.Metadata[models.MetaPreviousState],
		Timestamp:     ev.Time,
		Source:        source,
		EventID:       ev.ID,
	}

	if err := r.store.Put(ctx, entry.StateKey(), entry); err != nil {
		r.logger.Error("audit_entry_persist_failed",
			zap.String("entry_id", entry.ID.String()),
			zap.String("task_id", entry.TaskID.String()),
			zap.Error(err),
		)
		return nil
	}

	r.logger.Info("audit_entry_recorded",
		zap.String("entry_id", entry.ID.String()),
		zap.String("task_id", entry.TaskID.String()),
		zap.String("action", entry.Action),
	)
	return nil
}

// List returns a user's audit entries, optionally narrowed to one task
func (r *Recorder) List(ctx context.Context, userID string, taskID *uuid.UUID) ([]*models.AuditEntry, error) {
	items, err := r.store.Query(ctx, store.Query{Prefix: models.AuditKeyPrefix(userID)})
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	entries := make([]*models.AuditEntry, 0, len(items))
	for _, item := range items {
		var entry models.AuditEntry
		if err := json.Unmarshal(item.Value, &entry); err != nil {
			r.logger.Warn("skipping_unreadable_audit_entry",
				zap.String("key", item.Key),
				zap.Error(err),
			)
			continue
		}
		if taskID != nil && entry.TaskID != *taskID {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}
