package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/tasks"
)

// ReminderJobHandler is the reminder callback endpoint: it receives a fired
// job's payload, re-derives the reminder.due event, and publishes it to the
// reminders topic. It owns no durable state.
type ReminderJobHandler struct {
	publisher tasks.Publisher
	source    string
	logger    *zap.Logger
}

// NewReminderJobHandler creates the reminder callback handler
func NewReminderJobHandler(publisher tasks.Publisher, source string, logger *zap.Logger) *ReminderJobHandler {
	return &ReminderJobHandler{publisher: publisher, source: source, logger: logger}
}

// ServeHTTP publishes one reminder.due event from the posted job payload
func (h *ReminderJobHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload models.ReminderEventData
	if err := decodeJSONBody(r, &payload); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", "Invalid job payload")
		return
	}
	if payload.UserID == "" {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", "user_id is required")
		return
	}

	ev, err := models.NewReminderEvent(h.source, payload)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to build reminder event")
		return
	}

	if err := h.publisher.Publish(r.Context(), models.TopicReminders, ev); err != nil {
		h.logger.Error("reminder_publish_failed",
			zap.String("task_id", payload.TaskID.String()),
			zap.String("user_id", payload.UserID),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Failed to publish reminder event")
		return
	}

	h.logger.Info("reminder_due_published",
		zap.String("task_id", payload.TaskID.String()),
		zap.String("user_id", payload.UserID),
	)
	respondJSON(w, http.StatusOK, map[string]any{"published": true, "event_id": ev.ID})
}
