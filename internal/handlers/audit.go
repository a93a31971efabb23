package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/taskloop/taskloop/internal/audit"
)

// AuditHandler serves a user's audit trail
type AuditHandler struct {
	recorder *audit.Recorder
}

// NewAuditHandler creates the audit query handler
func NewAuditHandler(recorder *audit.Recorder) *AuditHandler {
	return &AuditHandler{recorder: recorder}
}

// ServeHTTP lists the authenticated user's audit entries, optionally
// narrowed by ?task_id=
func (h *AuditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	var taskFilter *uuid.UUID
	if raw := r.URL.Query().Get("task_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Validation Error", "Invalid task_id")
			return
		}
		taskFilter = &id
	}

	entries, err := h.recorder.List(r.Context(), owner, taskFilter)
	if err != nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Failed to load audit entries")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   len(entries),
	})
}
