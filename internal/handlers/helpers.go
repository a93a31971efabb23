package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/taskloop/taskloop/internal/tasks"
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage removes internal details from error messages
func sanitizeErrorMessage(message string) string {
	if len(message) > 200 {
		message = message[:200] + "..."
	}
	return message
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondServiceError maps task service errors onto HTTP statuses:
// validation 400, not found 404, infrastructure 503, anything else 500.
func respondServiceError(w http.ResponseWriter, err error) {
	var verr *tasks.ValidationError
	if errors.As(err, &verr) {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", verr.Error())
		return
	}
	if errors.Is(err, tasks.ErrNotFound) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
		return
	}
	var ierr *tasks.InfrastructureError
	if errors.As(err, &ierr) {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "A backing service is unavailable")
		return
	}
	respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
}

// decodeJSONBody decodes a request body, rejecting unknown shapes early
func decodeJSONBody(r *http.Request, out any) error {
	defer func() {
		if err := r.Body.Close(); err != nil {
			_ = err
		}
	}()
	return json.NewDecoder(r.Body).Decode(out)
}
