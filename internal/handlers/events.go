package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/bus"
	"github.com/taskloop/taskloop/internal/models"
)

// Event delivery statuses returned to the bus
const (
	EventStatusSuccess = "SUCCESS"
	EventStatusRetry   = "RETRY"
)

// EventEndpoint exposes one HTTP event-delivery endpoint per subscribed
// topic. The bus posts a JSON envelope; SUCCESS acknowledges it, RETRY (any
// handler error) asks for redelivery. Processing errors are never swallowed.
type EventEndpoint struct {
	handler bus.Handler
	topic   string
	logger  *zap.Logger
}

// NewEventEndpoint wraps a bus handler as an HTTP delivery endpoint
func NewEventEndpoint(topic string, handler bus.Handler, logger *zap.Logger) *EventEndpoint {
	return &EventEndpoint{handler: handler, topic: topic, logger: logger}
}

// ServeHTTP decodes the envelope and runs the handler
func (e *EventEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var ev models.CloudEvent
	if err := decodeJSONBody(r, &ev); err != nil {
		// An unreadable envelope will not improve on redelivery.
		e.logger.Warn("event_envelope_decode_failed",
			zap.String("topic", e.topic),
			zap.Error(err),
		)
		respondEventStatus(w, http.StatusBadRequest, EventStatusSuccess)
		return
	}

	if err := e.handler(r.Context(), &ev); err != nil {
		e.logger.Error("event_handler_failed",
			zap.String("topic", e.topic),
			zap.String("event_id", ev.ID.String()),
			zap.String("event_type", string(ev.Type)),
			zap.Error(err),
		)
		respondEventStatus(w, http.StatusInternalServerError, EventStatusRetry)
		return
	}

	respondEventStatus(w, http.StatusOK, EventStatusSuccess)
}

func respondEventStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write([]byte(`{"status":"` + status + `"}`)); err != nil {
		_ = err
	}
}
