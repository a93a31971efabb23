package handlers

import (
	"net/http"

	"github.com/taskloop/taskloop/internal/chat"
)

// ChatHandler executes structured chat commands. Natural-language parsing
// happens upstream; the request body is already a chat.Command document.
type ChatHandler struct {
	dispatcher *chat.Dispatcher
}

// NewChatHandler creates the chat command handler
func NewChatHandler(dispatcher *chat.Dispatcher) *ChatHandler {
	return &ChatHandler{dispatcher: dispatcher}
}

// ServeHTTP runs one command for the authenticated user
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	var cmd chat.Command
	if err := decodeJSONBody(r, &cmd); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", "Invalid command body")
		return
	}

	resp, err := h.dispatcher.Execute(r.Context(), owner, cmd)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
