package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/logger"
	"github.com/taskloop/taskloop/internal/ws"
)

// WSHandler upgrades /ws/{user_id} requests and keeps the connection
// registered for the duration of the read loop. Every inbound client frame
// is acknowledged; task updates are pushed from the fan-out manager
// independently.
type WSHandler struct {
	manager  *ws.Manager
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler creates the WebSocket endpoint handler. checkOrigin nil
// means same-origin only (the gorilla default).
func NewWSHandler(manager *ws.Manager, checkOrigin func(*http.Request) bool, log *zap.Logger) *WSHandler {
	return &WSHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: log,
	}
}

// ServeHTTP upgrades the connection and runs the read loop until the client
// disconnects
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	if userID == "" {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", "user_id is required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("ws_upgrade_failed",
			zap.String("user_id", logger.SanitizeUserID(userID)),
			zap.Error(err),
		)
		return
	}

	h.manager.Connect(conn, userID)
	defer func() {
		h.manager.Disconnect(conn, userID)
		if err := conn.Close(); err != nil {
			_ = err
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		if err := conn.WriteJSON(ws.AckFrame{Type: "ack", Message: "received"}); err != nil {
			return
		}
	}
}
