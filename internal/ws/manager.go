// Package ws holds the per-user WebSocket connection registry and fans
// task-update events out to their owner's open connections.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/models"
)

// Conn is the subset of *websocket.Conn the manager needs. Tests inject
// fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// TaskUpdateFrame is the wire message pushed to clients for a lifecycle
// event
type TaskUpdateFrame struct {
	Type      string       `json:"type"`
	Action    string       `json:"action"`
	TaskID    uuid.UUID    `json:"task_id"`
	Task      *models.Task `json:"task,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// AckFrame acknowledges an inbound client frame
type AckFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Manager maps user ids to their open connections. Safe for concurrent
// connect, disconnect, and send; a failing connection is removed without
// affecting its siblings.
type Manager struct {
	mu     sync.RWMutex
	conns  map[string]map[Conn]bool
	logger *zap.Logger
}

// NewManager creates an empty registry
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		conns:  make(map[string]map[Conn]bool),
		logger: logger,
	}
}

// Connect registers a connection under its user after the handshake
func (m *Manager) Connect(conn Conn, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conns[userID] == nil {
		m.conns[userID] = make(map[Conn]bool)
	}
	m.conns[userID][conn] = true

	m.logger.Info("ws_connected",
		zap.String("user_id", userID),
		zap.Int("user_connections", len(m.conns[userID])),
	)
}

// Disconnect removes a connection, dropping the user's entry once empty
func (m *Manager) Disconnect(conn Conn, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(conn, userID)

	m.logger.Info("ws_disconnected", zap.String("user_id", userID))
}

func (m *Manager) removeLocked(conn Conn, userID string) {
	set, ok := m.conns[userID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(m.conns, userID)
	}
}

// SendToUser delivers a message to every open connection of one user.
// Sends iterate a snapshot of the set; connections whose send fails are
// closed and removed after iteration. Zero connections is a no-op. No
// error reaches the caller.
func (m *Manager) SendToUser(userID string, message any) {
	m.mu.RLock()
	snapshot := make([]Conn, 0, len(m.conns[userID]))
	for conn := range m.conns[userID] {
		snapshot = append(snapshot, conn)
	}
	m.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	var failed []Conn
	for _, conn := range snapshot {
		if err := conn.WriteJSON(message); err != nil {
			m.logger.Warn("ws_send_failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			failed = append(failed, conn)
		}
	}

	if len(failed) > 0 {
		m.mu.Lock()
		for _, conn := range failed {
			m.removeLocked(conn, userID)
		}
		m.mu.Unlock()
		for _, conn := range failed {
			if err := conn.Close(); err != nil {
				_ = err
			}
		}
	}
}

// Broadcast sends a message to every registered user
func (m *Manager) Broadcast(message any) {
	m.mu.RLock()
	users := make([]string, 0, len(m.conns))
	for userID := range m.conns {
		users = append(users, userID)
	}
	m.mu.RUnlock()

	for _, userID := range users {
		m.SendToUser(userID, message)
	}
}

// ConnectionCount returns the number of open connections across all users
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, set := range m.conns {
		total += len(set)
	}
	return total
}

// UserConnectionCount returns the number of open connections for one user
func (m *Manager) UserConnectionCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns[userID])
}

// HandleTaskUpdate consumes one task-updates event and pushes a
// task_update frame to the owning user's connections only
func (m *Manager) HandleTaskUpdate(ctx context.Context, ev *models.CloudEvent) error {
	data, err := models.DecodeTaskEvent(ev)
	if err != nil {
		m.logger.Warn("task_update_decode_failed",
			zap.String("event_id", ev.ID.String()),
			zap.Error(err),
		)
		return nil
	}

	m.SendToUser(data.UserID, TaskUpdateFrame{
		Type:      "task_update",
		Action:    ev.Type.Action(),
		TaskID:    data.TaskID,
		Task:      data.TaskData,
		Timestamp: ev.Time,
	})
	return nil
}
