package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/bus"
	"github.com/taskloop/taskloop/internal/models"
)

func postReminderJob(h *ReminderJobHandler, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/jobs/reminder", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReminderJobPublishes(t *testing.T) {
	mb := bus.NewMemoryBus()
	h := NewReminderJobHandler(mb, "task-api", zap.NewNop())

	due := time.Now().UTC().Add(time.Hour)
	payload := models.ReminderEventData{
		TaskID:   uuid.New(),
		Title:    "Buy milk",
		DueAt:    &due,
		RemindAt: due.Add(-30 * time.Minute),
		UserID:   "user-1",
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	rec := postReminderJob(h, raw)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	published := mb.Published(models.TopicReminders)
	if len(published) != 1 {
		t.Fatalf("published = %d events, want 1", len(published))
	}
	ev := published[0]
	if ev.Type != models.EventReminderDue {
		t.Errorf("type = %q, want %q", ev.Type, models.EventReminderDue)
	}

	data, err := models.DecodeReminderEvent(ev)
	if err != nil {
		t.Fatalf("DecodeReminderEvent() error = %v", err)
	}
	if data.TaskID != payload.TaskID {
		t.Errorf("task_id = %s, want %s", data.TaskID, payload.TaskID)
	}
	// Channels default when the job payload carries none.
	if len(data.NotificationChannels) != 1 || data.NotificationChannels[0] != "in_app" {
		t.Errorf("channels = %v, want [in_app]", data.NotificationChannels)
	}
}

func TestReminderJobRequiresUserID(t *testing.T) {
	mb := bus.NewMemoryBus()
	h := NewReminderJobHandler(mb, "task-api", zap.NewNop())

	rec := postReminderJob(h, []byte(`{"task_id":"`+uuid.NewString()+`","title":"x"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := len(mb.Published(models.TopicReminders)); got != 0 {
		t.Errorf("published = %d events, want 0", got)
	}
}

func TestReminderJobPublishFailure(t *testing.T) {
	mb := bus.NewMemoryBus()
	mb.FailNextPublish()
	h := NewReminderJobHandler(mb, "task-api", zap.NewNop())

	payload := models.ReminderEventData{
		TaskID:   uuid.New(),
		Title:    "Buy milk",
		RemindAt: time.Now().UTC(),
		UserID:   "user-1",
	}
	raw, _ := json.Marshal(payload)

	rec := postReminderJob(h, raw)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
