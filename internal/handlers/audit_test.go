package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/audit"
	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/request"
	"github.com/taskloop/taskloop/internal/store"
)

func recordCreated(t *testing.T, recorder *audit.Recorder, userID string) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	task := &models.Task{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     "Buy milk",
		Status:    models.TaskStatusPending,
		Priority:  models.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ev, err := models.NewTaskEvent(models.EventTaskCreated, task, "task-api", nil)
	if err != nil {
		t.Fatalf("NewTaskEvent() error = %v", err)
	}
	if err := recorder.HandleTaskEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleTaskEvent() error = %v", err)
	}
	return task.ID
}

func getAudit(h *AuditHandler, userID, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/audit"+query, nil)
	if userID != "" {
		req = req.WithContext(request.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuditRouteListsOwnEntries(t *testing.T) {
	recorder := audit.NewRecorder(store.NewMemoryStore(), zap.NewNop())
	h := NewAuditHandler(recorder)

	firstID := recordCreated(t, recorder, "user-1")
	recordCreated(t, recorder, "user-1")
	recordCreated(t, recorder, "user-2")

	rec := getAudit(h, "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var page struct {
		Entries []*models.AuditEntry `json:"entries"`
		Total   int                  `json:"total"`
	}
	decodeData(t, rec, &page)
	if page.Total != 2 {
		t.Errorf("total = %d, want 2", page.Total)
	}
	for _, entry := range page.Entries {
		if entry.UserID != "user-1" {
			t.Errorf("entry user_id = %q, want %q", entry.UserID, "user-1")
		}
	}

	// Narrow to one task.
	rec = getAudit(h, "user-1", "?task_id="+firstID.String())
	decodeData(t, rec, &page)
	if page.Total != 1 {
		t.Errorf("filtered total = %d, want 1", page.Total)
	}
	if len(page.Entries) == 1 && page.Entries[0].TaskID != firstID {
		t.Errorf("filtered task_id = %s, want %s", page.Entries[0].TaskID, firstID)
	}
}

func TestAuditRouteRejectsBadTaskID(t *testing.T) {
	recorder := audit.NewRecorder(store.NewMemoryStore(), zap.NewNop())
	h := NewAuditHandler(recorder)

	rec := getAudit(h, "user-1", "?task_id=nope")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
