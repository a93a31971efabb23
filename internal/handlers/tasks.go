// Package handlers holds the HTTP layer: REST task routes, the chat
// endpoint, audit queries, event-delivery endpoints, the reminder callback,
// and the WebSocket upgrade path.
package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/request"
	"github.com/taskloop/taskloop/internal/tasks"
	"github.com/taskloop/taskloop/internal/validation"
)

// TaskHandler handles task CRUD requests
type TaskHandler struct {
	svc *tasks.Service
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(svc *tasks.Service) *TaskHandler {
	return &TaskHandler{svc: svc}
}

// RegisterRoutes registers task routes on a router already rooted at /tasks
func (h *TaskHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListTasks).Methods("GET")
	r.HandleFunc("", h.CreateTask).Methods("POST")
	r.HandleFunc("/{id}", h.GetTask).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateTask).Methods("PATCH")
	r.HandleFunc("/{id}", h.DeleteTask).Methods("DELETE")
	r.HandleFunc("/{id}/complete", h.CompleteTask).Methods("POST")
	r.HandleFunc("/{id}/tags", h.AddTags).Methods("POST")
	r.HandleFunc("/{id}/tags", h.RemoveTags).Methods("DELETE")
}

// ListTasksResponse is the paginated response for listing tasks
type ListTasksResponse struct {
	Tasks      []*models.Task `json:"tasks"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// TagsRequest carries tags for the tag add/remove endpoints
type TagsRequest struct {
	Tags []string `json:"tags"`
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := request.UserIDFromContext(r)
	if id == "" {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return "", false
	}
	return id, true
}

func taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", "Invalid task id")
		return uuid.Nil, false
	}
	return id, true
}

// ListTasks lists the authenticated user's tasks with filtering, sorting,
// and pagination
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	filters, err := parseListFilters(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", err.Error())
		return
	}

	page, total, err := h.svc.List(r.Context(), owner, filters)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	pageSize := filters.PageSize
	if pageSize < 1 {
		pageSize = tasks.DefaultPageSize
	}
	if pageSize > tasks.MaxPageSize {
		pageSize = tasks.MaxPageSize
	}
	pageNum := filters.Page
	if pageNum < 1 {
		pageNum = 1
	}
	totalPages := (total + pageSize - 1) / pageSize

	respondJSON(w, http.StatusOK, ListTasksResponse{
		Tasks:      page,
		Page:       pageNum,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	})
}

func parseListFilters(r *http.Request) (tasks.ListFilters, error) {
	q := r.URL.Query()
	var filters tasks.ListFilters

	if status := q.Get("status"); status != "" {
		if err := validation.ValidateTaskStatus(status); err != nil {
			return filters, err
		}
		filters.Status = models.TaskStatus(status)
	}
	if priority := q.Get("priority"); priority != "" {
		if err := validation.ValidateTaskPriority(priority); err != nil {
			return filters, err
		}
		filters.Priority = models.Priority(priority)
	}
	if raw := q.Get("due_before"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, err
		}
		filters.DueBefore = &ts
	}
	if raw := q.Get("due_after"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, err
		}
		filters.DueAfter = &ts
	}
	filters.Search = validation.SanitizeText(q.Get("search"))
	if rawTags := q.Get("tags"); rawTags != "" {
		for _, tag := range strings.Split(rawTags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filters.Tags = append(filters.Tags, tag)
			}
		}
	}

	sortBy := q.Get("sort_by")
	if err := validation.ValidateSortField(sortBy); err != nil {
		return filters, err
	}
	filters.SortBy = sortBy
	sortOrder := q.Get("sort_order")
	if err := validation.ValidateSortOrder(sortOrder); err != nil {
		return filters, err
	}
	filters.SortOrder = sortOrder

	if p := q.Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			filters.Page = parsed
		}
	}
	if ps := q.Get("page_size"); ps != "" {
		if parsed, err := strconv.Atoi(ps); err == nil && parsed > 0 {
			filters.PageSize = parsed
		}
	}
	return filters, nil
}

// CreateTask creates a task for the authenticated user
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	var in tasks.CreateInput
	if err := decodeJSONBody(r, &in); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", "Invalid request body")
		return
	}
	in.Title = validation.SanitizeText(in.Title)
	in.Description = validation.SanitizeText(in.Description)

	task, err := h.svc.Create(r.Context(), owner, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

// GetTask returns one task
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	task, err := h.svc.Get(r.Context(), owner, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// UpdateTask applies a partial update
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	var in tasks.UpdateInput
	if err := decodeJSONBody(r, &in); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", "Invalid request body")
		return
	}

	task, err := h.svc.Update(r.Context(), owner, id, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// DeleteTask removes a task. Deleting an unknown id responds 404.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	deleted, err := h.svc.Delete(r.Context(), owner, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !deleted {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

// CompleteTask marks a task completed
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	task, err := h.svc.Complete(r.Context(), owner, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// AddTags unions tags into a task
func (h *TaskHandler) AddTags(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	var req TagsRequest
	if err := decodeJSONBody(r, &req); err != nil || len(req.Tags) == 0 {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", "At least one tag is required")
		return
	}

	task, err := h.svc.AddTags(r.Context(), owner, id, req.Tags, models.SourceAPI)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// RemoveTags removes tags from a task. Tags come from the query string
// (?tags=a,b) so DELETE requests carry no body.
func (h *TaskHandler) RemoveTags(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	var tagList []string
	for _, tag := range strings.Split(r.URL.Query().Get("tags"), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tagList = append(tagList, tag)
		}
	}
	if len(tagList) == 0 {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", "At least one tag is required")
		return
	}

	task, err := h.svc.RemoveTags(r.Context(), owner, id, tagList, models.SourceAPI)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}
