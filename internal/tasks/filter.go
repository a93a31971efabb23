package tasks

import (
	"sort"
	"strings"
	"time"

	"github.com/taskloop/taskloop/internal/models"
)

// Pagination bounds for list queries
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Sort fields accepted by list queries
const (
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"
	SortByDueAt     = "due_at"
	SortByPriority  = "priority"
	SortByTitle     = "title"
)

// ListFilters narrows, orders, and pages a user's tasks. Zero values mean
// "no constraint". All set filters are AND-combined; Tags matches when the
// task carries any of the listed tags.
type ListFilters struct {
	Status    models.TaskStatus
	Priority  models.Priority
	DueBefore *time.Time
	DueAfter  *time.Time
	Search    string
	Tags      []string

	SortBy    string
	SortOrder string

	Page     int
	PageSize int
}

func (f *ListFilters) normalize() {
	if f.SortBy == "" {
		f.SortBy = SortByCreatedAt
	}
	if f.SortOrder == "" {
		f.SortOrder = "desc"
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
}

func (f *ListFilters) matches(t *models.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.DueAfter != nil {
		if t.DueAt == nil || t.DueAt.Before(*f.DueAfter) {
			return false
		}
	}
	if f.DueBefore != nil {
		if t.DueAt == nil || t.DueAt.After(*f.DueBefore) {
			return false
		}
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			return false
		}
	}
	if len(f.Tags) > 0 && !hasAnyTag(t.Tags, f.Tags) {
		return false
	}
	return true
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// less orders two tasks for the configured sort field, ascending
func (f *ListFilters) less(a, b *models.Task) bool {
	switch f.SortBy {
	case SortByUpdatedAt:
		return a.UpdatedAt.Before(b.UpdatedAt)
	case SortByDueAt:
		return a.DueAt.Before(*b.DueAt)
	case SortByPriority:
		return a.Priority.Rank() < b.Priority.Rank()
	case SortByTitle:
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

// apply filters, sorts, and pages the tasks. The returned total is the
// filtered count before pagination.
func (f ListFilters) apply(all []*models.Task) ([]*models.Task, int) {
	f.normalize()

	filtered := make([]*models.Task, 0, len(all))
	for _, t := range all {
		if f.matches(t) {
			filtered = append(filtered, t)
		}
	}

	asc := f.SortOrder != "desc"
	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		// Tasks without a due date sort last regardless of direction.
		if f.SortBy == SortByDueAt {
			switch {
			case a.DueAt == nil:
				return false
			case b.DueAt == nil:
				return true
			}
		}
		if asc {
			return f.less(a, b)
		}
		return f.less(b, a)
	})

	total := len(filtered)
	start := (f.Page - 1) * f.PageSize
	if start >= total {
		return []*models.Task{}, total
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}
	return filtered[start:end], total
}
