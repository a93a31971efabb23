// Package validation holds the shared validator instance, the custom enum
// validators for task fields, and text sanitization for user input.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/taskloop/taskloop/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("task_status", validateTaskStatus); err != nil {
		panic(fmt.Sprintf("failed to register task_status validator: %v", err))
	}
	if err := Validate.RegisterValidation("task_priority", validateTaskPriority); err != nil {
		panic(fmt.Sprintf("failed to register task_priority validator: %v", err))
	}
	if err := Validate.RegisterValidation("recurrence_pattern", validateRecurrencePattern); err != nil {
		panic(fmt.Sprintf("failed to register recurrence_pattern validator: %v", err))
	}
}

func validateTaskStatus(fl validator.FieldLevel) bool {
	return ValidateTaskStatus(fl.Field().String()) == nil
}

func validateTaskPriority(fl validator.FieldLevel) bool {
	return ValidateTaskPriority(fl.Field().String()) == nil
}

func validateRecurrencePattern(fl validator.FieldLevel) bool {
	return ValidateRecurrencePattern(fl.Field().String()) == nil
}

// SanitizeText sanitizes text input by trimming whitespace and removing
// control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}
	return sanitized.String()
}

// ValidateTaskStatus validates a TaskStatus string value
func ValidateTaskStatus(value string) error {
	switch models.TaskStatus(value) {
	case models.TaskStatusPending, models.TaskStatusCompleted:
		return nil
	default:
		return fmt.Errorf("invalid status: %s (must be 'pending' or 'completed')", value)
	}
}

// ValidateTaskPriority validates a Priority string value
func ValidateTaskPriority(value string) error {
	switch models.Priority(value) {
	case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
		return nil
	default:
		return fmt.Errorf("invalid priority: %s (must be 'High', 'Medium', or 'Low')", value)
	}
}

// ValidateRecurrencePattern validates a RecurrencePattern string value.
// The empty string means the task does not recur and is valid.
func ValidateRecurrencePattern(value string) error {
	switch models.RecurrencePattern(value) {
	case models.RecurrenceNone, models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly:
		return nil
	default:
		return fmt.Errorf("invalid recurrence_pattern: %s (must be 'daily', 'weekly', or 'monthly')", value)
	}
}

// ValidateSortField validates a list sort field
func ValidateSortField(value string) error {
	switch value {
	case "", "created_at", "updated_at", "due_at", "priority", "title":
		return nil
	default:
		return fmt.Errorf("invalid sort field: %s", value)
	}
}

// ValidateSortOrder validates a list sort direction
func ValidateSortOrder(value string) error {
	switch value {
	case "", "asc", "desc":
		return nil
	default:
		return fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", value)
	}
}
