// Package recurrence computes follow-up occurrences for recurring tasks and
// creates them when a completion event arrives.
package recurrence

import (
	"time"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/models"
)

// NextDue computes the due date of the next occurrence. The base is the
// current due date, or now when the task had none. daily adds one day,
// weekly seven; monthly moves to the same day of the next month, clamped to
// its last day (Jan 31 -> Feb 28/29). An unknown pattern logs a warning and
// falls back to one day.
func NextDue(currentDue *time.Time, pattern models.RecurrencePattern, now time.Time, logger *zap.Logger) time.Time {
	base := now
	if currentDue != nil {
		base = *currentDue
	}

	switch pattern {
	case models.RecurrenceDaily:
		return base.AddDate(0, 0, 1)
	case models.RecurrenceWeekly:
		return base.AddDate(0, 0, 7)
	case models.RecurrenceMonthly:
		return addMonthClamped(base)
	default:
		logger.Warn("unknown_recurrence_pattern",
			zap.String("pattern", string(pattern)),
		)
		return base.AddDate(0, 0, 1)
	}
}

// addMonthClamped advances one calendar month. time.AddDate normalizes
// overflow (Jan 31 + 1 month = Mar 3), so the day is clamped by hand.
func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	// Day 0 of the month after next is the last day of the next month.
	lastDay := time.Date(year, month+2, 0, 0, 0, 0, 0, t.Location()).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month+1, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
