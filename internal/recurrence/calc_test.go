package recurrence

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/models"
)

func ts(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func TestNextDue(t *testing.T) {
	now := ts(2026, 2, 1, 9)

	tests := []struct {
		name    string
		current *time.Time
		pattern models.RecurrencePattern
		want    time.Time
	}{
		{
			name:    "daily",
			current: timePtr(ts(2026, 2, 10, 17)),
			pattern: models.RecurrenceDaily,
			want:    ts(2026, 2, 11, 17),
		},
		{
			name:    "weekly",
			current: timePtr(ts(2026, 2, 10, 17)),
			pattern: models.RecurrenceWeekly,
			want:    ts(2026, 2, 17, 17),
		},
		{
			name:    "monthly mid-month",
			current: timePtr(ts(2026, 3, 15, 8)),
			pattern: models.RecurrenceMonthly,
			want:    ts(2026, 4, 15, 8),
		},
		{
			name:    "monthly jan 31 clamps to feb 28",
			current: timePtr(ts(2026, 1, 31, 12)),
			pattern: models.RecurrenceMonthly,
			want:    ts(2026, 2, 28, 12),
		},
		{
			name:    "monthly jan 31 leap year clamps to feb 29",
			current: timePtr(ts(2028, 1, 31, 12)),
			pattern: models.RecurrenceMonthly,
			want:    ts(2028, 2, 29, 12),
		},
		{
			name:    "monthly dec 31 wraps to jan 31",
			current: timePtr(ts(2026, 12, 31, 6)),
			pattern: models.RecurrenceMonthly,
			want:    ts(2027, 1, 31, 6),
		},
		{
			name:    "null due falls back to now",
			current: nil,
			pattern: models.RecurrenceDaily,
			want:    now.AddDate(0, 0, 1),
		},
		{
			name:    "unknown pattern defaults to one day",
			current: timePtr(ts(2026, 2, 10, 17)),
			pattern: "fortnightly",
			want:    ts(2026, 2, 11, 17),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextDue(tt.current, tt.pattern, now, zap.NewNop())
			if !got.Equal(tt.want) {
				t.Errorf("NextDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextDueMonthlyOnJan31DoesNotNormalize(t *testing.T) {
	got := NextDue(timePtr(ts(2026, 1, 31, 0)), models.RecurrenceMonthly, time.Now(), zap.NewNop())
	if got.Month() != time.February {
		t.Errorf("month = %v, want February (got %v)", got.Month(), got)
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
