package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/taskloop/taskloop/internal/models"
)

// MemoryScheduler implements Scheduler with in-process timers. Jobs do not
// survive a restart; it backs tests and single-node standalone deployments.
type MemoryScheduler struct {
	fire FireFunc

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewMemoryScheduler creates a scheduler that invokes fire when jobs come due
func NewMemoryScheduler(fire FireFunc) *MemoryScheduler {
	return &MemoryScheduler{
		fire:   fire,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms a timer for the key, replacing any existing one
func (s *MemoryScheduler) Schedule(ctx context.Context, key JobKey, fireAt time.Time, payload models.ReminderEventData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	if t, ok := s.timers[k]; ok {
		t.Stop()
	}

	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}
	s.timers[k] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, k)
		s.mu.Unlock()
		_ = s.fire(context.Background(), payload)
	})
	return nil
}

// Cancel stops the timer for the key, if one is armed
func (s *MemoryScheduler) Cancel(ctx context.Context, key JobKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	if t, ok := s.timers[k]; ok {
		t.Stop()
		delete(s.timers, k)
	}
	return nil
}

// Pending reports whether a job is armed for the key. Used by tests.
func (s *MemoryScheduler) Pending(key JobKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key.String()]
	return ok
}

// PendingCount returns the number of armed jobs. Used by tests.
func (s *MemoryScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close stops all armed timers
func (s *MemoryScheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.timers {
		t.Stop()
		delete(s.timers, k)
	}
	return nil
}
