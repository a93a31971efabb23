package tasks

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a task id does not exist under the caller's
// ownership prefix. Not-owned and nonexistent are indistinguishable to the
// caller.
var ErrNotFound = errors.New("task not found")

// ValidationError reports bad input shape or bounds. Surfaced to the caller
// as a 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InfrastructureError wraps a failed store, bus, or scheduler call
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}
