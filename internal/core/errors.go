package core

import (
	"errors"
	"fmt"
)

// ErrEngineStopped is returned to callers waiting on an engine whose loop has exited.
var ErrEngineStopped = errors.New("sync engine stopped")

// TickError is a tick-level failure: the tick could not look at the runtime or
// could not take the tick lock. Per-item failures never produce one.
type TickError struct {
	Stage string
	Cause error
}

func NewTickError(stage string, cause error) *TickError {
	return &TickError{Stage: stage, Cause: cause}
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick failed during %s: %v", e.Stage, e.Cause)
}

func (e *TickError) Unwrap() error {
	return e.Cause
}
