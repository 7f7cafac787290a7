package detect

import (
	"errors"
	"fmt"
)

// Sentinel errors for the detection engine
var (
	ErrRuleConflict  = errors.New("rule conflicts with an active rule")
	ErrEngineStopped = errors.New("engine is stopped")
)

// EngineError wraps a failure inside event processing with enough context to
// tell which phase broke.
type EngineError struct {
	Phase   string
	EventID string
	Err     error
}

func (e *EngineError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("engine %s failed for event %s: %v", e.Phase, e.EventID, e.Err)
	}
	return fmt.Sprintf("engine %s failed: %v", e.Phase, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func newEngineError(phase, eventID string, err error) *EngineError {
	return &EngineError{Phase: phase, EventID: eventID, Err: err}
}
