package schedule

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by Service.Enqueue/Cancel before Reconcile has run.
	ErrNotReady = errors.New("schedule: not reconciled yet")
	// ErrInvalidAction marks a malformed ScheduledAction.
	ErrInvalidAction = errors.New("schedule: invalid action")
)

// IOError is a durable store read or write failure.
type IOError struct {
	Op   string // "load", "save", "quarantine"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("schedule store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// CorruptStateError means the durable record exists but is not well-formed.
// Its content is never guessed at.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("schedule store %s: corrupt state: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// ExecutionError means the executor failed to perform the side effect.
// The action is still removed; nothing is retried.
type ExecutionError struct {
	Action ScheduledAction
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s for %s: %v", e.Action.Kind, e.Action.Key(), e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
