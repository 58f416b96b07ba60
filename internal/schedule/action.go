package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Kind tags what a scheduled action does when it fires.
type Kind string

const (
	// KindLiftRestriction reverses a temporary restriction (temp-ban → unban).
	KindLiftRestriction Kind = "lift_restriction"
)

func (k Kind) Valid() bool {
	switch k {
	case KindLiftRestriction:
		return true
	default:
		return false
	}
}

// Key identifies the (scope, subject) pair. At most one action is pending per key.
type Key struct {
	ScopeID   string
	SubjectID string
}

func (k Key) String() string { return k.ScopeID + "/" + k.SubjectID }

// ScheduledAction is a single pending action.
type ScheduledAction struct {
	ScopeID   string
	SubjectID string
	DueAt     time.Time
	Kind      Kind
}

func (a ScheduledAction) Key() Key { return Key{ScopeID: a.ScopeID, SubjectID: a.SubjectID} }

// Equal compares actions at the persisted (millisecond) resolution.
func (a ScheduledAction) Equal(b ScheduledAction) bool {
	return a.ScopeID == b.ScopeID &&
		a.SubjectID == b.SubjectID &&
		a.Kind == b.Kind &&
		a.DueAt.UnixMilli() == b.DueAt.UnixMilli()
}

// Validate reports whether the action is well-formed.
func (a ScheduledAction) Validate() error {
	if strings.TrimSpace(a.ScopeID) == "" {
		return fmt.Errorf("%w: scope id is empty", ErrInvalidAction)
	}
	if strings.TrimSpace(a.SubjectID) == "" {
		return fmt.Errorf("%w: subject id is empty", ErrInvalidAction)
	}
	if a.DueAt.IsZero() || a.DueAt.UnixMilli() <= 0 {
		return fmt.Errorf("%w: due time is not set", ErrInvalidAction)
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, a.Kind)
	}
	return nil
}

// normalized trims ids and truncates the due time to milliseconds so the
// in-memory value matches what a round trip through the store produces.
func (a ScheduledAction) normalized() ScheduledAction {
	a.ScopeID = strings.TrimSpace(a.ScopeID)
	a.SubjectID = strings.TrimSpace(a.SubjectID)
	if !a.DueAt.IsZero() {
		a.DueAt = time.UnixMilli(a.DueAt.UnixMilli())
	}
	return a
}
