package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines audit log next to Path
//   - "sqlite": SQLite database file (modernc, no cgo)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// ReadOnly opens an existing store for reading. Nothing is created and
	// AppendAudit fails.
	ReadOnly bool
}

// AuditEntry records one moderation or schedule event.
// Keep it compact and schema-stable.
type AuditEntry struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Event     string    `json:"event"`
	Platform  string    `json:"platform,omitempty"`
	ScopeID   string    `json:"scope_id"`
	SubjectID string    `json:"subject_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	DueAt     time.Time `json:"due_at,omitzero"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
}
