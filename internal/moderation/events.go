package moderation

import "time"

const (
	EventTempBan = "moderation.tempban"
	EventBan     = "moderation.ban"
	EventUnban   = "moderation.unban"
)

type EventData struct {
	Platform  string
	ScopeID   string
	SubjectID string
	ActorID   string
	DueAt     time.Time
	OK        bool
	Err       string
}
