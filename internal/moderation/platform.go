package moderation

import "context"

// Platform performs bans on a chat platform. Scope and subject ids are the
// platform's own (chat id / guild id, user id) in decimal form.
//
// Implementations wrap ErrTargetGone for failures that can never succeed.
type Platform interface {
	Name() string
	Ban(ctx context.Context, scopeID, subjectID, reason string) error
	Unban(ctx context.Context, scopeID, subjectID string) error
}
