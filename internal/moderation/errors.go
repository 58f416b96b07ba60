package moderation

import "errors"

var (
	// ErrTargetGone marks a permanent platform failure: the scope or the subject
	// no longer exists, or the subject is not banned. Platforms wrap it so logs
	// and audit entries can tell it apart from transient failures.
	ErrTargetGone = errors.New("target gone")
	// ErrBadInput marks a user input problem; its text is safe to show in chat.
	ErrBadInput = errors.New("bad input")
	// ErrForbidden is returned when the caller lacks the ban permission.
	ErrForbidden = errors.New("permission denied")
)
