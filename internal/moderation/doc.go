// Package moderation implements the ban commands shared by every chat
// platform: temporary bans with scheduled lifts, permanent bans, unbans and
// the pending-lift listing. Platforms supply the Platform implementation and
// turn their own updates into Command values for the Dispatcher.
package moderation
