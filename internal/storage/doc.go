// Package storage keeps the audit log of moderation and schedule events.
//
// Drivers: "file" (JSON Lines) and "sqlite". The durable lift schedule itself
// lives in internal/schedule and never goes through this package.
package storage
