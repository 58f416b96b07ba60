// Package logx is the bot's structured logging: a small Logger value on top
// of zerolog plus a Service that owns the outputs.
//
// Outputs are a readable console, a JSON file and an optional chat sink that
// forwards warnings to the moderation log channel. Service.Apply swaps them
// at runtime.
package logx
