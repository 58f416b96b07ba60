package config

// Config is the whole bot configuration. The file may be JSON or YAML; unknown
// keys are rejected in both.
type Config struct {
	// Platform selects the chat adapter: "telegram" or "discord".
	Platform string         `json:"platform"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Logging  LoggingConfig  `json:"logging"`
	Schedule ScheduleConfig `json:"schedule"`

	// Storage holds the audit log. Nil or driver "none" disables it.
	Storage *StorageConfig `json:"storage,omitempty"`
	Metrics MetricsConfig  `json:"metrics"`
}

const (
	PlatformTelegram = "telegram"
	PlatformDiscord  = "discord"
)

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id that receives WARN+ log lines when logging.chat is enabled.
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type DiscordConfig struct {
	Token         string `json:"token"`
	ApplicationID string `json:"application_id"`
	// GuildID registers slash commands for one guild (instant) instead of globally.
	GuildID      string `json:"guild_id,omitempty"`
	LogChannelID string `json:"log_channel_id,omitempty"`
	// Prefix enables text commands such as "?tempbans". Empty disables them.
	Prefix string `json:"prefix,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ScheduleConfig controls the durable lift schedule.
//
// Defaults:
//   - state_path: "./data/tempbans.json"
//   - min_delay: "0s" (past due times fire immediately)
//   - reconcile_workers: 4
//   - status_report: "" (disabled), otherwise a cron spec such as "@every 30m"
type ScheduleConfig struct {
	StatePath        string `json:"state_path"`
	MinDelay         string `json:"min_delay,omitempty"`
	ReconcileWorkers int    `json:"reconcile_workers,omitempty"`
	StatusReport     string `json:"status_report,omitempty"`
}

// StorageConfig controls the audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/audit.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// MetricsConfig controls the Prometheus /metrics and /healthz listener.
// Prefer a loopback address.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9107"
	// Pprof mounts /debug/pprof/ on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}
