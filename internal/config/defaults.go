package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultStatePath        = "./data/tempbans.json"
	DefaultReconcileWorkers = 4
	DefaultMetricsAddr      = "127.0.0.1:9107"
	DefaultPrefix           = "?"
	DefaultPollTimeout      = 10 * time.Second
	DefaultBusyTimeout      = 5 * time.Second
)

// ApplyEnv fills settings that are empty in the file from environment variables:
// TOKEN (token of the selected platform), CLIENT_ID, GUILD_ID and PREFIX.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil || getenv == nil {
		return
	}
	env := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if strings.TrimSpace(cfg.Platform) == "" {
		cfg.Platform = PlatformDiscord
	}
	cfg.Platform = strings.ToLower(strings.TrimSpace(cfg.Platform))

	if tok := env("TOKEN"); tok != "" {
		switch cfg.Platform {
		case PlatformTelegram:
			if cfg.Telegram.Token == "" {
				cfg.Telegram.Token = tok
			}
		default:
			if cfg.Discord.Token == "" {
				cfg.Discord.Token = tok
			}
		}
	}
	if v := env("CLIENT_ID"); v != "" && cfg.Discord.ApplicationID == "" {
		cfg.Discord.ApplicationID = v
	}
	if v := env("GUILD_ID"); v != "" && cfg.Discord.GuildID == "" {
		cfg.Discord.GuildID = v
	}
	if v := env("PREFIX"); v != "" && cfg.Discord.Prefix == "" {
		cfg.Discord.Prefix = v
	}
	if cfg.Discord.Prefix == "" {
		cfg.Discord.Prefix = DefaultPrefix
	}
}

// ScheduleSettings is ScheduleConfig with defaults applied and durations parsed.
type ScheduleSettings struct {
	StatePath        string
	MinDelay         time.Duration
	ReconcileWorkers int
	StatusReport     string
}

func (c *Config) ScheduleSettings() (ScheduleSettings, error) {
	s := ScheduleSettings{
		StatePath:        strings.TrimSpace(c.Schedule.StatePath),
		ReconcileWorkers: c.Schedule.ReconcileWorkers,
		StatusReport:     strings.TrimSpace(c.Schedule.StatusReport),
	}
	if s.StatePath == "" {
		s.StatePath = DefaultStatePath
	}
	if s.ReconcileWorkers <= 0 {
		s.ReconcileWorkers = DefaultReconcileWorkers
	}
	d, err := ParseDurationField("schedule.min_delay", c.Schedule.MinDelay)
	if err != nil {
		return ScheduleSettings{}, err
	}
	s.MinDelay = d
	return s, nil
}

// StorageDriver returns the normalized audit driver ("none" when unset).
func (c *Config) StorageDriver() string {
	if c.Storage == nil {
		return "none"
	}
	d := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if d == "" {
		return "none"
	}
	return d
}

func (c *Config) MetricsAddr() string {
	if a := strings.TrimSpace(c.Metrics.Addr); a != "" {
		return a
	}
	return DefaultMetricsAddr
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.Platform {
	case PlatformTelegram:
		if strings.TrimSpace(c.Telegram.Token) == "" {
			add("telegram.token is required (or set TOKEN)")
		}
		if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
			errs = append(errs, err)
		}
	case PlatformDiscord:
		if strings.TrimSpace(c.Discord.Token) == "" {
			add("discord.token is required (or set TOKEN)")
		}
	default:
		add("platform: unknown value %q (want telegram or discord)", c.Platform)
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level: unknown level %q", c.Logging.Level)
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		add("logging.file.path is required when logging.file.enabled")
	}
	if c.Logging.Chat.RatePerSec < 0 {
		add("logging.chat.rate_per_sec must be >= 0")
	}

	if c.Schedule.ReconcileWorkers < 0 {
		add("schedule.reconcile_workers must be >= 0")
	}
	if _, err := ParseDurationField("schedule.min_delay", c.Schedule.MinDelay); err != nil {
		errs = append(errs, err)
	}
	if spec := strings.TrimSpace(c.Schedule.StatusReport); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			add("schedule.status_report: %w", err)
		}
	}

	switch c.StorageDriver() {
	case "none":
	case "file", "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add("storage.path is required for driver %q", c.StorageDriver())
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	default:
		add("storage.driver: unknown driver %q (want none, file or sqlite)", c.Storage.Driver)
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.MetricsAddr()); err != nil {
			add("metrics.addr: %w", err)
		}
	}
	return errors.Join(errs...)
}
