package app

import (
	"strings"
	"time"

	"github.com/viresathorn804-oss/discord-bot5/internal/config"
	"github.com/viresathorn804-oss/discord-bot5/internal/observability/metrics"
	"github.com/viresathorn804-oss/discord-bot5/internal/transport"
	"github.com/viresathorn804-oss/discord-bot5/internal/transport/discord"
	"github.com/viresathorn804-oss/discord-bot5/internal/transport/telegram"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

// logTarget is where forwarded log lines go on the selected platform.
func logTarget(cfg *config.Config) string {
	if cfg.Platform == config.PlatformTelegram {
		return strings.TrimSpace(cfg.Telegram.GroupLog)
	}
	return strings.TrimSpace(cfg.Discord.LogChannelID)
}

func newAdapter(cfg *config.Config, log logx.Logger) (transport.Adapter, error) {
	switch cfg.Platform {
	case config.PlatformTelegram:
		poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, config.DefaultPollTimeout)
		if err != nil {
			return nil, err
		}
		ad, err := telegram.New(telegram.Config{
			Token:        cfg.Telegram.Token,
			PollTimeout:  poll,
			OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
		}, log)
		if err != nil {
			return nil, err
		}
		return ad, nil
	default:
		ad, err := discord.New(discord.Config{
			Token:         cfg.Discord.Token,
			ApplicationID: cfg.Discord.ApplicationID,
			GuildID:       cfg.Discord.GuildID,
			Prefix:        cfg.Discord.Prefix,
		}, log)
		if err != nil {
			return nil, err
		}
		return ad, nil
	}
}

func mapMetricsConfig(cfg *config.Config) metrics.Config {
	return metrics.Config{
		Addr:  cfg.MetricsAddr(),
		Pprof: cfg.Metrics.Pprof,
	}
}

// applyLive pushes the settings that can change without a restart into the
// adapter.
func applyLive(ad transport.Adapter, cfg *config.Config) {
	if o, ok := ad.(interface{ SetOwners([]int64) }); ok {
		o.SetOwners(cfg.Telegram.OwnerUserIDs)
	}
	if p, ok := ad.(interface{ SetPrefix(string) }); ok {
		p.SetPrefix(cfg.Discord.Prefix)
	}
}

const commandTimeout = 45 * time.Second
