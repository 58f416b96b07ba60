package config

import (
	"hash/fnv"
	"reflect"
	"sort"
	"strings"

	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, safe structured attrs
// for logging (tokens are never included), and the sections whose change
// only takes effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if oldCfg.Platform != newCfg.Platform {
		changed = append(changed, "platform")
		restart = append(restart, "platform")
		attrs = append(attrs, logx.String("platform", newCfg.Platform))
	}

	// Owners and the log chat apply live; the token does not.
	if !reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
		if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
			strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
			restart = append(restart, "telegram")
		}
	}

	if oldCfg.Discord != newCfg.Discord {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.guild_scoped", strings.TrimSpace(newCfg.Discord.GuildID) != ""),
			logx.Bool("discord.log_channel_set", strings.TrimSpace(newCfg.Discord.LogChannelID) != ""),
		)
		o, n := oldCfg.Discord, newCfg.Discord
		o.LogChannelID, n.LogChannelID = "", ""
		o.Prefix, n.Prefix = "", ""
		if o != n {
			restart = append(restart, "discord")
		}
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.min_delay", strings.TrimSpace(newCfg.Schedule.MinDelay)),
			logx.String("schedule.status_report", strings.TrimSpace(newCfg.Schedule.StatusReport)),
		)
		o, n := oldCfg.Schedule, newCfg.Schedule
		o.StatusReport, n.StatusReport = "", ""
		if o != n {
			restart = append(restart, "schedule")
		}
	}

	if oldCfg.StorageDriver() != newCfg.StorageDriver() || !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.StorageDriver()))
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		restart = append(restart, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.MetricsAddr()),
		)
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
