package app

import (
	"strconv"
	"strings"
	"time"

	"nthweekday/internal/config"
	"nthweekday/internal/storage"
	"nthweekday/internal/task/scheduler"
	"nthweekday/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, nil
	}
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
	}, nil
}

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
			ThreadID:   cfg.Logging.Chat.ThreadID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: cfg.Scheduler.Timezone}
}

// groupLogChat parses telegram.group_log. An empty or malformed value
// yields 0, which disables the chat log sink.
func groupLogChat(cfg *config.Config) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
