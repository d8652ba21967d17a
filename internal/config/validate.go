package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDuration parses an optional Go duration string. Empty means 0.
// path names the config key in error messages.
func ParseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDuration with def used for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDuration(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Location resolves scheduler.timezone; empty means time.Local.
func (c SchedulerConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

// Validate checks the global sections. Plugin blocks are validated by
// their plugins.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := cfg.Scheduler.Location(); err != nil {
		return err
	}
	if cfg.Logging.Chat.RatePerSec < 0 {
		return fmt.Errorf("logging.chat.rate_per_sec must be >= 0")
	}
	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("storage.path is required for driver %q", s.Driver)
			}
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
		}
		if _, err := ParseDuration("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
