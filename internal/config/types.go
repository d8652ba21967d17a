package config

import (
	"bytes"
	"encoding/json"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Scheduler controls refresh triggers and the timezone that defines
	// "today" for every sensor.
	Scheduler SchedulerConfig `json:"scheduler"`

	Storage *StorageConfig             `json:"storage,omitempty"`
	Plugins map[string]PluginConfigRaw `json:"plugins"`
}

// TelegramConfig enables the optional operator chat surface.
// An empty Token disables the adapter entirely.
type TelegramConfig struct {
	Token        string  `json:"token,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	GroupLog     string  `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
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
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Timezone is an IANA name, e.g. "Europe/Berlin". Empty means local time.
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig controls entry persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/nthweekday.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type PluginConfigRaw struct {
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON disallows unknown fields so typos in plugin blocks are
// caught on reload instead of silently ignored.
func (p *PluginConfigRaw) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Enabled bool            `json:"enabled"`
		Config  json.RawMessage `json:"config,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*p = PluginConfigRaw{Enabled: t.Enabled, Config: t.Config}
	return nil
}
