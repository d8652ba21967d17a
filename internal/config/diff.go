package config

import (
	"reflect"
	"sort"
	"strings"

	"nthweekday/pkg/logx"
)

// SummarizeChange returns the changed top-level sections, log fields that
// are safe to print (never the bot token), and the names of plugins whose
// enable flag or config changed.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) ||
		(strings.TrimSpace(ot.Token) == "") != (strings.TrimSpace(nt.Token) == "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(nt.Token) != ""),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if oldCfg.Scheduler.Enabled != newCfg.Scheduler.Enabled ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	var oldS, newS StorageConfig
	if oldCfg.Storage != nil {
		oldS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		newS = *newCfg.Storage
	}
	if strings.TrimSpace(oldS.Driver) != strings.TrimSpace(newS.Driver) ||
		strings.TrimSpace(oldS.Path) != strings.TrimSpace(newS.Path) ||
		strings.TrimSpace(oldS.BusyTimeout) != strings.TrimSpace(newS.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
		)
	}

	plugins := diffPlugins(oldCfg.Plugins, newCfg.Plugins)
	if len(plugins) > 0 {
		changed = append(changed, "plugins")
		attrs = append(attrs, logx.Strs("plugins.changed", plugins))
	}

	sort.Strings(changed)
	return changed, attrs, plugins
}

func diffPlugins(oldM, newM map[string]PluginConfigRaw) []string {
	names := map[string]struct{}{}
	for k := range oldM {
		names[k] = struct{}{}
	}
	for k := range newM {
		names[k] = struct{}{}
	}
	out := make([]string, 0, len(names))
	for name := range names {
		o, n := oldM[name], newM[name]
		if o.Enabled != n.Enabled || HashRaw(o.Config) != HashRaw(n.Config) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
