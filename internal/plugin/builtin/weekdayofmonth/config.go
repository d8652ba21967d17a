package weekdayofmonth

import (
	"errors"
	"fmt"
	"strings"

	"nthweekday/internal/configflow"
	"nthweekday/internal/task/scheduler"
	"nthweekday/internal/transport"
)

const defaultRefresh = "5 0 * * *"

// Config is the plugin block under plugins.weekday_of_month.config.
type Config struct {
	// Refresh is the cron (or interval) that re-evaluates every sensor.
	// Default "5 0 * * *": five past midnight in the host timezone.
	Refresh string `json:"refresh,omitempty"`
	// Interval is an optional extra poll, e.g. "1h".
	Interval string `json:"interval,omitempty"`

	NotifyChatID   int64 `json:"notify_chat_id,omitempty"`
	NotifyThreadID int   `json:"notify_thread_id,omitempty"`

	Entries []configflow.UserInput `json:"entries,omitempty"`
}

func (c Config) refresh() string {
	if s := strings.TrimSpace(c.Refresh); s != "" {
		return s
	}
	return defaultRefresh
}

func (c Config) notifyTarget() transport.ChatTarget {
	return transport.ChatTarget{ChatID: c.NotifyChatID, ThreadID: c.NotifyThreadID}
}

func (c Config) validate(flow *configflow.Flow) error {
	var errs []error
	if _, err := scheduler.ValidateSchedule(c.refresh()); err != nil {
		errs = append(errs, fmt.Errorf("refresh: %w", err))
	}
	if strings.TrimSpace(c.Interval) != "" {
		ps, err := scheduler.ValidateSchedule(c.Interval)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("interval: %w", err))
		case ps.Kind != scheduler.SpecInterval:
			errs = append(errs, fmt.Errorf("interval: %q is not a duration", c.Interval))
		}
	}
	if c.NotifyThreadID != 0 && c.NotifyChatID == 0 {
		errs = append(errs, errors.New("notify_thread_id requires notify_chat_id"))
	}
	names := map[string]struct{}{}
	for i, e := range c.Entries {
		if strings.TrimSpace(e.Name) == "" {
			e.Name = fmt.Sprintf("%s %d", configflow.DefaultName, i+1)
		}
		in, err := flow.ValidateInput(e)
		if err != nil {
			errs = append(errs, fmt.Errorf("entries[%d]: %w", i, err))
			continue
		}
		if _, dup := names[in.Name]; dup {
			errs = append(errs, fmt.Errorf("entries[%d]: duplicate name %q", i, in.Name))
		}
		names[in.Name] = struct{}{}
	}
	return errors.Join(errs...)
}
