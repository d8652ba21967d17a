package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a schedule string resolved to a cron expression or a fixed
// interval.
//
// Accepted forms:
//   - cron: "5 0 * * *", "0 5 0 * * *" (with seconds), "@daily", "@every 6h"
//   - Go duration: "6h", "90m"
//   - HH:MM interval: "06:00"
//
// A "cron:" or "every:" prefix forces the kind.
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
}

var reHHMM = regexp.MustCompile(`^(\d{1,3}):([0-5]\d)$`)

func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: expr}, nil
	case strings.HasPrefix(low, "every:"):
		d, err := parseInterval(s[len("every:"):])
		if err != nil {
			return ParsedSpec{}, err
		}
		return ParsedSpec{Kind: SpecInterval, Every: d}, nil
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return ParsedSpec{Kind: SpecCron, Cron: s}, nil
	}
	d, err := parseInterval(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid schedule %q (use cron like '5 0 * * *', HH:MM like '06:00', or a duration like '6h')", raw)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d}, nil
}

func parseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("interval required")
	}
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return 0, fmt.Errorf("invalid interval %q", v)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

// ValidateSchedule reports whether raw would be accepted by AddSchedule.
func ValidateSchedule(raw string) (ParsedSpec, error) {
	ps, err := ParseSchedule(raw)
	if err != nil {
		return ps, err
	}
	if ps.Kind == SpecCron {
		if _, err := cronParser.Parse(ps.Cron); err != nil {
			return ps, fmt.Errorf("invalid cron spec %q: %w", ps.Cron, err)
		}
	}
	return ps, nil
}
