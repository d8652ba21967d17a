// Package sensor holds the binary "nth weekday of month" sensors.
package sensor

import (
	"slices"
	"sync"
	"time"

	"nthweekday/internal/weekday"
)

const (
	AttrWeekdays   = "weekdays"
	AttrNthWeekday = "nth_weekday"
	AttrNextMatch  = "next_match"

	dateLayout = "2006-01-02"

	// nextMatchHorizon bounds the search for the next matching date.
	nextMatchHorizon = 14 // months
)

type Config struct {
	EntryID    string
	Name       string
	Weekdays   []string
	NthWeekday []string
}

// State is a point-in-time copy of a sensor.
type State struct {
	EntryID      string
	Name         string
	IsOn         bool
	Attributes   map[string]any
	EvaluatedFor string // YYYY-MM-DD, empty before the first update
	LastChanged  time.Time
}

// BinarySensor is on while the current date matches its rule. It starts
// on and is re-evaluated at most once per calendar date.
type BinarySensor struct {
	mu sync.RWMutex

	cfg      Config
	ordinals []weekday.Ordinal

	isOn         bool
	evaluatedFor string
	lastChanged  time.Time
	nextMatch    string
}

func New(cfg Config) *BinarySensor {
	s := &BinarySensor{isOn: true}
	s.setConfig(cfg)
	return s
}

func (s *BinarySensor) setConfig(cfg Config) {
	cfg.Weekdays = slices.Clone(cfg.Weekdays)
	cfg.NthWeekday = slices.Clone(cfg.NthWeekday)
	ords := make([]weekday.Ordinal, 0, len(cfg.NthWeekday))
	for _, raw := range cfg.NthWeekday {
		// unparseable ordinals never match
		if n, err := weekday.ParseOrdinal(raw); err == nil {
			ords = append(ords, n)
		}
	}
	s.cfg = cfg
	s.ordinals = ords
}

func (s *BinarySensor) UniqueID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.EntryID
}

func (s *BinarySensor) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Name
}

func (s *BinarySensor) IsOn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOn
}

// Reconfigure swaps the rule. The next Update re-evaluates even on a date
// that was already evaluated.
func (s *BinarySensor) Reconfigure(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.EntryID = s.cfg.EntryID
	s.setConfig(cfg)
	s.evaluatedFor = ""
}

// Update evaluates the rule for the calendar date of now (in now's
// location) and reports whether the state changed.
func (s *BinarySensor) Update(now time.Time) bool {
	key := now.Format(dateLayout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.evaluatedFor {
		return false
	}
	s.evaluatedFor = key

	on := weekday.Matches(s.cfg.Weekdays, s.ordinals, now)
	s.nextMatch = ""
	if next, ok := weekday.Next(s.cfg.Weekdays, s.ordinals, now, nextMatchHorizon); ok {
		s.nextMatch = next.Format(dateLayout)
	}
	if on == s.isOn {
		return false
	}
	s.isOn = on
	s.lastChanged = now
	return true
}

func (s *BinarySensor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attrs := map[string]any{
		AttrWeekdays:   slices.Clone(s.cfg.Weekdays),
		AttrNthWeekday: slices.Clone(s.cfg.NthWeekday),
	}
	if s.nextMatch != "" {
		attrs[AttrNextMatch] = s.nextMatch
	}
	return State{
		EntryID:      s.cfg.EntryID,
		Name:         s.cfg.Name,
		IsOn:         s.isOn,
		Attributes:   attrs,
		EvaluatedFor: s.evaluatedFor,
		LastChanged:  s.lastChanged,
	}
}
