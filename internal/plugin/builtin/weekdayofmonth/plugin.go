// Package weekdayofmonth hosts the "nth weekday of month" sensors: it keeps
// one sensor per stored entry, refreshes them on a schedule and reports
// state changes.
package weekdayofmonth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"nthweekday/internal/configflow"
	"nthweekday/internal/eventbus"
	"nthweekday/internal/plugin"
	"nthweekday/internal/sensor"
	"nthweekday/internal/storage"
	"nthweekday/internal/weekday"
	"nthweekday/pkg/logx"
)

const (
	Name = "weekday_of_month"

	scheduleRefresh  = "refresh"
	scheduleInterval = "interval"

	jobTimeout = 30 * time.Second

	ActionStateChanged = "state_changed"
)

type Plugin struct {
	plugin.Base

	flow  *configflow.Flow
	clock func() time.Time

	mu      sync.RWMutex
	cfg     Config
	reg     *sensor.Registry
	started bool
}

func New() *Plugin {
	return &Plugin{reg: sensor.NewRegistry()}
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Init(ctx context.Context, deps plugin.Deps) error {
	p.InitBase(deps, p.Name())
	p.flow = configflow.New(deps.Store, p.Log)
	p.flow.OnChange(p.onEntryChange)
	return nil
}

func (p *Plugin) ValidateConfig(ctx context.Context, raw json.RawMessage) error {
	cfg, err := plugin.DecodeConfig[Config](raw)
	if err != nil {
		return err
	}
	flow := p.flow
	if flow == nil {
		flow = configflow.New(nil, logx.Nop())
	}
	return cfg.validate(flow)
}

func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	cfg, err := plugin.DecodeConfig[Config](raw)
	if err != nil {
		return err
	}
	if err := cfg.validate(p.flow); err != nil {
		return err
	}
	p.mu.Lock()
	p.cfg = cfg
	started := p.started
	p.mu.Unlock()
	if !started {
		return nil
	}
	if err := p.applySchedules(cfg); err != nil {
		return err
	}
	p.importEntries(ctx, cfg)
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	cfg := p.config()

	p.mu.Lock()
	p.reg = sensor.NewRegistry()
	p.mu.Unlock()

	entries, err := p.flow.List(ctx)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	for _, e := range entries {
		p.ensureSensor(e)
	}
	p.importEntries(ctx, cfg)

	if err := p.applySchedules(cfg); err != nil {
		if !errors.Is(err, plugin.ErrNoScheduler) {
			return err
		}
		p.Log.Warn("no scheduler; sensors refresh on demand only")
	}

	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	_ = p.refresh(ctx)
	p.Log.Info("sensors loaded", logx.Int("count", p.registry().Len()))
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
	p.Unschedule(scheduleRefresh)
	p.Unschedule(scheduleInterval)
	return p.StopBase(ctx)
}

// Sensors returns a snapshot of every sensor, ordered by name.
func (p *Plugin) Sensors() []sensor.State {
	list := p.registry().List()
	out := make([]sensor.State, 0, len(list))
	for _, s := range list {
		out = append(out, s.State())
	}
	return out
}

// Flow is the entry config flow backing the sensors.
func (p *Plugin) Flow() *configflow.Flow { return p.flow }

func (p *Plugin) now() time.Time {
	if p.clock != nil {
		return p.clock()
	}
	return p.Now()
}

func (p *Plugin) config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

func (p *Plugin) registry() *sensor.Registry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reg
}

func (p *Plugin) applySchedules(cfg Config) error {
	if err := p.Schedule(scheduleRefresh, cfg.refresh(), jobTimeout, p.refresh); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	if strings.TrimSpace(cfg.Interval) == "" {
		p.Unschedule(scheduleInterval)
		return nil
	}
	if err := p.Schedule(scheduleInterval, cfg.Interval, jobTimeout, p.refresh); err != nil {
		return fmt.Errorf("schedule interval: %w", err)
	}
	return nil
}

// importEntries syncs the entries declared in config with the store.
// Invalid declarations are logged and skipped.
func (p *Plugin) importEntries(ctx context.Context, cfg Config) {
	changes, err := p.flow.Import(ctx, cfg.Entries)
	if err != nil {
		p.Log.Warn("entry import incomplete", logx.Err(err))
	}
	if len(changes) > 0 {
		p.Log.Info("entries imported", logx.Int("changes", len(changes)))
	}
}

func sensorConfig(e configflow.Entry) sensor.Config {
	return sensor.Config{
		EntryID:    e.ID,
		Name:       e.Name,
		Weekdays:   e.Weekdays,
		NthWeekday: e.NthWeekday,
	}
}

// ensureSensor adds a sensor for e unless one exists already.
func (p *Plugin) ensureSensor(e configflow.Entry) *sensor.BinarySensor {
	reg := p.registry()
	if s, ok := reg.Get(e.ID); ok {
		return s
	}
	s := sensor.New(sensorConfig(e))
	reg.Add(s)
	return s
}

func (p *Plugin) onEntryChange(ctx context.Context, c configflow.Change) {
	data := eventbus.EntryChange{EntryID: c.Entry.ID, Name: c.Entry.Name, ActorID: c.ActorID}
	switch c.Kind {
	case configflow.Created:
		p.evaluate(ctx, p.ensureSensor(c.Entry))
		p.Publish(eventbus.TypeEntryCreated, data)
	case configflow.Updated:
		s, ok := p.registry().Get(c.Entry.ID)
		if ok {
			s.Reconfigure(sensorConfig(c.Entry))
		} else {
			s = p.ensureSensor(c.Entry)
		}
		p.evaluate(ctx, s)
		p.Publish(eventbus.TypeEntryUpdated, data)
	case configflow.Removed:
		p.registry().Remove(c.Entry.ID)
		p.Publish(eventbus.TypeEntryRemoved, data)
	}
}

func (p *Plugin) evaluate(ctx context.Context, s *sensor.BinarySensor) {
	if s.Update(p.now()) {
		p.report(ctx, s.State())
	}
}

// refresh is the scheduled job: every sensor is re-evaluated for today.
func (p *Plugin) refresh(ctx context.Context) error {
	now := p.now()
	changed := p.registry().UpdateAll(now)
	for _, st := range changed {
		p.report(ctx, st)
	}
	if p.Log.Enabled(logx.LevelDebug) {
		p.Log.Debug("sensors refreshed", logx.Date("date", now), logx.Int("changed", len(changed)))
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func (p *Plugin) report(ctx context.Context, st sensor.State) {
	p.Log.Info("sensor state changed",
		logx.String("entry_id", st.EntryID),
		logx.String("name", st.Name),
		logx.String("state", onOff(st.IsOn)),
	)
	p.Publish(eventbus.TypeSensorStateChange, eventbus.StateChange{
		EntryID: st.EntryID,
		Name:    st.Name,
		Date:    st.LastChanged,
		IsOn:    st.IsOn,
	})
	err := p.AppendAudit(ctx, storage.AuditEntry{
		At:      st.LastChanged,
		Domain:  configflow.Domain,
		EntryID: st.EntryID,
		Action:  ActionStateChanged,
		Detail:  onOff(st.IsOn),
	})
	if err != nil && !errors.Is(err, storage.ErrClosed) {
		p.Log.Warn("audit append failed", logx.String("entry_id", st.EntryID), logx.Err(err))
	}

	target := p.config().notifyTarget()
	if !st.IsOn || target.IsZero() {
		return
	}
	text := fmt.Sprintf("%s: today is the %s", st.Name, describeRule(st))
	if err := p.Notify(ctx, target, text); err != nil && !errors.Is(err, plugin.ErrNoSender) {
		p.Log.Warn("notify failed", logx.String("entry_id", st.EntryID), logx.Err(err))
	}
}

// describeRule renders the sensor rule, e.g. "last sat or 2nd sat".
func describeRule(st sensor.State) string {
	days, _ := st.Attributes[sensor.AttrWeekdays].([]string)
	ords, _ := st.Attributes[sensor.AttrNthWeekday].([]string)
	return describe(days, ords)
}

func describe(days, ords []string) string {
	parts := make([]string, 0, len(days)*len(ords))
	for _, raw := range ords {
		o, err := weekday.ParseOrdinal(raw)
		if err != nil {
			continue
		}
		for _, d := range days {
			parts = append(parts, weekday.Describe(o, d))
		}
	}
	if len(parts) == 0 {
		return "(no valid rule)"
	}
	return strings.Join(parts, " or ")
}
