package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"nthweekday/pkg/logx"
)

// AddSchedule parses schedule (see ParseSchedule) and registers a cron or
// interval trigger under name.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, timeout, job)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, timeout, job)
	default:
		return fmt.Errorf("unsupported schedule kind")
	}
}

// AddCron upserts a cron trigger by name.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return s.add(name, spec, timeout, job)
}

func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job) error {
	if every <= 0 {
		return errors.New("interval must be > 0")
	}
	return s.add(name, "@every "+every.String(), timeout, job)
}

func (s *Service) add(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// upsert so hot reloads never duplicate a trigger
	s.removeLocked(name)
	s.defs = append(s.defs, scheduleDef{
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
		running: &atomic.Bool{},
	})
	if s.c == nil {
		return nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		return err
	}
	fields := []logx.Field{logx.String("name", name), logx.String("spec", spec)}
	if next := s.previewNextRunsLocked(spec, 3); next != "" {
		fields = append(fields, logx.String("next", next))
	}
	s.log.Debug("schedule registered", fields...)
	return nil
}

// Remove unschedules name. It reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// Schedules lists registered triggers with their next and previous fire
// times (zero when the scheduler is stopped).
func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		info := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	def := *d
	base := s.base
	eid, err := s.c.AddJob(d.spec, cron.FuncJob(func() { s.run(base, def) }))
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}

func (s *Service) run(base context.Context, d scheduleDef) {
	if !d.running.CompareAndSwap(false, true) {
		s.log.Debug("schedule skipped; previous run still active", logx.String("name", d.name))
		return
	}
	defer d.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("schedule panicked", logx.String("name", d.name), logx.Panic(r))
		}
	}()

	ctx := base
	if ctx == nil {
		ctx = context.Background()
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	start := time.Now()
	if err := d.job(ctx); err != nil {
		s.log.Warn("schedule failed", logx.String("name", d.name), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("schedule done", logx.String("name", d.name), logx.Duration("took", time.Since(start)))
}

// previewNextRunsLocked renders the next n fire times for debug logs.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(s.loc)
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		parts = append(parts, t.Format("2006-01-02 15:04:05"))
	}
	return strings.Join(parts, ", ")
}
