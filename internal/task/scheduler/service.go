package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"nthweekday/pkg/logx"
)

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:    cfg,
		log:    log,
		parser: cronParser,
	}
	s.loc = s.loadLocationLocked()
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Location is the timezone that defines the current date.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Now returns the current time in the scheduler timezone.
func (s *Service) Now() time.Time {
	return time.Now().In(s.Location())
}

// Apply swaps the config. A timezone change restarts cron with every
// registered definition.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if oldTZ == newTZ {
		return
	}
	s.loc = s.loadLocationLocked()
	if s.c != nil {
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.base, s.cancelBase = context.WithCancel(context.WithoutCancel(ctx))
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops triggering and cancels running jobs. Definitions are kept so
// a later Start resumes them.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c, cancel := s.c, s.cancelBase
	s.c = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) restartLocked() {
	<-s.c.Stop().Done()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		s.defs[i].entryID = 0
		_ = s.addCronLocked(&s.defs[i])
	}
	s.c.Start()
	s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
