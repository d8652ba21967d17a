// Package app wires config, storage, scheduling, plugins and the optional
// chat transport into one process and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"nthweekday/internal/config"
	"nthweekday/internal/eventbus"
	"nthweekday/internal/plugin"
	"nthweekday/internal/runtime/supervisor"
	"nthweekday/internal/storage"
	"nthweekday/internal/task/scheduler"
	"nthweekday/internal/transport"
	telegram "nthweekday/internal/transport/telegram/adapter"
	"nthweekday/internal/transport/telegram/router"
	"nthweekday/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	sched *scheduler.Service

	// adapter is nil when telegram.token is empty
	adapter *telegram.Adapter
	router  *router.Router
	pm      *plugin.Manager

	messages chan transport.Message
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	var (
		ad     *telegram.Adapter
		sender transport.Sender
	)
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		ad, err = telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
		}, logx.NewConsole("info"))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = ad
	}

	// The chat sink warns when enabled without a target, so the target is
	// set before the final Apply.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Chat.Enabled = false
	logSvc, root := logx.New(bootCfg, sender)
	logSvc.SetChatTarget(groupLogChat(cfg), cfg.Logging.Chat.ThreadID)
	logSvc.Apply(logCfg)
	log := root.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if sc.Driver != "" && sc.Driver != "none" {
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	bus := eventbus.New()
	sched := scheduler.New(mapSchedulerConfig(cfg), root.With(logx.String("comp", "scheduler")))

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		sched:    sched,
		adapter:  ad,
		router:   router.New(root.With(logx.String("comp", "commands")), sender, cfg.Telegram.OwnerUserIDs),
		messages: make(chan transport.Message, 256),
	}
	a.pm = plugin.NewManager(root.With(logx.String("comp", "plugins")), plugin.Deps{
		Logger:    root,
		Sender:    sender,
		Bus:       bus,
		Store:     store,
		Scheduler: sched,
		Status:    func() []plugin.Status { return a.pm.Status() },
	}, a.publishCommands)
	return a, nil
}

func (a *App) Plugins() *plugin.Manager { return a.pm }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Router dispatches chat commands. It exists even without a transport so
// commands can be driven locally.
func (a *App) Router() *router.Router { return a.router }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	// transactional reload: validate before commit
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	if a.sched.Enabled() {
		a.sched.Start(run)
	}
	a.pm.Apply(run, a.cfgm.Get())

	if a.adapter != nil {
		if err := a.adapter.Start(run, a.messages); err != nil {
			return err
		}
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.router.DispatchLoop(c, a.messages)
		})
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		applied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(c, applied, next)
				applied = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Bool("telegram", a.adapter != nil), logx.Bool("scheduler", a.sched.Enabled()))
	return nil
}

func (a *App) validate(ctx context.Context, cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return a.pm.ValidateConfig(ctx, cfg)
}

// applyConfig pushes a committed config to every live component.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs, plugins := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.Strs("plugins", plugins)}, attrs...)...)

	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if (strings.TrimSpace(prev.Telegram.Token) == "") != (strings.TrimSpace(next.Telegram.Token) == "") {
		a.log.Warn("telegram token changed; restart required for changes to take effect")
	}

	a.logs.SetChatTarget(groupLogChat(next), next.Logging.Chat.ThreadID)
	a.logs.Apply(mapLogConfig(next))
	a.router.SetOwners(next.Telegram.OwnerUserIDs)

	wasEnabled := a.sched.Enabled()
	a.sched.Apply(mapSchedulerConfig(next))
	switch {
	case wasEnabled && !next.Scheduler.Enabled:
		a.log.Info("scheduler disabled via config")
		sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(sctx)
		cancel()
	case !wasEnabled && next.Scheduler.Enabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	a.pm.Apply(ctx, next)
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

// publishCommands installs the merged plugin commands and refreshes the
// chat menu in the background.
func (a *App) publishCommands(cmds []router.Command) {
	a.router.SetCommands(cmds)
	if a.adapter == nil || a.sup == nil || a.sup.Context().Err() != nil {
		return
	}
	menu := a.router.MenuCommands()
	a.sup.Go("commands.menu", func(c context.Context) error {
		mctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(mctx, menu); err != nil {
			a.log.Warn("menu update failed", logx.Err(err))
		}
		return nil
	})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown phase so a stuck component cannot stall the
	// rest; the caller's deadline is never extended.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, time.Until(dl))
		}
		sctx, cancel := context.WithTimeout(ctx, max(limit, 0))
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("plugins", 4*time.Second, func(c context.Context) error { a.pm.StopAll(c, string(reason)); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error {
		if a.adapter == nil {
			return nil
		}
		return a.adapter.Stop(c)
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
