package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"nthweekday/internal/eventbus"
	"nthweekday/internal/runtime/supervisor"
	"nthweekday/internal/storage"
	"nthweekday/internal/task/scheduler"
	"nthweekday/internal/transport"
	"nthweekday/internal/transport/telegram/router"
	"nthweekday/pkg/logx"
)

type Plugin interface {
	Name() string
	Init(ctx context.Context, deps Deps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Commands() []router.Command
}

// ConfigurablePlugin receives its raw config block before Start and on
// every change while running.
type ConfigurablePlugin interface {
	OnConfigChange(ctx context.Context, raw json.RawMessage) error
}

// ConfigValidator is checked before a new config is committed.
type ConfigValidator interface {
	ValidateConfig(ctx context.Context, raw json.RawMessage) error
}

// Deps are the host services handed to plugins. Sender may be nil when no
// chat transport is configured.
type Deps struct {
	Logger    logx.Logger
	Sender    transport.Sender
	Bus       eventbus.Bus
	Store     storage.Store
	Scheduler *scheduler.Service
	// Status, if set, reports the state of every registered plugin.
	Status func() []Status
}

var (
	ErrNoScheduler = errors.New("scheduler not available")
	ErrNoSender    = errors.New("chat transport not available")
)

// Base carries the boilerplate most plugins need:
//
//	type Plugin struct{ plugin.Base }
//	func (p *Plugin) Init(ctx context.Context, d plugin.Deps) error { p.InitBase(d, p.Name()); return nil }
//	func (p *Plugin) Start(ctx context.Context) error { p.StartBase(ctx); return nil }
//	func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }
type Base struct {
	Log    logx.Logger
	Deps   Deps
	Runner *supervisor.Supervisor

	name string
	ctx  context.Context
}

func (b *Base) InitBase(deps Deps, name string) {
	b.Deps = deps
	b.name = name
	log := deps.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	b.Log = log.With(logx.String("plugin", name))
}

// StartBase creates the plugin supervisor tied to ctx.
func (b *Base) StartBase(ctx context.Context) {
	b.ctx = ctx
	b.Runner = supervisor.New(ctx, supervisor.WithLogger(b.Log))
}

// StopBase cancels the plugin goroutines and waits for them, bounded by ctx.
func (b *Base) StopBase(ctx context.Context) error {
	if b.Runner == nil {
		return nil
	}
	err := b.Runner.Stop(ctx)
	b.Runner = nil
	return err
}

// Context is the plugin run context, canceled on stop or disable.
func (b *Base) Context() context.Context {
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

func (b *Base) ns(name string) string {
	if name == "" {
		return b.name
	}
	return b.name + ":" + name
}

// Schedule registers a trigger namespaced by plugin name.
func (b *Base) Schedule(name, spec string, timeout time.Duration, job scheduler.Job) error {
	if b.Deps.Scheduler == nil {
		return ErrNoScheduler
	}
	return b.Deps.Scheduler.AddSchedule(b.ns(name), spec, timeout, job)
}

func (b *Base) Unschedule(name string) bool {
	if b.Deps.Scheduler == nil {
		return false
	}
	return b.Deps.Scheduler.Remove(b.ns(name))
}

// Now is the current time in the host timezone.
func (b *Base) Now() time.Time {
	if b.Deps.Scheduler == nil {
		return time.Now()
	}
	return b.Deps.Scheduler.Now()
}

func (b *Base) Publish(typ string, data any) {
	if b.Deps.Bus == nil {
		return
	}
	b.Deps.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func (b *Base) AppendAudit(ctx context.Context, e storage.AuditEntry) error {
	if b.Deps.Store == nil {
		return storage.ErrClosed
	}
	return b.Deps.Store.AppendAudit(ctx, e)
}

// Notify sends text to a chat with a short timeout.
func (b *Base) Notify(ctx context.Context, to transport.ChatTarget, text string) error {
	if b.Deps.Sender == nil {
		return ErrNoSender
	}
	if to.IsZero() {
		return errors.New("notify target not set")
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := b.Deps.Sender.SendText(cctx, to, text, &transport.SendOptions{DisablePreview: true})
	return err
}

// DecodeConfig strictly decodes a plugin config block. An empty block
// yields the zero value.
func DecodeConfig[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return out, fmt.Errorf("trailing data after plugin config")
	}
	return out, nil
}
