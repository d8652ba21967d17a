package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nthweekday/internal/config"
	"nthweekday/internal/transport/telegram/router"
	"nthweekday/pkg/logx"
)

const callTimeout = 10 * time.Second

// Status is a point-in-time view of one registered plugin.
type Status struct {
	Name      string
	Enabled   bool
	Running   bool
	LastError string
}

// Manager starts, reconfigures and stops plugins as the config changes.
type Manager struct {
	mu sync.Mutex

	log  logx.Logger
	deps Deps

	reg     map[string]Plugin
	run     map[string]bool
	enabled map[string]bool
	inited  map[string]bool
	lastErr map[string]string
	// lastHash skips OnConfigChange when a plugin block did not change
	lastHash map[string]uint64
	pcancel  map[string]context.CancelFunc

	// plugin contexts derive from base, not from the call-scoped ctx passed
	// to Apply
	base       context.Context
	baseCancel context.CancelFunc

	onCommands func([]router.Command)
}

// NewManager creates a manager. onCommands, if set, receives the merged
// command list whenever the set of running plugins changes.
func NewManager(log logx.Logger, deps Deps, onCommands func([]router.Command)) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:        log,
		deps:       deps,
		reg:        map[string]Plugin{},
		run:        map[string]bool{},
		enabled:    map[string]bool{},
		inited:     map[string]bool{},
		lastErr:    map[string]string{},
		lastHash:   map[string]uint64{},
		pcancel:    map[string]context.CancelFunc{},
		base:       base,
		baseCancel: cancel,
		onCommands: onCommands,
	}
}

func (m *Manager) Register(ps ...Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range ps {
		m.reg[p.Name()] = p
	}
}

// ValidateConfig runs each enabled plugin's validator against cfg without
// touching running state.
func (m *Manager) ValidateConfig(ctx context.Context, cfg *config.Config) error {
	for _, name := range m.names() {
		raw, ok := cfg.Plugins[name]
		if !ok || !raw.Enabled {
			continue
		}
		v, ok := m.get(name).(ConfigValidator)
		if !ok {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := v.ValidateConfig(cctx, raw.Config)
		cancel()
		if err != nil {
			return fmt.Errorf("plugin %s: %w", name, err)
		}
	}
	return nil
}

// Apply reconciles running plugins with cfg: enables, disables and
// reconfigures as needed.
func (m *Manager) Apply(ctx context.Context, cfg *config.Config) {
	if cfg == nil {
		return
	}
	changed := false
	for _, name := range m.names() {
		p := m.get(name)
		raw, ok := cfg.Plugins[name]
		want := ok && raw.Enabled
		h := config.HashRaw(raw.Config)

		m.mu.Lock()
		running := m.run[name]
		m.enabled[name] = want
		oldHash := m.lastHash[name]
		m.mu.Unlock()

		switch {
		case want && !running:
			if err := m.startOne(name, p, raw); err != nil {
				m.setErr(name, err)
				m.log.Error("plugin start failed", logx.String("plugin", name), logx.Err(err))
				continue
			}
			m.mu.Lock()
			m.lastHash[name] = h
			m.mu.Unlock()
			changed = true
		case !want && running:
			sctx, cancel := context.WithTimeout(ctx, callTimeout)
			m.stopOne(sctx, name, "disabled")
			cancel()
			changed = true
		case want && running && h != oldHash:
			cp, ok := p.(ConfigurablePlugin)
			if !ok {
				break
			}
			cctx, cancel := context.WithTimeout(m.base, callTimeout)
			err := m.safeCall("config."+name, func() error { return cp.OnConfigChange(cctx, raw.Config) })
			cancel()
			if err != nil {
				// keep running with the previous config
				m.setErr(name, fmt.Errorf("config apply: %w", err))
				m.log.Error("plugin config apply failed", logx.String("plugin", name), logx.Err(err))
				break
			}
			m.mu.Lock()
			m.lastHash[name] = h
			delete(m.lastErr, name)
			m.mu.Unlock()
			m.log.Info("plugin reconfigured", logx.String("plugin", name))
			changed = true
		}
	}
	if changed {
		m.publishCommands()
	}
}

func (m *Manager) startOne(name string, p Plugin, raw config.PluginConfigRaw) error {
	pctx, cancel := context.WithCancel(m.base)

	m.mu.Lock()
	needInit := !m.inited[name]
	m.mu.Unlock()
	if needInit {
		ictx, icancel := context.WithTimeout(pctx, callTimeout)
		err := m.safeCall("init."+name, func() error { return p.Init(ictx, m.deps) })
		icancel()
		if err != nil {
			cancel()
			return fmt.Errorf("init: %w", err)
		}
		m.mu.Lock()
		m.inited[name] = true
		m.mu.Unlock()
	}

	if v, ok := p.(ConfigValidator); ok {
		vctx, vcancel := context.WithTimeout(pctx, callTimeout)
		err := v.ValidateConfig(vctx, raw.Config)
		vcancel()
		if err != nil {
			cancel()
			return fmt.Errorf("config validate: %w", err)
		}
	}
	if cp, ok := p.(ConfigurablePlugin); ok {
		cctx, ccancel := context.WithTimeout(pctx, callTimeout)
		err := m.safeCall("config."+name, func() error { return cp.OnConfigChange(cctx, raw.Config) })
		ccancel()
		if err != nil {
			cancel()
			return fmt.Errorf("config apply: %w", err)
		}
	}

	// Start gets the long-lived context; the deadline is enforced outside.
	done := make(chan error, 1)
	go func() { done <- m.safeCall("start."+name, func() error { return p.Start(pctx) }) }()
	select {
	case err := <-done:
		if err != nil {
			cancel()
			return err
		}
	case <-time.After(callTimeout):
		cancel()
		return fmt.Errorf("start timeout (%s)", callTimeout)
	}

	m.mu.Lock()
	m.run[name] = true
	m.pcancel[name] = cancel
	delete(m.lastErr, name)
	m.mu.Unlock()
	m.log.Info("plugin started", logx.String("plugin", name))
	return nil
}

func (m *Manager) stopOne(ctx context.Context, name, reason string) {
	m.mu.Lock()
	p := m.reg[name]
	running := m.run[name]
	cancel := m.pcancel[name]
	m.mu.Unlock()
	if !running || p == nil {
		return
	}

	start := time.Now()
	if cancel != nil {
		cancel()
	}
	// a misbehaving Stop must not block shutdown forever
	done := make(chan struct{})
	go func() {
		_ = m.safeCall("stop."+name, func() error { return p.Stop(ctx) })
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn("plugin stop timeout (continuing)", logx.String("plugin", name), logx.Err(ctx.Err()))
	}

	m.mu.Lock()
	m.run[name] = false
	delete(m.pcancel, name)
	delete(m.lastHash, name)
	m.mu.Unlock()
	m.log.Info("plugin stopped", logx.String("plugin", name), logx.String("reason", reason), logx.Duration("took", time.Since(start)))
}

// StopAll stops every running plugin.
func (m *Manager) StopAll(ctx context.Context, reason string) {
	for _, name := range m.names() {
		m.stopOne(ctx, name, reason)
	}
	m.baseCancel()
	m.publishCommands()
}

// Commands merges the commands of running plugins.
func (m *Manager) Commands() []router.Command {
	var out []router.Command
	for _, name := range m.names() {
		m.mu.Lock()
		running := m.run[name]
		p := m.reg[name]
		m.mu.Unlock()
		if !running {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("panic in plugin commands", logx.String("plugin", name), logx.Panic(r))
				}
			}()
			out = append(out, p.Commands()...)
		}()
	}
	return out
}

func (m *Manager) Status() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.reg))
	for name := range m.reg {
		out = append(out, Status{
			Name:      name,
			Enabled:   m.enabled[name],
			Running:   m.run[name],
			LastError: m.lastErr[name],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) publishCommands() {
	if m.onCommands != nil {
		m.onCommands(m.Commands())
	}
}

func (m *Manager) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.reg))
	for name := range m.reg {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) get(name string) Plugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg[name]
}

func (m *Manager) setErr(name string, err error) {
	m.mu.Lock()
	m.lastErr[name] = err.Error()
	m.mu.Unlock()
}

func (m *Manager) safeCall(label string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in plugin call",
				logx.String("call", label), logx.Panic(r), logx.Stack())
			err = fmt.Errorf("panic in %s: %v", label, r)
		}
	}()
	return fn()
}
