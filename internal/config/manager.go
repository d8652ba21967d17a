package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"nthweekday/pkg/logx"
)

// Manager owns the current config, reloads it when the file changes and
// fans new versions out to subscribers.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	// subsMu also serializes publish against Unsubscribe so we never send on
	// a closed channel.
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error

	// lastHash is the content hash of the last committed config.
	lastHash uint64

	debounce time.Duration
}

func NewManager(path string) *Manager {
	return &Manager{path: path, debounce: 250 * time.Millisecond}
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs the hook Watch runs before committing a reload.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and strictly decodes the config file without committing it.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return Decode(m.path, b)
}

// Decode strictly decodes JSON or YAML (by file extension) into a Config.
func Decode(path string, b []byte) (*Config, error) {
	jb, _, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

// Load parses, validates and commits the config file.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

// publish delivers cfg to every subscriber. A full subscriber loses its
// oldest pending config; the latest one always wins.
func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// Reload re-reads the file and, if the content changed and passes
// validation, commits and publishes it. It reports whether a new config was
// published.
func (m *Manager) Reload(ctx context.Context) (bool, error) {
	cfg, err := m.Parse()
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", m.path, err)
	}
	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		return false, nil
	}
	if err := Validate(cfg); err != nil {
		return false, err
	}
	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			return false, err
		}
	}
	m.Commit(cfg)
	m.publish(cfg)
	return true, nil
}

// Watch reloads the config on file changes until ctx is done. The watcher
// is recreated with jittered backoff if fsnotify breaks.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	const (
		backoffBase = 250 * time.Millisecond
		backoffMax  = 5 * time.Second
	)
	backoff := backoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sleep := func() bool {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, backoffMax)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
			return true
		}
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(m.debounce, func() {
			published, err := m.Reload(ctx)
			switch {
			case err != nil:
				m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			case published:
				m.log.Debug("config published", logx.String("path", m.path))
			default:
				m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		w, err := fsnotify.NewWatcher()
		if err != nil {
			m.log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
			if !sleep() {
				return nil
			}
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			m.log.Warn("config watch add failed", logx.Err(err), logx.String("dir", dir))
			if !sleep() {
				return nil
			}
			continue
		}
		backoff = backoffBase
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
					schedule()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				if err == fsnotify.ErrEventOverflow {
					m.log.Warn("config watch overflow; forcing reload", logx.String("dir", dir))
					schedule()
					continue
				}
				m.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
			}
		}
		_ = w.Close()
		m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir))
		if !sleep() {
			return nil
		}
	}
}
