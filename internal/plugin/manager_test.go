package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nthweekday/internal/config"
	"nthweekday/internal/transport/telegram/router"
	"nthweekday/pkg/logx"
)

type fakePlugin struct {
	Base

	mu       sync.Mutex
	inits    int
	starts   int
	stops    int
	configs  []string
	rejectOn string
}

func (p *fakePlugin) Name() string { return "fake" }

func (p *fakePlugin) Init(ctx context.Context, deps Deps) error {
	p.InitBase(deps, p.Name())
	p.mu.Lock()
	p.inits++
	p.mu.Unlock()
	return nil
}

func (p *fakePlugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	p.mu.Lock()
	p.starts++
	p.mu.Unlock()
	return nil
}

func (p *fakePlugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
	return p.StopBase(ctx)
}

func (p *fakePlugin) Commands() []router.Command {
	return []router.Command{{Route: "fake ping", Handle: func(ctx context.Context, req *router.Request) error { return nil }}}
}

type fakeConfig struct {
	Mode string `json:"mode"`
}

func (p *fakePlugin) ValidateConfig(ctx context.Context, raw json.RawMessage) error {
	c, err := DecodeConfig[fakeConfig](raw)
	if err != nil {
		return err
	}
	if p.rejectOn != "" && c.Mode == p.rejectOn {
		return errors.New("rejected mode")
	}
	return nil
}

func (p *fakePlugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	c, err := DecodeConfig[fakeConfig](raw)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.configs = append(p.configs, c.Mode)
	p.mu.Unlock()
	return nil
}

func cfgWith(enabled bool, mode string) *config.Config {
	raw := json.RawMessage(`{"mode":"` + mode + `"}`)
	return &config.Config{Plugins: map[string]config.PluginConfigRaw{"fake": {Enabled: enabled, Config: raw}}}
}

func TestManagerLifecycle(t *testing.T) {
	p := &fakePlugin{rejectOn: "bad"}
	var cmds []router.Command
	m := NewManager(logx.Nop(), Deps{}, func(c []router.Command) { cmds = c })
	m.Register(p)
	ctx := context.Background()

	m.Apply(ctx, cfgWith(true, "a"))
	require.Len(t, cmds, 1)
	assert.Equal(t, "fake ping", cmds[0].Route)
	assert.Equal(t, []Status{{Name: "fake", Enabled: true, Running: true}}, m.Status())

	m.Apply(ctx, cfgWith(true, "a"))
	m.Apply(ctx, cfgWith(true, "b"))
	assert.Equal(t, []string{"a", "b"}, p.configs)

	m.Apply(ctx, cfgWith(false, "b"))
	assert.Empty(t, cmds)
	assert.Equal(t, 1, p.stops)

	m.Apply(ctx, cfgWith(true, "c"))
	assert.Equal(t, 1, p.inits, "Init runs once")
	assert.Equal(t, 2, p.starts)

	assert.Error(t, m.ValidateConfig(ctx, cfgWith(true, "bad")))
	assert.NoError(t, m.ValidateConfig(ctx, cfgWith(false, "bad")))

	sctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	m.StopAll(sctx, "shutdown")
	assert.Equal(t, 2, p.stops)
	assert.False(t, m.Status()[0].Running)
}

func TestManagerStartRejectsInvalidConfig(t *testing.T) {
	p := &fakePlugin{rejectOn: "bad"}
	m := NewManager(logx.Nop(), Deps{}, nil)
	m.Register(p)
	m.Apply(context.Background(), cfgWith(true, "bad"))
	st := m.Status()[0]
	assert.False(t, st.Running)
	assert.Contains(t, st.LastError, "rejected mode")
}

func TestDecodeConfigStrict(t *testing.T) {
	c, err := DecodeConfig[fakeConfig](nil)
	require.NoError(t, err)
	assert.Empty(t, c.Mode)

	_, err = DecodeConfig[fakeConfig](json.RawMessage(`{"mode":"x","extra":1}`))
	assert.Error(t, err)

	_, err = DecodeConfig[fakeConfig](json.RawMessage(`{"mode":"x"} {}`))
	assert.Error(t, err)
}
