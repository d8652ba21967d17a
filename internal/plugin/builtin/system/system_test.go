package system

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nthweekday/internal/plugin"
	"nthweekday/internal/task/scheduler"
	"nthweekday/internal/transport"
	"nthweekday/internal/transport/telegram/router"
	"nthweekday/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	last string
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = text
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func setup(t *testing.T, sched *scheduler.Service) (*router.Router, *fakeSender) {
	t.Helper()
	p := New()
	s := &fakeSender{}
	require.NoError(t, p.Init(context.Background(), plugin.Deps{
		Logger:    logx.Nop(),
		Sender:    s,
		Scheduler: sched,
		Status: func() []plugin.Status {
			return []plugin.Status{{Name: "weekday_of_month", Enabled: true, Running: true}}
		},
	}))
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })

	r := router.New(logx.Nop(), s, []int64{1})
	r.SetCommands(p.Commands())
	return r, s
}

func TestPublicCommands(t *testing.T) {
	r, s := setup(t, nil)
	ctx := context.Background()

	r.Handle(ctx, transport.Message{ChatID: 9, FromID: 2, Text: "/ping"})
	assert.Equal(t, "pong", s.text())

	r.Handle(ctx, transport.Message{ChatID: 9, FromID: 2, Text: "/up"})
	assert.Contains(t, s.text(), "uptime: ")

	r.Handle(ctx, transport.Message{ChatID: 9, FromID: 2, Text: "/health"})
	assert.Equal(t, "unauthorized", s.text())
}

func TestHealthAndSched(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Enabled: true, Timezone: "UTC"}, logx.Nop())
	require.NoError(t, sched.AddSchedule("weekday_of_month:refresh", "5 0 * * *", time.Second, func(context.Context) error { return nil }))
	sched.Start(context.Background())
	t.Cleanup(func() { sched.Stop(context.Background()) })

	r, s := setup(t, sched)
	ctx := context.Background()

	r.Handle(ctx, transport.Message{ChatID: 9, FromID: 1, Text: "/health"})
	out := s.text()
	assert.Contains(t, out, "weekday_of_month en=true run=true")
	assert.Contains(t, out, "tz=UTC schedules=1")

	r.Handle(ctx, transport.Message{ChatID: 9, FromID: 1, Text: "/sched"})
	out = s.text()
	assert.Contains(t, out, "weekday_of_month:refresh: spec=5 0 * * *")
	assert.Contains(t, out, "(in ")
}

func TestSchedDisabled(t *testing.T) {
	r, s := setup(t, scheduler.New(scheduler.Config{}, logx.Nop()))
	r.Handle(context.Background(), transport.Message{ChatID: 9, FromID: 1, Text: "/sched"})
	assert.Equal(t, "scheduler is disabled", s.text())
}

func TestSortByNext(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	items := []scheduler.ScheduleInfo{
		{Name: "c"},
		{Name: "b", Next: base.Add(time.Hour)},
		{Name: "a", Next: base},
	}
	sortByNext(items)
	assert.Equal(t, "a", items[0].Name)
	assert.Equal(t, "b", items[1].Name)
	assert.Equal(t, "c", items[2].Name)
}

func TestDurRel(t *testing.T) {
	assert.Equal(t, "42s", durRel(42*time.Second))
	assert.Equal(t, "3m5s", durRel(3*time.Minute+5*time.Second))
	assert.Equal(t, "5h7m", durRel(5*time.Hour+7*time.Minute))
	assert.Equal(t, "3d2h", durRel(74*time.Hour))
}
