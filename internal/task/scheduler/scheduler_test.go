package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nthweekday/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	tests := map[string]struct {
		in    string
		kind  SpecKind
		cron  string
		every time.Duration
		err   bool
	}{
		"cron five fields": {in: "5 0 * * *", kind: SpecCron, cron: "5 0 * * *"},
		"descriptor":       {in: "@daily", kind: SpecCron, cron: "@daily"},
		"forced cron":      {in: "cron: 0 1 * * *", kind: SpecCron, cron: "0 1 * * *"},
		"duration":         {in: "6h", kind: SpecInterval, every: 6 * time.Hour},
		"hhmm":             {in: "02:30", kind: SpecInterval, every: 2*time.Hour + 30*time.Minute},
		"forced interval":  {in: "every: 15m", kind: SpecInterval, every: 15 * time.Minute},
		"empty":            {in: " ", err: true},
		"zero":             {in: "0s", err: true},
		"garbage":          {in: "sometimes", err: true},
		"bad minutes":      {in: "01:75", err: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ps, err := ParseSchedule(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ps.Kind)
			assert.Equal(t, tt.cron, ps.Cron)
			assert.Equal(t, tt.every, ps.Every)
		})
	}
}

func TestValidateSchedule(t *testing.T) {
	_, err := ValidateSchedule("5 0 * * *")
	assert.NoError(t, err)
	_, err = ValidateSchedule("61 0 * * *")
	assert.Error(t, err)
	ps, err := ValidateSchedule("1h")
	require.NoError(t, err)
	assert.Equal(t, SpecInterval, ps.Kind)
}

func TestLocationAndApply(t *testing.T) {
	s := New(Config{Enabled: true, Timezone: "Asia/Tokyo"}, logx.Nop())
	assert.Equal(t, "Asia/Tokyo", s.Location().String())
	assert.Equal(t, "Asia/Tokyo", s.Now().Location().String())

	s.Apply(Config{Enabled: true, Timezone: "Mars/Olympus"})
	assert.Equal(t, time.Local, s.Location())
}

func TestAddRejects(t *testing.T) {
	s := New(Config{}, logx.Nop())
	job := func(ctx context.Context) error { return nil }
	assert.Error(t, s.AddCron("x", "not a cron", 0, job))
	assert.Error(t, s.AddCron("", "@daily", 0, job))
	assert.Error(t, s.AddInterval("x", 0, 0, job))
	assert.Error(t, s.AddSchedule("x", "@daily", 0, nil))
}

func TestUpsertAndRemove(t *testing.T) {
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	job := func(ctx context.Context) error { return nil }
	require.NoError(t, s.AddSchedule("refresh", "5 0 * * *", time.Minute, job))
	require.NoError(t, s.AddSchedule("refresh", "10 0 * * *", time.Minute, job))
	require.NoError(t, s.AddSchedule("poll", "1h", 0, job))

	list := s.Schedules()
	require.Len(t, list, 2)
	assert.Equal(t, "poll", list[0].Name)
	assert.Equal(t, "@every 1h0m0s", list[0].Spec)
	assert.Equal(t, "10 0 * * *", list[1].Spec)
	assert.True(t, list[1].Next.IsZero(), "not started")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Start(ctx)
	defer s.Stop(ctx)
	list = s.Schedules()
	assert.False(t, list[1].Next.IsZero())
	assert.Equal(t, time.UTC, list[1].Next.Location())

	assert.True(t, s.Remove("poll"))
	assert.False(t, s.Remove("poll"))
	assert.Len(t, s.Schedules(), 1)
}

func TestJobsFireAndSkipOverlap(t *testing.T) {
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	var runs atomic.Int32
	release := make(chan struct{})
	require.NoError(t, s.AddCron("tick", "@every 1s", 0, func(ctx context.Context) error {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Start(ctx)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	// the first run is still blocked, so the following ticks are skipped
	time.Sleep(2200 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	s.Stop(ctx)
}
