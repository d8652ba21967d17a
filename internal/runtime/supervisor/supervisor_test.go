package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoRecordsFirstError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("failing", func(ctx context.Context) error { return boom })
	s.Go("waiting", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(2), s.Counters().Started)
	assert.Zero(t, s.Counters().Active)
}

func TestGoRecoversPanic(t *testing.T) {
	s := New(context.Background())
	s.Go("panics", func(ctx context.Context) error { panic("oops") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Stop(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: oops")
}

func TestGoRestart(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, int32(3), runs.Load())
}

func TestGoRestartGivesUp(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("broken", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("always")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, s.Wait(ctx))
	assert.Equal(t, int32(3), runs.Load())
}
