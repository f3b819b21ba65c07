package daemon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := NewScheduler(time.UTC, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestScheduler_ScheduleCron(t *testing.T) {
	t.Run("returns job id for valid cron", func(t *testing.T) {
		s := newTestScheduler(t)

		id, err := s.ScheduleCron("test", "0 7,13,19 * * *", func() {})
		require.NoError(t, err)
		require.NotEmpty(t, id)
	})

	t.Run("rejects invalid cron", func(t *testing.T) {
		s := newTestScheduler(t)

		_, err := s.ScheduleCron("test", "this is not a cron", func() {})
		require.Error(t, err)
	})
}

func TestScheduler_RemoveAndNextRun(t *testing.T) {
	s := newTestScheduler(t)
	id, err := s.ScheduleCron("review", "0 7 * * *", func() {})
	require.NoError(t, err)
	s.Start()

	next, ok := s.NextRun()
	require.True(t, ok)
	assert.Equal(t, 7, next.UTC().Hour())
	assert.Zero(t, next.Minute())

	require.NoError(t, s.Remove(id))
	_, ok = s.NextRun()
	assert.False(t, ok)

	require.Error(t, s.Remove("not-a-uuid"))
}

func TestWorkerGroup(t *testing.T) {
	var g WorkerGroup
	var runs atomic.Int32

	release := make(chan struct{})
	require.True(t, g.Go("ok", func() { <-release; runs.Add(1) }))
	require.True(t, g.Go("panics", func() { panic("boom") }))
	close(release)

	require.NoError(t, g.StopAndWait(context.Background()))
	assert.Equal(t, int32(1), runs.Load(), "StopAndWait waits for running workers")
	assert.False(t, g.Go("late", func() {}), "no workers after stop")
	assert.False(t, g.Go("nil", nil))
}

func TestWorkerGroupStopTimeout(t *testing.T) {
	var g WorkerGroup
	release := make(chan struct{})
	defer close(release)
	g.Go("slow", func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, g.StopAndWait(ctx), context.DeadlineExceeded)
}

func TestStopAwareContext(t *testing.T) {
	d := &Daemon{}
	d.stopCtx, d.stop = context.WithCancel(context.Background())
	ctx, cancel := d.stopAwareContext(context.Background())
	defer cancel()

	d.stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not canceled by stop")
	}
}
