package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCronSchedulerRunsOnStart(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("@every 1h", time.UTC, true, quietLogger())
	fired := make(chan time.Time, 1)

	require.NoError(t, s.Start(context.Background(), func(at time.Time) { fired <- at }))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	select {
	case at := <-fired:
		assert.Equal(t, time.UTC, at.Location())
	case <-time.After(2 * time.Second):
		t.Fatal("start-up run did not fire")
	}
	assert.False(t, s.Next().IsZero())
}

func TestCronSchedulerNoRunOnStart(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("@every 1h", time.UTC, false, quietLogger())
	var calls atomic.Int32

	require.NoError(t, s.Start(context.Background(), func(time.Time) { calls.Add(1) }))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	assert.Zero(t, calls.Load())
	assert.True(t, s.Next().IsZero())
}

func TestCronSchedulerRejectsInvalidExpression(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("not a cron", time.UTC, false, quietLogger())
	err := s.Start(context.Background(), func(time.Time) {})
	require.Error(t, err)
	assert.ErrorContains(t, err, "not a cron")
}

func TestCronSchedulerStopWaitsForStartupRunAfterCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	s := NewCronScheduler("@every 1h", time.UTC, true, quietLogger())
	entered := make(chan struct{})
	var finished atomic.Bool

	require.NoError(t, s.Start(ctx, func(time.Time) {
		close(entered)
		time.Sleep(300 * time.Millisecond)
		finished.Store(true)
	}))
	<-entered
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.True(t, finished.Load())
}

func TestCronSchedulerStopIsBoundedByContext(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("@every 1h", time.UTC, true, quietLogger())
	entered := make(chan struct{})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	require.NoError(t, s.Start(context.Background(), func(time.Time) {
		close(entered)
		<-release
	}))
	<-entered

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer stopCancel()
	err := s.Stop(stopCtx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCronSchedulerStopWithoutStart(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("@every 1h", nil, false, nil)
	assert.NoError(t, s.Stop(context.Background()))
}

func TestCronSchedulerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	s := NewCronScheduler("@every 1h", time.UTC, false, quietLogger())
	require.NoError(t, s.Start(ctx, func(time.Time) {}))

	cancel()
	assert.Eventually(t, func() bool { return s.Next().IsZero() }, time.Second, 10*time.Millisecond)
}
