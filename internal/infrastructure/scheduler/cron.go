package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"StudyScanner/internal/ports"
)

// CronScheduler fires jobs on a standard five-field cron expression.
// Triggers that arrive while the previous job is still running are dropped,
// and the optional start-up run shares that guard.
type CronScheduler struct {
	spec       string
	location   *time.Location
	runOnStart bool
	logger     *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	quit   chan struct{}
	halted bool
	eager  sync.WaitGroup
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler configured via cron expression string.
func NewCronScheduler(spec string, loc *time.Location, runOnStart bool, log *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &CronScheduler{spec: spec, location: loc, runOnStart: runOnStart, logger: log}
}

// Start registers job and begins scheduling. Calling Start twice is a no-op.
// Cancelling ctx halts new triggers; Stop must still be called to wait for a
// job that is already running.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cl := cronLogger{logger: c.logger}
	runner := cron.New(cron.WithLocation(c.location), cron.WithLogger(cl))

	wrapped := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
		Then(cron.FuncJob(func() { job(time.Now().In(c.location)) }))

	if _, err := runner.AddJob(c.spec, wrapped); err != nil {
		return fmt.Errorf("schedule %q: %w", c.spec, err)
	}

	runner.Start()
	c.cron = runner
	c.quit = make(chan struct{})
	c.halted = false
	c.logger.Info("scheduler started", "cron", c.spec, "timezone", c.location.String(), "run_on_start", c.runOnStart)

	if c.runOnStart {
		c.eager.Add(1)
		go func() {
			defer c.eager.Done()
			wrapped.Run()
		}()
	}

	go c.haltOnCancel(ctx, runner, c.quit)

	return nil
}

// haltOnCancel stops new triggers once ctx ends. It does not wait for jobs.
func (c *CronScheduler) haltOnCancel(ctx context.Context, runner *cron.Cron, quit <-chan struct{}) {
	select {
	case <-ctx.Done():
		runner.Stop()
		c.mu.Lock()
		if c.cron == runner {
			c.halted = true
		}
		c.mu.Unlock()
		c.logger.Debug("scheduler halted by context")
	case <-quit:
	}
}

// Stop halts scheduling and waits for running jobs, including the start-up
// run, bounded by ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.cron
	c.cron = nil
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
	c.mu.Unlock()

	if runner == nil {
		return nil
	}

	cronDone := runner.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		c.eager.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("scheduler stop interrupted"), ctx.Err())
	}
}

// Next reports the next trigger time, or zero when not scheduling.
func (c *CronScheduler) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron == nil || c.halted {
		return time.Time{}
	}
	entries := c.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
