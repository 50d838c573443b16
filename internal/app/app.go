package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"StudyScanner/internal/config"
	"StudyScanner/internal/domain"
	"StudyScanner/internal/infrastructure/browser"
	"StudyScanner/internal/infrastructure/discord"
	"StudyScanner/internal/infrastructure/parser"
	"StudyScanner/internal/infrastructure/scheduler"
	"StudyScanner/internal/infrastructure/storage"
	"StudyScanner/internal/logging"
	"StudyScanner/internal/ports"
	"StudyScanner/internal/scanner"
	"StudyScanner/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	source    ports.StudySource
	snapshots *storage.FileSnapshotStore
	notifier  ports.Notifier
	lock      *storage.InstanceLock
	driver    ports.Scheduler
}

// New builds the application graph. Nothing touches disk or network until Run.
func New(cfg config.Config, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging)
	}

	opener := browser.NewLauncher(cfg.Browser, baseLogger.With("component", "browser"), os.Stderr)

	registry := scanner.NewRegistry()
	registry.Register(parser.NewSonaScanner(opener, baseLogger.With("component", "scanner.sona")))

	source := parser.NewStrategySource(registry, cfg.Portal, baseLogger.With("component", "source"))

	var notifier ports.Notifier
	if cfg.Notifications.Discord.Enabled() {
		notifier = discord.NewNotifier(cfg.Notifications.Discord, baseLogger.With("component", "notifier.discord"))
	} else {
		baseLogger.Warn("discord webhook not configured; new studies will only be logged")
	}

	driver := scheduler.NewCronScheduler(
		cfg.Scheduler.CronExpression,
		cfg.Scheduler.Location(),
		cfg.Scheduler.ShouldRunOnStart(),
		baseLogger.With("component", "scheduler"),
	)

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		source:    source,
		snapshots: storage.NewFileSnapshotStore(cfg.Storage.SnapshotPath, baseLogger.With("component", "storage")),
		notifier:  notifier,
		lock:      storage.NewInstanceLock(cfg.Storage.LockPath),
		driver:    driver,
	}
}

// Run holds the instance lock and drives scheduled scans until ctx is done.
func (a *Application) Run(ctx context.Context) (err error) {
	if err := a.lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if rerr := a.lock.Release(); rerr != nil {
			err = errors.Join(err, fmt.Errorf("release lock: %w", rerr))
		}
	}()

	history, closeHistory := a.openHistory(ctx)
	defer closeHistory()

	pipeline := a.newPipeline(history)
	sched := usecase.NewScheduler(a.driver, pipeline, a.logger.With("component", "scheduler"))

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("study scanner running",
		"portal", a.cfg.Portal.BaseURL,
		"snapshot", a.snapshots.Path(),
		"cron", a.cfg.Scheduler.CronExpression,
	)

	<-ctx.Done()
	a.logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

// RunOnce performs a single scan cycle under the instance lock.
func (a *Application) RunOnce(ctx context.Context) (domain.RunReport, error) {
	if err := a.lock.Acquire(); err != nil {
		return domain.RunReport{}, err
	}
	defer func() {
		if err := a.lock.Release(); err != nil {
			a.logger.Warn("release lock", "error", err)
		}
	}()

	history, closeHistory := a.openHistory(ctx)
	defer closeHistory()

	return a.newPipeline(history).Run(ctx, time.Now().In(a.cfg.Scheduler.Location()))
}

func (a *Application) newPipeline(history ports.RunRecorder) *usecase.Pipeline {
	return usecase.NewPipeline(usecase.PipelineDeps{
		Source:       a.source,
		Snapshots:    a.snapshots,
		Notifier:     a.notifier,
		History:      history,
		Logger:       a.logger.With("component", "pipeline"),
		MaxAnnounced: a.cfg.Notifications.Discord.MaxEmbeds,
	})
}

// openHistory degrades to no history when the database cannot be opened.
func (a *Application) openHistory(ctx context.Context) (ports.RunRecorder, func()) {
	if !a.cfg.Storage.HistoryEnabled() {
		return nil, func() {}
	}

	h, err := storage.OpenRunHistory(ctx, a.cfg.Storage.HistoryPath)
	if err != nil {
		a.logger.Warn("run history unavailable", "path", a.cfg.Storage.HistoryPath, "error", err)
		return nil, func() {}
	}

	return h, func() {
		if err := h.Close(); err != nil {
			a.logger.Warn("close run history", "error", err)
		}
	}
}

// RecentRuns lists the newest recorded runs.
func (a *Application) RecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if !a.cfg.Storage.HistoryEnabled() {
		return nil, errors.New("run history is disabled")
	}

	h, err := storage.OpenRunHistory(ctx, a.cfg.Storage.HistoryPath)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	return h.Recent(ctx, limit)
}
