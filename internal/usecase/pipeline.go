package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"StudyScanner/internal/domain"
	"StudyScanner/internal/ports"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source    ports.StudySource
	Snapshots ports.SnapshotStore
	Notifier  ports.Notifier
	History   ports.RunRecorder
	Logger    *slog.Logger
	// MaxAnnounced caps cards per announcement; DefaultMaxAnnounced when zero.
	MaxAnnounced int
	Now          func() time.Time
	NewRunID     func() string
}

// Pipeline implements the scrape, reconcile, persist, notify workflow.
type Pipeline struct {
	source       ports.StudySource
	snapshots    ports.SnapshotStore
	notifier     ports.Notifier
	history      ports.RunRecorder
	logger       *slog.Logger
	maxAnnounced int
	now          func() time.Time
	newRunID     func() string

	running sync.Mutex
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:       deps.Source,
		snapshots:    deps.Snapshots,
		notifier:     deps.Notifier,
		history:      deps.History,
		logger:       deps.Logger,
		maxAnnounced: deps.MaxAnnounced,
		now:          deps.Now,
		newRunID:     deps.NewRunID,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.maxAnnounced <= 0 {
		p.maxAnnounced = DefaultMaxAnnounced
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newRunID == nil {
		p.newRunID = uuid.NewString
	}
	return p
}

// Run executes one pipeline pass. Only one run may be in flight; an
// overlapping call returns ErrRunInProgress without touching any state.
//
// A scrape failure leaves the stored snapshot untouched. On a successful
// scrape the snapshot is always replaced, even when nothing was added.
// Delivery failures are reported in RunReport.NotifyErr and do not fail the run.
func (p *Pipeline) Run(ctx context.Context, trigger time.Time) (report domain.RunReport, err error) {
	if !p.running.TryLock() {
		return domain.RunReport{
			TriggeredAt: trigger,
			Status:      domain.RunFailed,
			FailedAt:    domain.StateIdle,
			Err:         ErrRunInProgress,
		}, ErrRunInProgress
	}
	defer p.running.Unlock()

	report = domain.RunReport{
		ID:          p.newRunID(),
		TriggeredAt: trigger,
		StartedAt:   p.now(),
	}
	log := p.logger.With("run_id", report.ID)
	state := domain.StateLoading

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w in state %s: %v", errRunPanicked, state, r)
		}
		report.FinishedAt = p.now()
		if err != nil {
			report.Status = domain.RunFailed
			report.FailedAt = state
			report.Err = err
			p.logFailure(log, report)
		} else {
			report.Status = domain.RunSucceeded
			log.Info("run finished",
				"scraped", report.Scraped,
				"added", report.Added,
				"announced", report.Announced,
				"duration", report.FinishedAt.Sub(report.StartedAt))
		}
		p.record(ctx, log, report)
	}()

	if p.source == nil || p.snapshots == nil {
		return report, errors.New("pipeline is not configured")
	}

	log.Info("run started", "trigger", trigger.Format(time.RFC3339))
	prev := p.snapshots.Load(ctx)
	log.Debug("snapshot loaded", "studies", len(prev))

	state = domain.StateScraping
	next, err := p.source.FetchCurrentStudies(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrScrape, err)
	}
	report.Scraped = len(next)

	state = domain.StateReconciling
	delta := Reconcile(prev, next)
	report.Added = len(delta)

	state = domain.StatePersisting
	if err := p.snapshots.Save(ctx, next); err != nil {
		return report, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if len(delta) == 0 {
		return report, nil
	}

	state = domain.StateNotifying
	announcement := BuildAnnouncement(delta, p.maxAnnounced)
	if p.notifier == nil {
		log.Warn("no notifier configured, announcement dropped", "added", len(delta))
		return report, nil
	}
	if err := p.notifier.Deliver(ctx, announcement); err != nil {
		report.NotifyErr = fmt.Errorf("%w: %w", ErrNotification, err)
		log.Error("announcement not delivered; snapshot already advanced",
			"added", len(delta), "error", err)
		return report, nil
	}
	report.Announced = len(announcement.Cards)

	return report, nil
}

func (p *Pipeline) logFailure(log *slog.Logger, report domain.RunReport) {
	attrs := []any{"state", report.FailedAt, "error", report.Err}
	if errors.Is(report.Err, ErrPersistence) {
		// Without a saved snapshot the next run re-announces the same studies.
		log.Error("run failed: snapshot NOT saved, next run will repeat this delta",
			append(attrs, "added", report.Added)...)
		return
	}
	log.Error("run failed", attrs...)
}

func (p *Pipeline) record(ctx context.Context, log *slog.Logger, report domain.RunReport) {
	if p.history == nil {
		return
	}
	if err := p.history.Record(context.WithoutCancel(ctx), report.Record()); err != nil {
		log.Warn("record run history", "error", err)
	}
}
