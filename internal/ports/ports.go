package ports

import (
	"context"
	"time"

	"StudyScanner/internal/domain"
)

// StudySource pulls the current study list from the portal.
type StudySource interface {
	FetchCurrentStudies(ctx context.Context) (domain.Snapshot, error)
}

// SnapshotStore keeps the latest known snapshot between runs.
type SnapshotStore interface {
	// Load never fails; unreadable state degrades to an empty snapshot.
	Load(ctx context.Context) domain.Snapshot
	// Save atomically replaces the persisted snapshot.
	Save(ctx context.Context, snapshot domain.Snapshot) error
}

// RunRecorder persists run outcomes for audit.
type RunRecorder interface {
	Record(ctx context.Context, record domain.RunRecord) error
}

// Notifier delivers announcements to a chat channel.
type Notifier interface {
	Deliver(ctx context.Context, announcement domain.Announcement) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
