package domain

import "time"

// RunState enumerates pipeline milestones of a single run.
type RunState string

const (
	StateIdle        RunState = "idle"
	StateLoading     RunState = "loading"
	StateScraping    RunState = "scraping"
	StateReconciling RunState = "reconciling"
	StatePersisting  RunState = "persisting"
	StateNotifying   RunState = "notifying"
)

// RunStatus is the terminal outcome of a run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunReport summarises what a run did.
type RunReport struct {
	ID          string
	TriggeredAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      RunStatus
	// FailedAt is the state the run was in when it failed; empty on success.
	FailedAt  RunState
	Scraped   int
	Added     int
	Announced int
	Err       error
	NotifyErr error
}

// RunRecord is the persisted form of a RunReport.
type RunRecord struct {
	ID          string
	TriggeredAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      RunStatus
	FailedAt    RunState
	Scraped     int
	Added       int
	Announced   int
	Error       string
	NotifyError string
}

// Record converts the report into its persisted form.
func (r RunReport) Record() RunRecord {
	rec := RunRecord{
		ID:          r.ID,
		TriggeredAt: r.TriggeredAt,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Status:      r.Status,
		FailedAt:    r.FailedAt,
		Scraped:     r.Scraped,
		Added:       r.Added,
		Announced:   r.Announced,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	if r.NotifyErr != nil {
		rec.NotifyError = r.NotifyErr.Error()
	}
	return rec
}
