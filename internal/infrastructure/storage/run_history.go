package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"StudyScanner/internal/domain"
	"StudyScanner/internal/ports"
)

const runsSchema = `CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	triggered_at INTEGER NOT NULL,
	started_at   INTEGER NOT NULL,
	finished_at  INTEGER NOT NULL,
	status       TEXT NOT NULL,
	failed_at    TEXT NOT NULL DEFAULT '',
	scraped      INTEGER NOT NULL DEFAULT 0,
	added        INTEGER NOT NULL DEFAULT 0,
	announced    INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	notify_error TEXT NOT NULL DEFAULT ''
)`

var runColumns = []string{
	"id", "triggered_at", "started_at", "finished_at", "status", "failed_at",
	"scraped", "added", "announced", "error", "notify_error",
}

// RunHistory persists run outcomes into SQLite.
type RunHistory struct {
	db *sql.DB
}

var _ ports.RunRecorder = (*RunHistory)(nil)

// NewRunHistory wires a sql.DB implementation.
func NewRunHistory(db *sql.DB) *RunHistory {
	return &RunHistory{db: db}
}

// OpenRunHistory opens (or creates) the SQLite file and ensures the schema.
func OpenRunHistory(ctx context.Context, path string) (*RunHistory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	db.SetMaxOpenConns(1)

	h := NewRunHistory(db)
	if err := h.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

// Migrate creates the runs table when missing.
func (h *RunHistory) Migrate(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, runsSchema); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

// Record inserts one run outcome.
func (h *RunHistory) Record(ctx context.Context, rec domain.RunRecord) error {
	if h.db == nil {
		return nil
	}

	query, args, err := sq.Insert("runs").
		Columns(runColumns...).
		Values(
			rec.ID,
			rec.TriggeredAt.UnixNano(),
			rec.StartedAt.UnixNano(),
			rec.FinishedAt.UnixNano(),
			string(rec.Status),
			string(rec.FailedAt),
			rec.Scraped,
			rec.Added,
			rec.Announced,
			rec.Error,
			rec.NotifyError,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := h.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (h *RunHistory) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if h.db == nil || limit <= 0 {
		return nil, nil
	}

	query, args, err := sq.Select(runColumns...).
		From("runs").
		OrderBy("started_at DESC", "rowid DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	var result []domain.RunRecord
	for rows.Next() {
		var (
			rec                          domain.RunRecord
			triggered, started, finished int64
			status, failedAt             string
		)
		if err := rows.Scan(&rec.ID, &triggered, &started, &finished, &status, &failedAt,
			&rec.Scraped, &rec.Added, &rec.Announced, &rec.Error, &rec.NotifyError); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.TriggeredAt = time.Unix(0, triggered).UTC()
		rec.StartedAt = time.Unix(0, started).UTC()
		rec.FinishedAt = time.Unix(0, finished).UTC()
		rec.Status = domain.RunStatus(status)
		rec.FailedAt = domain.RunState(failedAt)
		result = append(result, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// Close releases the database handle.
func (h *RunHistory) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}
