package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StudyScanner/internal/config"
	"StudyScanner/internal/domain"
	"StudyScanner/internal/infrastructure/storage"
	"StudyScanner/internal/usecase"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("STUDY_SCANNER_CONFIG", "")
	t.Setenv("PORTAL_USERNAME", "")
	t.Setenv("PORTAL_PASSWORD", "")

	dir := t.TempDir()
	cfg := config.LoadFrom("")
	cfg.Portal.BaseURL = "https://portal.example/"
	cfg.Browser.RemoteURL = "ws://127.0.0.1:1/devtools/browser/none"
	cfg.Storage.SnapshotPath = filepath.Join(dir, "studies.json")
	cfg.Storage.HistoryPath = filepath.Join(dir, "history.db")
	cfg.Storage.LockPath = filepath.Join(dir, "studyscanner.lock")
	cfg.Scheduler.CronExpression = "@every 1h"
	off := false
	cfg.Scheduler.RunOnStart = &off
	require.NoError(t, cfg.Validate())
	return cfg
}

type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceRecordsFailedScrape(t *testing.T) {
	cfg := testConfig(t)
	a := New(cfg, quietLogger())

	report, err := a.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, usecase.ErrScrape)
	assert.Equal(t, domain.RunFailed, report.Status)
	assert.Equal(t, domain.StateScraping, report.FailedAt)
	assert.NoFileExists(t, cfg.Storage.SnapshotPath)

	runs, err := a.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.ID, runs[0].ID)
	assert.Equal(t, domain.RunFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestRecentRunsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.HistoryPath = "off"

	_, err := New(cfg, quietLogger()).RecentRuns(context.Background(), 5)
	assert.ErrorContains(t, err, "disabled")
}

func TestRunHoldsInstanceLockUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	logs := &syncBuffer{}
	a := New(cfg, slog.New(slog.NewTextHandler(logs, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "study scanner running")
	}, 2*time.Second, 10*time.Millisecond)

	other := storage.NewInstanceLock(cfg.Storage.LockPath)
	assert.ErrorIs(t, other.Acquire(), storage.ErrLocked)

	_, err := New(cfg, quietLogger()).RunOnce(context.Background())
	assert.ErrorIs(t, err, storage.ErrLocked)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	require.NoError(t, other.Acquire())
	require.NoError(t, other.Release())
}

type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSource) FetchCurrentStudies(context.Context) (domain.Snapshot, error) {
	close(s.entered)
	<-s.release
	return domain.Snapshot{{ID: "1", Name: "Study"}}, nil
}

func TestRunWaitsForInFlightRunOnShutdown(t *testing.T) {
	cfg := testConfig(t)
	on := true
	cfg.Scheduler.RunOnStart = &on
	a := New(cfg, quietLogger())
	src := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	a.source = src

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	<-src.entered
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while a scan was still in flight")
	case <-time.After(150 * time.Millisecond):
	}
	assert.ErrorIs(t, storage.NewInstanceLock(cfg.Storage.LockPath).Acquire(), storage.ErrLocked)

	close(src.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the scan finished")
	}

	assert.FileExists(t, cfg.Storage.SnapshotPath)
	runs, err := a.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunSucceeded, runs[0].Status)
}
