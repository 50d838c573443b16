package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StudyScanner/internal/domain"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	t.Setenv("STUDY_SCANNER_CONFIG", "")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"history", "--config", writeTestConfig(t, "scheduler:\n  cronExpression: nope\n")})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid configuration")
	assert.ErrorContains(t, err, "portal.baseUrl")
}

func TestHistoryCommandEmptyDatabase(t *testing.T) {
	t.Setenv("STUDY_SCANNER_CONFIG", "")
	dir := t.TempDir()
	cfg := "portal:\n  baseUrl: https://portal.example/\n" +
		"storage:\n  snapshotPath: " + filepath.Join(dir, "studies.json") + "\n" +
		"  historyPath: " + filepath.Join(dir, "history.db") + "\n"

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs([]string{"history", "-c", writeTestConfig(t, cfg), "-n", "5"})
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "no runs recorded")
}

func TestPrintRuns(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	printRuns(&out, []domain.RunRecord{
		{ID: "a", StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond), Status: domain.RunSucceeded, Scraped: 4, Added: 2, Announced: 2},
		{ID: "b", StartedAt: start, FinishedAt: start, Status: domain.RunFailed, Error: "scrape failed"},
		{ID: "c", StartedAt: start, FinishedAt: start, Status: domain.RunSucceeded, NotifyError: "429"},
	})

	text := out.String()
	assert.Contains(t, text, "STARTED")
	assert.Contains(t, text, "succeeded")
	assert.Contains(t, text, "1.5s")
	assert.Contains(t, text, "scrape failed")
	assert.Contains(t, text, "notify: 429")
}

func TestPrintReport(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printReport(&out, domain.RunReport{})
	assert.Empty(t, out.String())

	printReport(&out, domain.RunReport{
		ID:       "run-1",
		Status:   domain.RunFailed,
		FailedAt: domain.StateScraping,
		Err:      errors.New("portal down"),
	})
	assert.Contains(t, out.String(), "run run-1 failed")
	assert.Contains(t, out.String(), "failed at scraping: portal down")
}
