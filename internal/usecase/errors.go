package usecase

import "errors"

// Run failure categories, matched with errors.Is.
var (
	ErrScrape        = errors.New("scrape failed")
	ErrPersistence   = errors.New("snapshot persistence failed")
	ErrNotification  = errors.New("notification delivery failed")
	ErrRunInProgress = errors.New("a run is already in progress")
	errRunPanicked   = errors.New("run panicked")
)
