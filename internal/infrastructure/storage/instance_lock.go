package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the instance lock.
var ErrLocked = errors.New("another studyscanner instance is already running")

// InstanceLock guards the state directory against a second process racing
// on the same snapshot file.
type InstanceLock struct {
	path string
	lock *flock.Flock
}

// NewInstanceLock prepares a lock on path without acquiring it.
func NewInstanceLock(path string) *InstanceLock {
	return &InstanceLock{path: path, lock: flock.New(path)}
}

// Acquire takes the lock without blocking.
func (l *InstanceLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrLocked, l.path)
	}
	return nil
}

// Release drops the lock; safe to call when not held.
func (l *InstanceLock) Release() error {
	if !l.lock.Locked() {
		return nil
	}
	return l.lock.Unlock()
}
