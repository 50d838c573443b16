package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceLockExclusive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run", "studyscanner.lock")
	first := NewInstanceLock(path)
	second := NewInstanceLock(path)

	require.NoError(t, first.Acquire())
	err := second.Acquire()
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Release())
	require.NoError(t, second.Acquire())
	require.NoError(t, second.Release())
}

func TestInstanceLockReleaseWithoutAcquire(t *testing.T) {
	t.Parallel()

	l := NewInstanceLock(filepath.Join(t.TempDir(), "x.lock"))
	assert.NoError(t, l.Release())
}
