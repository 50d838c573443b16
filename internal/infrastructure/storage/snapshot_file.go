package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"StudyScanner/internal/domain"
	"StudyScanner/internal/ports"
)

// FileSnapshotStore keeps the latest snapshot as an indented JSON array.
type FileSnapshotStore struct {
	path   string
	logger *slog.Logger
}

var _ ports.SnapshotStore = (*FileSnapshotStore)(nil)

// NewFileSnapshotStore binds the store to a file path.
func NewFileSnapshotStore(path string, log *slog.Logger) *FileSnapshotStore {
	if log == nil {
		log = slog.Default()
	}
	return &FileSnapshotStore{path: path, logger: log}
}

// Path returns the backing file location.
func (s *FileSnapshotStore) Path() string {
	return s.path
}

// Load returns the persisted snapshot. A missing, unreadable or corrupt file
// yields an empty snapshot, so the following run reports every listed study.
func (s *FileSnapshotStore) Load(_ context.Context) domain.Snapshot {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("no snapshot yet, starting from empty", "path", s.path)
		} else {
			s.logger.Warn("snapshot unreadable, starting from empty", "path", s.path, "error", err)
		}
		return domain.Snapshot{}
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		s.logger.Warn("snapshot corrupt, starting from empty", "path", s.path, "error", err)
		return domain.Snapshot{}
	}
	if snapshot == nil {
		snapshot = domain.Snapshot{}
	}

	return snapshot
}

// Save replaces the snapshot file via write-to-temp and rename.
func (s *FileSnapshotStore) Save(_ context.Context, snapshot domain.Snapshot) error {
	if snapshot == nil {
		snapshot = domain.Snapshot{}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved", "path", s.path, "studies", len(snapshot))
	return nil
}
