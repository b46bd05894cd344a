// Package storage provides the on-disk projection store for the dashboard:
// a single JSON artifact published atomically so concurrent readers (the
// auxiliary dashboards) never observe a partially-written file.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotStore publishes a JSON document to a fixed path using a
// write-to-temp-then-rename sequence. Rename is atomic on POSIX
// filesystems, so a reader sees either the previous document or the new
// one, never a mix.
type SnapshotStore struct {
	dir  string
	name string
}

// NewSnapshotStore creates a store writing <dir>/<name>. The directory is
// created on first write.
func NewSnapshotStore(dir, name string) *SnapshotStore {
	return &SnapshotStore{dir: dir, name: name}
}

// Path returns the full path of the published document.
func (s *SnapshotStore) Path() string {
	return filepath.Join(s.dir, s.name)
}

// Write marshals v and atomically replaces the published document with it.
func (s *SnapshotStore) Write(v any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+s.name+".*")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	return nil
}

// Read unmarshals the published document into v. Returns os.ErrNotExist
// (wrapped) when nothing was published yet.
func (s *SnapshotStore) Read(v any) error {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	return nil
}
