package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// CheckpointStore persists RunState as JSON at a fixed path. Save writes a
// sibling temp file and renames it over the target, so a concurrent or
// later Load never observes a half-written checkpoint.
type CheckpointStore struct {
	path string
}

func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

func (c *CheckpointStore) Path() string { return c.path }

// Exists reports whether a checkpoint is present.
func (c *CheckpointStore) Exists() bool {
	_, err := os.Stat(c.path)
	return err == nil
}

// Save atomically replaces the checkpoint with s.
func (c *CheckpointStore) Save(s *RunState) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

// ErrSchemaVersion marks a checkpoint written by an incompatible version of
// the tool.
var ErrSchemaVersion = errors.New("unsupported state schema version")

// Load is a strict read of the last saved state. A missing file is surfaced
// to the caller (resume without a checkpoint is a configuration error, never
// a silent fresh start), and an unknown schema version is rejected.
func (c *CheckpointStore) Load() (*RunState, error) {
	b, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	var s RunState
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", c.path, err)
	}
	if s.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSchemaVersion, s.Version, SchemaVersion)
	}
	return &s, nil
}
