package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot writes a derived JSON dump of the participant table after
// successful funnel writes. The dump is a reporting convenience, never
// authoritative: the SQLite store remains the sole source of truth and a
// failed snapshot write is logged, not escalated.
type Snapshot struct {
	repo *ParticipantRepository
	path string
}

// NewSnapshot creates a snapshot projection writing to path. An empty
// path disables the projection.
func NewSnapshot(repo *ParticipantRepository, path string) *Snapshot {
	return &Snapshot{repo: repo, path: path}
}

// Enabled reports whether a snapshot path is configured.
func (s *Snapshot) Enabled() bool {
	return s != nil && s.path != ""
}

// Write dumps all participants to the configured file. The write goes
// through a temp file and rename so a crash never leaves a torn dump.
func (s *Snapshot) Write(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	participants, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load participants for snapshot: %w", err)
	}

	data, err := json.MarshalIndent(participants, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
