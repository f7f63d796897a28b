package db

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/leadgenlab/funnelbot/internal/models"
)

func TestSnapshotWritesParticipantDump(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	repo := NewParticipantRepository(database)

	createTestParticipant(t, repo, 100)
	createTestParticipant(t, repo, 200)

	path := filepath.Join(t.TempDir(), "dumps", "snapshot.json")
	snap := NewSnapshot(repo, path)
	if !snap.Enabled() {
		t.Fatal("snapshot with path should be enabled")
	}

	if err := snap.Write(ctx); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var dumped []*models.Participant
	if err := json.Unmarshal(data, &dumped); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(dumped) != 2 {
		t.Fatalf("expected 2 participants in dump, got %d", len(dumped))
	}

	// No leftover temp file after the rename.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file still present: %v", err)
	}
}

func TestSnapshotDisabledWithoutPath(t *testing.T) {
	database := openTestDB(t)
	repo := NewParticipantRepository(database)

	snap := NewSnapshot(repo, "")
	if snap.Enabled() {
		t.Fatal("empty path should disable the snapshot")
	}
	if err := snap.Write(context.Background()); err != nil {
		t.Fatalf("disabled snapshot write: %v", err)
	}
}
