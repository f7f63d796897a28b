package db

import (
	"context"
	"errors"
	"testing"

	"github.com/leadgenlab/funnelbot/internal/models"
)

func TestMessageRefReplacedPerRole(t *testing.T) {
	repo := NewMessageRefRepository(openTestDB(t))
	ctx := context.Background()

	ref := &models.MessageRef{ParticipantID: 100, Role: models.MessageRoleQuestion, MessageID: 7}
	if err := repo.Save(ctx, ref); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A later step replaces the handle for the same role.
	ref.MessageID = 8
	if err := repo.Save(ctx, ref); err != nil {
		t.Fatalf("save replacement: %v", err)
	}

	got, err := repo.Get(ctx, 100, models.MessageRoleQuestion)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MessageID != 8 {
		t.Fatalf("message id = %d, want 8", got.MessageID)
	}

	if err := repo.Delete(ctx, 100, models.MessageRoleQuestion); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, 100, models.MessageRoleQuestion); !errors.Is(err, ErrMessageRefNotFound) {
		t.Fatalf("get after delete: got %v, want ErrMessageRefNotFound", err)
	}

	// Deleting an absent ref is a no-op.
	if err := repo.Delete(ctx, 100, models.MessageRoleQuestion); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}
