package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadgenlab/funnelbot/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := OpenInMemory(zerolog.Nop())
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if _, err := database.MigrateUp(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func createTestParticipant(t *testing.T, repo *ParticipantRepository, id int64) *models.Participant {
	t.Helper()

	p := &models.Participant{
		ID:        id,
		Username:  "tester",
		FirstName: "Test",
		State:     models.StateNew,
	}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("create participant: %v", err)
	}
	return p
}

func TestParticipantCreateAndGet(t *testing.T) {
	repo := NewParticipantRepository(openTestDB(t))
	ctx := context.Background()

	createTestParticipant(t, repo, 100)

	exists, err := repo.Exists(ctx, 100)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatal("created participant does not exist")
	}

	p, err := repo.Get(ctx, 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Username != "tester" || p.State != models.StateNew {
		t.Fatalf("unexpected participant: %+v", p)
	}
	if p.RegisteredAt.IsZero() {
		t.Fatal("registered_at not set")
	}

	if _, err := repo.Get(ctx, 999); !errors.Is(err, ErrParticipantNotFound) {
		t.Fatalf("get missing: got %v, want ErrParticipantNotFound", err)
	}
}

func TestParticipantCreateDoesNotClobberProgress(t *testing.T) {
	repo := NewParticipantRepository(openTestDB(t))
	ctx := context.Background()

	createTestParticipant(t, repo, 100)
	if err := repo.UpdateName(ctx, 100, "Alice"); err != nil {
		t.Fatalf("update name: %v", err)
	}
	if err := repo.UpdateState(ctx, 100, models.StateQuestion3); err != nil {
		t.Fatalf("update state: %v", err)
	}

	// A repeated /start re-inserts; progress must survive.
	if err := repo.Create(ctx, &models.Participant{ID: 100, FirstName: "Other"}); err != nil {
		t.Fatalf("re-create: %v", err)
	}

	p, err := repo.Get(ctx, 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Name != "Alice" || p.State != models.StateQuestion3 || p.FirstName != "Test" {
		t.Fatalf("progress clobbered: %+v", p)
	}
}

func TestParticipantStateTransitions(t *testing.T) {
	repo := NewParticipantRepository(openTestDB(t))
	ctx := context.Background()

	createTestParticipant(t, repo, 100)

	if err := repo.UpdateState(ctx, 100, models.StateAwaitingName); err != nil {
		t.Fatalf("update state: %v", err)
	}
	state, err := repo.GetState(ctx, 100)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state != models.StateAwaitingName {
		t.Fatalf("state = %s, want awaiting_name", state)
	}

	if err := repo.UpdateState(ctx, 100, models.FunnelState("question_9")); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("invalid state: got %v, want ErrInvalidState", err)
	}
	if err := repo.UpdateState(ctx, 999, models.StateCompleted); !errors.Is(err, ErrParticipantNotFound) {
		t.Fatalf("missing participant: got %v, want ErrParticipantNotFound", err)
	}
}

func TestParticipantVariantAssignedOnce(t *testing.T) {
	repo := NewParticipantRepository(openTestDB(t))
	ctx := context.Background()

	createTestParticipant(t, repo, 100)

	if err := repo.SetVariant(ctx, 100, models.VariantMentorA); err != nil {
		t.Fatalf("set variant: %v", err)
	}
	if err := repo.SetVariant(ctx, 100, models.VariantMentorB); !errors.Is(err, ErrVariantAssigned) {
		t.Fatalf("second draw: got %v, want ErrVariantAssigned", err)
	}

	p, err := repo.Get(ctx, 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Variant != models.VariantMentorA {
		t.Fatalf("variant = %s, want mentor_a", p.Variant)
	}
}

func TestParticipantAnswers(t *testing.T) {
	repo := NewParticipantRepository(openTestDB(t))
	ctx := context.Background()

	createTestParticipant(t, repo, 100)

	answers := []string{"a", "b", "c", "d"}
	for i, answer := range answers {
		if err := repo.SetAnswer(ctx, 100, i+1, answer); err != nil {
			t.Fatalf("set answer %d: %v", i+1, err)
		}
	}
	if err := repo.SetAnswer(ctx, 100, 5, "x"); err == nil {
		t.Fatal("expected error for question 5")
	}

	p, err := repo.Get(ctx, 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for i, want := range answers {
		if p.Answers[i] != want {
			t.Fatalf("answer %d = %q, want %q", i+1, p.Answers[i], want)
		}
	}
}

func TestParticipantPhoneCaptureRaisesFlags(t *testing.T) {
	repo := NewParticipantRepository(openTestDB(t))
	ctx := context.Background()

	createTestParticipant(t, repo, 100)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.SetPhone(ctx, 100, "+15551234", at); err != nil {
		t.Fatalf("set phone: %v", err)
	}

	p, err := repo.Get(ctx, 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Phone != "+15551234" || !p.VIP || !p.HotLead {
		t.Fatalf("phone capture flags wrong: %+v", p)
	}
	if p.PhoneAt == nil || !p.PhoneAt.Equal(at) {
		t.Fatalf("phone_at = %v, want %v", p.PhoneAt, at)
	}

	leads, err := repo.HotLeads(ctx)
	if err != nil {
		t.Fatalf("hot leads: %v", err)
	}
	if len(leads) != 1 || leads[0].ID != 100 {
		t.Fatalf("hot leads = %+v", leads)
	}
}

func TestParticipantContactTimeCompletes(t *testing.T) {
	repo := NewParticipantRepository(openTestDB(t))
	ctx := context.Background()

	createTestParticipant(t, repo, 100)

	if err := repo.SetContactTime(ctx, 100, "Morning (9-12)"); err != nil {
		t.Fatalf("set contact time: %v", err)
	}

	p, err := repo.Get(ctx, 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.ContactTime != "Morning (9-12)" || !p.Completed {
		t.Fatalf("completion flags wrong: %+v", p)
	}
}

func TestParticipantStats(t *testing.T) {
	repo := NewParticipantRepository(openTestDB(t))
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		createTestParticipant(t, repo, id)
	}
	if err := repo.SetVariant(ctx, 1, models.VariantMentorA); err != nil {
		t.Fatalf("set variant: %v", err)
	}
	if err := repo.SetVariant(ctx, 2, models.VariantMentorB); err != nil {
		t.Fatalf("set variant: %v", err)
	}
	if err := repo.SetPhone(ctx, 1, "+1", time.Now().UTC()); err != nil {
		t.Fatalf("set phone: %v", err)
	}
	if err := repo.SetContactTime(ctx, 1, "Evening (17-21)"); err != nil {
		t.Fatalf("set contact time: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Completed != 1 || stats.VIP != 1 || stats.HotLeads != 1 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.MentorA != 1 || stats.MentorB != 1 {
		t.Fatalf("unexpected variant split: %+v", stats)
	}
}
