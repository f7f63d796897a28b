package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leadgenlab/funnelbot/internal/models"
)

func insertTestReminder(t *testing.T, repo *TimerRepository, id int64, first, second time.Time) {
	t.Helper()

	timer := reminderFor(id, first, second)
	if err := repo.UpsertReminder(context.Background(), timer); err != nil {
		t.Fatalf("upsert reminder: %v", err)
	}
}

func reminderFor(id int64, first, second time.Time) *models.ReminderTimer {
	return &models.ReminderTimer{
		ParticipantID:  id,
		FirstDeadline:  &first,
		SecondDeadline: &second,
	}
}

func TestReminderRoundTrip(t *testing.T) {
	repo := NewTimerRepository(openTestDB(t))
	ctx := context.Background()

	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	insertTestReminder(t, repo, 1, first, second)

	timer, err := repo.GetReminder(ctx, 1)
	if err != nil {
		t.Fatalf("get reminder: %v", err)
	}
	if timer.FirstDeadline == nil || !timer.FirstDeadline.Equal(first) {
		t.Fatalf("first deadline = %v, want %v", timer.FirstDeadline, first)
	}
	if timer.SecondDeadline == nil || !timer.SecondDeadline.Equal(second) {
		t.Fatalf("second deadline = %v, want %v", timer.SecondDeadline, second)
	}
	if timer.FirstFired || timer.SecondFired {
		t.Fatalf("fresh timer has fired flags: %+v", timer)
	}

	if _, err := repo.GetReminder(ctx, 999); !errors.Is(err, ErrReminderNotFound) {
		t.Fatalf("get missing: got %v, want ErrReminderNotFound", err)
	}
}

func TestMarkFiredIsExactlyOnce(t *testing.T) {
	repo := NewTimerRepository(openTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC()
	insertTestReminder(t, repo, 1, now, now.Add(time.Hour))

	won, err := repo.MarkFirstFired(ctx, 1)
	if err != nil {
		t.Fatalf("mark first fired: %v", err)
	}
	if !won {
		t.Fatal("first mark did not win")
	}

	// A second writer must lose the tie-break.
	won, err = repo.MarkFirstFired(ctx, 1)
	if err != nil {
		t.Fatalf("mark first fired again: %v", err)
	}
	if won {
		t.Fatal("second mark won; follow-up would go out twice")
	}

	// A missing row loses too.
	won, err = repo.MarkSecondFired(ctx, 999)
	if err != nil {
		t.Fatalf("mark second fired on missing row: %v", err)
	}
	if won {
		t.Fatal("mark on missing row won")
	}
}

func TestRearmSecondReplacesTimer(t *testing.T) {
	repo := NewTimerRepository(openTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertTestReminder(t, repo, 1, now, now.Add(time.Hour))
	if _, err := repo.MarkFirstFired(ctx, 1); err != nil {
		t.Fatalf("mark first fired: %v", err)
	}

	fresh := now.Add(2 * time.Hour)
	if err := repo.RearmSecond(ctx, 1, fresh); err != nil {
		t.Fatalf("rearm second: %v", err)
	}

	timer, err := repo.GetReminder(ctx, 1)
	if err != nil {
		t.Fatalf("get reminder: %v", err)
	}
	if timer.FirstDeadline != nil {
		t.Fatalf("re-armed timer kept first deadline %v", timer.FirstDeadline)
	}
	if !timer.FirstFired {
		t.Fatal("re-armed timer lost first_fired")
	}
	if timer.SecondFired {
		t.Fatal("re-armed timer has second_fired set")
	}
	if timer.SecondDeadline == nil || !timer.SecondDeadline.Equal(fresh) {
		t.Fatalf("second deadline = %v, want %v", timer.SecondDeadline, fresh)
	}

	// Replaced, never duplicated.
	timers, err := repo.ListReminders(ctx)
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(timers) != 1 {
		t.Fatalf("got %d reminder rows, want 1", len(timers))
	}
}

func TestListRemindersKeepsFiredFlags(t *testing.T) {
	repo := NewTimerRepository(openTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC()
	insertTestReminder(t, repo, 1, now, now.Add(time.Hour))
	insertTestReminder(t, repo, 2, now, now.Add(time.Hour))
	if _, err := repo.MarkFirstFired(ctx, 2); err != nil {
		t.Fatalf("mark first fired: %v", err)
	}

	timers, err := repo.ListReminders(ctx)
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(timers) != 2 {
		t.Fatalf("got %d timers, want 2", len(timers))
	}
	byID := map[int64]bool{}
	for _, timer := range timers {
		byID[timer.ParticipantID] = timer.FirstFired
	}
	if byID[1] || !byID[2] {
		t.Fatalf("fired flags not preserved: %v", byID)
	}
}

func TestFinalTimerLifecycle(t *testing.T) {
	repo := NewTimerRepository(openTestDB(t))
	ctx := context.Background()

	deadline := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	if err := repo.UpsertFinal(ctx, &models.FinalTimer{ParticipantID: 1, SendDeadline: deadline}); err != nil {
		t.Fatalf("upsert final: %v", err)
	}

	timer, err := repo.GetFinal(ctx, 1)
	if err != nil {
		t.Fatalf("get final: %v", err)
	}
	if !timer.SendDeadline.Equal(deadline) || timer.Sent {
		t.Fatalf("unexpected final timer: %+v", timer)
	}

	pending, err := repo.ListPendingFinals(ctx)
	if err != nil {
		t.Fatalf("list pending finals: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending finals, want 1", len(pending))
	}

	won, err := repo.MarkFinalSent(ctx, 1)
	if err != nil {
		t.Fatalf("mark final sent: %v", err)
	}
	if !won {
		t.Fatal("first mark did not win")
	}
	won, err = repo.MarkFinalSent(ctx, 1)
	if err != nil {
		t.Fatalf("mark final sent again: %v", err)
	}
	if won {
		t.Fatal("second mark won")
	}

	pending, err = repo.ListPendingFinals(ctx)
	if err != nil {
		t.Fatalf("list pending finals: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("sent final still pending: %+v", pending)
	}
}

func TestCleanupOnlyRetiresSpentRows(t *testing.T) {
	repo := NewTimerRepository(openTestDB(t))
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	insertTestReminder(t, repo, 1, old, old.Add(time.Hour)) // pending, old
	insertTestReminder(t, repo, 2, old, old.Add(time.Hour)) // will be spent
	if _, err := repo.MarkFirstFired(ctx, 2); err != nil {
		t.Fatalf("mark first fired: %v", err)
	}
	if _, err := repo.MarkSecondFired(ctx, 2); err != nil {
		t.Fatalf("mark second fired: %v", err)
	}

	if err := repo.UpsertFinal(ctx, &models.FinalTimer{ParticipantID: 3, SendDeadline: old}); err != nil {
		t.Fatalf("upsert final: %v", err)
	}
	if err := repo.UpsertFinal(ctx, &models.FinalTimer{ParticipantID: 4, SendDeadline: old, Sent: true}); err != nil {
		t.Fatalf("upsert final: %v", err)
	}

	removed, err := repo.CleanupOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed %d rows, want 2", removed)
	}

	if _, err := repo.GetReminder(ctx, 1); err != nil {
		t.Fatalf("pending reminder removed: %v", err)
	}
	if _, err := repo.GetReminder(ctx, 2); !errors.Is(err, ErrReminderNotFound) {
		t.Fatal("spent reminder survived cleanup")
	}
	if _, err := repo.GetFinal(ctx, 3); err != nil {
		t.Fatalf("pending final removed: %v", err)
	}
	if _, err := repo.GetFinal(ctx, 4); !errors.Is(err, ErrFinalNotFound) {
		t.Fatal("spent final survived cleanup")
	}
}
