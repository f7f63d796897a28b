package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leadgenlab/funnelbot/internal/models"
)

func TestEventAppendAndGet(t *testing.T) {
	repo := NewEventRepository(openTestDB(t))
	ctx := context.Background()

	event := &models.Event{
		Type:          models.EventTypeRegistered,
		ParticipantID: 100,
	}
	if err := repo.Append(ctx, event); err != nil {
		t.Fatalf("append: %v", err)
	}
	if event.ID == "" {
		t.Fatal("append did not assign an id")
	}
	if event.Timestamp.IsZero() {
		t.Fatal("append did not assign a timestamp")
	}

	got, err := repo.Get(ctx, event.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type != models.EventTypeRegistered || got.ParticipantID != 100 {
		t.Fatalf("unexpected event: %+v", got)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("get missing: got %v, want ErrEventNotFound", err)
	}
}

func TestEventAppendValidation(t *testing.T) {
	repo := NewEventRepository(openTestDB(t))
	ctx := context.Background()

	if err := repo.Append(ctx, &models.Event{ParticipantID: 1}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("missing type: got %v, want ErrInvalidEvent", err)
	}
	if err := repo.Append(ctx, &models.Event{Type: models.EventTypeRegistered}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("missing participant: got %v, want ErrInvalidEvent", err)
	}
}

func TestEventListByParticipant(t *testing.T) {
	repo := NewEventRepository(openTestDB(t))
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	types := []models.EventType{
		models.EventTypeRegistered,
		models.EventTypeStateChanged,
		models.EventTypePhoneCaptured,
	}
	for i, typ := range types {
		event := &models.Event{
			Type:          typ,
			ParticipantID: 100,
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Append(ctx, event); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}
	if err := repo.Append(ctx, &models.Event{Type: models.EventTypeRegistered, ParticipantID: 200}); err != nil {
		t.Fatalf("append other participant: %v", err)
	}

	listed, err := repo.ListByParticipant(ctx, 100, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != len(types) {
		t.Fatalf("got %d events, want %d", len(listed), len(types))
	}
	for i, event := range listed {
		if event.Type != types[i] {
			t.Fatalf("event %d type = %s, want %s", i, event.Type, types[i])
		}
	}
}
