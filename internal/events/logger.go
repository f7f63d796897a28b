// Package events provides helper functions for recording funnel audit
// events.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leadgenlab/funnelbot/internal/models"
)

// Repository is the minimal interface needed to write events.
type Repository interface {
	Append(ctx context.Context, event *models.Event) error
}

// LogRegistered records a participant registration.
func LogRegistered(ctx context.Context, repo Repository, participantID int64) error {
	return log(ctx, repo, models.EventTypeRegistered, participantID, nil)
}

// LogStateChanged records a funnel state transition.
func LogStateChanged(ctx context.Context, repo Repository, participantID int64, from, to models.FunnelState) error {
	payload, err := json.Marshal(models.StateChangedPayload{OldState: from, NewState: to})
	if err != nil {
		return fmt.Errorf("failed to marshal state payload: %w", err)
	}
	return log(ctx, repo, models.EventTypeStateChanged, participantID, payload)
}

// LogVariantAssigned records the one-time content variant draw.
func LogVariantAssigned(ctx context.Context, repo Repository, participantID int64, v models.Variant) error {
	payload, err := json.Marshal(models.VariantAssignedPayload{Variant: v})
	if err != nil {
		return fmt.Errorf("failed to marshal variant payload: %w", err)
	}
	return log(ctx, repo, models.EventTypeVariantAssigned, participantID, payload)
}

// LogPhoneCaptured records a phone capture.
func LogPhoneCaptured(ctx context.Context, repo Repository, participantID int64) error {
	return log(ctx, repo, models.EventTypePhoneCaptured, participantID, nil)
}

// LogCompleted records the participant finishing the funnel.
func LogCompleted(ctx context.Context, repo Repository, participantID int64) error {
	return log(ctx, repo, models.EventTypeCompleted, participantID, nil)
}

// LogReminderScheduled records a reminder timer being armed at
// registration.
func LogReminderScheduled(ctx context.Context, repo Repository, participantID int64) error {
	return log(ctx, repo, models.EventTypeReminderScheduled, participantID, nil)
}

// LogReminderRearmed records a deferred second check replacing the timer.
func LogReminderRearmed(ctx context.Context, repo Repository, participantID int64) error {
	return log(ctx, repo, models.EventTypeReminderRearmed, participantID, nil)
}

// LogReminderCancelled records a reminder retired before firing.
func LogReminderCancelled(ctx context.Context, repo Repository, participantID int64) error {
	return log(ctx, repo, models.EventTypeReminderCancelled, participantID, nil)
}

// LogFinalScheduled records a final-action timer being armed.
func LogFinalScheduled(ctx context.Context, repo Repository, participantID int64) error {
	return log(ctx, repo, models.EventTypeFinalScheduled, participantID, nil)
}

// LogReminderFired records a reminder firing; half is "first" or "second".
func LogReminderFired(ctx context.Context, repo Repository, participantID int64, half string) error {
	payload, err := json.Marshal(models.ReminderFiredPayload{Half: half})
	if err != nil {
		return fmt.Errorf("failed to marshal reminder payload: %w", err)
	}
	return log(ctx, repo, models.EventTypeReminderFired, participantID, payload)
}

// LogFinalFired records a final-action firing. A voided firing means the
// deadline elapsed after the phone was captured and nothing was delivered.
func LogFinalFired(ctx context.Context, repo Repository, participantID int64, voided bool) error {
	payload, err := json.Marshal(models.FinalFiredPayload{Voided: voided})
	if err != nil {
		return fmt.Errorf("failed to marshal final payload: %w", err)
	}
	typ := models.EventTypeFinalFired
	if voided {
		typ = models.EventTypeFinalVoided
	}
	return log(ctx, repo, typ, participantID, payload)
}

func log(ctx context.Context, repo Repository, typ models.EventType, participantID int64, payload []byte) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if participantID == 0 {
		return fmt.Errorf("participant id is required")
	}
	return repo.Append(ctx, &models.Event{
		Type:          typ,
		ParticipantID: participantID,
		Payload:       payload,
	})
}
