package models

import (
	"encoding/json"
	"time"
)

// EventType categorizes entries in the funnel audit log.
type EventType string

const (
	// Participant lifecycle events.
	EventTypeRegistered      EventType = "participant.registered"
	EventTypeStateChanged    EventType = "participant.state_changed"
	EventTypeVariantAssigned EventType = "participant.variant_assigned"
	EventTypePhoneCaptured   EventType = "participant.phone_captured"
	EventTypeCompleted       EventType = "participant.completed"

	// Timer events.
	EventTypeReminderScheduled EventType = "reminder.scheduled"
	EventTypeReminderFired     EventType = "reminder.fired"
	EventTypeReminderRearmed   EventType = "reminder.rearmed"
	EventTypeReminderCancelled EventType = "reminder.cancelled"
	EventTypeFinalScheduled    EventType = "final.scheduled"
	EventTypeFinalFired        EventType = "final.fired"
	EventTypeFinalVoided       EventType = "final.voided"
)

// Event is an append-only audit log entry tied to a participant.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// ParticipantID is the participant the event relates to.
	ParticipantID int64 `json:"participant_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StateChangedPayload is the payload for participant.state_changed events.
type StateChangedPayload struct {
	OldState FunnelState `json:"old_state"`
	NewState FunnelState `json:"new_state"`
}

// VariantAssignedPayload is the payload for participant.variant_assigned
// events.
type VariantAssignedPayload struct {
	Variant Variant `json:"variant"`
}

// ReminderFiredPayload is the payload for reminder.fired events.
type ReminderFiredPayload struct {
	Half string `json:"half"` // "first" or "second"
}

// FinalFiredPayload is the payload for final.fired and final.voided events.
type FinalFiredPayload struct {
	Voided bool `json:"voided"`
}
