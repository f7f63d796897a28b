package models

import "time"

// ReminderTimer schedules the pair of follow-up nudges owned 1:1 by a
// participant. Deadlines are computed once at registration time; the
// scheduler never recomputes them per poll.
type ReminderTimer struct {
	ParticipantID int64 `json:"participant_id"`

	// FirstDeadline is nil once the first half is fired or re-armed away.
	FirstDeadline *time.Time `json:"first_deadline,omitempty"`

	// SecondDeadline is nil only for malformed rows.
	SecondDeadline *time.Time `json:"second_deadline,omitempty"`

	FirstFired  bool `json:"first_fired"`
	SecondFired bool `json:"second_fired"`
}

// Complete reports whether both halves have fired and the record may be
// purged.
func (t *ReminderTimer) Complete() bool {
	return t.FirstFired && t.SecondFired
}

// FirstDue reports whether the first follow-up should fire at now.
func (t *ReminderTimer) FirstDue(now time.Time) bool {
	return t.FirstDeadline != nil && !t.FirstFired && !now.Before(*t.FirstDeadline)
}

// SecondDue reports whether the second follow-up should fire at now.
func (t *ReminderTimer) SecondDue(now time.Time) bool {
	return t.SecondDeadline != nil && !t.SecondFired && !now.Before(*t.SecondDeadline)
}

// FinalTimer schedules the single deferred final action, conditioned on
// the participant not having supplied a phone by the deadline.
type FinalTimer struct {
	ParticipantID int64     `json:"participant_id"`
	SendDeadline  time.Time `json:"send_deadline"`
	Sent          bool      `json:"sent"`
}

// Due reports whether the final action should be considered at now.
func (t *FinalTimer) Due(now time.Time) bool {
	return !t.Sent && !now.Before(t.SendDeadline)
}

// Message roles tracked in message_refs so later funnel steps can edit or
// delete a message sent by an earlier step.
const (
	MessageRoleQuestion = "question"
)

// MessageRef maps (participant, logical role) to a deliverable message
// handle. Replaced, never appended, on every write for the same role.
type MessageRef struct {
	ParticipantID int64  `json:"participant_id"`
	Role          string `json:"role"`
	MessageID     int64  `json:"message_id"`
}
