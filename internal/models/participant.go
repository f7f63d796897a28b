// Package models defines the core data types for the funnelbot engine.
package models

import (
	"fmt"
	"time"
)

// FunnelState identifies a participant's position in the scripted funnel.
type FunnelState string

const (
	// StateNew is the state of a participant that has registered but not
	// yet been prompted for anything.
	StateNew FunnelState = "new"

	// StateAwaitingName means the welcome sequence was sent and the bot
	// is waiting for the participant's display name.
	StateAwaitingName FunnelState = "awaiting_name"

	// Question states, one per questionnaire step.
	StateQuestion1 FunnelState = "question_1"
	StateQuestion2 FunnelState = "question_2"
	StateQuestion3 FunnelState = "question_3"
	StateQuestion4 FunnelState = "question_4"

	// StateAwaitingFirstCheck means registration completed and the first
	// follow-up reminder is pending or awaiting an answer.
	StateAwaitingFirstCheck FunnelState = "awaiting_first_check"

	// StateAwaitingSecondCheck means the participant deferred the first
	// check and the second follow-up is pending or awaiting an answer.
	StateAwaitingSecondCheck FunnelState = "awaiting_second_check"

	// StateAwaitingRating means the bot asked for course feedback.
	StateAwaitingRating FunnelState = "awaiting_rating"

	// StateAwaitingPhone means the bot asked for a phone number.
	StateAwaitingPhone FunnelState = "awaiting_phone"

	// StateAwaitingContactTime means the phone was captured and the bot
	// asked for a preferred contact window.
	StateAwaitingContactTime FunnelState = "awaiting_contact_time"

	// StateCompleted is terminal.
	StateCompleted FunnelState = "completed"
)

var funnelStates = map[FunnelState]struct{}{
	StateNew:                 {},
	StateAwaitingName:        {},
	StateQuestion1:           {},
	StateQuestion2:           {},
	StateQuestion3:           {},
	StateQuestion4:           {},
	StateAwaitingFirstCheck:  {},
	StateAwaitingSecondCheck: {},
	StateAwaitingRating:      {},
	StateAwaitingPhone:       {},
	StateAwaitingContactTime: {},
	StateCompleted:           {},
}

// Valid reports whether s is a member of the enumerated state set.
func (s FunnelState) Valid() bool {
	_, ok := funnelStates[s]
	return ok
}

// ParseFunnelState converts a stored string into a FunnelState.
func ParseFunnelState(raw string) (FunnelState, error) {
	s := FunnelState(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown funnel state %q", raw)
	}
	return s, nil
}

// QuestionNumber returns the 1-based question index for a question state,
// or 0 if s is not a question state.
func (s FunnelState) QuestionNumber() int {
	switch s {
	case StateQuestion1:
		return 1
	case StateQuestion2:
		return 2
	case StateQuestion3:
		return 3
	case StateQuestion4:
		return 4
	default:
		return 0
	}
}

// QuestionState returns the state for a 1-based question index.
func QuestionState(n int) (FunnelState, error) {
	switch n {
	case 1:
		return StateQuestion1, nil
	case 2:
		return StateQuestion2, nil
	case 3:
		return StateQuestion3, nil
	case 4:
		return StateQuestion4, nil
	default:
		return "", fmt.Errorf("no question state for index %d", n)
	}
}

// Variant identifies the content bundle assigned to a participant.
// Assigned exactly once when the question flow begins, never re-drawn.
type Variant string

const (
	VariantMentorA Variant = "mentor_a"
	VariantMentorB Variant = "mentor_b"
)

// Valid reports whether v is one of the two known variants.
func (v Variant) Valid() bool {
	return v == VariantMentorA || v == VariantMentorB
}

// Participant is a funnel participant keyed by the external chat user id.
type Participant struct {
	// ID is the externally assigned numeric identity (Telegram user id).
	ID int64 `json:"id"`

	// Username is the optional handle captured at registration.
	Username string `json:"username,omitempty"`

	// FirstName and LastName come from the transport profile.
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`

	// Name is the display name the participant typed in, empty until
	// captured.
	Name string `json:"name,omitempty"`

	// Phone is empty until the participant shares a contact.
	Phone string `json:"phone,omitempty"`

	// State is the current funnel position.
	State FunnelState `json:"state"`

	// Answers holds the four questionnaire answers in question order.
	Answers [4]string `json:"answers"`

	// ContactTime is the preferred contact window, captured last.
	ContactTime string `json:"contact_time,omitempty"`

	// ChannelLink is the generated single-use invite link.
	ChannelLink string `json:"channel_link,omitempty"`

	// Variant is the assigned content bundle, empty until drawn.
	Variant Variant `json:"variant,omitempty"`

	// RegisteredAt is when the participant first appeared.
	RegisteredAt time.Time `json:"registered_at"`

	// PhoneAt is when the phone number was captured, nil until then.
	PhoneAt *time.Time `json:"phone_at,omitempty"`

	// Completed, VIP and HotLead are monotonic flags: once set they are
	// never reset for the participant's lifetime.
	Completed bool `json:"completed"`
	VIP       bool `json:"vip"`
	HotLead   bool `json:"hot_lead"`
}

// InProgress reports whether the participant is inside the funnel.
func (p *Participant) InProgress() bool {
	return !p.Completed && p.State != StateCompleted
}

// Stats summarizes the participant table for reporting.
type Stats struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	VIP       int64 `json:"vip"`
	HotLeads  int64 `json:"hot_leads"`
	MentorA   int64 `json:"mentor_a"`
	MentorB   int64 `json:"mentor_b"`
}
