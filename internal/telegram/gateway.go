// Package telegram provides the delivery gateway for funnelbot: an
// abstract capability interface consumed by the funnel engine and the
// scheduler, plus a Bot API implementation and the long-poll update pump.
package telegram

import (
	"context"
	"fmt"
)

// MediaKind identifies the media type of a MediaRef.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVoice MediaKind = "voice"
	MediaVideo MediaKind = "video"
)

// MediaRef points at an already-uploaded media asset by transport file id.
type MediaRef struct {
	Kind   MediaKind
	FileID string
}

// Button is one inline keyboard button. Data and URL are mutually
// exclusive.
type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard describes the reply markup attached to an outbound message.
// At most one of Inline, ContactLabel and Remove is honored.
type Keyboard struct {
	// Inline renders rows of inline buttons.
	Inline [][]Button

	// ContactLabel renders a one-time reply keyboard with a single
	// share-contact button carrying this label.
	ContactLabel string

	// Remove clears any visible reply keyboard.
	Remove bool
}

// Inline builds an inline keyboard with one button per row.
func Inline(buttons ...Button) *Keyboard {
	kb := &Keyboard{}
	for _, b := range buttons {
		kb.Inline = append(kb.Inline, []Button{b})
	}
	return kb
}

// Gateway is the delivery capability consumed by the funnel core. All
// calls may fail with a transport error; the core logs and continues
// rather than aborting the surrounding transition.
type Gateway interface {
	// SendText delivers a text message and returns its handle.
	SendText(ctx context.Context, chatID int64, text string, kb *Keyboard) (int64, error)

	// SendMedia delivers a media message and returns its handle.
	SendMedia(ctx context.Context, chatID int64, media MediaRef, caption string, kb *Keyboard) (int64, error)

	// EditText replaces the text (and inline keyboard) of an earlier
	// message.
	EditText(ctx context.Context, chatID, messageID int64, text string, kb *Keyboard) error

	// DeleteMessage removes an earlier message.
	DeleteMessage(ctx context.Context, chatID, messageID int64) error

	// CreateSingleUseInviteLink mints a one-member invite link for the
	// given channel.
	CreateSingleUseInviteLink(ctx context.Context, channelID int64) (string, error)
}

// DeliveryError marks a gateway call failure. The state mutation that
// preceded the call is never rolled back; callers log and continue.
type DeliveryError struct {
	Method string
	ChatID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery: %s to chat %d: %v", e.Method, e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
