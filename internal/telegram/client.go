package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client is a Bot API HTTP client implementing Gateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     zerolog.Logger
}

// NewClient creates a Bot API client. baseURL is normally
// https://api.telegram.org; tests point it at a local server.
func NewClient(baseURL, token string, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 65 * time.Second},
		baseURL:    baseURL,
		token:      token,
		logger:     logger.With().Str("component", "telegram").Logger(),
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("%s rejected: %s (code %d)", method, envelope.Description, envelope.ErrorCode)
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

func markup(kb *Keyboard) any {
	if kb == nil {
		return nil
	}
	switch {
	case len(kb.Inline) > 0:
		m := inlineKeyboardMarkup{}
		for _, row := range kb.Inline {
			var buttons []inlineKeyboardButton
			for _, b := range row {
				buttons = append(buttons, inlineKeyboardButton{Text: b.Text, CallbackData: b.Data, URL: b.URL})
			}
			m.InlineKeyboard = append(m.InlineKeyboard, buttons)
		}
		return m
	case kb.ContactLabel != "":
		return replyKeyboardMarkup{
			Keyboard:        [][]keyboardButton{{{Text: kb.ContactLabel, RequestContact: true}}},
			ResizeKeyboard:  true,
			OneTimeKeyboard: true,
		}
	case kb.Remove:
		return replyKeyboardRemove{RemoveKeyboard: true}
	default:
		return nil
	}
}

// SendText implements Gateway.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, kb *Keyboard) (int64, error) {
	payload := map[string]any{"chat_id": chatID, "text": text}
	if m := markup(kb); m != nil {
		payload["reply_markup"] = m
	}

	var sent Message
	if err := c.call(ctx, "sendMessage", payload, &sent); err != nil {
		return 0, &DeliveryError{Method: "sendMessage", ChatID: chatID, Err: err}
	}
	return sent.MessageID, nil
}

// SendMedia implements Gateway.
func (c *Client) SendMedia(ctx context.Context, chatID int64, media MediaRef, caption string, kb *Keyboard) (int64, error) {
	var method, field string
	switch media.Kind {
	case MediaPhoto:
		method, field = "sendPhoto", "photo"
	case MediaVoice:
		method, field = "sendVoice", "voice"
	case MediaVideo:
		method, field = "sendVideo", "video"
	default:
		return 0, fmt.Errorf("unknown media kind %q", media.Kind)
	}

	payload := map[string]any{"chat_id": chatID, field: media.FileID}
	if caption != "" {
		payload["caption"] = caption
	}
	if m := markup(kb); m != nil {
		payload["reply_markup"] = m
	}

	var sent Message
	if err := c.call(ctx, method, payload, &sent); err != nil {
		return 0, &DeliveryError{Method: method, ChatID: chatID, Err: err}
	}
	return sent.MessageID, nil
}

// EditText implements Gateway.
func (c *Client) EditText(ctx context.Context, chatID, messageID int64, text string, kb *Keyboard) error {
	payload := map[string]any{"chat_id": chatID, "message_id": messageID, "text": text}
	if m := markup(kb); m != nil {
		payload["reply_markup"] = m
	}
	if err := c.call(ctx, "editMessageText", payload, nil); err != nil {
		return &DeliveryError{Method: "editMessageText", ChatID: chatID, Err: err}
	}
	return nil
}

// DeleteMessage implements Gateway.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	payload := map[string]any{"chat_id": chatID, "message_id": messageID}
	if err := c.call(ctx, "deleteMessage", payload, nil); err != nil {
		return &DeliveryError{Method: "deleteMessage", ChatID: chatID, Err: err}
	}
	return nil
}

// CreateSingleUseInviteLink implements Gateway.
func (c *Client) CreateSingleUseInviteLink(ctx context.Context, channelID int64) (string, error) {
	payload := map[string]any{"chat_id": channelID, "member_limit": 1}
	var link chatInviteLink
	if err := c.call(ctx, "createChatInviteLink", payload, &link); err != nil {
		return "", &DeliveryError{Method: "createChatInviteLink", ChatID: channelID, Err: err}
	}
	return link.InviteLink, nil
}

// AnswerCallbackQuery acknowledges a button press so the client stops
// showing a spinner. Failures are not interesting to callers.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) {
	payload := map[string]any{"callback_query_id": callbackID}
	if err := c.call(ctx, "answerCallbackQuery", payload, nil); err != nil {
		c.logger.Debug().Err(err).Msg("failed to answer callback query")
	}
}

// GetUpdates long-polls for new updates past offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":  offset,
		"timeout": int(timeout.Seconds()),
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}
