package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// apiRecorder is a local Bot API stub.
type apiRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(method string, body map[string]any) (any, bool)
}

type recordedRequest struct {
	method string
	body   map[string]any
}

func (r *apiRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))

		// Paths look like /bot<token>/<method>.
		method := req.URL.Path[len("/bottest-token/"):]
		r.mu.Lock()
		r.requests = append(r.requests, recordedRequest{method: method, body: body})
		r.mu.Unlock()

		result, ok := any(nil), true
		if r.respond != nil {
			result, ok = r.respond(method, body)
		}
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			fmt.Fprint(w, `{"ok":false,"description":"chat not found","error_code":400}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	}
}

func (r *apiRecorder) last() recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[len(r.requests)-1]
}

func newTestClient(t *testing.T, rec *apiRecorder) *Client {
	t.Helper()
	server := httptest.NewServer(rec.handler(t))
	t.Cleanup(server.Close)
	return NewClient(server.URL, "test-token", zerolog.Nop())
}

func TestSendTextCarriesMarkup(t *testing.T) {
	rec := &apiRecorder{respond: func(method string, body map[string]any) (any, bool) {
		return Message{MessageID: 42}, true
	}}
	client := newTestClient(t, rec)

	id, err := client.SendText(context.Background(), 7, "hello",
		Inline(Button{Text: "Go", Data: "q1_0"}))
	require.NoError(t, err)
	require.Equal(t, int64(42), id)

	req := rec.last()
	require.Equal(t, "sendMessage", req.method)
	require.Equal(t, "hello", req.body["text"])
	require.EqualValues(t, 7, req.body["chat_id"])
	require.Contains(t, req.body, "reply_markup")
}

func TestSendTextWrapsAPIErrors(t *testing.T) {
	rec := &apiRecorder{respond: func(method string, body map[string]any) (any, bool) {
		return nil, false
	}}
	client := newTestClient(t, rec)

	_, err := client.SendText(context.Background(), 7, "hello", nil)
	var derr *DeliveryError
	require.True(t, errors.As(err, &derr))
	require.Equal(t, "sendMessage", derr.Method)
	require.Equal(t, int64(7), derr.ChatID)
	require.Contains(t, derr.Error(), "chat not found")
}

func TestSendMediaSelectsMethod(t *testing.T) {
	rec := &apiRecorder{respond: func(method string, body map[string]any) (any, bool) {
		return Message{MessageID: 1}, true
	}}
	client := newTestClient(t, rec)
	ctx := context.Background()

	cases := []struct {
		kind   MediaKind
		method string
		field  string
	}{
		{MediaPhoto, "sendPhoto", "photo"},
		{MediaVoice, "sendVoice", "voice"},
		{MediaVideo, "sendVideo", "video"},
	}
	for _, tc := range cases {
		_, err := client.SendMedia(ctx, 7, MediaRef{Kind: tc.kind, FileID: "file-1"}, "cap", nil)
		require.NoError(t, err)
		req := rec.last()
		require.Equal(t, tc.method, req.method)
		require.Equal(t, "file-1", req.body[tc.field])
		require.Equal(t, "cap", req.body["caption"])
	}

	_, err := client.SendMedia(ctx, 7, MediaRef{Kind: "sticker", FileID: "x"}, "", nil)
	require.Error(t, err)
}

func TestCreateSingleUseInviteLink(t *testing.T) {
	rec := &apiRecorder{respond: func(method string, body map[string]any) (any, bool) {
		return chatInviteLink{InviteLink: "https://t.me/+abc"}, true
	}}
	client := newTestClient(t, rec)

	link, err := client.CreateSingleUseInviteLink(context.Background(), -100)
	require.NoError(t, err)
	require.Equal(t, "https://t.me/+abc", link)

	req := rec.last()
	require.Equal(t, "createChatInviteLink", req.method)
	require.EqualValues(t, 1, req.body["member_limit"])
}

func TestGetUpdatesPassesOffset(t *testing.T) {
	rec := &apiRecorder{respond: func(method string, body map[string]any) (any, bool) {
		return []Update{{UpdateID: 11}}, true
	}}
	client := newTestClient(t, rec)

	updates, err := client.GetUpdates(context.Background(), 10, 20*time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Equal(t, int64(11), updates[0].UpdateID)

	req := rec.last()
	require.Equal(t, "getUpdates", req.method)
	require.EqualValues(t, 10, req.body["offset"])
	require.EqualValues(t, 20, req.body["timeout"])
}

func TestContactKeyboardMarkup(t *testing.T) {
	m := markup(&Keyboard{ContactLabel: "Share my number"})
	reply, ok := m.(replyKeyboardMarkup)
	require.True(t, ok)
	require.True(t, reply.OneTimeKeyboard)
	require.True(t, reply.Keyboard[0][0].RequestContact)

	require.Nil(t, markup(nil))
	require.Nil(t, markup(&Keyboard{}))

	remove, ok := markup(&Keyboard{Remove: true}).(replyKeyboardRemove)
	require.True(t, ok)
	require.True(t, remove.RemoveKeyboard)
}
