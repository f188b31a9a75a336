package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

type stubSender struct {
	name string
	err  error
	got  []Message
}

func (s *stubSender) Send(_ context.Context, msg Message) error {
	s.got = append(s.got, msg)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &stubSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{" whale_alert "}, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventArchiveDone, Message{Title: "x"}))
	assert.Empty(t, s.got)
	require.NoError(t, n.Notify(context.Background(), EventWhaleAlert, Message{Title: "y"}))
	require.Len(t, s.got, 1)

	assert.True(t, NewNotifier([]Sender{s}, nil, testLogger()).Enabled("anything"))
	assert.False(t, NewNotifier(nil, nil, testLogger()).Enabled(EventWhaleAlert))
	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled(EventWhaleAlert))
}

func TestNotifier_JoinsSenderErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &stubSender{name: "ok"}
	bad := &stubSender{name: "bad", err: boom}
	n := NewNotifier([]Sender{bad, ok}, nil, testLogger())

	err := n.Notify(context.Background(), EventWhaleAlert, Message{Title: "t"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Len(t, ok.got, 1, "later senders still receive the message")
}

func TestWhaleAlert(t *testing.T) {
	e := domain.AnnotatedEvent{
		DisplayEvent: domain.DisplayEvent{
			Type: "AddToBidOrder", Token: "QUBIC", Amount: "5,000,000 QUBIC",
			From: strings.Repeat("A", 60), To: "SHORT", TickNo: "12,345",
			Timestamp: "2025-01-01 00:00:00", TxID: "abc",
		},
		IsWhale: true,
	}
	msg := WhaleAlert(e, 1_000_000, "https://explorer.qubic.org")
	assert.Equal(t, "Whale AddToBidOrder: 5,000,000 QUBIC", msg.Title)
	assert.Equal(t, "AAAAAA…AAAAAA → SHORT", msg.Body)
	assert.Equal(t, "https://explorer.qubic.org/network/tx/abc", msg.URL)
	assert.Contains(t, msg.Text(), "Threshold: 1,000,000 QUBIC")

	e.TxID = ""
	assert.Empty(t, WhaleAlert(e, 1, "https://x").URL)
}

func TestTelegramSender(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL+"/", "TOKEN", "42")
	require.NoError(t, s.Send(context.Background(), Message{Title: "T", Body: "B", Fields: []Field{{Name: "k", Value: "v"}}}))
	assert.Equal(t, "42", payload["chat_id"])
	assert.Equal(t, "<b>T</b>\nB\nk: v", payload["text"])
	assert.Equal(t, "HTML", payload["parse_mode"])

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"description":"Bad Request: chat not found"}`)
	}))
	defer failing.Close()
	err := NewTelegramSender(failing.URL, "TOKEN", "1").Send(context.Background(), Message{Title: "T"})
	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, http.StatusBadRequest, derr.StatusCode)
	assert.Equal(t, "Bad Request: chat not found", derr.Detail)
}

func TestTelegramHTML_Escapes(t *testing.T) {
	got := telegramHTML(Message{Title: "a<b>", Body: "x & y", URL: "https://e/tx?a=1&b=2"})
	assert.Equal(t, "<b>a&lt;b&gt;</b>\nx &amp; y\n<a href=\"https://e/tx?a=1&amp;b=2\">View transaction</a>", got)
}

func TestDiscordSender(t *testing.T) {
	var payload struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), Message{Title: "T", Body: "B", Fields: []Field{{Name: "k", Value: "v"}}}))
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "T", payload.Embeds[0].Title)
	require.Len(t, payload.Embeds[0].Fields, 1)
	assert.True(t, payload.Embeds[0].Fields[0].Inline)

	assert.NotEmpty(t, payload.Embeds[0].Timestamp)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"message":"You are being rate limited.","retry_after":3}`)
	}))
	defer failing.Close()
	err := NewDiscordSender(failing.URL).Send(context.Background(), Message{Title: "T"})
	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, http.StatusTooManyRequests, derr.StatusCode)
	assert.Equal(t, "You are being rate limited.", derr.Detail)
	assert.Equal(t, 3*time.Second, derr.RetryAfter)
	assert.Contains(t, err.Error(), "discord: status 429")
}

func TestToEmbed_CapsFields(t *testing.T) {
	fields := make([]Field, 30)
	e := toEmbed(Message{Title: "t", Fields: fields}, time.Unix(0, 0))
	assert.Len(t, e.Fields, maxEmbedFields)
	assert.Equal(t, "1970-01-01T00:00:00Z", e.Timestamp)
}
