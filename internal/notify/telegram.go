package notify

import (
	"context"
	"encoding/json"
	"html"
	"net/http"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender sends messages through the Telegram Bot API using HTML
// formatting, so token names and addresses need no Markdown escaping.
type TelegramSender struct {
	endpoint string
	chatID   string
	client   *http.Client
}

// NewTelegramSender creates a TelegramSender. An empty apiBase uses the
// public Bot API.
func NewTelegramSender(apiBase, token, chatID string) *TelegramSender {
	if apiBase == "" {
		apiBase = telegramAPI
	}
	return &TelegramSender{
		endpoint: strings.TrimRight(apiBase, "/") + "/bot" + token + "/sendMessage",
		chatID:   chatID,
		client:   &http.Client{Timeout: sendTimeout},
	}
}

// telegramHTML renders msg with a bold title and an optional link.
func telegramHTML(msg Message) string {
	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(msg.Title) + "</b>\n")
	b.WriteString(html.EscapeString(msg.Text()))
	if msg.URL != "" {
		b.WriteString("\n<a href=\"" + html.EscapeString(msg.URL) + "\">View transaction</a>")
	}
	return b.String()
}

// telegramDetail reads the description of a failed Bot API call.
func telegramDetail(body []byte) string {
	var r struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if json.Unmarshal(body, &r) != nil {
		return ""
	}
	return r.Description
}

// Send posts msg to the configured chat.
func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     telegramHTML(msg),
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	return postJSON(ctx, t.client, t.Name(), t.endpoint, payload, telegramDetail)
}

// Name returns "telegram".
func (t *TelegramSender) Name() string { return "telegram" }
