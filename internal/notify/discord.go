package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	// whaleColor is the embed accent colour.
	whaleColor = 0x1E90FF

	// Discord rejects embeds with more fields than this.
	maxEmbedFields = 25
)

// DiscordSender posts each message to a Discord webhook as one embed.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: &http.Client{Timeout: sendTimeout}}
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Color       int                 `json:"color"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

func toEmbed(msg Message, at time.Time) discordEmbed {
	e := discordEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		URL:         msg.URL,
		Color:       whaleColor,
		Timestamp:   at.UTC().Format(time.RFC3339),
	}
	for i, f := range msg.Fields {
		if i == maxEmbedFields {
			break
		}
		e.Fields = append(e.Fields, discordEmbedField{Name: f.Name, Value: f.Value, Inline: true})
	}
	return e
}

// discordDetail pulls the message out of a Discord error body.
func discordDetail(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return e.Message
}

// Send posts msg. A 429 comes back as a *DeliveryError carrying RetryAfter.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{"embeds": []discordEmbed{toEmbed(msg, time.Now())}}
	return postJSON(ctx, d.client, d.Name(), d.webhookURL, payload, discordDetail)
}

// Name returns "discord".
func (d *DiscordSender) Name() string { return "discord" }
