package notify

import (
	"fmt"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/normalize"
)

// WhaleAlert renders a whale event. explorerURL, when set, is the base of a
// transaction link.
func WhaleAlert(e domain.AnnotatedEvent, threshold int64, explorerURL string) Message {
	msg := Message{
		Title: fmt.Sprintf("Whale %s: %s", e.Type, e.Amount),
		Body:  fmt.Sprintf("%s → %s", short(e.From), short(e.To)),
		Fields: []Field{
			{Name: "Token", Value: e.Token},
			{Name: "Threshold", Value: normalize.GroupDigits(threshold) + " " + e.Token},
			{Name: "Tick", Value: e.TickNo},
			{Name: "Time", Value: e.Timestamp + " UTC"},
		},
	}
	if e.TxID != "" && explorerURL != "" {
		msg.URL = explorerURL + "/network/tx/" + e.TxID
	}
	return msg
}

func short(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}
