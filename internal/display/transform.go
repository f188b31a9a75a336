// Package display maps persisted QX events to the shape the dashboard renders.
package display

import (
	"strconv"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/normalize"
)

// TimestampLayout is the absolute timestamp rendering, always in UTC.
const TimestampLayout = "2006-01-02 15:04:05"

// EventTime returns the instant an event happened. Rows without an event
// timestamp fall back to their insert time.
func EventTime(e domain.Event) time.Time {
	if e.TimestampMs > 0 {
		return time.UnixMilli(normalize.EpochMillis(e.TimestampMs)).UTC()
	}
	return e.CreatedAt.UTC()
}

// ToDisplayEvent converts a row. now is the reference for the relative time.
func ToDisplayEvent(e domain.Event, now time.Time) domain.DisplayEvent {
	token := e.Token()
	at := EventTime(e)

	d := domain.DisplayEvent{
		ID:           e.ID,
		Type:         e.ProcedureTypeName,
		Kind:         e.Kind(),
		Token:        token,
		From:         e.SourceID,
		To:           e.DestID,
		Amount:       normalize.FormatAmount(e.Amount, token),
		Time:         RelativeTime(at, now),
		Timestamp:    at.Format(TimestampLayout),
		TimestampMs:  at.UnixMilli(),
		TickNo:       normalize.GroupDigits(e.TickNumber),
		TickNumber:   e.TickNumber,
		Price:        e.Price,
		Shares:       e.NumberOfShares,
		Issuer:       e.IssuerAddress,
		TxID:         e.TxID,
		InputHex:     e.InputHex,
		SignatureHex: e.SignatureHex,
	}
	flew := e.MoneyFlew
	d.MoneyFlew = &flew
	return d
}

// ToDisplayEvents converts rows, keeping order.
func ToDisplayEvents(events []domain.Event, now time.Time) []domain.DisplayEvent {
	out := make([]domain.DisplayEvent, len(events))
	for i, e := range events {
		out[i] = ToDisplayEvent(e, now)
	}
	return out
}

// RelativeTime renders how long ago t was, measured from now. Future
// instants read as "Just now".
func RelativeTime(t, now time.Time) string {
	diff := now.Sub(t)
	minutes := int64(diff / time.Minute)
	hours := int64(diff / time.Hour)
	days := int64(diff / (24 * time.Hour))

	switch {
	case minutes < 1:
		return "Just now"
	case minutes < 60:
		return strconv.FormatInt(minutes, 10) + " min ago"
	case hours < 24:
		return plural(hours, "hour") + " ago"
	default:
		return plural(days, "day") + " ago"
	}
}

func plural(n int64, unit string) string {
	s := strconv.FormatInt(n, 10) + " " + unit
	if n > 1 {
		s += "s"
	}
	return s
}
