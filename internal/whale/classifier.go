package whale

import (
	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/normalize"
)

// ThresholdSource resolves a token to its whale threshold. Both Registry and
// Snapshot satisfy it.
type ThresholdSource interface {
	Threshold(token string) int64
}

// IsWhale reports whether amount reaches the threshold for token. The
// boundary is inclusive.
func IsWhale(src ThresholdSource, token string, amount float64) bool {
	return amount >= float64(src.Threshold(token))
}

// Classifier annotates display events against one threshold source.
type Classifier struct {
	src ThresholdSource
}

// NewClassifier creates a Classifier. Pass a Snapshot so a whole response is
// classified against the same thresholds.
func NewClassifier(src ThresholdSource) *Classifier {
	return &Classifier{src: src}
}

// IsWhale reports whether amount reaches the threshold for token.
func (c *Classifier) IsWhale(token string, amount float64) bool {
	return IsWhale(c.src, token, amount)
}

// Classify re-parses the display amount and flags the event.
func (c *Classifier) Classify(e domain.DisplayEvent) domain.AnnotatedEvent {
	amount := normalize.ParseAmount(e.Amount)
	return domain.AnnotatedEvent{
		DisplayEvent:  e,
		IsWhale:       c.IsWhale(e.Token, amount),
		NumericAmount: amount,
	}
}

// Annotate classifies every event, keeping order.
func (c *Classifier) Annotate(events []domain.DisplayEvent) []domain.AnnotatedEvent {
	out := make([]domain.AnnotatedEvent, len(events))
	for i, e := range events {
		out[i] = c.Classify(e)
	}
	return out
}
