package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// typeProcedures maps the UI type keys to QX procedure names.
var typeProcedures = map[string]string{
	"bid":          "AddToBidOrder",
	"ask":          "AddToAskOrder",
	"transfer":     "TransferShareOwnershipAndPossession",
	"issue":        "IssueAsset",
	"cancelAsk":    "RemoveFromAskOrder",
	"cancelBid":    "RemoveFromBidOrder",
	"mgmtTransfer": "TransferShareManagementRights",
}

// ProcedureName resolves a type filter value. Unknown values are taken to be
// procedure names already.
func ProcedureName(typ string) string {
	if p, ok := typeProcedures[typ]; ok {
		return p
	}
	return typ
}

// ServerFilter builds the store predicate for s. The whale marker never
// reaches the store.
func ServerFilter(s State, now time.Time) domain.EventFilter {
	f := domain.EventFilter{Search: s.Search}
	if s.TokenActive() {
		f.Token = s.Token
	}
	if s.TypeActive() {
		f.ProcedureName = ProcedureName(s.Type)
	}
	if w := s.TimeWindow(); w > 0 {
		since := now.Add(-w)
		f.Since = &since
	}
	return f
}

// matcher evaluates a State against annotated events in memory.
type matcher struct {
	search    string
	tick      int64
	hasTick   bool
	token     string
	procedure string
	whale     bool
	sinceMs   int64
}

func newMatcher(s State, now time.Time) matcher {
	m := matcher{
		search: strings.ToLower(s.Search),
		whale:  s.WhaleOnly(),
	}
	if n, err := strconv.ParseInt(s.Search, 10, 64); err == nil {
		m.tick, m.hasTick = n, true
	}
	if s.TokenActive() {
		m.token = s.Token
	}
	if s.TypeActive() {
		m.procedure = ProcedureName(s.Type)
	}
	if w := s.TimeWindow(); w > 0 {
		m.sinceMs = now.Add(-w).UnixMilli()
	}
	return m
}

func (m matcher) match(e domain.AnnotatedEvent) bool {
	if m.search != "" && !m.matchSearch(e) {
		return false
	}
	if m.token != "" && !strings.EqualFold(e.Token, m.token) {
		return false
	}
	if m.procedure != "" && e.Type != m.procedure {
		return false
	}
	if m.whale && !e.IsWhale {
		return false
	}
	if m.sinceMs > 0 && e.TimestampMs < m.sinceMs {
		return false
	}
	return true
}

func (m matcher) matchSearch(e domain.AnnotatedEvent) bool {
	if m.hasTick && e.TickNumber == m.tick {
		return true
	}
	return strings.Contains(strings.ToLower(e.From), m.search) ||
		strings.Contains(strings.ToLower(e.To), m.search) ||
		strings.Contains(strings.ToLower(e.Token), m.search)
}
