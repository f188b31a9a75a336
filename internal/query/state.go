// Package query turns the events view's filter and page state into one page
// of annotated events. It picks between a plain page, a server-filtered page
// and a full scan filtered in memory, and the three paths agree on results.
package query

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Filter values with special meaning.
const (
	All   = "all"
	Whale = "whale"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
	// MaxPageIndex keeps the first row offset of any page within int.
	MaxPageIndex = math.MaxInt/MaxPageSize - 1
)

var timeWindows = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// State is the filter and pagination state of the events view. Mutate it
// through the setters so the page index resets when a filter changes.
type State struct {
	Search    string `json:"search"`
	Token     string `json:"token"`
	Type      string `json:"type"`
	Time      string `json:"time"`
	PageIndex int    `json:"pageIndex"`
	PageSize  int    `json:"pageSize"`
}

// NewState returns the initial state with every filter off.
func NewState(pageSize int) State {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return State{Token: All, Type: All, Time: All, PageSize: min(pageSize, MaxPageSize)}
}

// SetSearch updates the free-text search.
func (s *State) SetSearch(v string) {
	s.set(&s.Search, strings.TrimSpace(v))
}

// SetToken updates the token filter. Empty means all.
func (s *State) SetToken(v string) {
	s.set(&s.Token, orAll(v))
}

// SetType updates the type filter: all, whale, a UI type key or a raw
// procedure name.
func (s *State) SetType(v string) {
	s.set(&s.Type, orAll(v))
}

// SetTime updates the time filter. Unknown windows mean all.
func (s *State) SetTime(v string) {
	v = strings.TrimSpace(v)
	if _, ok := timeWindows[v]; !ok {
		v = All
	}
	s.set(&s.Time, v)
}

// SetPageSize changes the page size and returns to the first page.
func (s *State) SetPageSize(n int) {
	if n <= 0 {
		n = DefaultPageSize
	}
	n = min(n, MaxPageSize)
	if n != s.PageSize {
		s.PageSize = n
		s.PageIndex = 0
	}
}

// SetPage moves to page i without touching the filters. i is clamped to
// [0, MaxPageIndex].
func (s *State) SetPage(i int) {
	s.PageIndex = min(max(i, 0), MaxPageIndex)
}

func (s *State) set(field *string, v string) {
	if *field != v {
		*field = v
		s.PageIndex = 0
	}
}

// TokenActive reports whether a token filter is set.
func (s State) TokenActive() bool { return s.Token != "" && s.Token != All }

// TypeActive reports whether a non-whale type filter is set.
func (s State) TypeActive() bool { return s.Type != "" && s.Type != All && s.Type != Whale }

// WhaleOnly reports whether only whale events are requested.
func (s State) WhaleOnly() bool { return s.Type == Whale }

// TimeWindow returns the time filter length, or 0 when no time filter is set.
func (s State) TimeWindow() time.Duration { return timeWindows[s.Time] }

// ParseState reads the state from query parameters: search, token, type,
// time, page (zero based) and page_size.
func ParseState(v url.Values, defaultPageSize int) State {
	s := NewState(defaultPageSize)
	s.SetSearch(v.Get("search"))
	s.SetToken(v.Get("token"))
	s.SetType(v.Get("type"))
	s.SetTime(v.Get("time"))
	if n, err := strconv.Atoi(v.Get("page_size")); err == nil {
		s.SetPageSize(n)
	}
	if n, err := strconv.Atoi(v.Get("page")); err == nil {
		s.SetPage(n)
	}
	return s
}

func orAll(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, All) {
		return All
	}
	return v
}
