package query

// Strategy is the fetch path chosen for a State.
type Strategy int

const (
	// StrategyPlain reads one recency-ordered page and the table count.
	StrategyPlain Strategy = iota
	// StrategyFiltered lets the store apply search, token, type and time and
	// paginate.
	StrategyFiltered
	// StrategyScan reads every row and filters, sorts and paginates in
	// memory.
	StrategyScan
)

var strategyNames = [...]string{
	StrategyPlain:    "plain",
	StrategyFiltered: "filtered",
	StrategyScan:     "scan",
}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return "unknown"
	}
	return strategyNames[s]
}

// MarshalText encodes the strategy name.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a strategy name. Unknown names decode to
// StrategyPlain.
func (s *Strategy) UnmarshalText(text []byte) error {
	for i, name := range strategyNames {
		if name == string(text) {
			*s = Strategy(i)
			return nil
		}
	}
	*s = StrategyPlain
	return nil
}

// Decide picks the fetch path. The store cannot evaluate whale status, and
// a time-only filter is served by a scan; any other active filter goes to
// the store.
func Decide(s State) Strategy {
	serverSide := s.Search != "" || s.TokenActive() || s.TypeActive()
	switch {
	case s.WhaleOnly(), s.TimeWindow() > 0 && !serverSide:
		return StrategyScan
	case serverSide:
		return StrategyFiltered
	default:
		return StrategyPlain
	}
}
