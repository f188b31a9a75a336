package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronHorizon bounds the search for the next firing.
const cronHorizon = 5 * 366 * 24 * time.Hour

// cronSchedule is a parsed five-field cron expression. Each field is a
// bitmask of allowed values.
type cronSchedule struct {
	minute, hour, dom, month, dow uint64
	// domStar and dowStar record a leading "*". When both day fields are
	// restricted a time matches if either one does.
	domStar, dowStar bool
}

type cronBounds struct {
	name   string
	lo, hi int
}

var cronFields = [5]cronBounds{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

func parseCron(expr string) (cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != len(cronFields) {
		return cronSchedule{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	var masks [5]uint64
	for i, f := range fields {
		m, err := parseCronField(f, cronFields[i].lo, cronFields[i].hi)
		if err != nil {
			return cronSchedule{}, fmt.Errorf("%s field: %w", cronFields[i].name, err)
		}
		masks[i] = m
	}
	// 7 is Sunday too.
	if masks[4]&(1<<7) != 0 {
		masks[4] = masks[4]&^(1<<7) | 1
	}

	return cronSchedule{
		minute:  masks[0],
		hour:    masks[1],
		dom:     masks[2],
		month:   masks[3],
		dow:     masks[4],
		domStar: strings.HasPrefix(fields[2], "*"),
		dowStar: strings.HasPrefix(fields[4], "*"),
	}, nil
}

// parseCronField accepts "*", "n", "a-b", any of those with "/step", and
// comma lists of them.
func parseCronField(field string, lo, hi int) (uint64, error) {
	var mask uint64
	for _, part := range strings.Split(field, ",") {
		rng, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid step in %q", part)
			}
			step = n
		}

		start, end := lo, hi
		if rng != "*" {
			a, b, isRange := strings.Cut(rng, "-")
			var err error
			if start, err = strconv.Atoi(a); err != nil {
				return 0, fmt.Errorf("invalid value %q", part)
			}
			end = start
			if isRange {
				if end, err = strconv.Atoi(b); err != nil {
					return 0, fmt.Errorf("invalid range %q", part)
				}
			} else if hasStep {
				end = hi
			}
		}
		if start < lo || end > hi || start > end {
			return 0, fmt.Errorf("%q out of range %d-%d", part, lo, hi)
		}
		for v := start; v <= end; v += step {
			mask |= 1 << v
		}
	}
	return mask, nil
}

func has(mask uint64, v int) bool { return mask&(1<<v) != 0 }

func (s cronSchedule) dayMatches(t time.Time) bool {
	dom := has(s.dom, t.Day())
	dow := has(s.dow, int(t.Weekday()))
	if s.domStar || s.dowStar {
		return dom && dow
	}
	return dom || dow
}

// next returns the first matching minute strictly after t, skipping whole
// months, days and hours that cannot match.
func (s cronSchedule) next(t time.Time) (time.Time, bool) {
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(cronHorizon)
	for t.Before(limit) {
		switch {
		case !has(s.month, int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
		case !s.dayMatches(t):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
		case !has(s.hour, t.Hour()):
			t = t.Truncate(time.Hour).Add(time.Hour)
		case !has(s.minute, t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t, true
		}
	}
	return time.Time{}, false
}

// nextCronTime parses expr and returns its next firing after t.
func nextCronTime(expr string, after time.Time) (time.Time, error) {
	s, err := parseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	next, ok := s.next(after)
	if !ok {
		return time.Time{}, fmt.Errorf("cron %q has no firing within five years", expr)
	}
	return next, nil
}
