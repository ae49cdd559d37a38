// Package slots holds the pure date and time-slot arithmetic behind
// availability views. Slots are "HH:MM" strings, so lexical order is
// chronological order.
package slots

import (
	"fmt"
	"regexp"
	"slices"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

var clockRE = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

func ValidClock(s string) bool {
	return clockRE.MatchString(s)
}

// ParseDate returns the calendar date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

func ParseMonth(s string) (year int, month time.Month, err error) {
	m, err := time.Parse(MonthLayout, s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q: want YYYY-MM", s)
	}
	return m.Year(), m.Month(), nil
}

// Day truncates t to UTC midnight of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// MonthRange returns the first and last calendar day of the month.
func MonthRange(year int, month time.Month) (first, last time.Time) {
	first = time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last = first.AddDate(0, 1, -1)
	return first, last
}

// Union merges the given lists into one sorted list without duplicates.
func Union(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Subtract returns the members of declared not present in taken, sorted and
// deduplicated. The result is never nil.
func Subtract(declared, taken []string) []string {
	drop := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		drop[t] = struct{}{}
	}
	out := make([]string, 0, len(declared))
	for _, s := range Union(declared) {
		if _, ok := drop[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
