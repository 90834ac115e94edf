package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// Pattern is how often a recurring chore comes due. The zero value means the
// chore does not recur.
type Pattern string

const (
	None    Pattern = ""
	Daily   Pattern = "daily"
	Weekly  Pattern = "weekly"
	Monthly Pattern = "monthly"
)

// Parse accepts daily, weekly, monthly or the empty string, case-insensitively.
func Parse(s string) (Pattern, error) {
	switch p := Pattern(strings.ToLower(strings.TrimSpace(s))); p {
	case None, Daily, Weekly, Monthly:
		return p, nil
	}
	return None, fmt.Errorf("invalid recurrence pattern: %q", s)
}

func (p Pattern) Recurs() bool {
	return p != None
}

// Next returns the due date one period after due. Monthly patterns keep the
// day of month, clamped to the last day of shorter months.
func (p Pattern) Next(due time.Time) time.Time {
	switch p {
	case Daily:
		return due.AddDate(0, 0, 1)
	case Weekly:
		return due.AddDate(0, 0, 7)
	case Monthly:
		return addMonthClamped(due, 1)
	}
	return due
}

// NextAfter advances due by whole periods until it is after now. A chore
// completed weeks late is rescheduled into the future, not into the past.
func (p Pattern) NextAfter(due, now time.Time) time.Time {
	if !p.Recurs() {
		return due
	}
	next := p.Next(due)
	if p == Monthly {
		// step from the original date so clamping does not drift the day
		for months := 1; !next.After(now); months++ {
			next = addMonthClamped(due, months+1)
		}
		return next
	}
	for !next.After(now) {
		next = p.Next(next)
	}
	return next
}

func addMonthClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
