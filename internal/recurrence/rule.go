// Package recurrence computes occurrence dates for recurring schedules.
//
// All dates are civil dates carried as time.Time values at midnight UTC.
// Nothing in this package touches storage or the wall clock.
package recurrence

import (
	"fmt"
	"time"
)

// Frequency is the base period of a rule.
type Frequency string

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

func (f Frequency) weekBased() bool  { return f == Weekly || f == Biweekly }
func (f Frequency) monthBased() bool { return f == Monthly || f == Quarterly || f == Yearly }

// Rule is a declarative recurrence: frequency x interval, anchored on a weekday
// or a day of month, bounded by StartDate and an optional EndDate (both inclusive).
type Rule struct {
	Frequency  Frequency
	Interval   int
	DayOfWeek  *int
	DayOfMonth *int
	StartDate  time.Time
	EndDate    *time.Time
}

// RuleError reports a malformed rule. It is returned at schedule creation and
// never reaches the execution path.
type RuleError struct {
	Field  string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("invalid recurrence rule: %s %s", e.Field, e.Reason)
}

// Validate checks the rule's shape. dayOfWeek and dayOfMonth must be present
// exactly when the frequency needs them.
func (r Rule) Validate() error {
	if !r.Frequency.Valid() {
		return &RuleError{Field: "frequency", Reason: fmt.Sprintf("%q is not supported", r.Frequency)}
	}
	if r.Interval < 1 {
		return &RuleError{Field: "interval", Reason: "must be a positive integer"}
	}

	switch {
	case r.Frequency.weekBased():
		if r.DayOfWeek == nil {
			return &RuleError{Field: "day_of_week", Reason: "is required for " + string(r.Frequency)}
		}
		if *r.DayOfWeek < 0 || *r.DayOfWeek > 6 {
			return &RuleError{Field: "day_of_week", Reason: "must be between 0 and 6"}
		}
	case r.DayOfWeek != nil:
		return &RuleError{Field: "day_of_week", Reason: "is not allowed for " + string(r.Frequency)}
	}

	switch {
	case r.Frequency.monthBased():
		if r.DayOfMonth == nil {
			return &RuleError{Field: "day_of_month", Reason: "is required for " + string(r.Frequency)}
		}
		if *r.DayOfMonth < 1 || *r.DayOfMonth > 31 {
			return &RuleError{Field: "day_of_month", Reason: "must be between 1 and 31"}
		}
	case r.DayOfMonth != nil:
		return &RuleError{Field: "day_of_month", Reason: "is not allowed for " + string(r.Frequency)}
	}

	if r.StartDate.IsZero() {
		return &RuleError{Field: "start_date", Reason: "is required"}
	}
	if r.EndDate != nil && Civil(*r.EndDate).Before(Civil(r.StartDate)) {
		return &RuleError{Field: "end_date", Reason: "is before start_date"}
	}
	return nil
}

// Date builds a civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Civil drops the clock part of t, keeping the calendar date as seen in t's location.
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Today returns the current civil date in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Civil(now.In(loc))
}

func daysIn(year int, month time.Month) int {
	return Date(year, month+1, 0).Day()
}

// clampDate lands on day in the given month, or on the month's last day when
// the month is shorter.
func clampDate(year int, month time.Month, day int) time.Time {
	if last := daysIn(year, month); day > last {
		day = last
	}
	return Date(year, month, day)
}
