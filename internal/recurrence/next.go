package recurrence

import "time"

// First returns the earliest occurrence on or after the rule's start date.
// ok is false when that date is past EndDate.
func First(r Rule) (time.Time, bool) {
	start := Civil(r.StartDate)
	d := start
	if !r.aligned(start) {
		d = r.snapAfter(start)
	}
	return r.bounded(d)
}

// Next returns the first occurrence strictly after `after`. When `after` is
// itself an occurrence the rule advances one full period from it; otherwise it
// moves forward to the next date matching the weekday or (clamped) day of month.
// ok is false when the result is past EndDate.
func Next(r Rule, after time.Time) (time.Time, bool) {
	after = Civil(after)
	if after.Before(Civil(r.StartDate)) {
		return First(r)
	}

	var d time.Time
	if r.aligned(after) {
		d = r.advance(after)
	} else {
		d = r.snapAfter(after)
	}
	return r.bounded(d)
}

// Upcoming walks forward from cursor, an occurrence date, to the first
// occurrence on or after from. Walking keeps the phase of multi-period rules
// (every 2 weeks stays on the same fortnight).
func Upcoming(r Rule, cursor, from time.Time) (time.Time, bool) {
	cursor, from = Civil(cursor), Civil(from)
	d, ok := cursor, true
	if d.Before(Civil(r.StartDate)) {
		d, ok = First(r)
	}
	for ok && d.Before(from) {
		d, ok = Next(r, d)
	}
	return d, ok
}

// LatestOnOrBefore walks forward from cursor and returns the last occurrence
// that is not after until. ok is false when cursor itself is already after until.
func LatestOnOrBefore(r Rule, cursor, until time.Time) (time.Time, bool) {
	cursor, until = Civil(cursor), Civil(until)
	if cursor.After(until) {
		return time.Time{}, false
	}
	d := cursor
	for {
		n, ok := Next(r, d)
		if !ok || n.After(until) {
			return d, true
		}
		d = n
	}
}

func (r Rule) bounded(d time.Time) (time.Time, bool) {
	if r.EndDate != nil && d.After(Civil(*r.EndDate)) {
		return time.Time{}, false
	}
	return d, true
}

func (r Rule) interval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

// aligned reports whether d satisfies the rule's anchor.
func (r Rule) aligned(d time.Time) bool {
	switch {
	case r.Frequency.weekBased():
		return r.DayOfWeek != nil && int(d.Weekday()) == *r.DayOfWeek
	case r.Frequency.monthBased():
		return r.DayOfMonth != nil && d.Day() == clampDate(d.Year(), d.Month(), *r.DayOfMonth).Day()
	}
	return true
}

// snapAfter returns the earliest anchored date strictly after d.
func (r Rule) snapAfter(d time.Time) time.Time {
	switch {
	case r.Frequency.weekBased():
		from := d.AddDate(0, 0, 1)
		delta := (*r.DayOfWeek - int(from.Weekday()) + 7) % 7
		return from.AddDate(0, 0, delta)
	case r.Frequency.monthBased():
		if c := clampDate(d.Year(), d.Month(), *r.DayOfMonth); c.After(d) {
			return c
		}
		following := Date(d.Year(), d.Month()+1, 1)
		return clampDate(following.Year(), following.Month(), *r.DayOfMonth)
	}
	return d.AddDate(0, 0, 1)
}

// advance moves an anchored date forward by one period.
func (r Rule) advance(d time.Time) time.Time {
	n := r.interval()
	switch r.Frequency {
	case Weekly:
		return d.AddDate(0, 0, 7*n)
	case Biweekly:
		return d.AddDate(0, 0, 14*n)
	case Monthly, Quarterly, Yearly:
		months := n
		if r.Frequency == Quarterly {
			months *= 3
		} else if r.Frequency == Yearly {
			months *= 12
		}
		// Day 1 keeps time.Date from normalizing into the month after the target.
		target := Date(d.Year(), d.Month()+time.Month(months), 1)
		return clampDate(target.Year(), target.Month(), *r.DayOfMonth)
	}
	return d.AddDate(0, 0, n)
}
