// Package period computes the rolling billing period a usage counter is
// keyed on. Periods are half-open [Start, End) date intervals anchored to a
// day of month, recomputed from the current time on every request and never
// persisted as a resource of their own.
package period

import "time"

// Period is a half-open [Start, End) interval of UTC dates. End is the
// start of the next period, so consecutive periods never overlap and never
// leave a gap.
type Period struct {
	Start time.Time
	End   time.Time
}

// Current returns the billing period covering now for the given anchor
// day-of-month. Start is the most recent occurrence of the anchor day at or
// before now; End is the following occurrence, one calendar month later.
// Months shorter than the anchor day clamp to their last day, using the
// same rule for Start and End so a 31st anchor yields Jan 31, Feb 28/29,
// Mar 31, ...
func Current(now time.Time, anchorDay int) Period {
	if anchorDay < 1 {
		anchorDay = 1
	}
	if anchorDay > 31 {
		anchorDay = 31
	}

	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	start := occurrence(now.Year(), now.Month(), anchorDay)
	if start.After(today) {
		prev := today.AddDate(0, 0, -today.Day()) // last day of previous month
		start = occurrence(prev.Year(), prev.Month(), anchorDay)
	}

	next := start.AddDate(0, 0, -start.Day()+1).AddDate(0, 1, 0) // first of the month after start
	end := occurrence(next.Year(), next.Month(), anchorDay)

	return Period{Start: start, End: end}
}

// Anchored derives the anchor day from a subscription start date. A zero
// anchor falls back to the first of the current month.
func Anchored(now time.Time, anchor time.Time) Period {
	if anchor.IsZero() {
		return Current(now, 1)
	}
	return Current(now, anchor.UTC().Day())
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start) && t.Before(p.End)
}

// occurrence returns the anchor's occurrence in the given month, clamped to
// the month's last day.
func occurrence(year int, month time.Month, anchorDay int) time.Time {
	day := anchorDay
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
