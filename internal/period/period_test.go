package period

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCurrentDefaultAnchor(t *testing.T) {
	now := time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)
	p := Current(now, 1)

	if !p.Start.Equal(date(2026, time.March, 1)) {
		t.Fatalf("start = %v, want 2026-03-01", p.Start)
	}
	if !p.End.Equal(date(2026, time.April, 1)) {
		t.Fatalf("end = %v, want 2026-04-01", p.End)
	}
}

func TestCurrentAnchorAfterToday(t *testing.T) {
	now := date(2026, time.March, 10)
	p := Current(now, 20)

	if !p.Start.Equal(date(2026, time.February, 20)) {
		t.Fatalf("start = %v, want 2026-02-20", p.Start)
	}
	if !p.End.Equal(date(2026, time.March, 20)) {
		t.Fatalf("end = %v, want 2026-03-20", p.End)
	}
}

func TestCurrentClampsShortMonths(t *testing.T) {
	// Anchor on the 31st: February clamps to its last day.
	now := date(2026, time.February, 15)
	p := Current(now, 31)

	if !p.Start.Equal(date(2026, time.January, 31)) {
		t.Fatalf("start = %v, want 2026-01-31", p.Start)
	}
	if !p.End.Equal(date(2026, time.February, 28)) {
		t.Fatalf("end = %v, want 2026-02-28", p.End)
	}

	// Leap year February keeps the 29th.
	p = Current(date(2028, time.February, 29), 31)
	if !p.Start.Equal(date(2028, time.February, 29)) {
		t.Fatalf("leap start = %v, want 2028-02-29", p.Start)
	}
	if !p.End.Equal(date(2028, time.March, 31)) {
		t.Fatalf("leap end = %v, want 2028-03-31", p.End)
	}
}

func TestCurrentIdempotentWithinPeriod(t *testing.T) {
	first := Current(date(2026, time.May, 3), 1)
	second := Current(time.Date(2026, time.May, 28, 23, 59, 59, 0, time.UTC), 1)

	if !first.Start.Equal(second.Start) || !first.End.Equal(second.End) {
		t.Fatalf("periods differ within the same month: %+v vs %+v", first, second)
	}
}

func TestPeriodsNeverGapOrOverlap(t *testing.T) {
	for _, anchor := range []int{1, 15, 28, 29, 30, 31} {
		cursor := date(2025, time.January, 1)
		prev := Current(cursor, anchor)

		for cursor.Before(date(2027, time.January, 1)) {
			p := Current(cursor, anchor)
			if !p.Contains(cursor) {
				t.Fatalf("anchor %d: period %+v does not contain %v", anchor, p, cursor)
			}
			if p.Start.Equal(prev.Start) {
				if !p.End.Equal(prev.End) {
					t.Fatalf("anchor %d: same start %v but ends differ: %v vs %v", anchor, p.Start, p.End, prev.End)
				}
			} else {
				if !p.Start.Equal(prev.End) {
					t.Fatalf("anchor %d: gap or overlap at %v: prev end %v, next start %v", anchor, cursor, prev.End, p.Start)
				}
			}
			prev = p
			cursor = cursor.AddDate(0, 0, 1)
		}
	}
}

func TestAnchored(t *testing.T) {
	now := date(2026, time.June, 20)

	p := Anchored(now, date(2025, time.November, 12))
	if !p.Start.Equal(date(2026, time.June, 12)) {
		t.Fatalf("start = %v, want 2026-06-12", p.Start)
	}

	p = Anchored(now, time.Time{})
	if !p.Start.Equal(date(2026, time.June, 1)) {
		t.Fatalf("default start = %v, want 2026-06-01", p.Start)
	}
}

func TestContainsBoundaries(t *testing.T) {
	p := Current(date(2026, time.March, 15), 1)

	if !p.Contains(p.Start) {
		t.Fatal("period must contain its start")
	}
	if p.Contains(p.End) {
		t.Fatal("period must not contain its end (half-open)")
	}
}
