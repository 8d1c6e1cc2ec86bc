package model

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC)
}

func TestIntervalOverlaps(t *testing.T) {
	a := Interval{Start: at(9, 0), End: at(9, 30)}
	cases := []struct {
		name string
		b    Interval
		want bool
	}{
		{"back to back after", Interval{Start: at(9, 30), End: at(10, 0)}, false},
		{"back to back before", Interval{Start: at(8, 30), End: at(9, 0)}, false},
		{"partial", Interval{Start: at(9, 15), End: at(9, 45)}, true},
		{"identical", a, true},
		{"enclosing", Interval{Start: at(8, 0), End: at(10, 0)}, true},
	}
	for _, tc := range cases {
		if got := a.Overlaps(tc.b); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
		if got := tc.b.Overlaps(a); got != tc.want {
			t.Fatalf("%s (reversed): expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestStatusClasses(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusConfirmed} {
		if !s.Active() || s.Terminal() {
			t.Fatalf("%s should be active", s)
		}
	}
	for _, s := range []Status{StatusCancelled, StatusCompleted, StatusNoShow} {
		if s.Active() || !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if _, ok := ParseStatus("booked"); ok {
		t.Fatal("unexpected status accepted")
	}
}
