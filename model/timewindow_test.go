package model

import (
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func TestTimeWindowHalfOpen(t *testing.T) {
	w := NewTimeWindow(t0, 5*time.Minute)
	if !w.Contains(t0) {
		t.Fatalf("window should contain its begin")
	}
	if w.Contains(t0.Add(5 * time.Minute)) {
		t.Fatalf("window should not contain its end")
	}
	if got := w.Duration(); got != 5*time.Minute {
		t.Fatalf("Duration = %v, want 5m", got)
	}
}

func TestTimeWindowOverlaps(t *testing.T) {
	a := NewTimeWindow(t0, 5*time.Minute)
	cases := []struct {
		name string
		b    TimeWindow
		want bool
	}{
		{"touching after", NewTimeWindow(t0.Add(5*time.Minute), time.Minute), false},
		{"touching before", NewTimeWindow(t0.Add(-time.Minute), time.Minute), false},
		{"inside", NewTimeWindow(t0.Add(time.Minute), time.Minute), true},
		{"straddling end", NewTimeWindow(t0.Add(4*time.Minute), 5*time.Minute), true},
		{"identical", a, true},
	}
	for _, tc := range cases {
		if got := a.Overlaps(tc.b); got != tc.want {
			t.Fatalf("%s: Overlaps = %v, want %v", tc.name, got, tc.want)
		}
		if got := tc.b.Overlaps(a); got != tc.want {
			t.Fatalf("%s: reverse Overlaps = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRiderOutcome(t *testing.T) {
	r := Rider{ID: 1, Origin: 0, Destination: 2, SpawnedAt: t0, Deadline: t0.Add(2 * time.Hour)}
	if onTime, delay := r.Outcome(t0.Add(time.Hour)); !onTime || delay != 0 {
		t.Fatalf("early delivery: onTime=%v delay=%v", onTime, delay)
	}
	if onTime, _ := r.Outcome(r.Deadline); !onTime {
		t.Fatalf("delivery at the deadline should be on time")
	}
	onTime, delay := r.Outcome(r.Deadline.Add(90 * time.Second))
	if onTime || delay != 90*time.Second {
		t.Fatalf("late delivery: onTime=%v delay=%v", onTime, delay)
	}
}

func TestLerpAndDistance(t *testing.T) {
	a, b := Point{0, 0}, Point{3, 4}
	if d := Distance(a, b); d != 5 {
		t.Fatalf("Distance = %v, want 5", d)
	}
	mid := Lerp(a, b, 0.5)
	if mid[0] != 1.5 || mid[1] != 2 {
		t.Fatalf("Lerp midpoint = %v", mid)
	}
	if got := Lerp(a, b, 2); got != b {
		t.Fatalf("Lerp should clamp to b, got %v", got)
	}
}

func TestIDStrings(t *testing.T) {
	if NoStation.Valid() || NoPod.Valid() {
		t.Fatalf("sentinels must be invalid")
	}
	if got := StationID(3).String(); got != "station-3" {
		t.Fatalf("StationID.String = %q", got)
	}
	if got := NoPod.String(); got != "pod(none)" {
		t.Fatalf("NoPod.String = %q", got)
	}
}
