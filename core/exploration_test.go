package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

func TestExploreFindsRouteOnLine(t *testing.T) {
	f := newLineFixture(t, testParams(), 4)
	p := f.podAt(t, 0)

	found := f.net.Explore(0, 3, 4, p.ID, t0)
	if len(found) != 1 {
		t.Fatalf("Explore returned %d intentions, want 1", len(found))
	}
	in := found[0]
	wantStations := []model.StationID{0, 1, 2, 3}
	if in.Len() != 3 {
		t.Fatalf("intention length = %d, want 3", in.Len())
	}
	for i, h := range in.Hops {
		if h.Station != wantStations[i] {
			t.Fatalf("hop %d = %s, want %s", i, h.Station, wantStations[i])
		}
	}
	// Origin is free for the occupying pod, every later stop opens a buffer
	// after the previous window closes.
	wantBegins := []time.Duration{0, 5*time.Minute + 30*time.Second, 11 * time.Minute, 16*time.Minute + 30*time.Second}
	for i, h := range in.Hops {
		if got := h.Window.Begin.Sub(t0); got != wantBegins[i] {
			t.Fatalf("hop %d begins at t0+%v, want t0+%v", i, got, wantBegins[i])
		}
	}
	if !in.Arrival().Equal(t0.Add(wantBegins[3])) {
		t.Fatalf("Arrival = %v", in.Arrival())
	}
}

func TestExploreHopBudgetDropsBranch(t *testing.T) {
	f := newLineFixture(t, testParams(), 5)
	p := f.podAt(t, 0)

	if found := f.net.Explore(0, 4, 2, p.ID, t0); len(found) != 0 {
		t.Fatalf("destination is 4 hops away, budget 2 found %v", found)
	}
	if f.rec.drops["exploration/hop_budget"] == 0 {
		t.Fatalf("expected hop budget drops, got %v", f.rec.drops)
	}
	if found := f.net.Explore(0, 4, 4, p.ID, t0); len(found) != 1 {
		t.Fatalf("budget 4 should reach the destination, got %d", len(found))
	}
}

func TestExploreNeverRevisitsWithinBranch(t *testing.T) {
	params := testParams()
	f := newLineFixture(t, params, 5)
	// Close the line into a ring and add chords so branches can loop.
	for _, e := range [][2]model.StationID{{4, 0}, {0, 2}, {1, 3}} {
		if err := f.net.Connect(e[0], e[1]); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	p := f.podAt(t, 0)

	budget := 4
	found := f.net.Explore(0, 3, budget, p.ID, t0)
	if len(found) == 0 {
		t.Fatalf("expected intentions on the ring")
	}
	for _, in := range found {
		if in.Len() > budget {
			t.Fatalf("intention %v exceeds hop budget", in.Hops)
		}
		seen := make(map[model.StationID]bool)
		for _, h := range in.Hops {
			if seen[h.Station] {
				t.Fatalf("intention %v revisits %s", in.Hops, h.Station)
			}
			seen[h.Station] = true
		}
		if in.Origin() != 0 || in.Destination() != 3 {
			t.Fatalf("intention %v has wrong endpoints", in.Hops)
		}
	}
	if f.rec.drops["exploration/loop"] == 0 {
		t.Fatalf("expected loop drops on a ring, got %v", f.rec.drops)
	}
	for i := 1; i < len(found); i++ {
		if found[i].Less(found[i-1]) {
			t.Fatalf("intentions not sorted best first")
		}
	}
}

func TestExploreStepLimitBoundsRound(t *testing.T) {
	params := testParams()
	params.ExplorationStepLimit = 3
	f := newLineFixture(t, params, 6)
	p := f.podAt(t, 0)

	if found := f.net.Explore(0, 5, 10, p.ID, t0); len(found) != 0 {
		t.Fatalf("step limit should stop the round early, got %v", found)
	}
	if f.rec.drops["exploration/step_limit"] != 1 {
		t.Fatalf("expected one step limit drop, got %v", f.rec.drops)
	}
}

func TestExploreDoesNotPassThroughDocks(t *testing.T) {
	f := newLineFixture(t, testParams(), 3)
	// A shortcut through the dock must not be used as an intermediate stop.
	if err := f.net.Connect(f.dock, 2); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	p := f.podAt(t, 0)

	for _, in := range f.net.Explore(0, 2, 4, p.ID, t0) {
		if in.Visits(f.dock) {
			t.Fatalf("route %v passes through the dock", in.Hops)
		}
	}
	toDock := f.net.Explore(2, f.dock, 4, p.ID, t0)
	if len(toDock) == 0 || toDock[0].Len() != 1 {
		t.Fatalf("dock should be reachable as a destination, got %v", toDock)
	}
}

// Two pods racing for the same intermediate station: exploration alone
// offers both the same slot, but only the first booking gets it and the
// other pod is pushed later.
func TestConflictingExplorationsSerialiseAtBooking(t *testing.T) {
	f := newLineFixture(t, testParams(), 1)
	net := f.net
	a, _ := net.AddStation("a", model.Point{10, 10})
	b, _ := net.AddStation("b", model.Point{10, -10})
	m, _ := net.AddStation("m", model.Point{12, 0})
	d, _ := net.AddStation("d", model.Point{14, 0})
	for _, e := range [][2]model.StationID{{a, m}, {b, m}, {m, d}} {
		if err := net.Connect(e[0], e[1]); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	podA := f.podAt(t, a)
	podB := f.podAt(t, b)

	inA := net.Explore(a, d, 4, podA.ID, t0)
	inB := net.Explore(b, d, 4, podB.ID, t0)
	if len(inA) != 1 || len(inB) != 1 {
		t.Fatalf("expected one intention each, got %d and %d", len(inA), len(inB))
	}
	if !inA[0].Hops[1].Window.Begin.Equal(inB[0].Hops[1].Window.Begin) {
		t.Fatalf("both pods should be offered the same slot at m before booking")
	}

	confA, ok := net.SendReservationAnt(podA.ID, placeholders(podA.ID, a, model.TimeWindow{}, inA[0].stops()), t0)
	if !ok {
		t.Fatalf("first booking failed")
	}
	confB, ok := net.SendReservationAnt(podB.ID, placeholders(podB.ID, b, model.TimeWindow{}, inB[0].stops()), t0)
	if !ok {
		t.Fatalf("second booking failed")
	}

	atM := func(rs []Reservation) Reservation {
		for _, r := range rs {
			if r.Station == m {
				return r
			}
		}
		t.Fatalf("no reservation at m in %v", rs)
		return Reservation{}
	}
	rA, rB := atM(confA), atM(confB)
	if !rA.Window.Begin.Equal(inA[0].Hops[1].Window.Begin) {
		t.Fatalf("first pod lost its explored slot: %v", rA.Window)
	}
	if rB.Window.Begin.Before(rA.Window.End) {
		t.Fatalf("second pod's window %v was not pushed past %v", rB.Window, rA.Window)
	}
	assertLedgerExclusive(t, net.Station(m))
	assertLedgerExclusive(t, net.Station(d))

	// A fresh exploration now sees the conflict.
	again := net.Explore(b, d, 4, podB.ID, t0)
	if len(again) == 0 {
		t.Fatalf("expected a route after booking")
	}
}

func TestIntentionLessAndCovers(t *testing.T) {
	mk := func(arrive time.Duration, ids ...model.StationID) Intention {
		in := Intention{}
		for i, id := range ids {
			begin := t0
			if i == len(ids)-1 {
				begin = t0.Add(arrive)
			}
			in.Hops = append(in.Hops, Hop{Station: id, Window: model.NewTimeWindow(begin, time.Minute)})
		}
		return in
	}
	early := mk(10*time.Minute, 0, 1, 2, 3)
	late := mk(20*time.Minute, 0, 3)
	shortSame := mk(10*time.Minute, 0, 4, 3)
	if !early.Less(late) || late.Less(early) {
		t.Fatalf("earlier arrival must win")
	}
	if !shortSame.Less(early) {
		t.Fatalf("with equal arrival fewer hops must win")
	}
	if got := early.Covers([]model.StationID{1, 3, 3, 0, 9}); got != 2 {
		t.Fatalf("Covers = %d, want 2 (origin does not count)", got)
	}
}
