package core

import (
	"slices"
	"testing"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

func bookRoute(t *testing.T, f *fixture, p *Pod, dest model.StationID) (Intention, []Reservation) {
	t.Helper()
	found := f.net.Explore(p.Location(), dest, 4, p.ID, t0)
	if len(found) == 0 {
		t.Fatalf("no route from %s to %s", p.Location(), dest)
	}
	confirmed, ok := f.net.SendReservationAnt(p.ID, placeholders(p.ID, p.Location(), model.TimeWindow{}, found[0].stops()), t0)
	if !ok {
		t.Fatalf("reservation ant died")
	}
	return found[0], confirmed
}

func TestConfirmedChainMatchesIntention(t *testing.T) {
	f := newLineFixture(t, testParams(), 5)
	p := f.podAt(t, 0)
	in, confirmed := bookRoute(t, f, p, 4)

	if confirmed[0].Station != 4 {
		t.Fatalf("confirmation should arrive destination first, got %s", confirmed[0].Station)
	}
	route := slices.Clone(confirmed)
	slices.Reverse(route)
	if len(route) != len(in.Hops) {
		t.Fatalf("route has %d entries, intention %d", len(route), len(in.Hops))
	}
	for i, r := range route {
		if r.Station != in.Hops[i].Station {
			t.Fatalf("hop %d booked at %s, intention says %s", i, r.Station, in.Hops[i].Station)
		}
		if r.Pod != p.ID {
			t.Fatalf("hop %d owned by %s", i, r.Pod)
		}
		if i == 0 {
			if r.Prev.Valid() {
				t.Fatalf("origin must have no previous station, got %s", r.Prev)
			}
			continue
		}
		if r.Prev != route[i-1].Station {
			t.Fatalf("hop %d links to %s, want %s", i, r.Prev, route[i-1].Station)
		}
		if r.Window.Begin.Before(route[i-1].Window.End.Add(f.net.Params().BufferTime)) {
			t.Fatalf("hop %d window %v starts before previous %v plus buffer", i, r.Window, route[i-1].Window)
		}
		if !r.Expires.Equal(t0.Add(f.net.Params().ExpirationTime)) {
			t.Fatalf("hop %d expires %v", i, r.Expires)
		}
	}
}

func TestRefreshKeepsStationsAndSlots(t *testing.T) {
	f := newLineFixture(t, testParams(), 5)
	p := f.podAt(t, 0)
	_, confirmed := bookRoute(t, f, p, 4)
	p.confirmReservations(confirmed, t0)
	before := append(p.Queue(), p.Desire()...)

	later := t0.Add(3 * time.Minute)
	if !p.refresh(later) {
		t.Fatalf("refresh failed on an uncontested route")
	}
	after := append(p.Queue(), p.Desire()...)

	if !slices.Equal(stationsOf(before), stationsOf(after)) {
		t.Fatalf("refresh changed stations: %v -> %v", stationsOf(before), stationsOf(after))
	}
	for i := range after {
		if !after[i].Window.Begin.Equal(before[i].Window.Begin) {
			t.Fatalf("hop %d moved from %v to %v", i, before[i].Window, after[i].Window)
		}
		if !after[i].Expires.Equal(later.Add(f.net.Params().ExpirationTime)) {
			t.Fatalf("hop %d expiration not extended: %v", i, after[i].Expires)
		}
	}
	for _, st := range f.net.Stations() {
		count := 0
		for _, r := range st.Reservations() {
			if r.Pod == p.ID {
				count++
			}
		}
		if count > 1 {
			t.Fatalf("%s holds %d entries for the pod after refresh", st.Name, count)
		}
	}
}

func TestRefreshMovesOnlyTimesWhenContested(t *testing.T) {
	f := newLineFixture(t, testParams(), 4)
	p := f.podAt(t, 0)
	_, confirmed := bookRoute(t, f, p, 3)
	p.confirmReservations(confirmed, t0)
	before := stationsOf(append(p.Queue(), p.Desire()...))

	// Another pod grabs station 2 after the sweep drops this pod's expired hop.
	later := t0.Add(6 * time.Minute)
	st2 := f.net.Station(2)
	st2.Sweep(later)
	hop2 := p.Desire()[1]
	bookAt(st2, 9, hop2.Window.Begin, later)

	if !p.refresh(later) {
		t.Fatalf("refresh failed")
	}
	after := append(p.Queue(), p.Desire()...)
	if !slices.Equal(before, stationsOf(after)) {
		t.Fatalf("stations changed: %v -> %v", before, stationsOf(after))
	}
	if !after[1].Window.Begin.After(hop2.Window.Begin) {
		t.Fatalf("contested hop should move later, got %v", after[1].Window)
	}
	assertLedgerExclusive(t, st2)
}

func TestReservationAntDiesWhenInfeasible(t *testing.T) {
	params := testParams()
	params.ReservationHorizon = 10 * time.Minute
	f := newLineFixture(t, params, 3)
	p := f.podAt(t, 0)

	st2 := f.net.Station(2)
	for i := range 12 {
		bookAt(st2, model.PodID(100+i), t0.Add(time.Duration(i)*5*time.Minute), t0)
	}
	chain := placeholders(p.ID, 0, model.TimeWindow{}, []Reservation{{Station: 1}, {Station: 2}})
	if _, ok := f.net.SendReservationAnt(p.ID, chain, t0); ok {
		t.Fatalf("expected the ant to die at the full station")
	}
	if f.rec.drops["reservation/infeasible"] != 1 {
		t.Fatalf("drops = %v", f.rec.drops)
	}
	// Hops booked before the failure stay until they expire.
	if _, ok := f.net.Station(1).reservationFor(p.ID); !ok {
		t.Fatalf("expected a stale hold at station 1")
	}
	f.net.Station(1).Sweep(t0.Add(6 * time.Minute))
	if _, ok := f.net.Station(1).reservationFor(p.ID); ok {
		t.Fatalf("stale hold survived the sweep")
	}
}

func TestConfirmationDetectsBrokenChain(t *testing.T) {
	f := newLineFixture(t, testParams(), 4)
	p := f.podAt(t, 0)
	bookRoute(t, f, p, 3)

	f.net.Station(2).Release(p.ID)
	if _, ok := f.net.sendConfirmation(p.ID, 3); ok {
		t.Fatalf("confirmation should fail when a link is missing")
	}
	if f.rec.drops["reservation/broken_chain"] != 1 {
		t.Fatalf("drops = %v", f.rec.drops)
	}
}
