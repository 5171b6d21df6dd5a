package core

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/kb"
	"github.com/signalsfoundry/pod-mover-simulator/model"
)

var t0 = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

type fakeRecorder struct {
	mu       sync.Mutex
	drops    map[string]int
	booked   int
	expired  int
	explored int
	battery  map[model.PodID]float64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{drops: make(map[string]int), battery: make(map[model.PodID]float64)}
}

func (r *fakeRecorder) AntDropped(ant, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drops[ant+"/"+reason]++
}
func (r *fakeRecorder) ReservationBooked()                        { r.booked++ }
func (r *fakeRecorder) ReservationsExpired(n int)                 { r.expired += n }
func (r *fakeRecorder) ExplorationCompleted(time.Duration, int)   { r.explored++ }
func (r *fakeRecorder) TickCompleted(time.Duration)               {}
func (r *fakeRecorder) PodsCharging(int)                          {}
func (r *fakeRecorder) RidersWaiting(int)                         {}
func (r *fakeRecorder) PodBattery(pod model.PodID, level float64) { r.battery[pod] = level }

// fixture is a straight line of stations s0..s(n-1), two units apart, with
// a dock hanging off s0.
type fixture struct {
	net    *Network
	motion *GraphMotion
	store  *kb.KnowledgeBase
	rec    *fakeRecorder
	dock   model.StationID
}

func testParams() Params {
	p := DefaultParams()
	p.SpawnRate = 0
	p.InitialUsers = 0
	return p
}

func newLineFixture(t *testing.T, params Params, n int) *fixture {
	t.Helper()
	net := NewNetwork(params, rand.New(rand.NewPCG(7, 11)))
	for i := range n {
		if _, err := net.AddStation(fmt.Sprintf("s%d", i), model.Point{float64(2 * i), 0}); err != nil {
			t.Fatalf("AddStation: %v", err)
		}
		if i > 0 {
			if err := net.Connect(model.StationID(i-1), model.StationID(i)); err != nil {
				t.Fatalf("Connect: %v", err)
			}
		}
	}
	dock, err := net.AddDock("dock", model.Point{0, -2}, 1)
	if err != nil {
		t.Fatalf("AddDock: %v", err)
	}
	if err := net.Connect(dock, 0); err != nil {
		t.Fatalf("Connect dock: %v", err)
	}

	f := &fixture{
		net:    net,
		motion: NewGraphMotion(net, net.Params().PodSpeed),
		store:  kb.NewKnowledgeBase(),
		rec:    newFakeRecorder(),
		dock:   dock,
	}
	net.AttachMotion(f.motion)
	net.SetEventSink(f.store)
	net.SetRecorder(f.rec)
	return f
}

// podAt adds a pod and moves it straight to station at.
func (f *fixture) podAt(t *testing.T, at model.StationID) *Pod {
	t.Helper()
	id, err := f.net.AddPod(f.dock)
	if err != nil {
		t.Fatalf("AddPod: %v", err)
	}
	f.motion.Place(id, at)
	p := f.net.Pod(id)
	p.updateLocation(t0)
	return p
}

func assertLedgerExclusive(t *testing.T, st *Station) {
	t.Helper()
	ledger := st.Reservations()
	for i := range ledger {
		for j := i + 1; j < len(ledger); j++ {
			if ledger[i].Window.Overlaps(ledger[j].Window) {
				t.Fatalf("%s: reservations %v and %v overlap", st.Name, ledger[i], ledger[j])
			}
		}
		if i > 0 && ledger[i].Window.Begin.Before(ledger[i-1].Window.Begin) {
			t.Fatalf("%s: ledger not sorted at %d", st.Name, i)
		}
	}
}
