package core

import (
	"testing"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

func TestPheromoneSpreadsWithinHopBudget(t *testing.T) {
	params := testParams()
	params.AdvancedPlanning = true
	f := newLineFixture(t, params, 8)
	if _, err := f.net.AddRider(0, 3, t0); err != nil {
		t.Fatalf("AddRider: %v", err)
	}

	if !f.net.EmitPheromone(0) {
		t.Fatalf("station with a waiting rider should emit")
	}
	// Echoes from later waves lower the budget a station remembers.
	want := map[model.StationID]int{0: 3, 1: 2, 2: 1, 3: 0, 4: 1, 5: 0}
	for i := range 8 {
		id := model.StationID(i)
		signs := f.net.Station(id).RoadSigns()
		hops, reached := want[id]
		if !reached {
			if len(signs) != 0 {
				t.Fatalf("station %d beyond the budget got %v", i, signs)
			}
			continue
		}
		if len(signs) != 1 || signs[0].End != 0 {
			t.Fatalf("station %d signs = %v", i, signs)
		}
		if signs[0].Hops != hops || signs[0].Strength != 1 {
			t.Fatalf("station %d sign = %+v, want hops %d strength 1", i, signs[0], hops)
		}
	}
	if signs := f.net.Station(f.dock).RoadSigns(); len(signs) != 0 {
		t.Fatalf("docks should not carry road signs: %v", signs)
	}
}

func TestPheromoneNotEmittedWhenServedOrEmpty(t *testing.T) {
	f := newLineFixture(t, testParams(), 3)
	if f.net.EmitPheromone(1) {
		t.Fatalf("station without riders emitted")
	}
	if f.net.EmitPheromone(f.dock) {
		t.Fatalf("dock emitted")
	}
	if _, err := f.net.AddRider(1, 2, t0); err != nil {
		t.Fatalf("AddRider: %v", err)
	}
	f.podAt(t, 1)
	if f.net.EmitPheromone(1) {
		t.Fatalf("occupied station emitted")
	}
}

func TestPheromoneRefreshKeepsLowestBudget(t *testing.T) {
	params := testParams()
	params.AdvancedPlanning = true
	f := newLineFixture(t, params, 4)
	st2 := f.net.Station(2)
	st2.signs[0] = &RoadSign{End: 0, Strength: 0.125, Hops: 1}

	f.net.propagateRoadSign(0, 5)
	signs := st2.RoadSigns()
	if len(signs) != 1 || signs[0].Hops != 1 || signs[0].Strength != 1 {
		t.Fatalf("refreshed sign = %v, want hops 1 strength 1", signs)
	}
}

func TestBasicPheromoneWalksSingleBranch(t *testing.T) {
	params := testParams()
	f := newLineFixture(t, params, 4)
	// Star around station 1 so a single walk cannot reach every arm.
	hub := model.StationID(1)
	var arms []model.StationID
	for i := range 4 {
		id, err := f.net.AddStation("arm"+string(rune('a'+i)), model.Point{2, float64(10 + i)})
		if err != nil {
			t.Fatalf("AddStation: %v", err)
		}
		if err := f.net.Connect(hub, id); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		arms = append(arms, id)
	}

	f.net.propagateRoadSign(hub, 1)
	reached := 0
	for _, id := range append(arms, 0, 2) {
		if len(f.net.Station(id).RoadSigns()) > 0 {
			reached++
		}
	}
	if reached != 1 {
		t.Fatalf("basic mode should forward to exactly one neighbour, reached %d", reached)
	}
}
