package core

import (
	"math"
	"slices"
	"testing"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

func nearPoint(a, b model.Point) bool {
	return math.Abs(a.X()-b.X()) < 1e-9 && math.Abs(a.Y()-b.Y()) < 1e-9
}

func TestGraphMotionTravelsAtConstantSpeed(t *testing.T) {
	f := newLineFixture(t, testParams(), 4)
	m := f.motion
	const pod = model.PodID(0)
	m.Place(pod, 0)

	if !m.FollowWaypoints(pod, []model.StationID{1}, 15*time.Second) {
		t.Fatalf("expected movement")
	}
	if got := m.ObjectAt(pod); got != model.NoStation {
		t.Fatalf("mid-hop ObjectAt = %s", got)
	}
	if got := m.Position(pod); !nearPoint(got, model.Point{1, 0}) {
		t.Fatalf("position = %v, want halfway", got)
	}

	if !m.FollowWaypoints(pod, []model.StationID{1}, 20*time.Second) {
		t.Fatalf("expected movement")
	}
	if got := m.ObjectAt(pod); got != 1 {
		t.Fatalf("ObjectAt = %s, want station 1", got)
	}
	if got := m.Position(pod); got != (model.Point{2, 0}) {
		t.Fatalf("position = %v, want snapped to the station", got)
	}
	if m.FollowWaypoints(pod, []model.StationID{1}, time.Second) {
		t.Fatalf("already at the waypoint, should not move")
	}
}

func TestGraphMotionCarriesLeftoverToNextWaypoint(t *testing.T) {
	f := newLineFixture(t, testParams(), 4)
	m := f.motion
	const pod = model.PodID(0)
	m.Place(pod, 1)

	if !m.FollowWaypoints(pod, []model.StationID{2, 3}, 45*time.Second) {
		t.Fatalf("expected movement")
	}
	if got := m.Position(pod); !nearPoint(got, model.Point{5, 0}) {
		t.Fatalf("position = %v, want between stations 2 and 3", got)
	}
	if got := m.ObjectAt(pod); got != model.NoStation {
		t.Fatalf("ObjectAt = %s", got)
	}
}

func TestGraphMotionIgnoresBadInput(t *testing.T) {
	f := newLineFixture(t, testParams(), 2)
	m := f.motion
	const pod = model.PodID(0)
	m.Place(pod, 0)

	if m.FollowWaypoints(pod, []model.StationID{42}, time.Minute) {
		t.Fatalf("unknown waypoint moved the pod")
	}
	if m.FollowWaypoints(pod, []model.StationID{1}, 0) {
		t.Fatalf("zero step moved the pod")
	}
	if got := m.ObjectAt(pod); got != 0 {
		t.Fatalf("ObjectAt = %s, want station 0", got)
	}
}

func TestGraphMotionTracksRiders(t *testing.T) {
	f := newLineFixture(t, testParams(), 2)
	m := f.motion
	const pod = model.PodID(3)
	a := model.Rider{ID: 1}
	b := model.Rider{ID: 2}

	m.Pickup(pod, a)
	m.Pickup(pod, b)
	m.Deliver(pod, a)

	if got := m.Onboard(pod); !slices.Equal(got, []model.RiderID{2}) {
		t.Fatalf("onboard = %v", got)
	}
}
