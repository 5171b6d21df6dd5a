package core

import (
	"slices"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// Motion is the physical environment pods move through. The negotiation
// core only decides where and when to go; Motion tracks where pods are.
type Motion interface {
	// Place puts a pod at a station without travelling.
	Place(pod model.PodID, at model.StationID)
	// Position returns the pod's current coordinates.
	Position(pod model.PodID) model.Point
	// ObjectAt returns the station or dock the pod stands at, or
	// model.NoStation while it is between stations.
	ObjectAt(pod model.PodID) model.StationID
	// FollowWaypoints advances the pod along waypoints for dt and reports
	// whether it moved.
	FollowWaypoints(pod model.PodID, waypoints []model.StationID, dt time.Duration) bool
	Pickup(pod model.PodID, rider model.Rider)
	Deliver(pod model.PodID, rider model.Rider)
}

type podTrack struct {
	pos    model.Point
	at     model.StationID
	riders []model.RiderID
}

// GraphMotion moves pods along straight segments between stations at a
// constant speed.
type GraphMotion struct {
	net   *Network
	speed float64 // units per hour
	pods  map[model.PodID]*podTrack
}

// NewGraphMotion constructs a motion environment over net's stations.
// speed is in distance units per simulated hour.
func NewGraphMotion(net *Network, speed float64) *GraphMotion {
	return &GraphMotion{
		net:   net,
		speed: speed,
		pods:  make(map[model.PodID]*podTrack),
	}
}

func (m *GraphMotion) track(pod model.PodID) *podTrack {
	t, ok := m.pods[pod]
	if !ok {
		t = &podTrack{at: model.NoStation}
		m.pods[pod] = t
	}
	return t
}

func (m *GraphMotion) Place(pod model.PodID, at model.StationID) {
	t := m.track(pod)
	t.at = at
	if st := m.net.Station(at); st != nil {
		t.pos = st.Position
	}
}

func (m *GraphMotion) Position(pod model.PodID) model.Point { return m.track(pod).pos }

func (m *GraphMotion) ObjectAt(pod model.PodID) model.StationID { return m.track(pod).at }

func (m *GraphMotion) FollowWaypoints(pod model.PodID, waypoints []model.StationID, dt time.Duration) bool {
	t := m.track(pod)
	budget := m.speed * dt.Hours()
	moved := false
	for _, wp := range waypoints {
		st := m.net.Station(wp)
		if st == nil || budget <= 0 {
			break
		}
		dist := model.Distance(t.pos, st.Position)
		if dist <= budget {
			moved = moved || dist > 0 || t.at != wp
			t.pos, t.at = st.Position, wp
			budget -= dist
			continue
		}
		t.pos = model.Lerp(t.pos, st.Position, budget/dist)
		t.at = model.NoStation
		return true
	}
	return moved
}

func (m *GraphMotion) Pickup(pod model.PodID, rider model.Rider) {
	t := m.track(pod)
	t.riders = append(t.riders, rider.ID)
}

func (m *GraphMotion) Deliver(pod model.PodID, rider model.Rider) {
	t := m.track(pod)
	t.riders = slices.DeleteFunc(t.riders, func(id model.RiderID) bool { return id == rider.ID })
}

// Onboard returns the riders the environment believes are in the pod.
func (m *GraphMotion) Onboard(pod model.PodID) []model.RiderID {
	return slices.Clone(m.track(pod).riders)
}
