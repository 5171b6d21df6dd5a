package core

import (
	"slices"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// LoadingDock is a station where pods park and charge. It never has
// riders and never emits pheromones. Any number of pods may be docked, but
// only ChargeCapacity of them charge at once.
type LoadingDock struct {
	*Station
	ChargeCapacity int

	docked   []model.PodID
	charging []model.PodID
}

// Docked returns the pods parked at the dock in arrival order.
func (d *LoadingDock) Docked() []model.PodID { return slices.Clone(d.docked) }

// Charging returns the pods holding a charge slot.
func (d *LoadingDock) Charging() []model.PodID { return slices.Clone(d.charging) }

func (d *LoadingDock) isDocked(pod model.PodID) bool { return slices.Contains(d.docked, pod) }

// dockPod parks pod. Arrival consumes the pod's reservation for the bay.
func (d *LoadingDock) dockPod(pod model.PodID) {
	if !d.isDocked(pod) {
		d.docked = append(d.docked, pod)
	}
	d.Release(pod)
}

func (d *LoadingDock) undock(pod model.PodID) {
	d.docked = slices.DeleteFunc(d.docked, func(p model.PodID) bool { return p == pod })
	d.stopCharging(pod)
}

// startCharging claims a charge slot for pod. It reports false when every
// slot is taken by other pods.
func (d *LoadingDock) startCharging(pod model.PodID) bool {
	if slices.Contains(d.charging, pod) {
		return true
	}
	if len(d.charging) >= d.ChargeCapacity {
		return false
	}
	d.charging = append(d.charging, pod)
	return true
}

func (d *LoadingDock) stopCharging(pod model.PodID) {
	d.charging = slices.DeleteFunc(d.charging, func(p model.PodID) bool { return p == pod })
}

// FastestNeighbor asks every adjacent station for its earliest window at or
// after preferred and returns the one that opens first. Docks adjacent to
// the dock are not candidates.
func (d *LoadingDock) FastestNeighbor(n *Network, pod model.PodID, preferred time.Time) (model.StationID, model.TimeWindow, bool) {
	best := model.NoStation
	var bestWindow model.TimeWindow
	for _, id := range d.neighbours {
		st := n.stations[id]
		if st.isDock {
			continue
		}
		w, ok := st.reserveNear(pod, preferred)
		if !ok {
			continue
		}
		if !best.Valid() || w.Begin.Before(bestWindow.Begin) {
			best, bestWindow = id, w
		}
	}
	return best, bestWindow, best.Valid()
}
