package core

import (
	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// EmitPheromone lets a station with waiting riders and no pod present or
// on its way announce its demand. It reports whether an ant was sent.
func (n *Network) EmitPheromone(id model.StationID) bool {
	st := n.Station(id)
	if st == nil || st.isDock || len(st.waiting) == 0 || st.occupant.Valid() || st.inbound.Valid() {
		return false
	}
	n.propagateRoadSign(id, n.params.PheromoneHopBudget)
	return true
}

// propagateRoadSign spreads a sign for end breadth first. Every station the
// ant reaches refreshes its sign; a station forwards at most once per
// broadcast, so the first (largest) budget to reach it wins.
func (n *Network) propagateRoadSign(end model.StationID, budget int) {
	type wave struct {
		at   model.StationID
		hops int
	}
	forwarded := make(map[model.StationID]bool)
	queue := []wave{{at: end, hops: budget}}
	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]

		st := n.stations[w.at]
		st.receiveRoadSign(end, w.hops)
		if w.hops <= 0 || forwarded[w.at] {
			continue
		}
		forwarded[w.at] = true

		targets := n.signTargets(st)
		if !n.params.AdvancedPlanning && len(targets) > 0 {
			pick := n.rng.IntN(len(targets))
			targets = targets[pick : pick+1]
		}
		for _, nb := range targets {
			queue = append(queue, wave{at: nb, hops: w.hops - 1})
		}
	}
}

func (n *Network) signTargets(st *Station) []model.StationID {
	out := make([]model.StationID, 0, len(st.neighbours))
	for _, nb := range st.neighbours {
		if !n.stations[nb].isDock {
			out = append(out, nb)
		}
	}
	return out
}
