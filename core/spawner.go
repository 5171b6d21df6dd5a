package core

import (
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// SpawnRiders adds at most one random rider per call with probability
// SpawnRate while fewer than MaxUsers riders are live.
func (n *Network) SpawnRiders(now time.Time) (model.Rider, bool) {
	if n.liveRiders >= n.params.MaxUsers || n.rng.Float64() >= n.params.SpawnRate {
		return model.Rider{}, false
	}
	return n.spawnRandomRider(now)
}

// SeedRiders spawns the initial riders present when the run starts.
func (n *Network) SeedRiders(now time.Time) int {
	spawned := 0
	for range n.params.InitialUsers {
		if n.liveRiders >= n.params.MaxUsers {
			break
		}
		if _, ok := n.spawnRandomRider(now); ok {
			spawned++
		}
	}
	return spawned
}

func (n *Network) spawnRandomRider(now time.Time) (model.Rider, bool) {
	candidates := make([]model.StationID, 0, len(n.stations))
	for _, st := range n.stations {
		if !st.isDock {
			candidates = append(candidates, st.ID)
		}
	}
	if len(candidates) < 2 {
		return model.Rider{}, false
	}
	origin := candidates[n.rng.IntN(len(candidates))]
	dest := origin
	for dest == origin {
		dest = candidates[n.rng.IntN(len(candidates))]
	}
	r, err := n.AddRider(origin, dest, now)
	if err != nil {
		return model.Rider{}, false
	}
	return r, true
}
