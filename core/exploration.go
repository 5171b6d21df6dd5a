package core

import (
	"slices"
	"sort"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// Hop is one station of an intention together with the earliest window the
// station could grant when the exploration ant passed through.
type Hop struct {
	Station model.StationID
	Window  model.TimeWindow
}

// Intention is a candidate route found by one exploration branch. Hops[0]
// is the origin.
type Intention struct {
	Hops []Hop
}

// Origin returns the station the route starts from.
func (in Intention) Origin() model.StationID { return in.Hops[0].Station }

// Destination returns the last station of the route.
func (in Intention) Destination() model.StationID { return in.Hops[len(in.Hops)-1].Station }

// Arrival returns when the destination window opens.
func (in Intention) Arrival() time.Time { return in.Hops[len(in.Hops)-1].Window.Begin }

// Len returns the number of edges travelled.
func (in Intention) Len() int { return len(in.Hops) - 1 }

// Visits reports whether the route passes through id after leaving the origin.
func (in Intention) Visits(id model.StationID) bool {
	for _, h := range in.Hops[1:] {
		if h.Station == id {
			return true
		}
	}
	return false
}

// Covers counts the distinct stations in dests the route visits.
func (in Intention) Covers(dests []model.StationID) int {
	count := 0
	for i, d := range dests {
		if slices.Contains(dests[:i], d) {
			continue
		}
		if in.Visits(d) {
			count++
		}
	}
	return count
}

// Less orders intentions by earliest arrival, then fewer hops, then station
// IDs so the choice is deterministic.
func (in Intention) Less(o Intention) bool {
	if !in.Arrival().Equal(o.Arrival()) {
		return in.Arrival().Before(o.Arrival())
	}
	if in.Len() != o.Len() {
		return in.Len() < o.Len()
	}
	for i := range in.Hops {
		if in.Hops[i].Station != o.Hops[i].Station {
			return in.Hops[i].Station < o.Hops[i].Station
		}
	}
	return false
}

// stops converts the route after the origin into booking placeholders that
// carry the explored windows as hints.
func (in Intention) stops() []Reservation {
	out := make([]Reservation, 0, in.Len())
	for _, h := range in.Hops[1:] {
		out = append(out, Reservation{Station: h.Station, Window: h.Window})
	}
	return out
}

// unwinding marks a worklist item travelling back toward the origin.
const unwinding = -1

type exploreItem struct {
	at      model.StationID
	visited []Hop
	hops    int
}

func indexOf(visited []Hop, id model.StationID) int {
	for i, h := range visited {
		if h.Station == id {
			return i
		}
	}
	return -1
}

// Explore runs one exploration round from origin toward destination on
// behalf of pod and returns every intention that made it back to the
// origin, best first. Each branch owns its visited list; the worklist
// replaces recursion so the round is bounded by ExplorationStepLimit.
func (n *Network) Explore(origin, destination model.StationID, hops int, pod model.PodID, now time.Time) []Intention {
	if n.Station(origin) == nil || n.Station(destination) == nil {
		return nil
	}
	started := time.Now()
	var found []Intention

	stack := []exploreItem{{at: origin, hops: hops}}
	steps := 0
	for len(stack) > 0 {
		if steps >= n.params.ExplorationStepLimit {
			n.rec.AntDropped(AntExploration, DropStepLimit)
			break
		}
		steps++

		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		st := n.stations[it.at]

		if it.hops == unwinding {
			idx := indexOf(it.visited, it.at)
			if idx == 0 {
				found = append(found, Intention{Hops: it.visited})
				continue
			}
			stack = append(stack, exploreItem{at: it.visited[idx-1].Station, visited: it.visited, hops: unwinding})
			continue
		}

		if indexOf(it.visited, it.at) >= 0 {
			n.rec.AntDropped(AntExploration, DropLoop)
			continue
		}
		if it.hops <= 0 && it.at != destination {
			n.rec.AntDropped(AntExploration, DropHopBudget)
			continue
		}

		w, ok := n.earliestWindow(st, it.visited, pod, now)
		if !ok {
			n.rec.AntDropped(AntExploration, DropInfeasible)
			continue
		}
		visited := append(slices.Clone(it.visited), Hop{Station: it.at, Window: w})

		if it.at == destination {
			if len(visited) == 1 {
				found = append(found, Intention{Hops: visited})
				continue
			}
			stack = append(stack, exploreItem{at: visited[len(visited)-2].Station, visited: visited, hops: unwinding})
			continue
		}

		nbs := st.neighbours
		for i := len(nbs) - 1; i >= 0; i-- {
			nb := nbs[i]
			// Docks are only entered as the final stop.
			if n.stations[nb].isDock && nb != destination {
				continue
			}
			stack = append(stack, exploreItem{at: nb, visited: slices.Clone(visited), hops: it.hops - 1})
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Less(found[j]) })
	n.rec.ExplorationCompleted(time.Since(started), len(found))
	return found
}

// earliestWindow is the window the ant records at st. The origin is free
// for its own pod; every later stop starts a buffer after the previous
// window ends.
func (n *Network) earliestWindow(st *Station, visited []Hop, pod model.PodID, now time.Time) (model.TimeWindow, bool) {
	if len(visited) == 0 {
		if n.occupiedBy(st.ID, pod) {
			return model.NewTimeWindow(now, n.params.ReservationDuration), true
		}
		return st.reserveNear(pod, now)
	}
	prev := visited[len(visited)-1].Window
	return st.reserveNear(pod, prev.End.Add(n.params.BufferTime))
}
