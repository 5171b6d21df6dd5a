package core

import (
	"slices"
	"sort"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// Station is a graph node with capacity for one pod. It owns the
// reservation ledger that serialises access to that capacity, the pheromone
// table, and the queue of riders waiting to board.
type Station struct {
	ID       model.StationID
	Name     string
	Position model.Point

	params *Params
	isDock bool

	// ledger is sorted by window begin and never holds overlapping windows.
	ledger     []Reservation
	signs      map[model.StationID]*RoadSign
	neighbours []model.StationID
	waiting    []model.Rider
	occupant   model.PodID
	// inbound is the pod that has set off toward the station and will
	// occupy it on arrival.
	inbound model.PodID
}

func newStation(id model.StationID, name string, pos model.Point, params *Params) *Station {
	return &Station{
		ID:       id,
		Name:     name,
		Position: pos,
		params:   params,
		signs:    make(map[model.StationID]*RoadSign),
		occupant: model.NoPod,
		inbound:  model.NoPod,
	}
}

// IsDock reports whether the station is a loading dock.
func (s *Station) IsDock() bool { return s.isDock }

// Neighbours returns the adjacent stations in connection order.
func (s *Station) Neighbours() []model.StationID { return slices.Clone(s.neighbours) }

// Occupant returns the pod physically present, or model.NoPod.
func (s *Station) Occupant() model.PodID { return s.occupant }

// Inbound returns the pod travelling toward the station, or model.NoPod.
func (s *Station) Inbound() model.PodID { return s.inbound }

// Waiting returns the riders queued at the station, earliest first.
func (s *Station) Waiting() []model.Rider { return slices.Clone(s.waiting) }

// Reservations returns a copy of the ledger in window order.
func (s *Station) Reservations() []Reservation { return slices.Clone(s.ledger) }

func (s *Station) addNeighbour(id model.StationID) {
	if !slices.Contains(s.neighbours, id) {
		s.neighbours = append(s.neighbours, id)
	}
}

// ReserveNear returns the earliest window of ReservationDuration at or after
// preferred that overlaps no booking. The bool is false when no such window
// begins within ReservationHorizon of preferred.
func (s *Station) ReserveNear(preferred time.Time) (model.TimeWindow, bool) {
	return s.reserveNear(model.NoPod, preferred)
}

// reserveNear is ReserveNear ignoring pod's own entry, which a booking by
// pod would replace anyway.
func (s *Station) reserveNear(pod model.PodID, preferred time.Time) (model.TimeWindow, bool) {
	d := s.params.ReservationDuration
	begin := preferred

	last := -1
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if !pod.Valid() || s.ledger[i].Pod != pod {
			last = i
			break
		}
	}
	if last < 0 || !begin.Before(s.ledger[last].Window.End) {
		return model.NewTimeWindow(begin, d), true
	}

	for _, r := range s.ledger {
		if pod.Valid() && r.Pod == pod {
			continue
		}
		if model.NewTimeWindow(begin, d).Overlaps(r.Window) {
			begin = r.Window.End
		}
	}
	if begin.After(preferred.Add(s.params.ReservationHorizon)) {
		return model.TimeWindow{}, false
	}
	return model.NewTimeWindow(begin, d), true
}

// book stores r, replacing any entry the same pod holds here, and stamps
// its expiration.
func (s *Station) book(r Reservation, now time.Time) Reservation {
	s.Release(r.Pod)
	r.Station = s.ID
	r.Expires = now.Add(s.params.ExpirationTime)
	idx := sort.Search(len(s.ledger), func(i int) bool {
		return s.ledger[i].Window.Begin.After(r.Window.Begin)
	})
	s.ledger = slices.Insert(s.ledger, idx, r)
	return r
}

func (s *Station) reservationFor(pod model.PodID) (Reservation, bool) {
	for _, r := range s.ledger {
		if r.Pod == pod {
			return r, true
		}
	}
	return Reservation{}, false
}

// Release drops pod's entry, if any. It is called when the pod consumes the
// reservation by leaving, and when a stalled pod is reset.
func (s *Station) Release(pod model.PodID) bool {
	for i, r := range s.ledger {
		if r.Pod == pod {
			s.ledger = slices.Delete(s.ledger, i, i+1)
			return true
		}
	}
	return false
}

// Sweep removes expired bookings except the one held by the pod currently
// at the station. It returns the number removed.
func (s *Station) Sweep(now time.Time) int {
	before := len(s.ledger)
	s.ledger = slices.DeleteFunc(s.ledger, func(r Reservation) bool {
		return r.Expired(now) && r.Pod != s.occupant
	})
	return before - len(s.ledger)
}

// claim takes the station's physical capacity for pod ahead of its
// arrival. It fails while another pod stands here or is already on its way
// in. Docks park any number of pods and always accept.
func (s *Station) claim(pod model.PodID) bool {
	if s.isDock || s.occupant == pod {
		return true
	}
	if s.occupant.Valid() {
		return false
	}
	if s.inbound.Valid() && s.inbound != pod {
		return false
	}
	s.inbound = pod
	return true
}

func (s *Station) unclaim(pod model.PodID) {
	if s.inbound == pod {
		s.inbound = model.NoPod
	}
}

func (s *Station) occupy(pod model.PodID) {
	s.occupant = pod
	s.unclaim(pod)
}

func (s *Station) vacate(pod model.PodID) {
	if s.occupant == pod {
		s.occupant = model.NoPod
	}
}

func (s *Station) addRider(r model.Rider) { s.waiting = append(s.waiting, r) }

// takeRiders removes up to limit waiting riders accepted by keep, oldest first.
func (s *Station) takeRiders(limit int, keep func(model.Rider) bool) []model.Rider {
	var taken []model.Rider
	rest := s.waiting[:0]
	for _, r := range s.waiting {
		if len(taken) < limit && keep(r) {
			taken = append(taken, r)
			continue
		}
		rest = append(rest, r)
	}
	s.waiting = rest
	return taken
}

// RoadSigns returns the pheromone table ordered by end station.
func (s *Station) RoadSigns() []RoadSign {
	out := make([]RoadSign, 0, len(s.signs))
	for _, rs := range s.signs {
		out = append(out, *rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].End < out[j].End })
	return out
}

// receiveRoadSign refreshes the sign for end or creates it.
func (s *Station) receiveRoadSign(end model.StationID, hops int) {
	if rs, ok := s.signs[end]; ok {
		rs.refresh(hops)
		return
	}
	s.signs[end] = &RoadSign{End: end, Strength: 1.0, Hops: hops}
}

// Decay halves every sign and drops those that fall below epsilon.
func (s *Station) Decay() int {
	removed := 0
	for end, rs := range s.signs {
		rs.Strength /= 2
		if rs.Strength < s.params.PheromoneEpsilon {
			delete(s.signs, end)
			removed++
		}
	}
	return removed
}

// strongestSign picks the sign with the highest strength, breaking ties by
// the larger remaining hop budget and then the lower end ID. Signs rejected
// by skip are ignored.
func (s *Station) strongestSign(skip func(model.StationID) bool) (RoadSign, bool) {
	var best RoadSign
	found := false
	for _, rs := range s.signs {
		if skip != nil && skip(rs.End) {
			continue
		}
		if !found || betterSign(*rs, best) {
			best, found = *rs, true
		}
	}
	return best, found
}

func betterSign(a, b RoadSign) bool {
	if a.Strength != b.Strength {
		return a.Strength > b.Strength
	}
	if a.Hops != b.Hops {
		return a.Hops > b.Hops
	}
	return a.End < b.End
}
