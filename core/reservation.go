package core

import (
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// Reservation is a booked window at one station for one pod. Reservations
// of a route are chained through Prev back to the origin, whose Prev is
// model.NoStation.
type Reservation struct {
	Station model.StationID
	Prev    model.StationID
	Window  model.TimeWindow
	Expires time.Time
	Pod     model.PodID
}

// Expired reports whether the reservation's hold lapsed before now.
func (r Reservation) Expired(now time.Time) bool {
	return now.After(r.Expires)
}

// placeholders builds an unbooked chain for pod that starts at origin and
// visits stops in order. Window carries the booking hint, if any.
func placeholders(pod model.PodID, origin model.StationID, originHint model.TimeWindow, stops []Reservation) []Reservation {
	chain := make([]Reservation, 0, len(stops)+1)
	chain = append(chain, Reservation{Station: origin, Prev: model.NoStation, Pod: pod, Window: originHint})
	prev := origin
	for _, s := range stops {
		chain = append(chain, Reservation{Station: s.Station, Prev: prev, Pod: pod, Window: s.Window})
		prev = s.Station
	}
	return chain
}

func stationsOf(rs []Reservation) []model.StationID {
	ids := make([]model.StationID, len(rs))
	for i, r := range rs {
		ids[i] = r.Station
	}
	return ids
}
