package core

import "github.com/signalsfoundry/pod-mover-simulator/model"

// RoadSign is a decaying marker pointing toward a station with riders
// waiting. A station keeps at most one sign per end station.
type RoadSign struct {
	End      model.StationID
	Strength float64
	Hops     int
}

// refresh merges a newly arrived signal into the sign.
func (rs *RoadSign) refresh(hops int) {
	rs.Strength = 1.0
	if hops < rs.Hops {
		rs.Hops = hops
	}
}
