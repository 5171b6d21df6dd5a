package model

import "strconv"

// StationID identifies a station or loading dock. It is an index into the
// network's station arena, so it stays valid for the whole run.
type StationID int

// PodID identifies a pod in the network's pod arena.
type PodID int

// RiderID identifies a travel request.
type RiderID int

const (
	// NoStation marks the absence of a station, e.g. the origin of a
	// reservation chain has no previous station.
	NoStation StationID = -1
	// NoPod marks an unoccupied station.
	NoPod PodID = -1
)

// Valid reports whether id refers to a station rather than NoStation.
func (id StationID) Valid() bool { return id >= 0 }

func (id StationID) String() string {
	if !id.Valid() {
		return "station(none)"
	}
	return "station-" + strconv.Itoa(int(id))
}

// Valid reports whether id refers to a pod rather than NoPod.
func (id PodID) Valid() bool { return id >= 0 }

func (id PodID) String() string {
	if !id.Valid() {
		return "pod(none)"
	}
	return "pod-" + strconv.Itoa(int(id))
}

func (id RiderID) String() string { return "rider-" + strconv.Itoa(int(id)) }
