package model

import "time"

// Rider is a travel request waiting at, or riding away from, its origin.
type Rider struct {
	ID          RiderID
	Origin      StationID
	Destination StationID
	// SpawnedAt is when the rider appeared at the origin. Waiting queues are
	// ordered by it.
	SpawnedAt time.Time
	// Deadline is the latest on-time delivery instant.
	Deadline time.Time
}

// Outcome reports whether delivering at t meets the deadline, and by how
// much it was missed otherwise.
func (r Rider) Outcome(t time.Time) (onTime bool, delay time.Duration) {
	if !t.After(r.Deadline) {
		return true, 0
	}
	return false, t.Sub(r.Deadline)
}
