package core

import (
	"slices"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// SendReservationAnt books chain hop by hop and, once the last station has
// booked, runs the confirmation back along the Prev links. chain[0] must be
// the pod's current station with Prev set to model.NoStation.
//
// The returned list is ordered destination first, as collected by the
// confirmation. The bool is false when the ant died; bookings made before
// the failing hop stay in the ledgers until they expire.
func (n *Network) SendReservationAnt(pod model.PodID, chain []Reservation, now time.Time) ([]Reservation, bool) {
	if len(chain) == 0 {
		return nil, false
	}
	last, ok := n.makeReservation(pod, slices.Clone(chain), now)
	if !ok {
		return nil, false
	}
	return n.sendConfirmation(pod, last)
}

// makeReservation is the forward phase. Each station pops the head
// placeholder, fixes its window and passes the rest on. A placeholder's
// Window, when set, is a hint: the station tries to keep that slot so a
// refresh does not push an agreed route later.
func (n *Network) makeReservation(pod model.PodID, pending []Reservation, now time.Time) (model.StationID, bool) {
	var prevEnd time.Time
	at := model.NoStation
	for i, head := range pending {
		st := n.Station(head.Station)
		if st == nil {
			n.rec.AntDropped(AntReservation, DropBrokenChain)
			return model.NoStation, false
		}

		preferred := now
		if i > 0 {
			preferred = prevEnd.Add(n.params.BufferTime)
			if head.Window.Begin.After(preferred) {
				preferred = head.Window.Begin
			}
		} else if !head.Window.IsZero() {
			preferred = head.Window.Begin
		}

		w, ok := st.reserveNear(pod, preferred)
		if !ok {
			n.rec.AntDropped(AntReservation, DropInfeasible)
			return model.NoStation, false
		}
		head.Pod = pod
		head.Window = w
		st.book(head, now)
		n.rec.ReservationBooked()

		prevEnd = w.End
		at = st.ID
	}
	return at, true
}

// sendConfirmation walks from the destination back to the chain origin,
// collecting the pod's reservation at every station.
func (n *Network) sendConfirmation(pod model.PodID, from model.StationID) ([]Reservation, bool) {
	var collected []Reservation
	at := from
	for at.Valid() {
		r, ok := n.stations[at].reservationFor(pod)
		if !ok || len(collected) > len(n.stations) {
			n.rec.AntDropped(AntReservation, DropBrokenChain)
			return nil, false
		}
		collected = append(collected, r)
		at = r.Prev
	}
	return collected, true
}
