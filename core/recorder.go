package core

import (
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/kb"
	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// Drop reasons reported for ants that die without delivering a result.
const (
	DropLoop        = "loop"
	DropHopBudget   = "hop_budget"
	DropInfeasible  = "infeasible"
	DropStepLimit   = "step_limit"
	DropBrokenChain = "broken_chain"
)

// Ant kinds reported alongside drop reasons.
const (
	AntExploration = "exploration"
	AntReservation = "reservation"
)

// Recorder receives core measurements. Implementations must be cheap; the
// core calls them inline on the tick path.
type Recorder interface {
	AntDropped(ant, reason string)
	ReservationBooked()
	ReservationsExpired(n int)
	ExplorationCompleted(d time.Duration, intentions int)
	TickCompleted(d time.Duration)
	PodsCharging(n int)
	RidersWaiting(n int)
	PodBattery(pod model.PodID, level float64)
}

// EventSink receives domain events. *kb.KnowledgeBase implements it.
type EventSink interface {
	Publish(ev kb.Event) error
}

type noopRecorder struct{}

func (noopRecorder) AntDropped(string, string)               {}
func (noopRecorder) ReservationBooked()                      {}
func (noopRecorder) ReservationsExpired(int)                 {}
func (noopRecorder) ExplorationCompleted(time.Duration, int) {}
func (noopRecorder) TickCompleted(time.Duration)             {}
func (noopRecorder) PodsCharging(int)                        {}
func (noopRecorder) RidersWaiting(int)                       {}
func (noopRecorder) PodBattery(model.PodID, float64)         {}
