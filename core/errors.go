package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

var (
	// ErrUnknownStation is returned when a station ID or name is not registered.
	ErrUnknownStation = errors.New("unknown station")
	// ErrDuplicateStation is returned when two stations share a name or position.
	ErrDuplicateStation = errors.New("duplicate station")
	// ErrSelfLoop is returned when connecting a station to itself.
	ErrSelfLoop = errors.New("station cannot neighbour itself")
	// ErrNotDock is returned when a pod is placed anywhere but a loading dock.
	ErrNotDock = errors.New("station is not a loading dock")
	// ErrSameEndpoints is returned for riders whose origin equals their destination.
	ErrSameEndpoints = errors.New("origin and destination are the same station")
	// ErrDockOccupied is returned when a rider would be placed at a dock.
	ErrDockOccupied = errors.New("loading docks do not take riders")
	// ErrNoMotion is returned when pods are added before a motion environment.
	ErrNoMotion = errors.New("no motion environment attached")
	// ErrBatteryExhausted marks a pod that ran out of charge while moving.
	ErrBatteryExhausted = errors.New("battery exhausted while moving")
)

// BatteryExhaustedError is the fatal simulation error raised by a pod whose
// battery hit zero mid-hop.
type BatteryExhaustedError struct {
	Pod model.PodID
	At  time.Time
}

func (e *BatteryExhaustedError) Error() string {
	return fmt.Sprintf("%s at %s: %v", e.Pod, e.At.Format(time.RFC3339), ErrBatteryExhausted)
}

func (e *BatteryExhaustedError) Unwrap() error { return ErrBatteryExhausted }
