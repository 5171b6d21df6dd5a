package core

import (
	"errors"
	"fmt"
	"time"
)

// Params holds the tunables of the negotiation core. Zero-valued fields
// are filled from DefaultParams by ApplyDefaults.
type Params struct {
	// AdvancedPlanning selects multi-passenger planning and all-neighbour
	// pheromone propagation. When false pods serve riders first come, first
	// served and pheromones walk to a single random neighbour.
	AdvancedPlanning bool

	ReservationDuration time.Duration
	BufferTime          time.Duration
	ExpirationTime      time.Duration
	// ReservationHorizon bounds how far past the preferred time a window may
	// be placed before the station reports it as infeasible.
	ReservationHorizon time.Duration

	MaxUsers         int
	InitialUsers     int
	SpawnRate        float64
	DeliveryDeadline time.Duration

	// Battery rates are percentage points per simulated second.
	BatteryDrainRate float64
	BatteryGainRate  float64
	BatteryThreshold float64

	ExplorationHopBudget int
	ExplorationStepLimit int
	PheromoneHopBudget   int
	PheromoneEpsilon     float64

	ReplanInterval time.Duration
	StallTimeout   time.Duration
	RefreshMargin  time.Duration

	PodCapacity    int
	ChargeCapacity int
	// PodSpeed is in distance units per simulated hour.
	PodSpeed float64
}

// DefaultParams returns the parameter set used by the demo scenario.
func DefaultParams() Params {
	return Params{
		ReservationDuration:  5 * time.Minute,
		BufferTime:           30 * time.Second,
		ExpirationTime:       5 * time.Minute,
		ReservationHorizon:   2 * time.Hour,
		MaxUsers:             100,
		InitialUsers:         2,
		SpawnRate:            0.01,
		DeliveryDeadline:     2 * time.Hour,
		BatteryDrainRate:     0.004,
		BatteryGainRate:      0.05,
		BatteryThreshold:     30,
		ExplorationHopBudget: 4,
		ExplorationStepLimit: 10000,
		PheromoneHopBudget:   5,
		PheromoneEpsilon:     1e-4,
		ReplanInterval:       10 * time.Second,
		StallTimeout:         30 * time.Minute,
		RefreshMargin:        150 * time.Second,
		PodCapacity:          4,
		ChargeCapacity:       1,
		PodSpeed:             240,
	}
}

// ApplyDefaults fills zero-valued fields. AdvancedPlanning and
// InitialUsers are left alone since their zero value is meaningful.
func (p *Params) ApplyDefaults() {
	d := DefaultParams()
	if p.ReservationDuration <= 0 {
		p.ReservationDuration = d.ReservationDuration
	}
	if p.BufferTime < 0 {
		p.BufferTime = d.BufferTime
	}
	if p.ExpirationTime <= 0 {
		p.ExpirationTime = d.ExpirationTime
	}
	if p.ReservationHorizon <= 0 {
		p.ReservationHorizon = d.ReservationHorizon
	}
	if p.MaxUsers <= 0 {
		p.MaxUsers = d.MaxUsers
	}
	if p.DeliveryDeadline <= 0 {
		p.DeliveryDeadline = d.DeliveryDeadline
	}
	if p.BatteryDrainRate <= 0 {
		p.BatteryDrainRate = d.BatteryDrainRate
	}
	if p.BatteryGainRate <= 0 {
		p.BatteryGainRate = d.BatteryGainRate
	}
	if p.BatteryThreshold <= 0 {
		p.BatteryThreshold = d.BatteryThreshold
	}
	if p.ExplorationHopBudget <= 0 {
		p.ExplorationHopBudget = d.ExplorationHopBudget
	}
	if p.ExplorationStepLimit <= 0 {
		p.ExplorationStepLimit = d.ExplorationStepLimit
	}
	if p.PheromoneHopBudget <= 0 {
		p.PheromoneHopBudget = d.PheromoneHopBudget
	}
	if p.PheromoneEpsilon <= 0 {
		p.PheromoneEpsilon = d.PheromoneEpsilon
	}
	if p.ReplanInterval <= 0 {
		p.ReplanInterval = d.ReplanInterval
	}
	if p.StallTimeout <= 0 {
		p.StallTimeout = d.StallTimeout
	}
	if p.RefreshMargin <= 0 {
		p.RefreshMargin = d.RefreshMargin
	}
	if p.PodCapacity <= 0 {
		p.PodCapacity = d.PodCapacity
	}
	if p.ChargeCapacity <= 0 {
		p.ChargeCapacity = d.ChargeCapacity
	}
	if p.PodSpeed <= 0 {
		p.PodSpeed = d.PodSpeed
	}
}

// Validate reports parameter combinations the core cannot run with.
func (p Params) Validate() error {
	var errs []error
	if p.SpawnRate < 0 || p.SpawnRate > 1 {
		errs = append(errs, fmt.Errorf("spawn rate %v outside [0, 1]", p.SpawnRate))
	}
	if p.BatteryThreshold >= 100 {
		errs = append(errs, fmt.Errorf("battery threshold %v must be below 100", p.BatteryThreshold))
	}
	if p.ExpirationTime <= p.RefreshMargin {
		errs = append(errs, fmt.Errorf("expiration time %v must exceed refresh margin %v", p.ExpirationTime, p.RefreshMargin))
	}
	if p.InitialUsers > p.MaxUsers {
		errs = append(errs, fmt.Errorf("initial users %d exceed max users %d", p.InitialUsers, p.MaxUsers))
	}
	if p.ReservationHorizon < p.ReservationDuration {
		errs = append(errs, fmt.Errorf("reservation horizon %v shorter than reservation duration %v", p.ReservationHorizon, p.ReservationDuration))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid params: %w", errors.Join(errs...))
	}
	return nil
}
