package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/internal/logging"
	"github.com/signalsfoundry/pod-mover-simulator/kb"
	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// SimulationEngine drives one tick of the whole network: rider spawning,
// station housekeeping and every pod's decision loop, in registration
// order.
type SimulationEngine struct {
	Net *Network
	KB  *kb.KnowledgeBase

	log           logging.Logger
	last          time.Time
	halted        error
	tickListeners []func(time.Time)
}

// NewSimulationEngine wires net to publish into store. A nil store
// disables snapshots and events.
func NewSimulationEngine(net *Network, store *kb.KnowledgeBase, log logging.Logger) *SimulationEngine {
	if log == nil {
		log = logging.Noop()
	}
	if store != nil {
		net.SetEventSink(store)
	}
	net.SetLogger(log)
	return &SimulationEngine{
		Net: net,
		KB:  store,
		log: log,
	}
}

// RegisterTickListener adds a callback run after every completed tick.
func (se *SimulationEngine) RegisterTickListener(fn func(time.Time)) {
	se.tickListeners = append(se.tickListeners, fn)
}

// Halted returns the fatal error that stopped the engine, if any.
func (se *SimulationEngine) Halted() error { return se.halted }

// Tick advances the simulation to now. The elapsed time since the previous
// tick is the step every pod moves and charges by. After a fatal error
// every further call returns the same error.
func (se *SimulationEngine) Tick(ctx context.Context, now time.Time) error {
	if se.halted != nil {
		return se.halted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	started := time.Now()

	var dt time.Duration
	if !se.last.IsZero() {
		dt = now.Sub(se.last)
	}
	se.last = now

	n := se.Net
	n.SpawnRiders(now)

	expired := 0
	for _, st := range n.stations {
		st.Decay()
		expired += st.Sweep(now)
		n.EmitPheromone(st.ID)
	}
	if expired > 0 {
		n.rec.ReservationsExpired(expired)
	}

	for _, p := range n.pods {
		if err := p.Tick(ctx, now, dt); err != nil {
			var exhausted *BatteryExhaustedError
			if errors.As(err, &exhausted) {
				se.log.Error(ctx, "simulation halted",
					logging.String("pod", exhausted.Pod.String()),
					logging.Time("at", exhausted.At),
					logging.Err(err),
				)
			}
			se.halted = fmt.Errorf("tick %s: %w", now.Format(time.RFC3339), err)
			se.publish(now)
			return se.halted
		}
	}

	se.publish(now)
	n.rec.TickCompleted(time.Since(started))
	for _, fn := range se.tickListeners {
		fn(now)
	}
	return nil
}

// Run ticks from start every step until ticks have elapsed or a fatal
// error occurs.
func (se *SimulationEngine) Run(ctx context.Context, start time.Time, step time.Duration, ticks int) error {
	for i := range ticks {
		if err := se.Tick(ctx, start.Add(time.Duration(i)*step)); err != nil {
			return err
		}
	}
	return nil
}

// publish refreshes the knowledge base snapshots and the gauges.
func (se *SimulationEngine) publish(now time.Time) {
	n := se.Net
	waiting := 0
	stations := make([]kb.StationStatus, 0, len(n.stations))
	for _, st := range n.stations {
		waiting += len(st.waiting)
		stations = append(stations, kb.StationStatus{
			ID:           st.ID,
			Name:         st.Name,
			X:            st.Position.X(),
			Y:            st.Position.Y(),
			Dock:         st.isDock,
			Occupant:     st.occupant,
			Reservations: len(st.ledger),
			Waiting:      len(st.waiting),
			RoadSigns:    len(st.signs),
		})
	}

	charging := 0
	pods := make([]kb.PodStatus, 0, len(n.pods))
	for _, p := range n.pods {
		if p.state == PodCharging {
			charging++
		}
		pos := model.Point{}
		if n.motion != nil {
			pos = n.motion.Position(p.ID)
		}
		pods = append(pods, kb.PodStatus{
			ID:       p.ID,
			State:    p.state.String(),
			Battery:  p.Battery,
			Location: p.location,
			X:        pos.X(),
			Y:        pos.Y(),
			Riders:   len(p.riders),
			Desire:   len(p.queue) + len(p.desire),
		})
	}

	n.rec.RidersWaiting(waiting)
	n.rec.PodsCharging(charging)
	if se.KB != nil {
		se.KB.UpdateStations(now, stations)
		se.KB.UpdatePods(now, pods)
	}
}
