package core

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/signalsfoundry/pod-mover-simulator/internal/logging"
	"github.com/signalsfoundry/pod-mover-simulator/kb"
	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// PodState is the coarse phase of a pod's decision loop.
type PodState int

const (
	PodIdle PodState = iota
	PodExploring
	PodAwaitingConfirmation
	PodMoving
	PodCharging
)

func (s PodState) String() string {
	switch s {
	case PodIdle:
		return "idle"
	case PodExploring:
		return "exploring"
	case PodAwaitingConfirmation:
		return "awaiting_confirmation"
	case PodMoving:
		return "moving"
	case PodCharging:
		return "charging"
	default:
		return "unknown"
	}
}

// Pod is an autonomous vehicle. It owns its desire (the confirmed route it
// is executing) and its rider manifest; everything it knows about stations
// it learns through ants.
type Pod struct {
	ID       model.PodID
	Capacity int
	Battery  float64

	net *Network

	location model.StationID
	// holding is the station whose occupancy and reservation the pod
	// currently holds.
	holding model.StationID
	// claimed is the station the pod has claimed for its current hop and
	// not yet reached.
	claimed model.StationID

	queue      []Reservation
	desire     []Reservation
	intentions []Intention
	riders     []model.Rider
	failed     map[model.StationID]struct{}

	lastMove   time.Time
	lastReplan time.Time
	state      PodState
	charging   bool
}

func newPod(id model.PodID, n *Network) *Pod {
	return &Pod{
		ID:       id,
		Capacity: n.params.PodCapacity,
		Battery:  100,
		net:      n,
		location: model.NoStation,
		holding:  model.NoStation,
		claimed:  model.NoStation,
		failed:   make(map[model.StationID]struct{}),
	}
}

// State returns the pod's current phase.
func (p *Pod) State() PodState { return p.state }

// Location returns the station or dock the pod stands at, or
// model.NoStation mid-hop.
func (p *Pod) Location() model.StationID { return p.location }

// Desire returns the confirmed hops not yet started, nearest first.
func (p *Pod) Desire() []Reservation { return slices.Clone(p.desire) }

// Queue returns the hop currently being travelled, if any.
func (p *Pod) Queue() []Reservation { return slices.Clone(p.queue) }

// Intentions returns the candidates gathered in the last exploration round.
func (p *Pod) Intentions() []Intention { return slices.Clone(p.intentions) }

// Riders returns the rider manifest.
func (p *Pod) Riders() []model.Rider { return slices.Clone(p.riders) }

// Failed returns the destinations recently marked unreachable.
func (p *Pod) Failed() []model.StationID {
	return slices.Sorted(maps.Keys(p.failed))
}

func (p *Pod) hasPlan() bool { return len(p.queue) > 0 || len(p.desire) > 0 }

// Tick runs one pass of the decision loop. The only error it returns is a
// *BatteryExhaustedError, which is fatal to the simulation.
func (p *Pod) Tick(ctx context.Context, now time.Time, dt time.Duration) error {
	if p.lastMove.IsZero() {
		p.lastMove = now
	}

	if err := p.move(now, dt); err != nil {
		return err
	}

	if !p.updateLocation(now) {
		return nil
	}

	if d := p.net.docks[p.location]; d != nil {
		if p.tickDock(d, now, dt) {
			p.advance(now)
		}
		return nil
	}

	p.maybeReplan(ctx, now)
	p.alight(now)
	p.board(now)
	p.advance(now)
	return nil
}

// move advances along the current hop once its window has opened and the
// target has room for the pod.
func (p *Pod) move(now time.Time, dt time.Duration) error {
	if len(p.queue) == 0 || now.Before(p.queue[0].Window.Begin) || p.Battery <= 0 {
		return nil
	}
	m := p.net.motion
	target := p.queue[0].Station
	if !p.claimTarget(target) {
		return nil
	}
	if m.FollowWaypoints(p.ID, []model.StationID{target}, dt) {
		p.lastMove = now
		p.state = PodMoving
		p.Battery = lo.Clamp(p.Battery-p.net.params.BatteryDrainRate*dt.Seconds(), 0, 100)
		p.net.rec.PodBattery(p.ID, p.Battery)
		if p.Battery <= 0 {
			p.net.emit(kb.Event{Type: kb.EventBatteryExhausted, At: now, Pod: p.ID, Station: target})
			return &BatteryExhaustedError{Pod: p.ID, At: now}
		}
	}
	if m.ObjectAt(p.ID) == target {
		p.queue = p.queue[1:]
	}
	return nil
}

// updateLocation syncs the pod with the motion environment. It reports
// false while the pod is between stations.
func (p *Pod) updateLocation(now time.Time) bool {
	at := p.net.motion.ObjectAt(p.ID)
	if at != p.holding && p.holding.Valid() {
		p.leave(p.holding)
	}
	p.location = at
	if !at.Valid() {
		return false
	}
	if at != p.holding {
		p.arrive(at)
	}
	return true
}

// claimTarget secures the hop target's capacity before the pod sets off.
// Once held, the claim lasts until arrival.
func (p *Pod) claimTarget(target model.StationID) bool {
	if p.claimed == target || p.holding == target {
		return true
	}
	if !p.net.stations[target].claim(p.ID) {
		return false
	}
	p.claimed = target
	return true
}

func (p *Pod) arrive(at model.StationID) {
	p.holding = at
	if p.claimed == at {
		p.claimed = model.NoStation
	}
	if d := p.net.docks[at]; d != nil {
		d.dockPod(p.ID)
		return
	}
	p.net.stations[at].occupy(p.ID)
}

// leave gives up occupancy of a station and consumes the reservation held
// there.
func (p *Pod) leave(at model.StationID) {
	if d := p.net.docks[at]; d != nil {
		d.undock(p.ID)
		p.charging = false
	} else {
		p.net.stations[at].vacate(p.ID)
	}
	p.net.stations[at].Release(p.ID)
	p.holding = model.NoStation
}

// tickDock charges the pod and, once full, books a departure. It reports
// whether the pod may go on to execute its desire this tick.
func (p *Pod) tickDock(d *LoadingDock, now time.Time, dt time.Duration) bool {
	if p.hasPlan() {
		return true
	}
	if p.Battery < 100 {
		if !d.startCharging(p.ID) {
			p.state = PodIdle
			p.lastMove = now
			return false
		}
		if !p.charging {
			p.charging = true
			p.net.emit(kb.Event{Type: kb.EventChargingStarted, At: now, Pod: p.ID, Station: d.ID})
		}
		p.state = PodCharging
		p.lastMove = now
		p.Battery = lo.Clamp(p.Battery+p.net.params.BatteryGainRate*dt.Seconds(), 0, 100)
		p.net.rec.PodBattery(p.ID, p.Battery)
		if p.Battery < 100 {
			return false
		}
	}
	d.stopCharging(p.ID)
	p.charging = false
	p.state = PodIdle
	p.requestDeparture(d, now)
	return p.hasPlan()
}

// requestDeparture books the dock and its fastest neighbour as a two-entry
// chain.
func (p *Pod) requestDeparture(d *LoadingDock, now time.Time) {
	nb, w, ok := d.FastestNeighbor(p.net, p.ID, now)
	if !ok {
		return
	}
	chain := placeholders(p.ID, d.ID, model.TimeWindow{}, []Reservation{{Station: nb, Window: w}})
	if confirmed, ok := p.net.SendReservationAnt(p.ID, chain, now); ok {
		p.confirmReservations(confirmed, now)
	}
}

// maybeReplan runs the stall watchdog and, when the pod has nothing to do
// and the rate limit allows, a planning round. A pod waiting for a confirmed
// hop whose window has not opened yet is not stalled.
func (p *Pod) maybeReplan(ctx context.Context, now time.Time) {
	forced := false
	next, ok := p.nextHop()
	waiting := ok && now.Before(next.Window.Begin)
	if !waiting && now.Sub(p.lastMove) >= p.net.params.StallTimeout {
		p.resetStalled(ctx, now)
		forced = true
	}
	if p.hasPlan() {
		return
	}
	if !forced && !p.lastReplan.IsZero() && now.Sub(p.lastReplan) < p.net.params.ReplanInterval {
		return
	}
	p.lastReplan = now
	p.replan(ctx, now)
}

// resetStalled drops the pod's plan and memory so the next round starts
// from scratch.
func (p *Pod) resetStalled(ctx context.Context, now time.Time) {
	cancelled := p.net.CancelReservations(p.ID, p.holding)
	p.dropPlan()
	p.intentions = nil
	clear(p.failed)
	p.lastMove = now
	p.lastReplan = time.Time{}
	p.state = PodIdle
	p.net.log.Info(ctx, "pod stalled, resetting plan",
		logging.String("pod", p.ID.String()),
		logging.String("station", p.location.String()),
		logging.Int("cancelled", cancelled),
	)
	p.net.emit(kb.Event{Type: kb.EventPodStalled, At: now, Pod: p.ID, Station: p.location})
}

// confirmReservations installs a confirmed chain as the new plan. The list
// arrives destination first; the origin entry stays in the ledger as the
// pod's hold on its current station and is not part of the desire.
func (p *Pod) confirmReservations(confirmed []Reservation, now time.Time) {
	route := slices.Clone(confirmed)
	slices.Reverse(route)
	hops := route[1:]

	n := min(len(p.queue), len(hops))
	p.queue = slices.Clone(hops[:n])
	p.desire = slices.Clone(hops[n:])
	if p.hasPlan() {
		p.state = PodMoving
	}
	dest := route[len(route)-1].Station
	p.net.emit(kb.Event{Type: kb.EventRouteConfirmed, At: now, Pod: p.ID, Station: dest, Hops: len(hops)})
}

// alight delivers every onboard rider whose destination is here.
func (p *Pod) alight(now time.Time) {
	kept := p.riders[:0]
	for _, r := range p.riders {
		if r.Destination != p.location {
			kept = append(kept, r)
			continue
		}
		p.net.motion.Deliver(p.ID, r)
		p.net.liveRiders--
		onTime, delay := r.Outcome(now)
		p.net.emit(kb.Event{
			Type:    kb.EventRiderDelivered,
			At:      now,
			Pod:     p.ID,
			Station: p.location,
			Rider:   r.ID,
			OnTime:  onTime,
			Delay:   delay,
		})
	}
	p.riders = kept
}

// board picks up waiting riders headed somewhere on the current plan.
func (p *Pod) board(now time.Time) {
	free := p.Capacity - len(p.riders)
	if free <= 0 || !p.hasPlan() {
		return
	}
	stops := append(stationsOf(p.queue), stationsOf(p.desire)...)
	st := p.net.stations[p.location]
	taken := st.takeRiders(free, func(r model.Rider) bool {
		return slices.Contains(stops, r.Destination)
	})
	for _, r := range taken {
		p.net.motion.Pickup(p.ID, r)
		p.riders = append(p.riders, r)
		p.net.emit(kb.Event{Type: kb.EventRiderPickedUp, At: now, Pod: p.ID, Station: p.location, Rider: r.ID})
	}
}

// advance refreshes the plan when the next hop is about to lapse and moves
// the next hop into the movement queue.
func (p *Pod) advance(now time.Time) {
	if !p.hasPlan() {
		return
	}
	if p.needsRefresh(now) && !p.refresh(now) {
		return
	}
	if len(p.queue) == 0 && len(p.desire) > 0 {
		p.queue = append(p.queue, p.desire[0])
		p.desire = p.desire[1:]
	}
	p.state = PodMoving
}

// nextHop returns the hop the pod will travel next, if it has a plan.
func (p *Pod) nextHop() (Reservation, bool) {
	if !p.hasPlan() {
		return Reservation{}, false
	}
	return lo.Ternary(len(p.queue) > 0, p.queue, p.desire)[0], true
}

// dropPlan abandons every queued and desired hop and hands back the claim
// on a target the pod has not set off for.
func (p *Pod) dropPlan() {
	p.queue, p.desire = nil, nil
	if p.claimed.Valid() {
		p.net.stations[p.claimed].unclaim(p.ID)
		p.claimed = model.NoStation
	}
}

func (p *Pod) needsRefresh(now time.Time) bool {
	next, _ := p.nextHop()
	return !now.Add(p.net.params.RefreshMargin).Before(next.Expires) || now.After(next.Window.End)
}

// refresh resubmits the current station and every remaining hop for
// rebooking. On failure the plan is abandoned and the pod replans.
func (p *Pod) refresh(now time.Time) bool {
	var originHint model.TimeWindow
	if r, ok := p.net.stations[p.location].reservationFor(p.ID); ok {
		originHint = r.Window
	}
	remaining := append(slices.Clone(p.queue), p.desire...)
	chain := placeholders(p.ID, p.location, originHint, remaining)
	confirmed, ok := p.net.SendReservationAnt(p.ID, chain, now)
	if !ok {
		p.dropPlan()
		p.lastReplan = time.Time{}
		p.state = PodIdle
		return false
	}

	route := slices.Clone(confirmed)
	slices.Reverse(route)
	hops := route[1:]
	n := len(p.queue)
	p.queue = slices.Clone(hops[:n])
	p.desire = slices.Clone(hops[n:])
	return true
}
