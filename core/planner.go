package core

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/pod-mover-simulator/internal/logging"
	"github.com/signalsfoundry/pod-mover-simulator/kb"
	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// replan chooses a destination, explores routes to it and books the best
// one. Failure to find or book a route leaves the pod idle until the next
// round.
func (p *Pod) replan(ctx context.Context, now time.Time) {
	ctx, span := startPodSpan(ctx, "pod.replan", p.ID, p.location,
		attribute.Float64("pod.battery", p.Battery),
		attribute.Int("pod.riders", len(p.riders)),
	)
	defer span.End()

	p.state = PodExploring
	p.intentions = nil
	st := p.net.stations[p.location]

	var (
		dest model.StationID
		best Intention
		ok   bool
	)
	switch {
	case p.Battery < p.net.params.BatteryThreshold && len(p.riders) == 0:
		dest, best, ok = p.planToDock(now)
	case p.net.params.AdvancedPlanning && (len(p.ridersElsewhere()) > 0 || len(st.waiting) > 0):
		dest, best, ok = p.planPassengers(st, now)
	default:
		dest, ok = p.pickDestination(st)
		if !ok {
			p.state = PodIdle
			return
		}
		best, ok = p.exploreBest(dest, now)
	}
	span.SetAttributes(
		attribute.Int("pod.destination", int(dest)),
		attribute.Int("pod.intentions", len(p.intentions)),
	)
	if !ok {
		p.routeNotFound(ctx, st, dest, now)
		return
	}

	p.state = PodAwaitingConfirmation
	chain := placeholders(p.ID, p.location, model.TimeWindow{}, best.stops())
	confirmed, ok := p.net.SendReservationAnt(p.ID, chain, now)
	if !ok {
		span.AddEvent("reservation ant died")
		p.state = PodIdle
		return
	}
	p.confirmReservations(confirmed, now)
}

// pickDestination applies the single-destination priority order: riders on
// board, riders waiting here, the strongest road sign, then a random
// neighbour not recently failed.
func (p *Pod) pickDestination(st *Station) (model.StationID, bool) {
	if onboard := p.ridersElsewhere(); len(onboard) > 0 {
		first := lo.MinBy(onboard, func(a, b model.Rider) bool { return a.SpawnedAt.Before(b.SpawnedAt) })
		return first.Destination, true
	}
	if len(st.waiting) > 0 {
		return st.waiting[0].Destination, true
	}

	advanced := p.net.params.AdvancedPlanning
	sign, ok := st.strongestSign(func(end model.StationID) bool {
		if end == st.ID {
			return true
		}
		_, failed := p.failed[end]
		return advanced && failed
	})
	if ok {
		return sign.End, true
	}

	return p.randomNeighbour(st)
}

func (p *Pod) randomNeighbour(st *Station) (model.StationID, bool) {
	all := p.net.signTargets(st)
	candidates := lo.Filter(all, func(id model.StationID, _ int) bool {
		_, failed := p.failed[id]
		return !failed
	})
	if len(candidates) == 0 {
		clear(p.failed)
		candidates = all
	}
	if len(candidates) == 0 {
		return model.NoStation, false
	}
	return candidates[p.net.rng.IntN(len(candidates))], true
}

// exploreBest sends one exploration ant and keeps its earliest-arriving
// intention.
func (p *Pod) exploreBest(dest model.StationID, now time.Time) (Intention, bool) {
	found := p.net.Explore(p.location, dest, p.net.params.ExplorationHopBudget, p.ID, now)
	p.intentions = append(p.intentions, found...)
	if len(found) == 0 {
		return Intention{}, false
	}
	return found[0], true
}

// planPassengers explores toward every passenger destination and picks the
// route that serves the most of them, preferring earlier completion.
func (p *Pod) planPassengers(st *Station, now time.Time) (model.StationID, Intention, bool) {
	targets := make([]model.StationID, 0, len(p.riders)+len(st.waiting))
	for _, r := range p.ridersElsewhere() {
		targets = append(targets, r.Destination)
	}
	for _, r := range st.waiting {
		targets = append(targets, r.Destination)
	}
	targets = lo.Uniq(targets)

	for _, dest := range targets {
		found := p.net.Explore(p.location, dest, p.net.params.ExplorationHopBudget, p.ID, now)
		p.intentions = append(p.intentions, found...)
	}
	if len(p.intentions) == 0 {
		return targets[0], Intention{}, false
	}

	best := lo.MaxBy(p.intentions, func(a, b Intention) bool {
		ca, cb := a.Covers(targets), b.Covers(targets)
		if ca != cb {
			return ca > cb
		}
		return a.Less(b)
	})
	return best.Destination(), best, true
}

// planToDock routes toward the nearest reachable dock. When no dock is
// within the hop budget the pod steps to the neighbour closest to the
// nearest dock instead.
func (p *Pod) planToDock(now time.Time) (model.StationID, Intention, bool) {
	docks := p.net.NearestDocks(p.location)
	if len(docks) == 0 {
		return model.NoStation, Intention{}, false
	}
	for _, d := range docks {
		if best, ok := p.exploreBest(d.ID, now); ok {
			return d.ID, best, true
		}
	}

	target := docks[0].Position
	st := p.net.stations[p.location]
	steps := lo.Filter(p.net.signTargets(st), func(id model.StationID, _ int) bool {
		_, failed := p.failed[id]
		return !failed
	})
	sort.SliceStable(steps, func(i, j int) bool {
		return model.Distance(p.net.stations[steps[i]].Position, target) < model.Distance(p.net.stations[steps[j]].Position, target)
	})
	for _, id := range steps {
		if best, ok := p.exploreBest(id, now); ok {
			return id, best, true
		}
	}
	return docks[0].ID, Intention{}, false
}

// routeNotFound records a failed round. The destination is only remembered
// as failed when nobody is waiting here, so local riders are retried.
func (p *Pod) routeNotFound(ctx context.Context, st *Station, dest model.StationID, now time.Time) {
	p.state = PodIdle
	if len(st.waiting) == 0 && dest.Valid() {
		p.failed[dest] = struct{}{}
	}
	p.net.log.Debug(ctx, "no route found",
		logging.String("pod", p.ID.String()),
		logging.String("from", st.ID.String()),
		logging.String("to", dest.String()),
		logging.Int("failed", len(p.failed)),
	)
	p.net.emit(kb.Event{Type: kb.EventRouteNotFound, At: now, Pod: p.ID, Station: dest})
}

// ridersElsewhere lists onboard riders not getting off at the current
// station this tick.
func (p *Pod) ridersElsewhere() []model.Rider {
	return lo.Filter(p.riders, func(r model.Rider, _ int) bool { return r.Destination != p.location })
}
