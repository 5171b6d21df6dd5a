package core

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/internal/logging"
	"github.com/signalsfoundry/pod-mover-simulator/kb"
	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// Network is the registry every station, dock and pod lives in. Stations
// and pods refer to each other by ID through it rather than by pointer.
type Network struct {
	params Params

	stations []*Station
	docks    map[model.StationID]*LoadingDock
	byName   map[string]model.StationID
	pods     []*Pod

	liveRiders int
	nextRider  model.RiderID

	motion Motion
	rng    *rand.Rand
	events EventSink
	rec    Recorder
	log    logging.Logger
}

// NewNetwork constructs an empty network. A nil rng seeds a fixed source so
// runs are reproducible.
func NewNetwork(params Params, rng *rand.Rand) *Network {
	params.ApplyDefaults()
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 2))
	}
	return &Network{
		params: params,
		docks:  make(map[model.StationID]*LoadingDock),
		byName: make(map[string]model.StationID),
		rng:    rng,
		rec:    noopRecorder{},
		log:    logging.Noop(),
	}
}

// Params returns the parameters the network runs with.
func (n *Network) Params() Params { return n.params }

// SetRecorder installs the metrics recorder.
func (n *Network) SetRecorder(r Recorder) {
	if r == nil {
		r = noopRecorder{}
	}
	n.rec = r
}

// SetEventSink installs the destination for domain events.
func (n *Network) SetEventSink(s EventSink) { n.events = s }

// SetLogger installs the logger used for protocol diagnostics.
func (n *Network) SetLogger(l logging.Logger) {
	if l == nil {
		l = logging.Noop()
	}
	n.log = l
}

// AttachMotion installs the motion environment. It must be called before
// pods are added.
func (n *Network) AttachMotion(m Motion) { n.motion = m }

// Motion returns the attached motion environment.
func (n *Network) Motion() Motion { return n.motion }

// AddStation registers a station at pos.
func (n *Network) AddStation(name string, pos model.Point) (model.StationID, error) {
	st, err := n.addStation(name, pos)
	if err != nil {
		return model.NoStation, err
	}
	return st.ID, nil
}

// AddDock registers a loading dock at pos with room to charge
// chargeCapacity pods at once. Zero uses the ChargeCapacity parameter.
func (n *Network) AddDock(name string, pos model.Point, chargeCapacity int) (model.StationID, error) {
	st, err := n.addStation(name, pos)
	if err != nil {
		return model.NoStation, err
	}
	if chargeCapacity <= 0 {
		chargeCapacity = n.params.ChargeCapacity
	}
	st.isDock = true
	n.docks[st.ID] = &LoadingDock{Station: st, ChargeCapacity: chargeCapacity}
	return st.ID, nil
}

func (n *Network) addStation(name string, pos model.Point) (*Station, error) {
	if name == "" {
		name = fmt.Sprintf("s%d", len(n.stations)+1)
	}
	if _, exists := n.byName[name]; exists {
		return nil, fmt.Errorf("station %q: %w", name, ErrDuplicateStation)
	}
	for _, s := range n.stations {
		if s.Position == pos {
			return nil, fmt.Errorf("station %q at %v collides with %q: %w", name, pos, s.Name, ErrDuplicateStation)
		}
	}
	st := newStation(model.StationID(len(n.stations)), name, pos, &n.params)
	n.stations = append(n.stations, st)
	n.byName[name] = st.ID
	return st, nil
}

// Connect links two stations in both directions. Connecting an existing
// pair again is a no-op.
func (n *Network) Connect(a, b model.StationID) error {
	sa, sb := n.Station(a), n.Station(b)
	if sa == nil || sb == nil {
		return fmt.Errorf("connect %d-%d: %w", a, b, ErrUnknownStation)
	}
	if a == b {
		return fmt.Errorf("connect %s: %w", sa.Name, ErrSelfLoop)
	}
	sa.addNeighbour(b)
	sb.addNeighbour(a)
	return nil
}

// AddPod places a new pod at a loading dock.
func (n *Network) AddPod(dock model.StationID) (model.PodID, error) {
	d := n.docks[dock]
	if d == nil {
		if n.Station(dock) == nil {
			return model.NoPod, fmt.Errorf("add pod at %d: %w", dock, ErrUnknownStation)
		}
		return model.NoPod, fmt.Errorf("add pod at %s: %w", n.stations[dock].Name, ErrNotDock)
	}
	if n.motion == nil {
		return model.NoPod, ErrNoMotion
	}
	p := newPod(model.PodID(len(n.pods)), n)
	n.pods = append(n.pods, p)
	n.motion.Place(p.ID, dock)
	return p.ID, nil
}

// AddRider queues a travel request at origin.
func (n *Network) AddRider(origin, destination model.StationID, now time.Time) (model.Rider, error) {
	so, sd := n.Station(origin), n.Station(destination)
	if so == nil || sd == nil {
		return model.Rider{}, fmt.Errorf("add rider %d->%d: %w", origin, destination, ErrUnknownStation)
	}
	if origin == destination {
		return model.Rider{}, fmt.Errorf("add rider at %s: %w", so.Name, ErrSameEndpoints)
	}
	if so.isDock || sd.isDock {
		return model.Rider{}, fmt.Errorf("add rider %s->%s: %w", so.Name, sd.Name, ErrDockOccupied)
	}
	r := model.Rider{
		ID:          n.nextRider,
		Origin:      origin,
		Destination: destination,
		SpawnedAt:   now,
		Deadline:    now.Add(n.params.DeliveryDeadline),
	}
	n.nextRider++
	n.liveRiders++
	so.addRider(r)
	n.emit(kb.Event{Type: kb.EventRiderSpawned, At: now, Pod: model.NoPod, Station: origin, Rider: r.ID})
	return r, nil
}

// Station returns the station or dock with the given ID, or nil.
func (n *Network) Station(id model.StationID) *Station {
	if id < 0 || int(id) >= len(n.stations) {
		return nil
	}
	return n.stations[id]
}

// StationByName looks a station up by its scenario name.
func (n *Network) StationByName(name string) (model.StationID, bool) {
	id, ok := n.byName[name]
	return id, ok
}

// Stations returns every station and dock in registration order.
func (n *Network) Stations() []*Station { return slices.Clone(n.stations) }

// Dock returns the loading dock with the given ID, or nil.
func (n *Network) Dock(id model.StationID) *LoadingDock { return n.docks[id] }

// Docks returns the loading docks in registration order.
func (n *Network) Docks() []*LoadingDock {
	out := make([]*LoadingDock, 0, len(n.docks))
	for _, st := range n.stations {
		if d := n.docks[st.ID]; d != nil {
			out = append(out, d)
		}
	}
	return out
}

// Pod returns the pod with the given ID, or nil.
func (n *Network) Pod(id model.PodID) *Pod {
	if id < 0 || int(id) >= len(n.pods) {
		return nil
	}
	return n.pods[id]
}

// Pods returns every pod in registration order.
func (n *Network) Pods() []*Pod { return slices.Clone(n.pods) }

// LiveRiders returns the number of riders spawned and not yet delivered.
func (n *Network) LiveRiders() int { return n.liveRiders }

// NearestDocks returns the docks ordered by straight-line distance from
// the given station.
func (n *Network) NearestDocks(from model.StationID) []*LoadingDock {
	st := n.Station(from)
	docks := n.Docks()
	if st == nil {
		return docks
	}
	sort.SliceStable(docks, func(i, j int) bool {
		return model.Distance(st.Position, docks[i].Position) < model.Distance(st.Position, docks[j].Position)
	})
	return docks
}

// CancelReservations drops every booking pod holds except the one at keep.
func (n *Network) CancelReservations(pod model.PodID, keep model.StationID) int {
	cancelled := 0
	for _, st := range n.stations {
		if st.ID == keep {
			continue
		}
		if st.Release(pod) {
			cancelled++
		}
	}
	return cancelled
}

// occupiedBy reports whether pod is physically at the station, counting
// docked pods at loading docks.
func (n *Network) occupiedBy(id model.StationID, pod model.PodID) bool {
	if d := n.docks[id]; d != nil {
		return d.isDocked(pod)
	}
	return n.stations[id].occupant == pod
}

func (n *Network) emit(ev kb.Event) {
	if n.events == nil {
		return
	}
	if err := n.events.Publish(ev); err != nil {
		n.log.Warn(context.Background(), "event publish failed",
			logging.String("event", ev.Type.String()),
			logging.Err(err),
		)
	}
}
