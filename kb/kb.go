package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// ErrUnknownEventType is returned by Publish for events outside the known set.
var ErrUnknownEventType = errors.New("unknown event type")

// EventType indicates what kind of change happened in the simulation.
type EventType int

const (
	EventRiderSpawned EventType = iota
	EventRiderPickedUp
	EventRiderDelivered
	EventRouteConfirmed
	EventRouteNotFound
	EventPodStalled
	EventChargingStarted
	EventBatteryExhausted
	eventTypeCount
)

var eventTypeNames = [...]string{
	EventRiderSpawned:     "rider_spawned",
	EventRiderPickedUp:    "rider_picked_up",
	EventRiderDelivered:   "rider_delivered",
	EventRouteConfirmed:   "route_confirmed",
	EventRouteNotFound:    "route_not_found",
	EventPodStalled:       "pod_stalled",
	EventChargingStarted:  "charging_started",
	EventBatteryExhausted: "battery_exhausted",
}

func (t EventType) String() string {
	if t < 0 || t >= eventTypeCount {
		return fmt.Sprintf("event(%d)", int(t))
	}
	return eventTypeNames[t]
}

// Event is emitted to subscribers when something interesting happens.
// Fields that do not apply to an event type are left at their zero or
// sentinel values.
type Event struct {
	Type    EventType
	At      time.Time
	Pod     model.PodID
	Station model.StationID
	Rider   model.RiderID
	// OnTime and Delay are only meaningful for EventRiderDelivered.
	OnTime bool
	Delay  time.Duration
	// Hops is the confirmed route length for EventRouteConfirmed.
	Hops int
}

// StationStatus is a published snapshot of one station.
type StationStatus struct {
	ID           model.StationID `json:"id"`
	Name         string          `json:"name"`
	X            float64         `json:"x"`
	Y            float64         `json:"y"`
	Dock         bool            `json:"dock"`
	Occupant     model.PodID     `json:"occupant"`
	Reservations int             `json:"reservations"`
	Waiting      int             `json:"waiting"`
	RoadSigns    int             `json:"roadSigns"`
}

// PodStatus is a published snapshot of one pod.
type PodStatus struct {
	ID       model.PodID     `json:"id"`
	State    string          `json:"state"`
	Battery  float64         `json:"battery"`
	Location model.StationID `json:"location"`
	X        float64         `json:"x"`
	Y        float64         `json:"y"`
	Riders   int             `json:"riders"`
	Desire   int             `json:"desire"`
}

// Summary aggregates the event stream since the knowledge base was created.
type Summary struct {
	SimTime         time.Time     `json:"simTime"`
	Spawned         int           `json:"spawned"`
	PickedUp        int           `json:"pickedUp"`
	Delivered       int           `json:"delivered"`
	OnTime          int           `json:"onTime"`
	Late            int           `json:"late"`
	TotalDelay      time.Duration `json:"totalDelay"`
	RoutesConfirmed int           `json:"routesConfirmed"`
	RoutesNotFound  int           `json:"routesNotFound"`
	Stalls          int           `json:"stalls"`
	Charges         int           `json:"charges"`
	Exhausted       bool          `json:"exhausted"`
}

// KnowledgeBase is a thread-safe store for the latest station and pod
// snapshots and the event bus that fans simulation events out to observers.
type KnowledgeBase struct {
	mu sync.RWMutex

	stations map[model.StationID]StationStatus
	pods     map[model.PodID]PodStatus
	summary  Summary

	subs    map[int]func(Event)
	nextSub int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		stations: make(map[model.StationID]StationStatus),
		pods:     make(map[model.PodID]PodStatus),
		subs:     make(map[int]func(Event)),
	}
}

// UpdateStations replaces the station snapshot set.
func (kb *KnowledgeBase) UpdateStations(now time.Time, snapshot []StationStatus) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	clear(kb.stations)
	for _, s := range snapshot {
		kb.stations[s.ID] = s
	}
	if now.After(kb.summary.SimTime) {
		kb.summary.SimTime = now
	}
}

// UpdatePods replaces the pod snapshot set.
func (kb *KnowledgeBase) UpdatePods(now time.Time, snapshot []PodStatus) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	clear(kb.pods)
	for _, p := range snapshot {
		kb.pods[p.ID] = p
	}
	if now.After(kb.summary.SimTime) {
		kb.summary.SimTime = now
	}
}

// GetStation returns the latest snapshot of a station.
func (kb *KnowledgeBase) GetStation(id model.StationID) (StationStatus, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	s, ok := kb.stations[id]
	return s, ok
}

// GetPod returns the latest snapshot of a pod.
func (kb *KnowledgeBase) GetPod(id model.PodID) (PodStatus, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	p, ok := kb.pods[id]
	return p, ok
}

// ListStations returns all station snapshots ordered by ID.
func (kb *KnowledgeBase) ListStations() []StationStatus {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]StationStatus, 0, len(kb.stations))
	for _, s := range kb.stations {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// ListPods returns all pod snapshots ordered by ID.
func (kb *KnowledgeBase) ListPods() []PodStatus {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]PodStatus, 0, len(kb.pods))
	for _, p := range kb.pods {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Summary returns a copy of the aggregated counters.
func (kb *KnowledgeBase) Summary() Summary {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.summary
}

// Publish records ev in the summary and notifies subscribers in
// registration order.
func (kb *KnowledgeBase) Publish(ev Event) error {
	if ev.Type < 0 || ev.Type >= eventTypeCount {
		return fmt.Errorf("publish %s: %w", ev.Type, ErrUnknownEventType)
	}

	kb.mu.Lock()
	kb.apply(ev)
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	kb.mu.Unlock()

	// Notify subscribers outside the lock so they may read the KB.
	for _, sub := range subs {
		sub(ev)
	}
	return nil
}

func (kb *KnowledgeBase) apply(ev Event) {
	s := &kb.summary
	if ev.At.After(s.SimTime) {
		s.SimTime = ev.At
	}
	switch ev.Type {
	case EventRiderSpawned:
		s.Spawned++
	case EventRiderPickedUp:
		s.PickedUp++
	case EventRiderDelivered:
		s.Delivered++
		if ev.OnTime {
			s.OnTime++
		} else {
			s.Late++
			s.TotalDelay += ev.Delay
		}
	case EventRouteConfirmed:
		s.RoutesConfirmed++
	case EventRouteNotFound:
		s.RoutesNotFound++
	case EventPodStalled:
		s.Stalls++
	case EventChargingStarted:
		s.Charges++
	case EventBatteryExhausted:
		s.Exhausted = true
	}
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}
