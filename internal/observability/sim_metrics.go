package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/pod-mover-simulator/kb"
	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// SimCollector exposes simulation metrics. It satisfies core.Recorder and
// consumes knowledge base events through Observe.
type SimCollector struct {
	gatherer prometheus.Gatherer

	AntsDropped           *prometheus.CounterVec
	ReservationsBooked    prometheus.Counter
	ExpiredReservations   prometheus.Counter
	ExplorationDuration   prometheus.Histogram
	ExplorationIntentions prometheus.Histogram
	TickDuration          prometheus.Histogram
	PodsChargingGauge     prometheus.Gauge
	RidersWaitingGauge    prometheus.Gauge
	PodBatteryLevel       *prometheus.GaugeVec
	Events                *prometheus.CounterVec
	DeliveryDelay         prometheus.Histogram
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &SimCollector{gatherer: gathererFor(reg)}
	var err error

	if c.AntsDropped, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "podsim_ants_dropped_total",
		Help: "Ants that died before delivering a result, by ant kind and reason.",
	}, []string{"ant", "reason"}), "podsim_ants_dropped_total"); err != nil {
		return nil, err
	}
	if c.ReservationsBooked, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "podsim_reservations_booked_total",
		Help: "Ledger entries written by reservation ants, refreshes included.",
	}), "podsim_reservations_booked_total"); err != nil {
		return nil, err
	}
	if c.ExpiredReservations, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "podsim_reservations_expired_total",
		Help: "Ledger entries removed by the expiry sweep.",
	}), "podsim_reservations_expired_total"); err != nil {
		return nil, err
	}
	if c.ExplorationDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "podsim_exploration_duration_seconds",
		Help:    "Wall-clock time spent in one exploration round.",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "podsim_exploration_duration_seconds"); err != nil {
		return nil, err
	}
	if c.ExplorationIntentions, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "podsim_exploration_intentions",
		Help:    "Intentions returned by one exploration round.",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
	}), "podsim_exploration_intentions"); err != nil {
		return nil, err
	}
	if c.TickDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "podsim_tick_duration_seconds",
		Help:    "Wall-clock time spent simulating one tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "podsim_tick_duration_seconds"); err != nil {
		return nil, err
	}
	if c.PodsChargingGauge, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "podsim_pods_charging",
		Help: "Pods currently holding a charge slot.",
	}), "podsim_pods_charging"); err != nil {
		return nil, err
	}
	if c.RidersWaitingGauge, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "podsim_riders_waiting",
		Help: "Riders waiting at stations.",
	}), "podsim_riders_waiting"); err != nil {
		return nil, err
	}
	if c.PodBatteryLevel, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "podsim_pod_battery_percent",
		Help: "Battery level per pod.",
	}, []string{"pod"}), "podsim_pod_battery_percent"); err != nil {
		return nil, err
	}
	if c.Events, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "podsim_events_total",
		Help: "Simulation events published to the knowledge base, by type.",
	}, []string{"type"}), "podsim_events_total"); err != nil {
		return nil, err
	}
	if c.DeliveryDelay, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "podsim_delivery_delay_seconds",
		Help:    "How late riders arrived after their deadline. On-time deliveries record zero.",
		Buckets: []float64{0, 60, 300, 600, 1800, 3600, 7200},
	}), "podsim_delivery_delay_seconds"); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func (c *SimCollector) AntDropped(ant, reason string) {
	c.AntsDropped.WithLabelValues(ant, reason).Inc()
}

func (c *SimCollector) ReservationBooked() { c.ReservationsBooked.Inc() }

func (c *SimCollector) ReservationsExpired(n int) {
	c.ExpiredReservations.Add(float64(n))
}

func (c *SimCollector) ExplorationCompleted(d time.Duration, intentions int) {
	c.ExplorationDuration.Observe(d.Seconds())
	c.ExplorationIntentions.Observe(float64(intentions))
}

func (c *SimCollector) TickCompleted(d time.Duration) { c.TickDuration.Observe(d.Seconds()) }

func (c *SimCollector) PodsCharging(n int) { c.PodsChargingGauge.Set(float64(n)) }

func (c *SimCollector) RidersWaiting(n int) { c.RidersWaitingGauge.Set(float64(n)) }

func (c *SimCollector) PodBattery(pod model.PodID, level float64) {
	c.PodBatteryLevel.WithLabelValues(pod.String()).Set(level)
}

// Observe counts a knowledge base event. It has the signature
// kb.KnowledgeBase.Subscribe expects.
func (c *SimCollector) Observe(ev kb.Event) {
	c.Events.WithLabelValues(ev.Type.String()).Inc()
	if ev.Type == kb.EventRiderDelivered {
		c.DeliveryDelay.Observe(ev.Delay.Seconds())
	}
}
