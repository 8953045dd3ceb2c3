package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FlightCollector exposes route-execution metrics.
type FlightCollector struct {
	gatherer prometheus.Gatherer

	Flights           *prometheus.CounterVec
	FlightDuration    prometheus.Histogram
	WaypointsExecuted *prometheus.CounterVec
	BusyRejections    *prometheus.CounterVec
	Flying            prometheus.Gauge
}

// NewFlightCollector registers flight metrics against the provided registerer.
func NewFlightCollector(reg prometheus.Registerer) (*FlightCollector, error) {
	reg, gatherer := resolveRegistry(reg)

	flights := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drone_flights_total",
		Help: "Finished route executions, labeled by outcome.",
	}, []string{"outcome"})
	flights, err := registerCounterVec(reg, flights, "drone_flights_total")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "drone_flight_duration_seconds",
		Help:    "Wall-clock duration of route executions.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	})
	duration, err = registerHistogram(reg, duration, "drone_flight_duration_seconds")
	if err != nil {
		return nil, err
	}

	executed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drone_waypoints_executed_total",
		Help: "Waypoints executed by flights, labeled by waypoint kind.",
	}, []string{"kind"})
	executed, err = registerCounterVec(reg, executed, "drone_waypoints_executed_total")
	if err != nil {
		return nil, err
	}

	busy := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drone_busy_rejections_total",
		Help: "Operations rejected because a lock was held, labeled by lock.",
	}, []string{"lock"})
	busy, err = registerCounterVec(reg, busy, "drone_busy_rejections_total")
	if err != nil {
		return nil, err
	}

	flying, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "drone_flying",
		Help: "1 while a route is being executed, 0 otherwise.",
	}), "drone_flying")
	if err != nil {
		return nil, err
	}

	return &FlightCollector{
		gatherer:          gatherer,
		Flights:           flights,
		FlightDuration:    duration,
		WaypointsExecuted: executed,
		BusyRejections:    busy,
		Flying:            flying,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *FlightCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// FlightStarted marks the vehicle as flying.
func (c *FlightCollector) FlightStarted() {
	if c == nil || c.Flying == nil {
		return
	}
	c.Flying.Set(1)
}

// FlightFinished records a finished flight and clears the flying gauge.
func (c *FlightCollector) FlightFinished(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Flights != nil {
		c.Flights.WithLabelValues(outcome).Inc()
	}
	if c.FlightDuration != nil {
		c.FlightDuration.Observe(d.Seconds())
	}
	if c.Flying != nil {
		c.Flying.Set(0)
	}
}

// WaypointExecuted counts one executed waypoint of the given kind.
func (c *FlightCollector) WaypointExecuted(kind string) {
	if c == nil || c.WaypointsExecuted == nil {
		return
	}
	c.WaypointsExecuted.WithLabelValues(kind).Inc()
}

// BusyRejected counts an operation refused because lock was held.
func (c *FlightCollector) BusyRejected(lock string) {
	if c == nil || c.BusyRejections == nil {
		return
	}
	c.BusyRejections.WithLabelValues(lock).Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
