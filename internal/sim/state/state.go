// internal/sim/state/state.go
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/route-simulator/internal/logging"
	"github.com/signalsfoundry/route-simulator/kb"
	"github.com/signalsfoundry/route-simulator/model"
)

// Re-export route store sentinel errors so callers can depend on state.*
// instead of kb.* directly if they want to.
var (
	// ErrRouteNotFound indicates the named route does not exist.
	ErrRouteNotFound = kb.ErrRouteNotFound
	// ErrBusy is the common cause of every lock-contention failure.
	ErrBusy = kb.ErrBusy
	// ErrRouteBusy indicates the route's in-use lock is held.
	ErrRouteBusy = kb.ErrRouteBusy
	// ErrVehicleBusy indicates a flight is already in progress.
	ErrVehicleBusy = fmt.Errorf("vehicle is already executing a route: %w", kb.ErrBusy)
	// ErrNoSelection indicates a waypoint was appended with no route selected.
	ErrNoSelection = errors.New("no route selected")
)

// DefaultBattery is the battery capacity of a new vehicle in mAh.
const DefaultBattery = 3500.0

// DefaultStartPosition is where a new vehicle sits unless configured
// otherwise.
var DefaultStartPosition = model.Coordinate{Lat: 37.873760, Lon: -122.320580, Alt: 0}

// RouteMetricsRecorder receives count updates whenever the route store
// changes.
type RouteMetricsRecorder interface {
	SetRouteCounts(routes, waypoints int)
}

// Vehicle is the simulated aircraft: its kinematic state, the routes it
// owns and the bookkeeping of which route is selected for editing and
// which one is flying.
//
// Selected and flying routes are held by name and re-resolved against the
// store on every use, so removing a route never leaves a dangling reference.
type Vehicle struct {
	// mu guards the kinematic fields and the route references below.
	mu       sync.RWMutex
	position model.Coordinate
	battery  float64
	velocity float64
	selected string
	hasSel   bool
	flying   string
	isFlying bool

	// execMu is the vehicle-wide execution lock. At most one flight holds
	// it at a time.
	execMu sync.Mutex

	routes *kb.RouteStore

	log     logging.Logger
	metrics RouteMetricsRecorder

	unsubscribe func()
}

// Snapshot is a consistent copy of the vehicle's observable state.
type Snapshot struct {
	Position      model.Coordinate `json:"position"`
	Battery       float64          `json:"battery"`
	Velocity      float64          `json:"velocity"`
	SelectedRoute string           `json:"selected_route,omitempty"`
	FlyingRoute   string           `json:"flying_route,omitempty"`
	Flying        bool             `json:"flying"`
	Routes        int              `json:"routes"`
}

// Option customises Vehicle construction.
type Option func(*Vehicle)

// WithStartPosition sets the initial position.
func WithStartPosition(c model.Coordinate) Option {
	return func(v *Vehicle) { v.position = c }
}

// WithBattery sets the initial battery capacity.
func WithBattery(mAh float64) Option {
	return func(v *Vehicle) { v.battery = mAh }
}

// WithLogger attaches a structured logger for vehicle-level events.
func WithLogger(l logging.Logger) Option {
	return func(v *Vehicle) {
		if l != nil {
			v.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional recorder for route counts.
func WithMetricsRecorder(m RouteMetricsRecorder) Option {
	return func(v *Vehicle) { v.metrics = m }
}

// WithRouteStore makes the vehicle own an existing store.
func WithRouteStore(s *kb.RouteStore) Option {
	return func(v *Vehicle) {
		if s != nil {
			v.routes = s
		}
	}
}

// NewVehicle builds a vehicle at rest on the ground with an empty route
// store.
func NewVehicle(opts ...Option) *Vehicle {
	v := &Vehicle{
		position: DefaultStartPosition,
		battery:  DefaultBattery,
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	if v.routes == nil {
		v.routes = kb.NewRouteStore()
	}
	v.unsubscribe = v.routes.Subscribe(func(kb.Event) { v.updateMetrics() })
	v.updateMetrics()
	return v
}

var (
	defaultOnce    sync.Once
	defaultVehicle *Vehicle
)

// Default returns the process-wide vehicle used by top-level entry points,
// constructing it on first use with the default battery and start position.
func Default() *Vehicle {
	defaultOnce.Do(func() {
		defaultVehicle = NewVehicle()
	})
	return defaultVehicle
}

// Close detaches the vehicle from its route store's event stream.
func (v *Vehicle) Close() {
	if v.unsubscribe != nil {
		v.unsubscribe()
	}
}

// Routes exposes the vehicle's route store.
func (v *Vehicle) Routes() *kb.RouteStore {
	return v.routes
}

// AddRoute looks up or creates the named route and selects it.
func (v *Vehicle) AddRoute(name string) *kb.Route {
	r, created := v.routes.AddRoute(name)

	v.mu.Lock()
	v.selected = r.Name()
	v.hasSel = true
	v.mu.Unlock()

	if created {
		v.log.Info(context.Background(), "route added", logging.String("route", r.Name()))
	} else {
		v.log.Debug(context.Background(), "route already exists; selected", logging.String("route", r.Name()))
	}
	return r
}

// RemoveRoute deletes the named route. It fails with ErrRouteNotFound if
// there is no such route and with ErrRouteBusy if the route is in use.
func (v *Vehicle) RemoveRoute(name string) error {
	if err := v.routes.RemoveRoute(name); err != nil {
		v.log.Warn(context.Background(), "route removal rejected",
			logging.String("route", name),
			logging.Err(err),
		)
		return err
	}
	v.log.Info(context.Background(), "route removed", logging.String("route", kb.NormalizeName(name)))
	return nil
}

// SelectRoute makes r the route that waypoint appends target. The handle is
// re-validated by name so a stale handle fails with ErrRouteNotFound.
func (v *Vehicle) SelectRoute(r *kb.Route) error {
	if r == nil {
		return ErrRouteNotFound
	}
	return v.SelectRouteByName(r.Name())
}

// SelectRouteByName selects the named route.
func (v *Vehicle) SelectRouteByName(name string) error {
	existing := v.routes.FindRoute(name)
	if existing == nil {
		return fmt.Errorf("select %q: %w", name, ErrRouteNotFound)
	}

	v.mu.Lock()
	v.selected = existing.Name()
	v.hasSel = true
	v.mu.Unlock()

	v.log.Debug(context.Background(), "route selected", logging.String("route", existing.Name()))
	return nil
}

// SelectedRoute returns the name of the route selected for editing.
func (v *Vehicle) SelectedRoute() (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.selected, v.hasSel
}

// AppendFlyTo appends a FlyTo waypoint to the selected route.
func (v *Vehicle) AppendFlyTo(lat, lon, alt float64) error {
	_, _, err := v.AppendWaypoint(model.FlyTo(lat, lon, alt))
	return err
}

// AppendLand appends a Land waypoint to the selected route.
func (v *Vehicle) AppendLand() error {
	_, _, err := v.AppendWaypoint(model.Land())
	return err
}

// AppendLoiter appends a Loiter waypoint of seconds to the selected route.
func (v *Vehicle) AppendLoiter(seconds float64) error {
	_, _, err := v.AppendWaypoint(model.Loiter(seconds))
	return err
}

// AppendTakeOff appends a TakeOff waypoint to the selected route.
func (v *Vehicle) AppendTakeOff() error {
	_, _, err := v.AppendWaypoint(model.TakeOff())
	return err
}

// AppendWaypoint appends w to the selected route and reports the route and
// index it was written to. It fails with ErrNoSelection when nothing is
// selected, ErrRouteNotFound when the selected route has since been
// removed, and ErrRouteBusy when the route is in use.
func (v *Vehicle) AppendWaypoint(w model.Waypoint) (route string, index int, err error) {
	name, ok := v.SelectedRoute()
	if !ok {
		v.log.Warn(context.Background(), "cannot add waypoint when no route is selected",
			logging.String("kind", w.Kind.String()),
		)
		return "", -1, fmt.Errorf("add %s waypoint: %w", w.Kind, ErrNoSelection)
	}

	r := v.routes.FindRoute(name)
	if r == nil {
		return name, -1, fmt.Errorf("add %s waypoint to %q: %w", w.Kind, name, ErrRouteNotFound)
	}
	index, err = v.routes.AppendWaypoint(r, w)
	if err != nil {
		v.log.Warn(context.Background(), "waypoint append rejected",
			logging.String("route", name),
			logging.String("kind", w.Kind.String()),
			logging.Err(err),
		)
		return name, -1, err
	}

	v.log.Debug(context.Background(), "waypoint appended",
		logging.String("route", name),
		logging.Int("index", index),
		logging.String("waypoint", w.String()),
	)
	return name, index, nil
}

// TryLockExecution attempts to take the vehicle-wide execution lock without
// blocking.
func (v *Vehicle) TryLockExecution() bool {
	return v.execMu.TryLock()
}

// UnlockExecution releases the execution lock. The lock may be released by
// a different goroutine than the one that acquired it.
func (v *Vehicle) UnlockExecution() {
	v.execMu.Unlock()
}

// SetFlyingRoute records name as the route currently being flown.
func (v *Vehicle) SetFlyingRoute(name string) {
	v.mu.Lock()
	v.flying = name
	v.isFlying = true
	v.mu.Unlock()
}

// ClearFlyingRoute records that no route is being flown.
func (v *Vehicle) ClearFlyingRoute() {
	v.mu.Lock()
	v.flying = ""
	v.isFlying = false
	v.mu.Unlock()
}

// FlyingRoute returns the route currently being flown.
func (v *Vehicle) FlyingRoute() (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.flying, v.isFlying
}

// Position returns the current position.
func (v *Vehicle) Position() model.Coordinate {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.position
}

// SetPosition moves the vehicle to c.
func (v *Vehicle) SetPosition(c model.Coordinate) {
	v.mu.Lock()
	v.position = c
	v.mu.Unlock()
}

// SetAltitude changes only the altitude.
func (v *Vehicle) SetAltitude(alt float64) {
	v.mu.Lock()
	v.position.Alt = alt
	v.mu.Unlock()
}

// Battery returns the battery capacity in mAh.
func (v *Vehicle) Battery() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.battery
}

// Velocity returns the current speed in m/s.
func (v *Vehicle) Velocity() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.velocity
}

// SetVelocity sets the current speed in m/s.
func (v *Vehicle) SetVelocity(mps float64) {
	v.mu.Lock()
	v.velocity = mps
	v.mu.Unlock()
}

// Snapshot returns a coherent copy of the vehicle state. It is safe to call
// while a flight is in progress.
func (v *Vehicle) Snapshot() Snapshot {
	routes := v.routes.Len()

	v.mu.RLock()
	defer v.mu.RUnlock()
	snap := Snapshot{
		Position:    v.position,
		Battery:     v.battery,
		Velocity:    v.velocity,
		FlyingRoute: v.flying,
		Flying:      v.isFlying,
		Routes:      routes,
	}
	if v.hasSel {
		snap.SelectedRoute = v.selected
	}
	return snap
}

func (v *Vehicle) updateMetrics() {
	if v.metrics == nil {
		return
	}
	v.metrics.SetRouteCounts(v.routes.Len(), v.routes.WaypointCount())
}
