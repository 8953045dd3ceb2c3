package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/route-simulator/internal/events"
	"github.com/signalsfoundry/route-simulator/internal/logging"
	"github.com/signalsfoundry/route-simulator/internal/sim/state"
	"github.com/signalsfoundry/route-simulator/kb"
	"github.com/signalsfoundry/route-simulator/model"
	"github.com/signalsfoundry/route-simulator/timectrl"
)

const tracerName = "github.com/signalsfoundry/route-simulator/core"

// FlightState is the lifecycle of one flight attempt:
// Idle -> Locking -> Flying -> Completed | Aborted.
type FlightState int

const (
	FlightIdle FlightState = iota
	FlightLocking
	FlightFlying
	FlightCompleted
	FlightAborted
)

func (s FlightState) String() string {
	switch s {
	case FlightIdle:
		return "idle"
	case FlightLocking:
		return "locking"
	case FlightFlying:
		return "flying"
	case FlightCompleted:
		return "completed"
	case FlightAborted:
		return "aborted"
	default:
		return fmt.Sprintf("FlightState(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s FlightState) Terminal() bool {
	return s == FlightCompleted || s == FlightAborted
}

// FlightMetrics receives flight lifecycle measurements.
type FlightMetrics interface {
	FlightStarted()
	FlightFinished(outcome string, d time.Duration)
	WaypointExecuted(kind string)
	BusyRejected(lock string)
}

type noopFlightMetrics struct{}

func (noopFlightMetrics) FlightStarted()                       {}
func (noopFlightMetrics) FlightFinished(string, time.Duration) {}
func (noopFlightMetrics) WaypointExecuted(string)              {}
func (noopFlightMetrics) BusyRejected(string)                  {}

// Flight is the handle of one dispatched route execution.
type Flight struct {
	ID        string
	Route     string
	StartedAt time.Time

	mu         sync.Mutex
	state      FlightState
	index      int
	waypoints  int
	finishedAt time.Time
	err        error
	done       chan struct{}
}

// FlightStatus is a point-in-time copy of a Flight.
type FlightStatus struct {
	ID         string    `json:"id"`
	Route      string    `json:"route"`
	State      string    `json:"state"`
	Index      int       `json:"index"`
	Waypoints  int       `json:"waypoints"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func newFlight(route string, now time.Time) *Flight {
	return &Flight{
		ID:        uuid.NewString(),
		Route:     route,
		StartedAt: now,
		state:     FlightIdle,
		index:     -1,
		done:      make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (f *Flight) State() FlightState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Index returns the position of the waypoint being executed, or -1 before
// the first one starts.
func (f *Flight) Index() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index
}

// Done is closed once the flight has released every lock it held.
func (f *Flight) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the flight ends and returns its error.
func (f *Flight) Wait() error {
	<-f.done
	return f.Err()
}

// Err is nil while flying and for completed flights.
func (f *Flight) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Status returns a copy of the flight's observable state.
func (f *Flight) Status() FlightStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := FlightStatus{
		ID:         f.ID,
		Route:      f.Route,
		State:      f.state.String(),
		Index:      f.index,
		Waypoints:  f.waypoints,
		StartedAt:  f.StartedAt,
		FinishedAt: f.finishedAt,
	}
	if f.err != nil {
		st.Error = f.err.Error()
	}
	return st
}

func (f *Flight) setState(s FlightState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *Flight) setWaypoints(n int) {
	f.mu.Lock()
	f.waypoints = n
	f.mu.Unlock()
}

func (f *Flight) setIndex(i int) {
	f.mu.Lock()
	f.index = i
	f.mu.Unlock()
}

func (f *Flight) finish(s FlightState, err error, at time.Time) {
	f.mu.Lock()
	f.state = s
	f.err = err
	f.finishedAt = at
	f.mu.Unlock()
	close(f.done)
}

// Engine executes routes against a single vehicle. At most one flight runs
// at a time; dispatch never queues.
type Engine struct {
	vehicle *state.Vehicle
	clock   timectrl.SimClock
	log     logging.Logger
	metrics FlightMetrics
	sink    events.Sink
	tracer  trace.Tracer

	wg      sync.WaitGroup
	mu      sync.Mutex
	current *Flight
	last    *Flight

	// beforeLock, if set, runs in the flight goroutine just before it
	// blocks on the route lock.
	beforeLock func(*Flight)
}

// EngineOption customises Engine construction.
type EngineOption func(*Engine)

// WithClock sets the clock flights sleep on. Defaults to real time.
func WithClock(c timectrl.SimClock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithEngineLogger attaches a structured logger for flight progress.
func WithEngineLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithFlightMetrics attaches a metrics recorder.
func WithFlightMetrics(m FlightMetrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithEventSink sends flight progress events to s.
func WithEventSink(s events.Sink) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithTracer overrides the tracer used for flight and waypoint spans.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine builds an engine for v.
func NewEngine(v *state.Vehicle, opts ...EngineOption) *Engine {
	e := &Engine{
		vehicle: v,
		clock:   timectrl.NewRealTime(),
		log:     logging.Noop(),
		metrics: noopFlightMetrics{},
		sink:    events.Discard,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Vehicle returns the vehicle the engine flies.
func (e *Engine) Vehicle() *state.Vehicle {
	return e.vehicle
}

// ExecuteRoute dispatches a flight of the named route and returns without
// waiting for it. It fails with state.ErrVehicleBusy if a flight is already
// in progress and with state.ErrRouteNotFound if there is no such route.
//
// The execution lock taken here is released by the flight goroutine when
// the flight ends. Cancelling ctx does not stop the flight.
func (e *Engine) ExecuteRoute(ctx context.Context, name string) (*Flight, error) {
	log := logging.LoggerFromContext(ctx, e.log)

	if !e.vehicle.TryLockExecution() {
		e.metrics.BusyRejected("vehicle")
		log.Warn(ctx, "cannot execute route while another route is executing",
			logging.String("route", kb.NormalizeName(name)),
		)
		return nil, fmt.Errorf("execute %q: %w", kb.NormalizeName(name), state.ErrVehicleBusy)
	}

	r := e.vehicle.Routes().FindRoute(name)
	if r == nil {
		e.vehicle.UnlockExecution()
		log.Warn(ctx, "cannot execute unknown route", logging.String("route", kb.NormalizeName(name)))
		return nil, fmt.Errorf("execute %q: %w", kb.NormalizeName(name), state.ErrRouteNotFound)
	}

	f := newFlight(r.Name(), e.clock.Now())
	e.vehicle.SetFlyingRoute(r.Name())

	e.mu.Lock()
	e.current = f
	e.last = f
	e.mu.Unlock()

	e.metrics.FlightStarted()
	log.Info(ctx, "route dispatched",
		logging.String("route", f.Route),
		logging.String("flight_id", f.ID),
	)

	e.wg.Add(1)
	go e.fly(context.WithoutCancel(ctx), f, r)
	return f, nil
}

// Current returns the flight in progress, or nil.
func (e *Engine) Current() *Flight {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Last returns the most recently dispatched flight, or nil.
func (e *Engine) Last() *Flight {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Wait blocks until every dispatched flight has ended or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) fly(ctx context.Context, f *Flight, r *kb.Route) {
	defer e.wg.Done()

	ctx, span := e.tracer.Start(ctx, "flight",
		trace.WithAttributes(
			attribute.String("route", f.Route),
			attribute.String("flight.id", f.ID),
		),
	)
	defer span.End()

	log := logging.LoggerFromContext(ctx, e.log).With(
		logging.String("route", f.Route),
		logging.String("flight_id", f.ID),
	)
	wall := time.Now()

	// Wait out any in-progress append, then confirm the route was not
	// removed between dispatch and now.
	f.setState(FlightLocking)
	if e.beforeLock != nil {
		e.beforeLock(f)
	}
	r.Acquire()

	var err error
	if !e.vehicle.Routes().Contains(r) {
		err = fmt.Errorf("fly %q: %w", f.Route, state.ErrRouteNotFound)
	} else {
		waypoints := r.Waypoints()
		f.setWaypoints(len(waypoints))
		f.setState(FlightFlying)
		log.Info(ctx, "flight started", logging.Int("waypoints", len(waypoints)))
		e.publish(events.Event{Type: events.TypeFlightStarted, Route: f.Route, FlightID: f.ID, Index: -1})

		for i, w := range waypoints {
			f.setIndex(i)
			e.step(ctx, log, f, i, w)
		}
	}

	r.Release()
	e.vehicle.ClearFlyingRoute()

	e.mu.Lock()
	if e.current == f {
		e.current = nil
	}
	e.mu.Unlock()

	// The terminal event goes out while the execution lock is still held so
	// observers never see the next flight start before this one ends.
	outcome := FlightCompleted
	if err != nil {
		outcome = FlightAborted
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn(ctx, "flight aborted", logging.Err(err))
		e.publish(events.Event{Type: events.TypeFlightAborted, Route: f.Route, FlightID: f.ID, Index: f.Index(), Message: err.Error()})
	} else {
		log.Info(ctx, "flight completed", logging.Duration("elapsed", time.Since(wall)))
		pos := e.vehicle.Position()
		e.publish(events.Event{Type: events.TypeFlightCompleted, Route: f.Route, FlightID: f.ID, Index: f.Index(), Position: &pos})
	}
	e.metrics.FlightFinished(outcome.String(), time.Since(wall))

	e.vehicle.UnlockExecution()
	f.finish(outcome, err, e.clock.Now())
}

// step executes one waypoint, sleeping for its simulated duration.
func (e *Engine) step(ctx context.Context, log logging.Logger, f *Flight, i int, w model.Waypoint) {
	_, span := e.tracer.Start(ctx, "waypoint",
		trace.WithAttributes(
			attribute.String("waypoint.kind", w.Kind.String()),
			attribute.Int("waypoint.index", i),
		),
	)
	defer span.End()

	log.Info(ctx, w.String(), logging.Int("index", i))

	switch w.Kind {
	case model.WaypointFlyTo:
		e.move(LegDistanceMeters(e.vehicle.Position(), w.Target))
		e.vehicle.SetPosition(w.Target)
	case model.WaypointLand:
		e.move(e.vehicle.Position().Alt)
		e.vehicle.SetAltitude(0)
	case model.WaypointLoiter:
		e.clock.Sleep(secondsToDuration(w.Loiter))
	case model.WaypointTakeOff:
		e.move(TakeOffAltitude)
		e.vehicle.SetAltitude(TakeOffAltitude)
	default:
		panic(fmt.Sprintf("core: route %q has waypoint %d of unknown kind %d", f.Route, i, int(w.Kind)))
	}

	e.metrics.WaypointExecuted(w.Kind.String())
	pos := e.vehicle.Position()
	wp := w
	e.publish(events.Event{
		Type:     events.TypeWaypointReached,
		Route:    f.Route,
		FlightID: f.ID,
		Index:    i,
		Waypoint: &wp,
		Position: &pos,
		Message:  w.String(),
	})
}

// move covers distanceMeters at MaxVelocity.
func (e *Engine) move(distanceMeters float64) {
	e.vehicle.SetVelocity(MaxVelocity)
	e.clock.Sleep(secondsToDuration(TravelTimeSeconds(distanceMeters)))
	e.vehicle.SetVelocity(0)
}

func (e *Engine) publish(ev events.Event) {
	ev.Time = e.clock.Now()
	e.sink.Publish(ev)
}
