package kb

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/iancoleman/orderedmap"

	"github.com/signalsfoundry/route-simulator/model"
)

// MaxRouteNameBytes is the longest route name kept; longer names are
// truncated on a UTF-8 boundary by NormalizeName.
const MaxRouteNameBytes = 127

var (
	// ErrRouteNotFound indicates no route with the requested name exists.
	ErrRouteNotFound = errors.New("route not found")
	// ErrBusy indicates an exclusive lock could not be taken without waiting.
	ErrBusy = errors.New("busy")
	// ErrRouteBusy indicates the route's in-use lock is held elsewhere,
	// typically by a flight.
	ErrRouteBusy = fmt.Errorf("route is in use: %w", ErrBusy)
)

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventRouteAdded EventType = iota
	EventRouteRemoved
	EventWaypointAppended
)

func (t EventType) String() string {
	switch t {
	case EventRouteAdded:
		return "route_added"
	case EventRouteRemoved:
		return "route_removed"
	case EventWaypointAppended:
		return "waypoint_appended"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is emitted to subscribers after a store mutation commits.
type Event struct {
	Type  EventType
	Route string
	// Waypoint and Index are set for EventWaypointAppended.
	Waypoint model.Waypoint
	Index    int
	// Waypoints is the route's waypoint count after the change.
	Waypoints int
}

// NormalizeName truncates name to MaxRouteNameBytes without splitting a
// multi-byte character.
func NormalizeName(name string) string {
	if len(name) <= MaxRouteNameBytes {
		return name
	}
	cut := MaxRouteNameBytes
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// Route is a named, ordered sequence of waypoints guarded by an in-use lock.
//
// The in-use lock is what flights and mutations contend on. The separate
// data lock only protects the waypoint slice for readers, so inspecting a
// route never waits for a flight to finish.
type Route struct {
	name string

	inUse sync.Mutex

	mu        sync.RWMutex
	waypoints []model.Waypoint
}

func newRoute(name string) *Route {
	return &Route{name: name}
}

// Name returns the route's unique name.
func (r *Route) Name() string { return r.name }

// TryAcquire attempts to take the in-use lock without blocking.
func (r *Route) TryAcquire() bool { return r.inUse.TryLock() }

// Acquire blocks until the in-use lock is held.
func (r *Route) Acquire() { r.inUse.Lock() }

// Release drops the in-use lock.
func (r *Route) Release() { r.inUse.Unlock() }

// Waypoints returns a copy of the route's waypoints in execution order.
func (r *Route) Waypoints() []model.Waypoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Waypoint, len(r.waypoints))
	copy(out, r.waypoints)
	return out
}

// Len returns the number of waypoints.
func (r *Route) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.waypoints)
}

// Last returns the tail waypoint, or false when the route is empty.
func (r *Route) Last() (model.Waypoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.waypoints) == 0 {
		return model.Waypoint{}, false
	}
	return r.waypoints[len(r.waypoints)-1], true
}

// appendLocked requires the in-use lock.
func (r *Route) appendLocked(w model.Waypoint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waypoints = append(r.waypoints, w)
	return len(r.waypoints)
}

// RouteStore is an in-memory, thread-safe set of routes keyed by name.
// Iteration order is newest first.
type RouteStore struct {
	mu     sync.RWMutex
	routes *orderedmap.OrderedMap

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// NewRouteStore constructs an empty store.
func NewRouteStore() *RouteStore {
	return &RouteStore{
		routes: orderedmap.New(),
		subs:   make(map[int]func(Event)),
	}
}

// AddRoute returns the route named name, creating an empty one if none
// exists. created reports whether a new route was allocated.
func (s *RouteStore) AddRoute(name string) (r *Route, created bool) {
	name = NormalizeName(name)

	s.mu.Lock()
	if existing, ok := s.lookupLocked(name); ok {
		s.mu.Unlock()
		return existing, false
	}
	r = newRoute(name)
	s.routes.Set(name, r)
	s.mu.Unlock()

	s.notify(Event{Type: EventRouteAdded, Route: name})
	return r, true
}

// FindRoute returns the route named name, or nil if not found.
func (s *RouteStore) FindRoute(name string) *Route {
	name = NormalizeName(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, _ := s.lookupLocked(name)
	return r
}

// Contains reports whether r is still the route stored under its name.
func (s *RouteStore) Contains(r *Route) bool {
	if r == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing, ok := s.lookupLocked(r.name)
	return ok && existing == r
}

// RemoveRoute deletes the named route and its waypoints. It never waits:
// if the route's in-use lock is held it fails with ErrRouteBusy.
func (s *RouteStore) RemoveRoute(name string) error {
	name = NormalizeName(name)

	s.mu.Lock()
	r, ok := s.lookupLocked(name)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrRouteNotFound, name)
	}
	if !r.TryAcquire() {
		s.mu.Unlock()
		return fmt.Errorf("remove %q: %w", name, ErrRouteBusy)
	}
	s.routes.Delete(name)
	r.mu.Lock()
	r.waypoints = nil
	r.mu.Unlock()
	r.Release()
	s.mu.Unlock()

	s.notify(Event{Type: EventRouteRemoved, Route: name})
	return nil
}

// AppendWaypoint adds w to the tail of r and returns its index. It takes
// r's in-use lock without blocking for the duration of the append only.
func (s *RouteStore) AppendWaypoint(r *Route, w model.Waypoint) (int, error) {
	if r == nil {
		return -1, ErrRouteNotFound
	}
	if err := w.Validate(); err != nil {
		return -1, err
	}
	if !r.TryAcquire() {
		return -1, fmt.Errorf("append to %q: %w", r.name, ErrRouteBusy)
	}
	// Removal needs the in-use lock too, so membership is stable from here.
	if !s.Contains(r) {
		r.Release()
		return -1, fmt.Errorf("%w: %q", ErrRouteNotFound, r.name)
	}
	count := r.appendLocked(w)
	r.Release()

	s.notify(Event{
		Type:      EventWaypointAppended,
		Route:     r.name,
		Waypoint:  w,
		Index:     count - 1,
		Waypoints: count,
	})
	return count - 1, nil
}

// List returns a snapshot of all routes, newest first.
func (s *RouteStore) List() []*Route {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.routes.Keys()
	res := make([]*Route, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if r, ok := s.lookupLocked(keys[i]); ok {
			res = append(res, r)
		}
	}
	return res
}

// Len returns the number of routes.
func (s *RouteStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.routes.Keys())
}

// WaypointCount returns the total number of waypoints across all routes.
func (s *RouteStore) WaypointCount() int {
	total := 0
	for _, r := range s.List() {
		total += r.Len()
	}
	return total
}

// Subscribe registers a callback for store events. Callbacks run on the
// mutating goroutine after the store lock is released. It returns an
// unsubscribe function.
func (s *RouteStore) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *RouteStore) lookupLocked(name string) (*Route, bool) {
	v, ok := s.routes.Get(name)
	if !ok {
		return nil, false
	}
	r, ok := v.(*Route)
	return r, ok
}

func (s *RouteStore) notify(e Event) {
	s.subMu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}
