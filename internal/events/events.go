// Package events carries route and flight progress notifications from the
// simulator to live observers.
package events

import (
	"time"

	"github.com/signalsfoundry/route-simulator/kb"
	"github.com/signalsfoundry/route-simulator/model"
)

// Type names an event kind on the wire.
type Type string

const (
	TypeRouteAdded       Type = "route_added"
	TypeRouteRemoved     Type = "route_removed"
	TypeWaypointAppended Type = "waypoint_appended"
	TypeFlightStarted    Type = "flight_started"
	TypeWaypointReached  Type = "waypoint_reached"
	TypeFlightCompleted  Type = "flight_completed"
	TypeFlightAborted    Type = "flight_aborted"
)

// Event is a single progress notification.
type Event struct {
	Type     Type              `json:"type" msgpack:"type"`
	Time     time.Time         `json:"time" msgpack:"time"`
	Route    string            `json:"route" msgpack:"route"`
	FlightID string            `json:"flight_id,omitempty" msgpack:"flight_id,omitempty"`
	Index    int               `json:"index" msgpack:"index"`
	Waypoint *model.Waypoint   `json:"waypoint,omitempty" msgpack:"waypoint,omitempty"`
	Position *model.Coordinate `json:"position,omitempty" msgpack:"position,omitempty"`
	Message  string            `json:"message,omitempty" msgpack:"message,omitempty"`
}

// Sink receives events. Publish must not block the caller for long; flight
// goroutines publish between waypoints.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }

// Multi fans every event out to each non-nil sink in order.
type Multi []Sink

// Publish implements Sink.
func (m Multi) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// FromStoreEvent converts a route store change into an Event.
func FromStoreEvent(e kb.Event, now time.Time) Event {
	out := Event{Time: now, Route: e.Route}
	switch e.Type {
	case kb.EventRouteAdded:
		out.Type = TypeRouteAdded
	case kb.EventRouteRemoved:
		out.Type = TypeRouteRemoved
	case kb.EventWaypointAppended:
		out.Type = TypeWaypointAppended
		wp := e.Waypoint
		out.Waypoint = &wp
		out.Index = e.Index
		out.Message = wp.String()
	}
	return out
}

// ForwardStore subscribes sink to store changes and returns the
// unsubscribe function.
func ForwardStore(store *kb.RouteStore, sink Sink) func() {
	return store.Subscribe(func(e kb.Event) {
		sink.Publish(FromStoreEvent(e, time.Now().UTC()))
	})
}
