package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidWaypoint indicates a waypoint failed validation.
var ErrInvalidWaypoint = errors.New("invalid waypoint")

// WaypointKind tags the variant held by a Waypoint.
type WaypointKind int

const (
	WaypointFlyTo WaypointKind = iota
	WaypointLand
	WaypointLoiter
	WaypointTakeOff
)

var waypointKindNames = map[WaypointKind]string{
	WaypointFlyTo:   "flyto",
	WaypointLand:    "land",
	WaypointLoiter:  "loiter",
	WaypointTakeOff: "takeoff",
}

func (k WaypointKind) String() string {
	if name, ok := waypointKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("WaypointKind(%d)", int(k))
}

// Valid reports whether k is one of the known waypoint kinds.
func (k WaypointKind) Valid() bool {
	_, ok := waypointKindNames[k]
	return ok
}

// ParseWaypointKind accepts the lower-case names produced by String, plus a
// few spellings used in route plan files ("fly_to", "take_off", ...).
func ParseWaypointKind(s string) (WaypointKind, error) {
	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	for k, name := range waypointKindNames {
		if name == norm {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown waypoint kind %q", ErrInvalidWaypoint, s)
}

// Waypoint is one instruction in a route. Target is only meaningful for
// FlyTo and Loiter only for Loiter. Waypoints are values and are never
// modified after construction.
type Waypoint struct {
	Kind   WaypointKind `json:"kind" msgpack:"kind"`
	Target Coordinate   `json:"target,omitempty" msgpack:"target,omitempty"`
	// Loiter is the loiter duration in seconds.
	Loiter float64 `json:"loiter,omitempty" msgpack:"loiter,omitempty"`
}

// FlyTo builds a waypoint that flies to the given coordinate.
func FlyTo(lat, lon, alt float64) Waypoint {
	return Waypoint{Kind: WaypointFlyTo, Target: Coordinate{Lat: lat, Lon: lon, Alt: alt}}
}

// Land builds a landing waypoint.
func Land() Waypoint { return Waypoint{Kind: WaypointLand} }

// Loiter builds a waypoint that holds position for seconds.
func Loiter(seconds float64) Waypoint {
	return Waypoint{Kind: WaypointLoiter, Loiter: seconds}
}

// TakeOff builds a take-off waypoint.
func TakeOff() Waypoint { return Waypoint{Kind: WaypointTakeOff} }

// Validate checks the waypoint is a known kind with finite parameters.
// Coordinates outside the usual lat/lon ranges and negative loiter
// durations are accepted; a negative loiter holds for zero time.
func (w Waypoint) Validate() error {
	switch w.Kind {
	case WaypointFlyTo:
		for _, v := range []float64{w.Target.Lat, w.Target.Lon, w.Target.Alt} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: flyto coordinates must be finite", ErrInvalidWaypoint)
			}
		}
	case WaypointLoiter:
		if math.IsNaN(w.Loiter) || math.IsInf(w.Loiter, 0) {
			return fmt.Errorf("%w: loiter duration must be finite", ErrInvalidWaypoint)
		}
	case WaypointLand, WaypointTakeOff:
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidWaypoint, int(w.Kind))
	}
	return nil
}

// ValidateBounds is Validate plus range checks for operator input: FlyTo
// latitude within [-90, 90], longitude within [-180, 180], and a
// non-negative loiter duration.
func (w Waypoint) ValidateBounds() error {
	if err := w.Validate(); err != nil {
		return err
	}
	switch w.Kind {
	case WaypointFlyTo:
		if math.Abs(w.Target.Lat) > 90 || math.Abs(w.Target.Lon) > 180 {
			return fmt.Errorf("%w: flyto target %s out of range", ErrInvalidWaypoint, w.Target)
		}
	case WaypointLoiter:
		if w.Loiter < 0 {
			return fmt.Errorf("%w: loiter duration must be a non-negative number of seconds", ErrInvalidWaypoint)
		}
	}
	return nil
}

func (w Waypoint) String() string {
	switch w.Kind {
	case WaypointFlyTo:
		return "Flying to waypoint: " + w.Target.String()
	case WaypointLand:
		return "Landing"
	case WaypointLoiter:
		return fmt.Sprintf("Loitering for %f secs", w.Loiter)
	case WaypointTakeOff:
		return "Taking off"
	default:
		return w.Kind.String()
	}
}
