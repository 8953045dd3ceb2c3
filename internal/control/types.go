package control

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/route-simulator/core"
	"github.com/signalsfoundry/route-simulator/internal/sim/state"
	"github.com/signalsfoundry/route-simulator/kb"
	"github.com/signalsfoundry/route-simulator/model"
)

// WaypointSpec is the wire form of a waypoint. Kind is one of flyto, land,
// loiter or takeoff; Lat/Lon/Alt apply to flyto and Duration (seconds) to
// loiter.
type WaypointSpec struct {
	Kind     string  `json:"kind"`
	Lat      float64 `json:"lat,omitempty"`
	Lon      float64 `json:"lon,omitempty"`
	Alt      float64 `json:"alt,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// WaypointSpecFromModel converts a domain waypoint to its wire form.
func WaypointSpecFromModel(w model.Waypoint) WaypointSpec {
	spec := WaypointSpec{Kind: w.Kind.String()}
	switch w.Kind {
	case model.WaypointFlyTo:
		spec.Lat, spec.Lon, spec.Alt = w.Target.Lat, w.Target.Lon, w.Target.Alt
	case model.WaypointLoiter:
		spec.Duration = w.Loiter
	}
	return spec
}

// ToModel converts the wire form to a validated domain waypoint.
func (s WaypointSpec) ToModel() (model.Waypoint, error) {
	kind, err := model.ParseWaypointKind(s.Kind)
	if err != nil {
		return model.Waypoint{}, err
	}
	var w model.Waypoint
	switch kind {
	case model.WaypointFlyTo:
		w = model.FlyTo(s.Lat, s.Lon, s.Alt)
	case model.WaypointLand:
		w = model.Land()
	case model.WaypointLoiter:
		w = model.Loiter(s.Duration)
	case model.WaypointTakeOff:
		w = model.TakeOff()
	}
	if err := w.ValidateBounds(); err != nil {
		return model.Waypoint{}, err
	}
	return w, nil
}

// RouteInfo describes one route and its waypoints in execution order.
type RouteInfo struct {
	Name      string         `json:"name"`
	Waypoints []WaypointSpec `json:"waypoints"`
}

// RouteInfoFromRoute snapshots r.
func RouteInfoFromRoute(r *kb.Route) RouteInfo {
	wps := r.Waypoints()
	info := RouteInfo{Name: r.Name(), Waypoints: make([]WaypointSpec, 0, len(wps))}
	for _, w := range wps {
		info.Waypoints = append(info.Waypoints, WaypointSpecFromModel(w))
	}
	return info
}

// RouteList is the ListRoutes response, newest route first.
type RouteList struct {
	Routes []RouteInfo `json:"routes"`
}

// AppendResult reports where an appended waypoint landed.
type AppendResult struct {
	Route     string `json:"route"`
	Index     int    `json:"index"`
	Waypoints int    `json:"waypoints"`
}

// VehicleInfo is the GetVehicle response.
type VehicleInfo = state.Snapshot

// FlightInfo is the ExecuteRoute and GetFlight response.
type FlightInfo = core.FlightStatus

// ToStruct encodes v through its JSON form into a structpb.Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return out, nil
}

// FromStruct decodes s into v, which must be a pointer.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("%w: message is required", ErrInvalidArgument)
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}
