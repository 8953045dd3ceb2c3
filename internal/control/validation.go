package control

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/route-simulator/model"
)

// ErrInvalidArgument marks malformed control requests.
var ErrInvalidArgument = errors.New("invalid argument")

// ValidateRouteName checks a route name request. Over-long names are
// accepted and truncated by the route store.
func ValidateRouteName(in *wrapperspb.StringValue) (string, error) {
	if in == nil {
		return "", fmt.Errorf("%w: route name is required", ErrInvalidArgument)
	}
	name := in.GetValue()
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: route name must not be blank", ErrInvalidArgument)
	}
	return name, nil
}

// ParseWaypointRequest decodes and validates an AppendWaypoint request.
func ParseWaypointRequest(in *structpb.Struct) (model.Waypoint, error) {
	var spec WaypointSpec
	if err := FromStruct(in, &spec); err != nil {
		return model.Waypoint{}, err
	}
	if strings.TrimSpace(spec.Kind) == "" {
		return model.Waypoint{}, fmt.Errorf("%w: waypoint kind is required", ErrInvalidArgument)
	}
	return spec.ToModel()
}
