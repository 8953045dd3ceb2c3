package control

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/route-simulator/core"
	"github.com/signalsfoundry/route-simulator/internal/logging"
	"github.com/signalsfoundry/route-simulator/internal/sim/state"
)

// Server implements DroneControlServer on top of a vehicle and its
// execution engine.
type Server struct {
	vehicle *state.Vehicle
	engine  *core.Engine
	log     logging.Logger
}

var _ DroneControlServer = (*Server)(nil)

// NewServer wires a control server to engine and the vehicle it flies.
func NewServer(engine *core.Engine, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{engine: engine, log: log}
	if engine != nil {
		s.vehicle = engine.Vehicle()
	}
	return s
}

func (s *Server) AddRoute(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	name, err := ValidateRouteName(in)
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := StartChildSpan(ctx, "RouteStore.AddRoute", name)
	defer span.End()

	r := s.vehicle.AddRoute(name)
	s.logger(ctx).Info(ctx, "route added via control", logging.String("route", r.Name()))
	return s.encode(RouteInfoFromRoute(r))
}

func (s *Server) RemoveRoute(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	name, err := ValidateRouteName(in)
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := StartChildSpan(ctx, "RouteStore.RemoveRoute", name)
	defer span.End()

	if err := s.vehicle.RemoveRoute(name); err != nil {
		span.RecordError(err)
		return nil, ToStatusError(err)
	}
	s.logger(ctx).Info(ctx, "route removed via control", logging.String("route", name))
	return &emptypb.Empty{}, nil
}

func (s *Server) SelectRoute(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	name, err := ValidateRouteName(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if err := s.vehicle.SelectRouteByName(name); err != nil {
		return nil, ToStatusError(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) AppendWaypoint(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	w, err := ParseWaypointRequest(in)
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := StartChildSpan(ctx, "RouteStore.AppendWaypoint", "",
		attribute.String("waypoint.kind", w.Kind.String()),
	)
	defer span.End()

	route, index, err := s.vehicle.AppendWaypoint(w)
	if route != "" {
		span.SetAttributes(attribute.String("route", route))
	}
	if err != nil {
		span.RecordError(err)
		return nil, ToStatusError(err)
	}

	s.logger(ctx).Debug(ctx, "waypoint appended via control",
		logging.String("route", route),
		logging.Int("index", index),
		logging.String("waypoint", w.String()),
	)
	return s.encode(AppendResult{Route: route, Index: index, Waypoints: index + 1})
}

func (s *Server) ExecuteRoute(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	name, err := ValidateRouteName(in)
	if err != nil {
		return nil, ToStatusError(err)
	}

	f, err := s.engine.ExecuteRoute(ctx, name)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return s.encode(f.Status())
}

func (s *Server) GetVehicle(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return s.encode(s.vehicle.Snapshot())
}

func (s *Server) ListRoutes(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	routes := s.vehicle.Routes().List()
	resp := RouteList{Routes: make([]RouteInfo, 0, len(routes))}
	for _, r := range routes {
		resp.Routes = append(resp.Routes, RouteInfoFromRoute(r))
	}
	return s.encode(resp)
}

func (s *Server) GetRoute(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	name, err := ValidateRouteName(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	r := s.vehicle.Routes().FindRoute(name)
	if r == nil {
		return nil, ToStatusError(state.ErrRouteNotFound)
	}
	return s.encode(RouteInfoFromRoute(r))
}

func (s *Server) GetFlight(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	f := s.engine.Current()
	if f == nil {
		f = s.engine.Last()
	}
	if f == nil {
		return nil, status.Error(codes.NotFound, "no flight has been dispatched")
	}
	return s.encode(f.Status())
}

func (s *Server) ensureReady() error {
	if s == nil || s.engine == nil || s.vehicle == nil {
		return status.Error(codes.FailedPrecondition, "control server is not initialised")
	}
	return nil
}

func (s *Server) encode(v any) (*structpb.Struct, error) {
	out, err := ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) logger(ctx context.Context) logging.Logger {
	return logging.LoggerFromContext(ctx, s.log)
}

// IsBusy reports whether err is a Busy rejection from either lock tier,
// locally or over the wire.
func IsBusy(err error) bool {
	return errors.Is(err, state.ErrBusy) || status.Code(err) == codes.Aborted
}
