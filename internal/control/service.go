// Package control exposes the vehicle's route store and execution engine
// over gRPC. Messages are protobuf well-known types so no generated code is
// required; the shapes carried inside them are defined in types.go.
package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "route_simulator.control.v1.DroneControl"

// FullMethod returns the "/service/method" path for method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// DroneControlServer is the server API for the DroneControl service.
type DroneControlServer interface {
	// AddRoute creates (or finds) a route by name and selects it.
	AddRoute(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// RemoveRoute deletes a route that is not in use.
	RemoveRoute(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	// SelectRoute makes the named route the target of AppendWaypoint.
	SelectRoute(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	// AppendWaypoint appends a waypoint to the selected route.
	AppendWaypoint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ExecuteRoute dispatches a flight and returns its initial status.
	ExecuteRoute(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetVehicle(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListRoutes(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetRoute(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// GetFlight returns the current or most recent flight.
	GetFlight(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterDroneControlServer registers srv on s.
func RegisterDroneControlServer(s grpc.ServiceRegistrar, srv DroneControlServer) {
	s.RegisterService(&DroneControlServiceDesc, srv)
}

// DroneControlServiceDesc describes the DroneControl service for grpc.
var DroneControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DroneControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddRoute", Handler: unary("AddRoute", newString, DroneControlServer.AddRoute)},
		{MethodName: "RemoveRoute", Handler: unary("RemoveRoute", newString, DroneControlServer.RemoveRoute)},
		{MethodName: "SelectRoute", Handler: unary("SelectRoute", newString, DroneControlServer.SelectRoute)},
		{MethodName: "AppendWaypoint", Handler: unary("AppendWaypoint", newStruct, DroneControlServer.AppendWaypoint)},
		{MethodName: "ExecuteRoute", Handler: unary("ExecuteRoute", newString, DroneControlServer.ExecuteRoute)},
		{MethodName: "GetVehicle", Handler: unary("GetVehicle", newEmpty, DroneControlServer.GetVehicle)},
		{MethodName: "ListRoutes", Handler: unary("ListRoutes", newEmpty, DroneControlServer.ListRoutes)},
		{MethodName: "GetRoute", Handler: unary("GetRoute", newString, DroneControlServer.GetRoute)},
		{MethodName: "GetFlight", Handler: unary("GetFlight", newEmpty, DroneControlServer.GetFlight)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "route_simulator/control/v1/control.proto",
}

func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }
func newStruct() *structpb.Struct        { return new(structpb.Struct) }
func newEmpty() *emptypb.Empty           { return new(emptypb.Empty) }

// unary adapts a typed server method to grpc.MethodHandler, running it
// through the server's interceptor chain when one is installed.
func unary[Req any, Resp any](
	method string,
	newReq func() Req,
	call func(DroneControlServer, context.Context, Req) (Resp, error),
) grpc.MethodHandler {
	fullMethod := FullMethod(method)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(DroneControlServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
