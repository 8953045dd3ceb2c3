package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/route-simulator/model"
)

// Client is a typed DroneControl client. Errors carry the gRPC status and
// also match the simulator sentinels with errors.Is.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) AddRoute(ctx context.Context, name string, opts ...grpc.CallOption) (RouteInfo, error) {
	var out RouteInfo
	err := c.call(ctx, "AddRoute", wrapperspb.String(name), &out, opts...)
	return out, err
}

func (c *Client) RemoveRoute(ctx context.Context, name string, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "RemoveRoute", wrapperspb.String(name), new(emptypb.Empty), opts...)
}

func (c *Client) SelectRoute(ctx context.Context, name string, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "SelectRoute", wrapperspb.String(name), new(emptypb.Empty), opts...)
}

// AppendWaypoint appends w to the route currently selected on the server.
func (c *Client) AppendWaypoint(ctx context.Context, w model.Waypoint, opts ...grpc.CallOption) (AppendResult, error) {
	var out AppendResult
	in, err := ToStruct(WaypointSpecFromModel(w))
	if err != nil {
		return out, err
	}
	err = c.call(ctx, "AppendWaypoint", in, &out, opts...)
	return out, err
}

func (c *Client) AppendFlyTo(ctx context.Context, lat, lon, alt float64, opts ...grpc.CallOption) (AppendResult, error) {
	return c.AppendWaypoint(ctx, model.FlyTo(lat, lon, alt), opts...)
}

func (c *Client) AppendLand(ctx context.Context, opts ...grpc.CallOption) (AppendResult, error) {
	return c.AppendWaypoint(ctx, model.Land(), opts...)
}

func (c *Client) AppendLoiter(ctx context.Context, seconds float64, opts ...grpc.CallOption) (AppendResult, error) {
	return c.AppendWaypoint(ctx, model.Loiter(seconds), opts...)
}

func (c *Client) AppendTakeOff(ctx context.Context, opts ...grpc.CallOption) (AppendResult, error) {
	return c.AppendWaypoint(ctx, model.TakeOff(), opts...)
}

// ExecuteRoute dispatches a flight; it returns as soon as the flight starts.
func (c *Client) ExecuteRoute(ctx context.Context, name string, opts ...grpc.CallOption) (FlightInfo, error) {
	var out FlightInfo
	err := c.call(ctx, "ExecuteRoute", wrapperspb.String(name), &out, opts...)
	return out, err
}

func (c *Client) GetVehicle(ctx context.Context, opts ...grpc.CallOption) (VehicleInfo, error) {
	var out VehicleInfo
	err := c.call(ctx, "GetVehicle", new(emptypb.Empty), &out, opts...)
	return out, err
}

func (c *Client) ListRoutes(ctx context.Context, opts ...grpc.CallOption) ([]RouteInfo, error) {
	var out RouteList
	err := c.call(ctx, "ListRoutes", new(emptypb.Empty), &out, opts...)
	return out.Routes, err
}

func (c *Client) GetRoute(ctx context.Context, name string, opts ...grpc.CallOption) (RouteInfo, error) {
	var out RouteInfo
	err := c.call(ctx, "GetRoute", wrapperspb.String(name), &out, opts...)
	return out, err
}

func (c *Client) GetFlight(ctx context.Context, opts ...grpc.CallOption) (FlightInfo, error) {
	var out FlightInfo
	err := c.call(ctx, "GetFlight", new(emptypb.Empty), &out, opts...)
	return out, err
}

func (c *Client) call(ctx context.Context, method string, in any, out any, opts ...grpc.CallOption) error {
	resp := new(structpb.Struct)
	if err := c.invoke(ctx, method, in, resp, opts...); err != nil {
		return err
	}
	return FromStruct(resp, out)
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	return FromStatusError(c.cc.Invoke(ctx, FullMethod(method), in, out, opts...))
}
