package main

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/route-simulator/internal/config"
	"github.com/signalsfoundry/route-simulator/internal/control"
	"github.com/signalsfoundry/route-simulator/internal/logging"
	"github.com/signalsfoundry/route-simulator/internal/sim/state"
)

const seededConfig = `
[clock]
mode = "accelerated"
scale = 100000

[[routes]]
name = "Seeded"

  [[routes.waypoints]]
  kind = "takeoff"

  [[routes.waypoints]]
  kind = "land"
`

func TestDroneServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg, err := config.Decode(seededConfig)
	if err != nil {
		t.Fatalf("config.Decode: %v", err)
	}
	cfg.Server.GRPCAddr = lis.Addr().String()
	cfg.Server.HTTPAddr = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	log := logging.New(logging.Config{Level: "warn", Format: "text"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	conn, err := grpc.NewClient(cfg.Server.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()
	client := control.NewClient(conn)

	seeded, err := client.GetRoute(ctx, "Seeded")
	if err != nil {
		t.Fatalf("GetRoute(Seeded): %v", err)
	}
	if len(seeded.Waypoints) != 2 {
		t.Fatalf("seeded route has %d waypoints, want 2", len(seeded.Waypoints))
	}

	if _, err := client.AddRoute(ctx, "Smoke"); err != nil {
		t.Fatalf("AddRoute: %v", err)
	}
	if _, err := client.AppendTakeOff(ctx); err != nil {
		t.Fatalf("AppendTakeOff: %v", err)
	}
	if _, err := client.AppendFlyTo(ctx, 37.8738, -122.3206, 3); err != nil {
		t.Fatalf("AppendFlyTo: %v", err)
	}
	if _, err := client.AppendLand(ctx); err != nil {
		t.Fatalf("AppendLand: %v", err)
	}

	if _, err := client.ExecuteRoute(ctx, "Smoke"); err != nil {
		t.Fatalf("ExecuteRoute: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		flight, err := client.GetFlight(ctx)
		if err != nil {
			t.Fatalf("GetFlight: %v", err)
		}
		if flight.State == "completed" {
			break
		}
		if flight.State == "aborted" {
			t.Fatalf("flight aborted: %s", flight.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("flight did not complete, last state %q", flight.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	vehicle, err := client.GetVehicle(ctx)
	if err != nil {
		t.Fatalf("GetVehicle: %v", err)
	}
	if vehicle.Flying || vehicle.Position.Alt != 0 {
		t.Fatalf("vehicle after flight = %+v", vehicle)
	}

	if _, err := client.ExecuteRoute(ctx, "Missing"); !errors.Is(err, state.ErrRouteNotFound) {
		t.Fatalf("ExecuteRoute(Missing) = %v, want ErrRouteNotFound", err)
	}

	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestRunRejectsInvalidSeedRoutes(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer lis.Close()

	cfg := config.Default()
	cfg.Server.HTTPAddr = ""
	cfg.Routes = []config.RouteConfig{{Name: "Bad", Waypoints: []config.WaypointConfig{{Kind: "hover"}}}}

	if err := run(context.Background(), cfg, logging.Noop(), lis); err == nil {
		t.Fatalf("run accepted an invalid seed route")
	}
}
