package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/route-simulator/internal/sim/state"
	"github.com/signalsfoundry/route-simulator/model"
	"github.com/signalsfoundry/route-simulator/timectrl"
)

const sampleConfig = `
[server]
grpc_addr = "127.0.0.1:6000"
http_addr = ""
shutdown_timeout = "2s"

[log]
level = "debug"
format = "json"

[vehicle]
start_lat = 37.87376
start_lon = -122.32058
battery = 1200

[clock]
mode = "accelerated"
scale = 50

[[routes]]
name = "Patrol"

  [[routes.waypoints]]
  kind = "takeoff"

  [[routes.waypoints]]
  kind = "flyto"
  lat = 37.8
  lon = -122.3
  alt = 10

  [[routes.waypoints]]
  kind = "loiter"
  duration = 5

  [[routes.waypoints]]
  kind = "land"
`

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Vehicle.StartPosition() != state.DefaultStartPosition {
		t.Fatalf("default start = %+v", cfg.Vehicle.StartPosition())
	}
}

func TestDecode(t *testing.T) {
	cfg, err := Decode(sampleConfig)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Server.GRPCAddr != "127.0.0.1:6000" || cfg.Server.HTTPAddr != "" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Server.ShutdownTimeout != 2*time.Second {
		t.Fatalf("shutdown timeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.Tracing.ServiceName != "drone-server" {
		t.Fatalf("tracing defaults lost: %+v", cfg.Tracing)
	}
	if cfg.Vehicle.Battery != 1200 {
		t.Fatalf("battery = %v", cfg.Vehicle.Battery)
	}

	clock, err := cfg.Clock.NewClock()
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	if clock.Mode != timectrl.Accelerated || clock.Scale != 50 {
		t.Fatalf("clock = %v x%v", clock.Mode, clock.Scale)
	}

	if len(cfg.Routes) != 1 {
		t.Fatalf("routes = %d, want 1", len(cfg.Routes))
	}
	wps, err := cfg.Routes[0].ToWaypoints()
	if err != nil {
		t.Fatalf("ToWaypoints: %v", err)
	}
	want := []model.Waypoint{model.TakeOff(), model.FlyTo(37.8, -122.3, 10), model.Loiter(5), model.Land()}
	if len(wps) != len(want) {
		t.Fatalf("waypoints = %v", wps)
	}
	for i := range want {
		if wps[i] != want[i] {
			t.Fatalf("waypoint[%d] = %+v, want %+v", i, wps[i], want[i])
		}
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty grpc addr", func(c *Config) { c.Server.GRPCAddr = " " }},
		{"negative shutdown", func(c *Config) { c.Server.ShutdownTimeout = -time.Second }},
		{"unknown clock mode", func(c *Config) { c.Clock.Mode = "warp" }},
		{"zero scale", func(c *Config) { c.Clock.Scale = 0 }},
		{"negative battery", func(c *Config) { c.Vehicle.Battery = -1 }},
		{"start out of range", func(c *Config) { c.Vehicle.StartLat = 91 }},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }},
		{"unnamed route", func(c *Config) { c.Routes = []RouteConfig{{}} }},
		{"bad kind", func(c *Config) {
			c.Routes = []RouteConfig{{Name: "A", Waypoints: []WaypointConfig{{Kind: "hover"}}}}
		}},
		{"negative loiter", func(c *Config) {
			c.Routes = []RouteConfig{{Name: "A", Waypoints: []WaypointConfig{{Kind: "loiter", Duration: -1}}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DRONE_GRPC_ADDR", ":7000")
	t.Setenv("DRONE_HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DRONE_CLOCK_MODE", "accelerated")
	t.Setenv("DRONE_CLOCK_SCALE", "20")
	t.Setenv("DRONE_NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("DRONE_TRACING_ENABLED", "true")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Server.GRPCAddr != ":7000" {
		t.Fatalf("grpc addr = %q", cfg.Server.GRPCAddr)
	}
	if cfg.Server.HTTPAddr != "" {
		t.Fatalf("http addr = %q, want disabled", cfg.Server.HTTPAddr)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("log level = %q", cfg.Log.Level)
	}
	if cfg.Clock.Mode != "accelerated" || cfg.Clock.Scale != 20 {
		t.Fatalf("clock = %+v", cfg.Clock)
	}
	if cfg.Events.NATSURL != "nats://127.0.0.1:4222" {
		t.Fatalf("nats url = %q", cfg.Events.NATSURL)
	}
	if !cfg.Tracing.Enabled {
		t.Fatalf("tracing not enabled from env")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drone.toml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Routes) != 1 || cfg.Routes[0].Name != "Patrol" {
		t.Fatalf("routes = %+v", cfg.Routes)
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Fatalf("Load(missing) returned nil error")
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("[clock]\nmode = \"warp\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Load(bad) = %v, want ErrInvalidConfig", err)
	}
}

func TestSeedRoutes(t *testing.T) {
	cfg, err := Decode(sampleConfig)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	v := state.NewVehicle()
	defer v.Close()

	if err := SeedRoutes(v, cfg.Routes); err != nil {
		t.Fatalf("SeedRoutes: %v", err)
	}
	r := v.Routes().FindRoute("Patrol")
	if r == nil {
		t.Fatalf("seeded route missing")
	}
	if r.Len() != 4 {
		t.Fatalf("seeded route has %d waypoints, want 4", r.Len())
	}

	bad := []RouteConfig{{Name: "B", Waypoints: []WaypointConfig{{Kind: "hover"}}}}
	if err := SeedRoutes(v, bad); !errors.Is(err, model.ErrInvalidWaypoint) {
		t.Fatalf("SeedRoutes(bad) = %v, want ErrInvalidWaypoint", err)
	}
}
