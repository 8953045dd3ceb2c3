// Package config loads the drone server configuration from a TOML file, an
// optional .env file and environment variables, in that order of
// precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/signalsfoundry/route-simulator/internal/events"
	"github.com/signalsfoundry/route-simulator/internal/logging"
	"github.com/signalsfoundry/route-simulator/internal/observability"
	"github.com/signalsfoundry/route-simulator/internal/sim/state"
	"github.com/signalsfoundry/route-simulator/model"
	"github.com/signalsfoundry/route-simulator/timectrl"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig                `toml:"server"`
	Log     logging.Config              `toml:"log"`
	Tracing observability.TracingConfig `toml:"tracing"`
	Vehicle VehicleConfig               `toml:"vehicle"`
	Clock   ClockConfig                 `toml:"clock"`
	Events  EventsConfig                `toml:"events"`
	Routes  []RouteConfig               `toml:"routes"`
}

// ServerConfig holds listener addresses. An empty HTTPAddr disables the
// HTTP status API.
type ServerConfig struct {
	GRPCAddr        string        `toml:"grpc_addr"`
	HTTPAddr        string        `toml:"http_addr"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// VehicleConfig sets the vehicle's initial state.
type VehicleConfig struct {
	StartLat float64 `toml:"start_lat"`
	StartLon float64 `toml:"start_lon"`
	StartAlt float64 `toml:"start_alt"`
	Battery  float64 `toml:"battery"` // mAh
}

// ClockConfig selects how simulated flight time maps to wall time.
type ClockConfig struct {
	Mode  string  `toml:"mode"`  // realtime | accelerated
	Scale float64 `toml:"scale"` // speed-up factor in accelerated mode
}

// EventsConfig configures optional event publishing. NATS is disabled when
// NATSURL is empty.
type EventsConfig struct {
	NATSURL     string `toml:"nats_url"`
	NATSSubject string `toml:"nats_subject"`
}

// RouteConfig is a route plan seeded into the store at startup.
type RouteConfig struct {
	Name      string           `toml:"name"`
	Waypoints []WaypointConfig `toml:"waypoints"`
}

// WaypointConfig is one waypoint of a seeded route.
type WaypointConfig struct {
	Kind     string  `toml:"kind"`
	Lat      float64 `toml:"lat"`
	Lon      float64 `toml:"lon"`
	Alt      float64 `toml:"alt"`
	Duration float64 `toml:"duration"` // loiter seconds
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			GRPCAddr:        ":50051",
			HTTPAddr:        ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "text",
		},
		Tracing: observability.DefaultTracingConfig(),
		Vehicle: VehicleConfig{
			StartLat: state.DefaultStartPosition.Lat,
			StartLon: state.DefaultStartPosition.Lon,
			StartAlt: state.DefaultStartPosition.Alt,
			Battery:  state.DefaultBattery,
		},
		Clock: ClockConfig{
			Mode:  timectrl.RealTime.String(),
			Scale: 1,
		},
		Events: EventsConfig{
			NATSSubject: events.DefaultSubjectPrefix,
		},
	}
}

// Load builds the configuration: defaults, then the TOML file at path (if
// non-empty), then .env, then environment variables. The result is
// validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config file not found: %s", path)
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode parses TOML text on top of the defaults without consulting the
// environment.
func Decode(text string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(text, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DRONE_GRPC_ADDR"); v != "" {
		c.Server.GRPCAddr = v
	}
	if v, ok := os.LookupEnv("DRONE_HTTP_ADDR"); ok {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("DRONE_CLOCK_MODE"); v != "" {
		c.Clock.Mode = v
	}
	if v := os.Getenv("DRONE_CLOCK_SCALE"); v != "" {
		if scale, err := strconv.ParseFloat(v, 64); err == nil {
			c.Clock.Scale = scale
		}
	}
	if v := os.Getenv("DRONE_NATS_URL"); v != "" {
		c.Events.NATSURL = v
	}
	c.Tracing = c.Tracing.ApplyEnv()
}

// Validate checks the configuration for values the server cannot use.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.GRPCAddr) == "" {
		return fmt.Errorf("%w: server.grpc_addr is required", ErrInvalidConfig)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: server.shutdown_timeout must not be negative", ErrInvalidConfig)
	}
	if _, err := c.Clock.mode(); err != nil {
		return err
	}
	if c.Clock.Scale <= 0 {
		return fmt.Errorf("%w: clock.scale must be positive, got %v", ErrInvalidConfig, c.Clock.Scale)
	}
	if c.Vehicle.Battery < 0 {
		return fmt.Errorf("%w: vehicle.battery must not be negative", ErrInvalidConfig)
	}
	if err := (model.FlyTo(c.Vehicle.StartLat, c.Vehicle.StartLon, c.Vehicle.StartAlt)).ValidateBounds(); err != nil {
		return fmt.Errorf("%w: vehicle start position: %v", ErrInvalidConfig, err)
	}
	if r := c.Tracing.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("%w: tracing.sample_ratio must be within [0, 1]", ErrInvalidConfig)
	}
	for i, r := range c.Routes {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("%w: routes[%d] has no name", ErrInvalidConfig, i)
		}
		if _, err := r.ToWaypoints(); err != nil {
			return fmt.Errorf("%w: route %q: %v", ErrInvalidConfig, r.Name, err)
		}
	}
	return nil
}

func (c ClockConfig) mode() (timectrl.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "", "realtime", "real-time", "real_time":
		return timectrl.RealTime, nil
	case "accelerated":
		return timectrl.Accelerated, nil
	default:
		return 0, fmt.Errorf("%w: unknown clock.mode %q", ErrInvalidConfig, c.Mode)
	}
}

// NewClock builds the simulation clock described by c, starting now.
func (c ClockConfig) NewClock() (*timectrl.TimeController, error) {
	mode, err := c.mode()
	if err != nil {
		return nil, err
	}
	return timectrl.NewTimeController(time.Now().UTC(), mode, c.Scale), nil
}

// StartPosition returns the configured initial vehicle position.
func (v VehicleConfig) StartPosition() model.Coordinate {
	return model.Coordinate{Lat: v.StartLat, Lon: v.StartLon, Alt: v.StartAlt}
}

// ToModel converts the waypoint to a validated domain waypoint.
func (w WaypointConfig) ToModel() (model.Waypoint, error) {
	kind, err := model.ParseWaypointKind(w.Kind)
	if err != nil {
		return model.Waypoint{}, err
	}
	var wp model.Waypoint
	switch kind {
	case model.WaypointFlyTo:
		wp = model.FlyTo(w.Lat, w.Lon, w.Alt)
	case model.WaypointLand:
		wp = model.Land()
	case model.WaypointLoiter:
		wp = model.Loiter(w.Duration)
	case model.WaypointTakeOff:
		wp = model.TakeOff()
	}
	return wp, wp.ValidateBounds()
}

// ToWaypoints converts every waypoint of the route, in order.
func (r RouteConfig) ToWaypoints() ([]model.Waypoint, error) {
	out := make([]model.Waypoint, 0, len(r.Waypoints))
	for i, w := range r.Waypoints {
		wp, err := w.ToModel()
		if err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
		out = append(out, wp)
	}
	return out, nil
}

// SeedRoutes adds every configured route to v through the regular add,
// select and append operations. Seeding a name that already exists appends
// to the existing route.
func SeedRoutes(v *state.Vehicle, routes []RouteConfig) error {
	for _, rc := range routes {
		wps, err := rc.ToWaypoints()
		if err != nil {
			return fmt.Errorf("seed route %q: %w", rc.Name, err)
		}
		v.AddRoute(rc.Name)
		for _, w := range wps {
			if _, _, err := v.AppendWaypoint(w); err != nil {
				return fmt.Errorf("seed route %q: %w", rc.Name, err)
			}
		}
	}
	return nil
}
