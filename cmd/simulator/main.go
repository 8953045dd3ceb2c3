package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/signalsfoundry/route-simulator/core"
	"github.com/signalsfoundry/route-simulator/internal/events"
	"github.com/signalsfoundry/route-simulator/internal/logging"
	"github.com/signalsfoundry/route-simulator/internal/sim/state"
	"github.com/signalsfoundry/route-simulator/model"
	"github.com/signalsfoundry/route-simulator/timectrl"
)

// options configures one demo run.
type options struct {
	Route    string
	Target   model.Coordinate
	Loiter   float64
	Mode     timectrl.Mode
	Scale    float64
	LogLevel string
}

func main() {
	route := flag.String("route", "A", "name of the demo route")
	lat := flag.Float64("lat", 37.8, "latitude of the fly-to target")
	lon := flag.Float64("lon", -122.3, "longitude of the fly-to target")
	alt := flag.Float64("alt", 50, "altitude of the fly-to target in metres")
	loiter := flag.Float64("loiter", 0, "seconds to loiter at the target before landing (0 to skip)")
	accelerated := flag.Bool("accelerated", true, "run in accelerated mode (vs real-time)")
	scale := flag.Float64("scale", 100, "speed-up factor in accelerated mode")
	logLevel := flag.String("log-level", "warn", "log level for simulator internals")
	flag.Parse()

	mode := timectrl.RealTime
	if *accelerated {
		mode = timectrl.Accelerated
	}

	opts := options{
		Route:    *route,
		Target:   model.Coordinate{Lat: *lat, Lon: *lon, Alt: *alt},
		Loiter:   *loiter,
		Mode:     mode,
		Scale:    *scale,
		LogLevel: *logLevel,
	}

	if _, err := simulate(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "simulation failed: %v\n", err)
		os.Exit(1)
	}
}

// simulate builds the demo route (take off, fly to the target, optionally
// loiter, land), flies it and returns the final vehicle snapshot. Progress
// lines are written to out.
func simulate(ctx context.Context, opts options, out io.Writer) (state.Snapshot, error) {
	log := logging.NewWithWriter(logging.Config{Level: opts.LogLevel, Format: "text"}, os.Stderr)

	vehicle := state.NewVehicle(state.WithLogger(log))
	defer vehicle.Close()

	clock := timectrl.NewTimeController(time.Now().UTC(), opts.Mode, opts.Scale)
	progress := events.SinkFunc(func(e events.Event) {
		simTime := clock.Now().Format(time.RFC3339)
		switch e.Type {
		case events.TypeFlightStarted:
			fmt.Fprintf(out, "[%s] route %q started\n", simTime, e.Route)
		case events.TypeWaypointReached:
			fmt.Fprintf(out, "[%s] #%d %s -> %s\n", simTime, e.Index, e.Message, e.Position)
		case events.TypeFlightCompleted:
			fmt.Fprintf(out, "[%s] route %q completed\n", simTime, e.Route)
		case events.TypeFlightAborted:
			fmt.Fprintf(out, "[%s] route %q aborted: %s\n", simTime, e.Route, e.Message)
		}
	})

	engine := core.NewEngine(vehicle,
		core.WithClock(clock),
		core.WithEngineLogger(log),
		core.WithEventSink(progress),
	)

	vehicle.AddRoute(opts.Route)
	plan := []model.Waypoint{
		model.TakeOff(),
		model.FlyTo(opts.Target.Lat, opts.Target.Lon, opts.Target.Alt),
	}
	if opts.Loiter > 0 {
		plan = append(plan, model.Loiter(opts.Loiter))
	}
	plan = append(plan, model.Land())
	for _, w := range plan {
		if _, _, err := vehicle.AppendWaypoint(w); err != nil {
			return state.Snapshot{}, err
		}
	}

	fmt.Fprintf(out, "Starting simulation: route=%q waypoints=%d mode=%v scale=%v start=%s\n",
		opts.Route, len(plan), opts.Mode, opts.Scale, vehicle.Position())

	flight, err := engine.ExecuteRoute(ctx, opts.Route)
	if err != nil {
		return state.Snapshot{}, err
	}
	if err := flight.Wait(); err != nil {
		return state.Snapshot{}, err
	}

	snap := vehicle.Snapshot()
	fmt.Fprintf(out, "Simulation complete. position=%s battery=%.0fmAh\n", snap.Position, snap.Battery)
	return snap, nil
}
