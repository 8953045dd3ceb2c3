package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/route-simulator/core"
	"github.com/signalsfoundry/route-simulator/internal/config"
	"github.com/signalsfoundry/route-simulator/internal/control"
	"github.com/signalsfoundry/route-simulator/internal/events"
	"github.com/signalsfoundry/route-simulator/internal/httpapi"
	"github.com/signalsfoundry/route-simulator/internal/logging"
	"github.com/signalsfoundry/route-simulator/internal/observability"
	"github.com/signalsfoundry/route-simulator/internal/sim/state"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML configuration file")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the control gRPC server listens on (overrides config)")
	httpAddr := flag.String("http-addr", "", "HTTP address for the status API and /metrics (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}

	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "drone server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the control API on lis (and the HTTP API when configured)
// until ctx is cancelled, then drains in-flight requests and waits up to
// the shutdown timeout for a running flight.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewControlCollector(reg)
	if err != nil {
		return fmt.Errorf("init control metrics: %w", err)
	}
	flightMetrics, err := observability.NewFlightCollector(reg)
	if err != nil {
		return fmt.Errorf("init flight metrics: %w", err)
	}

	hub := events.NewHub(log)
	sink := events.Multi{hub}
	if cfg.Events.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.NATSSubject, log)
		if err != nil {
			log.Warn(ctx, "NATS event publishing disabled", logging.String("url", cfg.Events.NATSURL), logging.Err(err))
		} else {
			defer pub.Close()
			sink = append(sink, pub)
			log.Info(ctx, "publishing events to NATS", logging.String("url", cfg.Events.NATSURL))
		}
	}

	vehicle := state.NewVehicle(
		state.WithStartPosition(cfg.Vehicle.StartPosition()),
		state.WithBattery(cfg.Vehicle.Battery),
		state.WithLogger(log),
		state.WithMetricsRecorder(collector),
	)
	defer vehicle.Close()
	defer events.ForwardStore(vehicle.Routes(), sink)()

	clock, err := cfg.Clock.NewClock()
	if err != nil {
		return err
	}
	engine := core.NewEngine(vehicle,
		core.WithClock(clock),
		core.WithEngineLogger(log),
		core.WithFlightMetrics(flightMetrics),
		core.WithEventSink(sink),
		core.WithTracer(observability.Tracer()),
	)

	if err := config.SeedRoutes(vehicle, cfg.Routes); err != nil {
		return err
	}
	if len(cfg.Routes) > 0 {
		log.Info(ctx, "seeded routes from configuration", logging.Int("count", len(cfg.Routes)))
	}

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			control.RequestIDUnaryServerInterceptor(log),
			control.TracingUnaryServerInterceptor(),
			control.StatusUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	control.RegisterDroneControlServer(server, control.NewServer(engine, log))

	var httpSrv *http.Server
	if cfg.Server.HTTPAddr != "" {
		api := httpapi.NewHandler(engine, log,
			httpapi.WithMetrics(collector.Handler()),
			httpapi.WithEvents(hub),
		)
		httpSrv = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           api.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info(gctx, "starting control gRPC server", logging.String("addr", lis.Addr().String()))
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})

	if httpSrv != nil {
		g.Go(func() error {
			log.Info(gctx, "starting HTTP API", logging.String("addr", httpSrv.Addr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down drone server")
		server.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if httpSrv != nil {
			_ = httpSrv.Shutdown(shutdownCtx)
		}
		if err := engine.Wait(shutdownCtx); err != nil {
			log.Warn(context.Background(), "flight still in progress at shutdown",
				logging.Duration("timeout", cfg.Server.ShutdownTimeout),
				logging.Err(err),
			)
		}
		return nil
	})

	return g.Wait()
}
