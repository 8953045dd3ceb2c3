package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/route-simulator/core"
	"github.com/signalsfoundry/route-simulator/internal/control"
	"github.com/signalsfoundry/route-simulator/internal/events"
	"github.com/signalsfoundry/route-simulator/internal/observability"
	"github.com/signalsfoundry/route-simulator/internal/sim/state"
	"github.com/signalsfoundry/route-simulator/timectrl"
)

func newTestEngine(t *testing.T, opts ...core.EngineOption) *core.Engine {
	t.Helper()
	v := state.NewVehicle()
	clock := timectrl.NewTimeController(time.Unix(0, 0).UTC(), timectrl.Accelerated, 1e5)
	engine := core.NewEngine(v, append([]core.EngineOption{core.WithClock(clock)}, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Wait(ctx)
		v.Close()
	})
	return engine
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestVehicleAndRoutes(t *testing.T) {
	engine := newTestEngine(t)
	v := engine.Vehicle()
	v.AddRoute("a")
	v.AddRoute("b")
	if err := v.AppendFlyTo(37.8, -122.3, 50); err != nil {
		t.Fatalf("AppendFlyTo: %v", err)
	}
	h := NewHandler(engine, nil).Routes()

	rr := get(t, h, "/healthz")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("/healthz = %d %s", rr.Code, rr.Body.String())
	}

	rr = get(t, h, "/v1/vehicle")
	var snap state.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode vehicle: %v", err)
	}
	if snap.Position != state.DefaultStartPosition || snap.SelectedRoute != "b" || snap.Routes != 2 {
		t.Fatalf("vehicle = %+v", snap)
	}

	rr = get(t, h, "/v1/routes")
	var list control.RouteList
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode routes: %v", err)
	}
	if len(list.Routes) != 2 || list.Routes[0].Name != "b" || list.Routes[1].Name != "a" {
		t.Fatalf("routes = %+v", list.Routes)
	}

	rr = get(t, h, "/v1/routes/b")
	var route control.RouteInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &route); err != nil {
		t.Fatalf("decode route: %v", err)
	}
	if len(route.Waypoints) != 1 || route.Waypoints[0].Kind != "flyto" || route.Waypoints[0].Alt != 50 {
		t.Fatalf("route b = %+v", route)
	}

	if rr := get(t, h, "/v1/routes/missing"); rr.Code != http.StatusNotFound {
		t.Fatalf("/v1/routes/missing = %d, want 404", rr.Code)
	}
}

func TestFlightEndpoint(t *testing.T) {
	engine := newTestEngine(t)
	h := NewHandler(engine, nil).Routes()

	if rr := get(t, h, "/v1/flight"); rr.Code != http.StatusNotFound {
		t.Fatalf("/v1/flight before dispatch = %d, want 404", rr.Code)
	}

	v := engine.Vehicle()
	v.AddRoute("A")
	if err := v.AppendTakeOff(); err != nil {
		t.Fatalf("AppendTakeOff: %v", err)
	}
	f, err := engine.ExecuteRoute(context.Background(), "A")
	if err != nil {
		t.Fatalf("ExecuteRoute: %v", err)
	}
	if err := f.Wait(); err != nil {
		t.Fatalf("flight: %v", err)
	}

	rr := get(t, h, "/v1/flight")
	var st core.FlightStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode flight: %v", err)
	}
	if st.ID != f.ID || st.State != "completed" {
		t.Fatalf("flight = %+v", st)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewControlCollector(reg)
	if err != nil {
		t.Fatalf("NewControlCollector: %v", err)
	}
	v := state.NewVehicle(state.WithMetricsRecorder(collector))
	defer v.Close()
	v.AddRoute("A")

	h := NewHandler(core.NewEngine(v), nil, WithMetrics(collector.Handler())).Routes()
	rr := get(t, h, "/metrics")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "drone_routes 1") {
		t.Fatalf("/metrics = %d %s", rr.Code, rr.Body.String())
	}
}

func TestEventsWebSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub(nil)
	go hub.Run(ctx)
	engine := newTestEngine(t, core.WithEventSink(hub))

	srv := httptest.NewServer(NewHandler(engine, nil, WithEvents(hub)).Routes())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/events", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("websocket client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	v := engine.Vehicle()
	v.AddRoute("A")
	f, err := engine.ExecuteRoute(context.Background(), "A")
	if err != nil {
		t.Fatalf("ExecuteRoute: %v", err)
	}
	if err := f.Wait(); err != nil {
		t.Fatalf("flight: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var ev events.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != events.TypeFlightStarted || ev.FlightID != f.ID {
		t.Fatalf("first event = %+v, want flight_started", ev)
	}
}
