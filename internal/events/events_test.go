package events

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/route-simulator/kb"
	"github.com/signalsfoundry/route-simulator/model"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, nil, b}.Publish(Event{Type: TypeFlightStarted, Route: "A"})

	if len(a.types()) != 1 || len(b.types()) != 1 {
		t.Fatalf("fan-out counts = %d/%d, want 1/1", len(a.types()), len(b.types()))
	}
	Discard.Publish(Event{})
}

func TestForwardStore(t *testing.T) {
	store := kb.NewRouteStore()
	rec := &recorder{}
	unsubscribe := ForwardStore(store, rec)

	r, _ := store.AddRoute("A")
	if _, err := store.AppendWaypoint(r, model.FlyTo(37.8, -122.3, 50)); err != nil {
		t.Fatalf("AppendWaypoint: %v", err)
	}
	if err := store.RemoveRoute("A"); err != nil {
		t.Fatalf("RemoveRoute: %v", err)
	}
	unsubscribe()
	store.AddRoute("B")

	got := rec.types()
	want := []Type{TypeRouteAdded, TypeWaypointAppended, TypeRouteRemoved}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	appended := rec.events[1]
	if appended.Waypoint == nil || appended.Waypoint.Target.Alt != 50 {
		t.Fatalf("appended event waypoint = %+v", appended.Waypoint)
	}
	if !strings.HasPrefix(appended.Message, "Flying to waypoint:") {
		t.Fatalf("appended message = %q", appended.Message)
	}
}

func TestEncodeDecode(t *testing.T) {
	wp := model.TakeOff()
	pos := model.Coordinate{Lat: 37.87376, Lon: -122.32058, Alt: 3}
	in := Event{
		Type:     TypeWaypointReached,
		Time:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Route:    "A",
		FlightID: "f-1",
		Index:    2,
		Waypoint: &wp,
		Position: &pos,
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Type != in.Type || out.Route != in.Route || out.FlightID != in.FlightID || out.Index != in.Index {
		t.Fatalf("decoded %+v, want %+v", out, in)
	}
	if !out.Time.Equal(in.Time) {
		t.Fatalf("decoded time %v, want %v", out.Time, in.Time)
	}
	if out.Position == nil || *out.Position != pos {
		t.Fatalf("decoded position %+v, want %+v", out.Position, pos)
	}

	if _, err := Decode([]byte{0xc1}); err == nil {
		t.Fatalf("Decode(garbage) returned nil error")
	}
}

func TestNewNATSPublisherConnectErrors(t *testing.T) {
	for _, url := range []string{"", "nats://127.0.0.1:1"} {
		p, err := NewNATSPublisher(url, "", nil)
		if err == nil {
			p.Close()
			t.Fatalf("NewNATSPublisher(%q) returned nil error", url)
		}
		if p != nil {
			t.Fatalf("NewNATSPublisher(%q) returned non-nil publisher on error", url)
		}
	}

	var nilPub *NATSPublisher
	nilPub.Close()
}

func TestNATSSubject(t *testing.T) {
	p := &NATSPublisher{prefix: DefaultSubjectPrefix}
	if got := p.Subject(TypeFlightCompleted); got != "drone.events.flight_completed" {
		t.Fatalf("Subject = %q", got)
	}
}

func TestHubBroadcastsToClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(Event{Type: TypeFlightCompleted, Route: "A", FlightID: "f-1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Type != TypeFlightCompleted || got.FlightID != "f-1" {
		t.Fatalf("received %+v", got)
	}
}
