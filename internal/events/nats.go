package events

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/signalsfoundry/route-simulator/internal/logging"
)

// DefaultSubjectPrefix is prepended to every event subject.
const DefaultSubjectPrefix = "drone.events"

// NATSPublisher publishes msgpack-encoded events to NATS under
// "<prefix>.<type>".
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	log    logging.Logger
}

// NewNATSPublisher connects to url. An empty prefix uses
// DefaultSubjectPrefix.
func NewNATSPublisher(url, prefix string, log logging.Logger) (*NATSPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("failed to connect to NATS: empty url")
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if log == nil {
		log = logging.Noop()
	}

	nc, err := nats.Connect(url,
		nats.Name("route-simulator"),
		nats.Timeout(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSPublisher{
		conn:   nc,
		prefix: prefix,
		log:    log.With(logging.String("component", "nats-publisher")),
	}, nil
}

// Subject returns the subject an event of type t is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

// Publish implements Sink. Failures are logged and the event dropped.
func (p *NATSPublisher) Publish(e Event) {
	data, err := Encode(e)
	if err != nil {
		p.log.Warn(context.Background(), "failed to encode event", logging.Err(err))
		return
	}
	if err := p.conn.Publish(p.Subject(e.Type), data); err != nil {
		p.log.Warn(context.Background(), "failed to publish event",
			logging.String("type", string(e.Type)),
			logging.Err(err),
		)
	}
}

// Close flushes pending events and closes the connection.
func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.FlushTimeout(time.Second)
	p.conn.Close()
}

// Encode serializes e with msgpack.
func Encode(e Event) ([]byte, error) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return e, nil
}
