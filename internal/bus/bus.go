// Package bus implements the message-bus abstraction the pipeline
// orchestrator (C6) consumes and produces through (§6 "Message bus"): five
// JSON-valued topics, keyed partitioning for per-subject ordering, and
// at-least-once delivery with consumer-group semantics. The concrete
// backend is NATS JetStream (nats.go), grounded on the teacher's
// internal/eventbus package; see nats.go.
package bus

import (
	"context"
	"time"
)

// Topic names (§6 "Required topics").
const (
	TopicTelemetryRaw        = "telemetry.raw"
	TopicTelemetryNormalized = "telemetry.normalized"
	TopicTelemetryEnriched   = "telemetry.enriched"
	TopicTelemetryScored     = "telemetry.scored"
	TopicAlertsRaised        = "alerts.raised"
)

// Topics lists every required topic, in pipeline order.
var Topics = []string{
	TopicTelemetryRaw,
	TopicTelemetryNormalized,
	TopicTelemetryEnriched,
	TopicTelemetryScored,
	TopicAlertsRaised,
}

// OffsetPolicy selects where a new consumer group starts reading from
// (§4.6 "Offset strategy").
type OffsetPolicy int

const (
	// OffsetEarliest replays the whole retained topic on a new consumer
	// group — used by telemetry.raw ingress, which must be replay-safe.
	OffsetEarliest OffsetPolicy = iota
	// OffsetLatest only delivers messages produced after the consumer
	// group first attaches — used by the aggregator, a materialised view
	// rather than a ledger.
	OffsetLatest
)

// Message is one delivered bus message.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
	// ackFunc acknowledges the message; left nil on backends (or tests)
	// that don't need explicit acks.
	ackFunc func() error
}

// Ack acknowledges the message, advancing the consumer group's durable
// position past it. Safe to call on a zero-value ackFunc (no-op).
func (m Message) Ack() error {
	if m.ackFunc == nil {
		return nil
	}
	return m.ackFunc()
}

// NewMessage constructs a Message with an explicit ack callback. Backend
// implementations of Consumer (and tests standing in for one) use this
// rather than constructing a Message literal, since ackFunc is unexported.
func NewMessage(topic, key string, payload []byte, ack func() error) Message {
	return Message{Topic: topic, Key: key, Payload: payload, ackFunc: ack}
}

// Producer publishes keyed messages to a topic. Key selection follows §4.6:
// device_id for telemetry topics, patient_id for alerts, so that
// partition-affinity preserves per-subject ordering.
type Producer interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

// Consumer pulls the next available message for a (topic, group). Fetch
// blocks until a message is available, ctx is done, or the per-call
// deadline elapses.
type Consumer interface {
	Fetch(ctx context.Context) (Message, error)
	Close() error
}

// FetchTimeout bounds how long a single Fetch call waits for a new message
// before returning context.DeadlineExceeded, giving callers a chance to
// check for cooperative shutdown between polls.
const FetchTimeout = 2 * time.Second
