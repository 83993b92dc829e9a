package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSBus is the production Producer/Consumer backend, grounded on the
// teacher's internal/eventbus package: one JetStream stream per topic,
// subjects of the form "<topic>.<key>" so that per-key ordering falls out
// of JetStream's native per-subject ordering guarantee, with no bespoke
// partitioning logic required.
type NATSBus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Connect dials url and obtains a JetStream context.
func Connect(url string) (*NATSBus, error) {
	conn, err := nats.Connect(url, nats.Name("vitalpipe"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", url, err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: jetstream context: %w", err)
	}
	return &NATSBus{conn: conn, js: js}, nil
}

// streamName derives a JetStream stream name from a topic, the same
// upper-snake-case convention the teacher's eventbus uses for its own
// stream names (HOOK_EVENTS, DECISION_EVENTS, ...).
func streamName(topic string) string {
	return strings.ToUpper(strings.ReplaceAll(topic, ".", "_"))
}

// EnsureStreams creates the five required JetStream streams if they don't
// already exist, one per topic, retaining at most maxMsgs messages each.
func (b *NATSBus) EnsureStreams(maxMsgs int64) error {
	for _, topic := range Topics {
		name := streamName(topic)
		if _, err := b.js.StreamInfo(name); err == nil {
			continue
		}
		_, err := b.js.AddStream(&nats.StreamConfig{
			Name:     name,
			Subjects: []string{topic + ".>"},
			Storage:  nats.FileStorage,
			MaxMsgs:  maxMsgs,
		})
		if err != nil {
			return fmt.Errorf("bus: create stream %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the underlying NATS connection without draining it first.
func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}

// NewProducer returns a Producer bound to this connection.
func (b *NATSBus) NewProducer() Producer {
	return &natsProducer{js: b.js}
}

type natsProducer struct {
	js nats.JetStreamContext
}

func (p *natsProducer) Publish(ctx context.Context, topic, key string, payload []byte) error {
	subject := topic + "." + key
	_, err := p.js.Publish(subject, payload, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("bus: publish %s: %w", subject, err)
	}
	return nil
}

func (p *natsProducer) Close() error { return nil }

// NewConsumer creates a durable pull consumer named groupID over topic,
// starting from the position offset dictates for newly-created groups
// (§4.6 "Offset strategy"). Calling NewConsumer again with the same
// groupID attaches to the existing durable position rather than resetting.
func (b *NATSBus) NewConsumer(topic, groupID string, offset OffsetPolicy) (Consumer, error) {
	subject := topic + ".*"
	deliverOpt := nats.DeliverAll()
	if offset == OffsetLatest {
		deliverOpt = nats.DeliverNew()
	}
	sub, err := b.js.PullSubscribe(subject, groupID,
		deliverOpt,
		nats.ManualAck(),
		nats.AckExplicit(),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: pull subscribe %s/%s: %w", topic, groupID, err)
	}
	return &natsConsumer{sub: sub, topic: topic}, nil
}

type natsConsumer struct {
	sub   *nats.Subscription
	topic string
}

func (c *natsConsumer) Fetch(ctx context.Context) (Message, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	msgs, err := c.sub.Fetch(1, nats.Context(fetchCtx))
	if err != nil {
		return Message{}, err
	}
	msg := msgs[0]
	key := strings.TrimPrefix(msg.Subject, c.topic+".")
	return Message{
		Topic:   c.topic,
		Key:     key,
		Payload: msg.Data,
		ackFunc: msg.Ack,
	}, nil
}

func (c *natsConsumer) Close() error {
	return c.sub.Unsubscribe()
}
