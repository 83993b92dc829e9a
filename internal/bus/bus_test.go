package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestBus(t *testing.T) *NATSBus {
	t.Helper()
	embedded, err := StartEmbedded()
	require.NoError(t, err)
	t.Cleanup(embedded.Shutdown)

	natsBus, err := Connect(embedded.URL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = natsBus.Close() })

	require.NoError(t, natsBus.EnsureStreams(10_000))
	return natsBus
}

func TestPublishConsumeRoundTrip(t *testing.T) {
	natsBus := startTestBus(t)
	producer := natsBus.NewProducer()
	consumer, err := natsBus.NewConsumer(TopicTelemetryRaw, "test-group", OffsetEarliest)
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumer.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, producer.Publish(ctx, TopicTelemetryRaw, "device_1", []byte(`{"hello":"world"}`)))

	msg, err := consumer.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "device_1", msg.Key)
	assert.Equal(t, TopicTelemetryRaw, msg.Topic)
	assert.JSONEq(t, `{"hello":"world"}`, string(msg.Payload))
	assert.NoError(t, msg.Ack())
}

func TestEarliestOffsetReplaysPriorMessages(t *testing.T) {
	natsBus := startTestBus(t)
	producer := natsBus.NewProducer()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, producer.Publish(ctx, TopicTelemetryNormalized, "device_1", []byte(`"first"`)))
	require.NoError(t, producer.Publish(ctx, TopicTelemetryNormalized, "device_1", []byte(`"second"`)))

	consumer, err := natsBus.NewConsumer(TopicTelemetryNormalized, "replay-group", OffsetEarliest)
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumer.Close() })

	first, err := consumer.Fetch(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Ack())
	assert.JSONEq(t, `"first"`, string(first.Payload))

	second, err := consumer.Fetch(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Ack())
	assert.JSONEq(t, `"second"`, string(second.Payload))
}

func TestLatestOffsetSkipsPriorMessages(t *testing.T) {
	natsBus := startTestBus(t)
	producer := natsBus.NewProducer()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, producer.Publish(ctx, TopicTelemetryScored, "patient_1", []byte(`"before"`)))

	consumer, err := natsBus.NewConsumer(TopicTelemetryScored, "latest-group", OffsetLatest)
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumer.Close() })

	require.NoError(t, producer.Publish(ctx, TopicTelemetryScored, "patient_1", []byte(`"after"`)))

	msg, err := consumer.Fetch(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `"after"`, string(msg.Payload))
}

func TestKeyedSubjectPreservesPerKeyOrdering(t *testing.T) {
	natsBus := startTestBus(t)
	producer := natsBus.NewProducer()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, producer.Publish(ctx, TopicAlertsRaised, "patient_7", []byte(intJSON(i))))
	}

	consumer, err := natsBus.NewConsumer(TopicAlertsRaised, "ordering-group", OffsetEarliest)
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumer.Close() })

	for i := 0; i < 5; i++ {
		msg, err := consumer.Fetch(ctx)
		require.NoError(t, err)
		require.NoError(t, msg.Ack())
		assert.Equal(t, intJSON(i), string(msg.Payload))
		assert.Equal(t, "patient_7", msg.Key)
	}
}

func intJSON(i int) string {
	digits := "0123456789"
	return string(digits[i])
}
