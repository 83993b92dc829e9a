package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/vitalstream/telemetry-pipeline/internal/bus"
)

// Output is one derived message a Processor wants published downstream.
type Output struct {
	Topic   string
	Key     string
	Payload []byte
}

// Processor transforms one consumed message into zero or more downstream
// messages. A non-nil error with ok=false means "drop and log"
// (DispositionDropAndLog): the message is acked (at-least-once semantics
// mean a dropped message is still considered delivered) but nothing is
// produced.
type Processor func(ctx context.Context, msg bus.Message) (outputs []Output, ok bool, err error)

// Stage runs a single consumer-producer loop: fetch from Consumer, run
// Processor, publish any outputs, ack, repeat — the §5 "single logical
// consumer per partition-assignment" scheduling model.
type Stage struct {
	Name      string
	Consumer  bus.Consumer
	Producer  bus.Producer
	Processor Processor
	Logger    *slog.Logger

	stop chan struct{}
	done chan struct{}

	tracer           trace.Tracer
	processedCounter metric.Int64Counter
	droppedCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
}

// NewStage constructs a Stage. A nil logger falls back to slog.Default().
func NewStage(name string, consumer bus.Consumer, producer bus.Producer, processor Processor, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("github.com/vitalstream/telemetry-pipeline/internal/pipeline")
	processed, _ := meter.Int64Counter("pipeline_messages_processed_total")
	dropped, _ := meter.Int64Counter("pipeline_messages_dropped_total")
	errored, _ := meter.Int64Counter("pipeline_messages_errored_total")
	return &Stage{
		Name:      name,
		Consumer:  consumer,
		Producer:  producer,
		Processor: processor,
		Logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),

		tracer:           otel.Tracer("github.com/vitalstream/telemetry-pipeline/internal/pipeline"),
		processedCounter: processed,
		droppedCounter:   dropped,
		errorCounter:     errored,
	}
}

// Run blocks, pulling and processing messages until ctx is cancelled or
// Stop is called. It always returns after the current in-flight message
// (if any) finishes — shutdown never aborts mid-message.
func (s *Stage) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		msg, err := s.Consumer.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			s.Logger.Warn("pipeline: fetch error", "stage", s.Name, "error", err)
			continue
		}

		s.process(ctx, msg)
	}
}

func (s *Stage) process(ctx context.Context, msg bus.Message) {
	ctx, span := s.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(
			attribute.String("stage", s.Name),
			attribute.String("topic", msg.Topic),
			attribute.String("key", msg.Key),
		))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("stage", s.Name))

	outputs, ok, err := s.Processor(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errorCounter.Add(ctx, 1, attrs)
		s.Logger.Error("pipeline: processor error, dropping message",
			"stage", s.Name, "topic", msg.Topic, "key", msg.Key, "error", err)
		_ = msg.Ack()
		return
	}
	if !ok {
		s.droppedCounter.Add(ctx, 1, attrs)
		s.Logger.Warn("pipeline: message dropped", "stage", s.Name, "topic", msg.Topic, "key", msg.Key)
		_ = msg.Ack()
		return
	}

	for _, out := range outputs {
		if pubErr := s.publishWithRetry(ctx, out); pubErr != nil {
			span.RecordError(pubErr)
			s.Logger.Error("pipeline: publish failed after retries, dropping output",
				"stage", s.Name, "topic", out.Topic, "key", out.Key, "error", pubErr)
		}
	}
	s.processedCounter.Add(ctx, 1, attrs)
	if ackErr := msg.Ack(); ackErr != nil {
		s.Logger.Warn("pipeline: ack failed", "stage", s.Name, "error", ackErr)
	}
}

// publishWithRetry retries a transient publish failure with exponential
// backoff, capped at a few seconds total — the bus connection recovering
// from a brief network blip is the case this guards, not a systemic outage
// (which surfaces as repeated stage-level failures instead).
func (s *Stage) publishWithRetry(ctx context.Context, out Output) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 5 * time.Second

	return backoff.Retry(func() error {
		return s.Producer.Publish(ctx, out.Topic, out.Key, out.Payload)
	}, backoff.WithContext(bo, ctx))
}

// Stop signals the run loop to exit after its current message finishes,
// then blocks until it has (§5 cooperative shutdown: "drain current
// in-flight message → close producer → close consumer").
func (s *Stage) Stop() {
	close(s.stop)
	<-s.done
	_ = s.Producer.Close()
	_ = s.Consumer.Close()
}
