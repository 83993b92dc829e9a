package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vitalstream/telemetry-pipeline/internal/aggregator"
	"github.com/vitalstream/telemetry-pipeline/internal/bus"
	"github.com/vitalstream/telemetry-pipeline/internal/events"
	"github.com/vitalstream/telemetry-pipeline/internal/pipeline"
)

var aggregateCmd = &cobra.Command{
	Use:     "aggregate",
	Short:   "Run the aggregator stage",
	GroupID: "stages",
}

var aggregateRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume telemetry.scored and alerts.raised into the aggregate store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := aggregator.NewRedisStore(redisClient,
			time.Duration(cfg.RollingWindow15MSeconds)*time.Second,
			time.Duration(cfg.RollingWindow1HSeconds)*time.Second,
			time.Duration(cfg.AlertWindowSeconds)*time.Second)

		natsBus, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		if err := natsBus.EnsureStreams(0); err != nil {
			return err
		}

		scoredConsumer, err := natsBus.NewConsumer(bus.TopicTelemetryScored, cfg.ConsumerGroup+"-aggregate", bus.OffsetLatest)
		if err != nil {
			return err
		}
		alertConsumer, err := natsBus.NewConsumer(bus.TopicAlertsRaised, cfg.ConsumerGroup+"-aggregate", bus.OffsetLatest)
		if err != nil {
			return err
		}

		scoredStage := pipeline.NewStage("aggregate-scored", scoredConsumer, noopProducer{}, scoredProcessor(store), logger)
		alertStage := pipeline.NewStage("aggregate-alerts", alertConsumer, noopProducer{}, alertProcessor(store), logger)

		done := make(chan struct{}, 2)
		go func() { scoredStage.Run(rootCtx); done <- struct{}{} }()
		go func() { alertStage.Run(rootCtx); done <- struct{}{} }()

		<-rootCtx.Done()
		scoredStage.Stop()
		alertStage.Stop()
		<-done
		<-done
		return nil
	},
}

// noopProducer is used by consumer-only stages: the aggregator writes to
// its store rather than publishing any further event.
type noopProducer struct{}

func (noopProducer) Publish(context.Context, string, string, []byte) error { return nil }
func (noopProducer) Close() error                                         { return nil }

func scoredProcessor(store aggregator.Store) pipeline.Processor {
	return func(ctx context.Context, msg bus.Message) ([]pipeline.Output, bool, error) {
		var scored events.Scored
		if err := json.Unmarshal(msg.Payload, &scored); err != nil {
			return nil, false, nil
		}
		eventTime, err := time.Parse(time.RFC3339, scored.Timestamp)
		if err != nil {
			eventTime = time.Now()
		}
		if err := store.RecordScored(ctx, scored.PatientID, scored.Vitals, eventTime); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}
}

func alertProcessor(store aggregator.Store) pipeline.Processor {
	return func(ctx context.Context, msg bus.Message) ([]pipeline.Output, bool, error) {
		var alert events.Alert
		if err := json.Unmarshal(msg.Payload, &alert); err != nil {
			return nil, false, nil
		}
		eventTime, err := time.Parse(time.RFC3339, alert.Timestamp)
		if err != nil {
			eventTime = time.Now()
		}
		if err := store.RecordAlert(ctx, alert.Severity, eventTime); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}
}

func init() {
	aggregateCmd.AddCommand(aggregateRunCmd)
}
