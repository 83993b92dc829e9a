package main

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vitalstream/telemetry-pipeline/internal/aggregator"
	"github.com/vitalstream/telemetry-pipeline/internal/baseline"
	"github.com/vitalstream/telemetry-pipeline/internal/bus"
	"github.com/vitalstream/telemetry-pipeline/internal/config"
	"github.com/vitalstream/telemetry-pipeline/internal/normalizer"
	"github.com/vitalstream/telemetry-pipeline/internal/pipeline"
	"github.com/vitalstream/telemetry-pipeline/internal/query"
	"github.com/vitalstream/telemetry-pipeline/internal/rules"
	"github.com/vitalstream/telemetry-pipeline/internal/scorer"
	"github.com/vitalstream/telemetry-pipeline/internal/scorer/scorerpc"
)

var pipelineCmd = &cobra.Command{
	Use:     "pipeline",
	GroupID: "ops",
	Short:   "Run the whole pipeline in one process",
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run normalize, rules (with an in-process scorer), aggregate, and query together",
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
		baselineStore := baseline.NewRedisStore(redisClient, cfg.BaselineWindowSize, cfg.MinBaselineSamples)
		aggregateStore := aggregator.NewRedisStore(redisClient,
			time.Duration(cfg.RollingWindow15MSeconds)*time.Second,
			time.Duration(cfg.RollingWindow1HSeconds)*time.Second,
			time.Duration(cfg.AlertWindowSeconds)*time.Second)

		scorerServer := scorerpc.NewServer(scorer.New(baselineStore), logger)
		engine := rules.NewEngine(rules.InProcessScorer{Server: scorerServer}, cfg.Thresholds, logger)
		if err := config.WatchThresholds(configPath, engine); err != nil {
			logger.Warn("pipeline: threshold hot-reload not active", "error", err)
		}

		natsBus, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		if err := natsBus.EnsureStreams(0); err != nil {
			return err
		}

		normalizeConsumer, err := natsBus.NewConsumer(bus.TopicTelemetryRaw, cfg.ConsumerGroup, bus.OffsetEarliest)
		if err != nil {
			return err
		}
		enrichConsumer, err := natsBus.NewConsumer(bus.TopicTelemetryNormalized, cfg.ConsumerGroup, bus.OffsetEarliest)
		if err != nil {
			return err
		}
		rulesConsumer, err := natsBus.NewConsumer(bus.TopicTelemetryEnriched, cfg.ConsumerGroup, bus.OffsetEarliest)
		if err != nil {
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

		stages := []*pipeline.Stage{
			pipeline.NewStage("normalize", normalizeConsumer, natsBus.NewProducer(), pipeline.NormalizeProcessor(normalizer.New(nil, logger)), logger),
			pipeline.NewStage("enrich", enrichConsumer, natsBus.NewProducer(), pipeline.PassthroughEnrichProcessor(), logger),
			pipeline.NewStage("rules", rulesConsumer, natsBus.NewProducer(), pipeline.RulesProcessor(engine), logger),
			pipeline.NewStage("aggregate-scored", scoredConsumer, noopProducer{}, scoredProcessor(aggregateStore), logger),
			pipeline.NewStage("aggregate-alerts", alertConsumer, noopProducer{}, alertProcessor(aggregateStore), logger),
		}

		done := make(chan struct{}, len(stages))
		for _, s := range stages {
			s := s
			go func() { s.Run(rootCtx); done <- struct{}{} }()
		}

		querySrv := query.NewServer(aggregateStore, cfg.QueryAddr, logger)
		go func() { _ = querySrv.Start(rootCtx) }()

		<-rootCtx.Done()
		for _, s := range stages {
			s.Stop()
		}
		for range stages {
			<-done
		}
		return nil
	},
}

func init() {
	pipelineCmd.AddCommand(pipelineRunCmd)
}
