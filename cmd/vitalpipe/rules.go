package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vitalstream/telemetry-pipeline/internal/bus"
	"github.com/vitalstream/telemetry-pipeline/internal/config"
	"github.com/vitalstream/telemetry-pipeline/internal/pipeline"
	"github.com/vitalstream/telemetry-pipeline/internal/rules"
	"github.com/vitalstream/telemetry-pipeline/internal/scorer/scorerpc"
)

var rulesCmd = &cobra.Command{
	Use:     "rules",
	Short:   "Run the rules engine stage",
	GroupID: "stages",
}

var rulesRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume telemetry.enriched, publish telemetry.scored and alerts.raised",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		conn, err := grpc.NewClient(cfg.ScorerAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("rules: dial scorer %s: %w", cfg.ScorerAddr, err)
		}
		scorerClient := scorerpc.NewClient(conn)
		defer scorerClient.Close()

		engine := rules.NewEngine(scorerClient, cfg.Thresholds, logger)
		if err := config.WatchThresholds(configPath, engine); err != nil {
			logger.Warn("rules: threshold hot-reload not active", "error", err)
		}

		natsBus, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		if err := natsBus.EnsureStreams(0); err != nil {
			return err
		}

		consumer, err := natsBus.NewConsumer(bus.TopicTelemetryEnriched, cfg.ConsumerGroup, bus.OffsetEarliest)
		if err != nil {
			return err
		}

		stage := pipeline.NewStage("rules", consumer, natsBus.NewProducer(), pipeline.RulesProcessor(engine), logger)

		go func() {
			<-rootCtx.Done()
			stage.Stop()
		}()
		stage.Run(rootCtx)
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesRunCmd)
}
