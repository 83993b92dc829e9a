package main

import (
	"github.com/spf13/cobra"

	"github.com/vitalstream/telemetry-pipeline/internal/bus"
	"github.com/vitalstream/telemetry-pipeline/internal/normalizer"
	"github.com/vitalstream/telemetry-pipeline/internal/pipeline"
)

var normalizeCmd = &cobra.Command{
	Use:     "normalize",
	Short:   "Run the normalizer stage",
	GroupID: "stages",
}

var normalizeRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume telemetry.raw, publish telemetry.normalized",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		natsBus, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		if err := natsBus.EnsureStreams(0); err != nil {
			return err
		}

		consumer, err := natsBus.NewConsumer(bus.TopicTelemetryRaw, cfg.ConsumerGroup, bus.OffsetEarliest)
		if err != nil {
			return err
		}

		proc := pipeline.NormalizeProcessor(normalizer.New(nil, nil))
		stage := pipeline.NewStage("normalize", consumer, natsBus.NewProducer(), proc, logger)

		go func() {
			<-rootCtx.Done()
			stage.Stop()
		}()
		stage.Run(rootCtx)
		return nil
	},
}

func init() {
	normalizeCmd.AddCommand(normalizeRunCmd)
}
