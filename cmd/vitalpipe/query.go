package main

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vitalstream/telemetry-pipeline/internal/aggregator"
	"github.com/vitalstream/telemetry-pipeline/internal/query"
)

var queryCmd = &cobra.Command{
	Use:     "query",
	Short:   "Run the read-only query surface",
	GroupID: "stages",
}

var queryServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the patient-summary and global-alerts HTTP endpoints",
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

		srv := query.NewServer(store, cfg.QueryAddr, logger)
		return srv.Start(rootCtx)
	},
}

func init() {
	queryCmd.AddCommand(queryServeCmd)
}
