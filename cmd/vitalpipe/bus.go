package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitalstream/telemetry-pipeline/internal/bus"
)

var busCmd = &cobra.Command{
	Use:     "bus",
	Short:   "Message bus utilities",
	GroupID: "ops",
}

var busDevserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an embedded NATS JetStream server for local development",
	RunE: func(cmd *cobra.Command, args []string) error {
		embedded, err := bus.StartEmbedded()
		if err != nil {
			return err
		}
		defer embedded.Shutdown()

		fmt.Println("embedded NATS JetStream server listening at", embedded.URL())
		<-rootCtx.Done()
		return nil
	},
}

func init() {
	busCmd.AddCommand(busDevserverCmd)
}
