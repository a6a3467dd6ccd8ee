package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs [config.yml]",
	Short: "Follow the logs of the deployed bot container",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		deployment := deploymentFromArgs(args)
		deployment.Log = newLogger()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := deployment.FollowLogs(ctx, os.Stdout, os.Stderr); err != nil {
			logrus.Fatalf("Failed to follow logs - %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
}
