package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build [config.yml]",
	Short: "Build the bot's container image",
	Long: `Build the bot's container image from the configured build context.

The dockerfile can be given inline in the config, as a path, or omitted entirely,
in which case the embedded default dockerfile is used. Any failure while resolving
dependencies or building aborts the command.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		deployment := deploymentFromArgs(args)
		deployment.Log = newLogger()

		if err := deployment.Build(context.Background()); err != nil {
			logrus.Fatalf("Failed to build image - %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
