package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jakubwaller/dallebot/internal/server"
	"github.com/jakubwaller/dallebot/pkg/dallebot"
	"github.com/phayes/freeport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [config.yml]",
	Short: "Run the bot together with its status server",
	Long: `Run the bot together with its status HTTP server.
The bot configuration is read from the passed yaml file, defaulting to config.yml.

The bot polls Telegram for updates and keeps running until it receives SIGINT or SIGTERM.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		configPath := "config.yml"
		if len(args) == 1 {
			configPath = args[0]
		}

		configFile, err := os.Open(configPath)
		if err != nil {
			logrus.Fatalf("Failed to open config - %v", err)
		}
		bot, err := dallebot.GetBotFromConfig(configFile)
		configFile.Close()
		if err != nil {
			logrus.Fatalf("Failed to read bot config from yaml - %v", err)
		}
		bot.Log = newLogger()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		journal, err := bot.Run(ctx)
		if err != nil {
			logrus.Fatalf("Failed to start bot - %v", err)
		}

		port := bot.StatusPort
		if port == 0 {
			if port, err = freeport.GetFreePort(); err != nil {
				logrus.Fatalf("Failed to find a free status port - %v", err)
			}
		}
		if err := server.New(journal).Init(port); err != nil {
			logrus.Fatalf("Failed to start status server - %v", err)
		}
		bot.Log.Infof("Serving status on port %d", port)

		<-ctx.Done()
		bot.Log.Info("Shutting down...")
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
