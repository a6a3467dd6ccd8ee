package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jakubwaller/dallebot/pkg/dallebot"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var deployNoFollow bool
var deployBuild bool

var deployCmd = &cobra.Command{
	Use:   "deploy [config.yml]",
	Short: "Replace the running bot container and follow its logs",
	Long: `Replace the running bot container with a fresh instance.

The previous container is stopped and removed if one exists, a missing one is fine.
The new container gets the log volume mounted and restart policy always, so the request
journal survives the replacement and the bot comes back up on failures and host restarts.
After the container passes its healthcheck, the logs are followed until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		deployment := deploymentFromArgs(args)
		deployment.Log = newLogger()

		if deployBuild {
			if err := deployment.Build(context.Background()); err != nil {
				logrus.Fatalf("Failed to build image - %v", err)
			}
		}

		hostPort, err := deployment.Replace(context.Background())
		if err != nil {
			logrus.Fatalf("Failed to deploy container - %v", err)
		}
		if hostPort != 0 {
			deployment.Log.Infof("Deployed container %s, status published on host port %d", deployment.Container, hostPort)
		}

		if deployNoFollow {
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := deployment.FollowLogs(ctx, os.Stdout, os.Stderr); err != nil {
			logrus.Fatalf("Failed to follow logs - %v", err)
		}
	},
}

// deploymentFromArgs loads the deployment config from the optional config file argument.
// A missing default config file is not an error, the baked-in defaults apply then
func deploymentFromArgs(args []string) *dallebot.Deployment {
	configPath := "config.yml"
	explicit := len(args) == 1
	if explicit {
		configPath = args[0]
	}

	configFile, err := os.Open(configPath)
	if err != nil {
		if explicit || !os.IsNotExist(err) {
			logrus.Fatalf("Failed to open config - %v", err)
		}
		deployment, err := dallebot.DefaultDeployment()
		if err != nil {
			logrus.Fatalf("Failed to initialize default deployment - %v", err)
		}
		return deployment
	}
	defer configFile.Close()

	deployment, err := dallebot.GetDeploymentFromConfig(configFile)
	if err != nil {
		logrus.Fatalf("Failed to read deployment config from yaml - %v", err)
	}
	return deployment
}

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().BoolVarP(&deployBuild, "build", "b", false, "Build the image before deploying")
	deployCmd.Flags().BoolVar(&deployNoFollow, "no-follow", false, "Exit after deploying instead of following the logs")
}
