package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/manifoldco/promptui"
	"github.com/moby/moby/client"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanContainers bool
var cleanVolumes bool
var cleanAgree bool

var cleanCmd = &cobra.Command{
	Use:     "clean [config.yml]",
	Aliases: []string{"prune", "cleanup"},
	Short:   "Clean all docker artifacts created by dallebot",
	Long: `This command cleans all docker artifacts created by dallebot.
This includes containers, both running and stopped, as well as all docker images built.
The log volume is only removed when --volumes is given, as removing it discards the request journal.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		deployment := deploymentFromArgs(args)

		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			logrus.Fatalf("Couldn't create docker client - %v", err)
		}
		defer cli.Close()

		containers, err := cli.ContainerList(context.Background(), container.ListOptions{
			All: true,
			Filters: filters.NewArgs(
				filters.KeyValuePair{
					Key:   "label",
					Value: "dallebot=1",
				},
			),
		})
		if err != nil {
			logrus.Fatalf("Couldn't list docker containers - %v", err)
		}

		images, err := cli.ImageList(context.Background(), image.ListOptions{
			All: true,
			Filters: filters.NewArgs(
				filters.KeyValuePair{
					Key:   "label",
					Value: "dallebot=1",
				},
			),
		})
		if err != nil {
			logrus.Fatalf("Couldn't list docker images - %v", err)
		}

		if cleanContainers {
			images = []image.Summary{}
		}

		if len(containers)+len(images) == 0 && !cleanVolumes {
			imageString := " or images"
			if cleanContainers {
				imageString = ""
			}
			logrus.Infof("No containers%s to remove. Exiting...", imageString)
			return
		}

		confirmationMessage := fmt.Sprintf("About to delete %d containers", len(containers))
		if !cleanContainers {
			confirmationMessage += fmt.Sprintf(" and %d images", len(images))
		}
		if cleanVolumes {
			confirmationMessage += fmt.Sprintf(" and volume %s", deployment.Volume)
		}
		confirmationMessage += "."
		logrus.Info(confirmationMessage)

		prompt := promptui.Prompt{
			Label:     "Proceed",
			IsConfirm: true,
		}

		if !cleanAgree {
			_, err := prompt.Run()
			if err != nil {
				logrus.Info("Exiting...")
				os.Exit(0)
			}
		}

		for _, c := range containers {
			logrus.Infof("Deleting container %s (ID: %s)", c.Names[0][1:], c.ID)
			if err := cli.ContainerRemove(context.Background(), c.ID, container.RemoveOptions{Force: true}); err != nil {
				logrus.Fatalf("Failed to remove container with ID %s - %v", c.ID, err)
			}
		}

		for _, i := range images {
			logrus.Infof("Deleting image %s (ID: %s)", i.RepoTags[0], i.ID)
			if _, err := cli.ImageRemove(context.Background(), i.ID, image.RemoveOptions{
				PruneChildren: true,
				Force:         true,
			}); err != nil {
				logrus.Fatalf("Failed to remove image with ID %s - %v", i.ID, err)
			}
		}

		if cleanVolumes {
			logrus.Infof("Deleting volume %s", deployment.Volume)
			if err := cli.VolumeRemove(context.Background(), deployment.Volume, true); err != nil && !client.IsErrNotFound(err) {
				logrus.Fatalf("Failed to remove volume %s - %v", deployment.Volume, err)
			}
		}

		logrus.Info("Done cleaning up.")
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolVarP(&cleanContainers, "containers", "c", false, "Only delete containers, no images.")
	cleanCmd.Flags().BoolVar(&cleanVolumes, "volumes", false, "Also delete the log volume, discarding the request journal.")
	cleanCmd.Flags().BoolVarP(&cleanAgree, "assume-yes", "y", false, `Bypass "Are you sure?" message.`)
}
