package dallebot

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// FollowLogs streams the deployed container's logs to the passed writers until the context is cancelled or the container goes away.
// A cancelled context is not an error, it is the regular way for the invoker to stop following
func (d *Deployment) FollowLogs(ctx context.Context, stdout, stderr io.Writer) error {
	d.init()

	apiClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return errors.Join(fmt.Errorf("failed to create docker client"), err)
	}
	defer apiClient.Close()

	logs, err := apiClient.ContainerLogs(ctx, d.Container, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return errors.Join(fmt.Errorf("failed to get logs of container %s", d.Container), err)
	}
	defer logs.Close()

	// Logs of containers started without a TTY are multiplexed and have to be demuxed
	if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
