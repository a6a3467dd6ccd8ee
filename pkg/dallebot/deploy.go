package dallebot

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/phayes/freeport"
	"github.com/sirupsen/logrus"
)

// dockerLabel is attached to every container, image and volume this module creates, so cleanup can find them again
const dockerLabel = "dallebot"

// A Deployment describes how the bot's container is built and run.
// Deployments can most easily be created by passing a config to [GetDeploymentFromConfig] or by using [DefaultDeployment]
type Deployment struct {
	Image     string // The name of the image to build and run, without a tag
	Container string // The name of the container instance
	Volume    string // The name of the volume holding the log directory

	LogsPath string // The path inside the container at which the volume is mounted

	Context        string // The path to the build context
	Dockerfile     string // The contents of the dockerfile. If empty, DockerfilePath gets used
	DockerfilePath string // The path to the dockerfile. If empty as well, the embedded default dockerfile gets used

	StatusPort int // The port inside the container on which the bot serves its status, or 0 to publish no port
	HostPort   int // The host port on which the status port is published, or 0 to pick a free one

	Healthcheck Healthcheck // The healthcheck performed against the published status port after deploying

	Log *logrus.Logger // The log to which information gets printed to

	dockerfileString string // The parsed dockerfile for building the image
	dockerfileHash   string // The hash of the dockerfile string, for differentiating built images
}

// init sets up the muted default logger for manually populated deployments
func (d *Deployment) init() {
	if d.Log == nil {
		d.Log = logrus.New()
		d.Log.SetOutput(io.Discard)
	}
}

// Replace replaces the running container with a fresh one, creating the volume if needed.
// A missing previous container is fine, stop and remove only fail on real errors, so deploying is idempotent:
// running Replace any number of times leaves exactly one running container with the configured name.
// It returns the host port on which the status port was published, or 0 if no port was published
func (d *Deployment) Replace(ctx context.Context) (int, error) {
	d.init()

	apiClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return 0, errors.Join(fmt.Errorf("failed to create docker client"), err)
	}
	defer apiClient.Close()

	// The volume create is a no-op if the volume already exists, its contents survive the replacement
	if _, err := apiClient.VolumeCreate(ctx, volume.CreateOptions{
		Name:   d.Volume,
		Labels: map[string]string{dockerLabel: "1"},
	}); err != nil {
		return 0, errors.Join(fmt.Errorf("failed to create volume %s", d.Volume), err)
	}

	d.Log.Infof("Stopping previous container %s...", d.Container)
	if err := apiClient.ContainerStop(ctx, d.Container, container.StopOptions{}); err != nil {
		if !client.IsErrNotFound(err) {
			return 0, errors.Join(fmt.Errorf("failed to stop container %s", d.Container), err)
		}
		d.Log.Debugf("No previous container %s to stop", d.Container)
	}
	if err := apiClient.ContainerRemove(ctx, d.Container, container.RemoveOptions{Force: true}); err != nil {
		if !client.IsErrNotFound(err) {
			return 0, errors.Join(fmt.Errorf("failed to remove container %s", d.Container), err)
		}
		d.Log.Debugf("No previous container %s to remove", d.Container)
	}

	// Setup the ports
	exposedPorts := make(nat.PortSet)
	portBindings := make(nat.PortMap)
	hostPort := 0
	if d.StatusPort != 0 {
		hostPort = d.HostPort
		if hostPort == 0 {
			hostPort, err = freeport.GetFreePort()
			if err != nil {
				return 0, err
			}
		}

		natPort := nat.Port(fmt.Sprint(d.StatusPort))
		exposedPorts[natPort] = struct{}{}
		portBindings[natPort] = []nat.PortBinding{{HostPort: fmt.Sprint(hostPort)}}
	}

	containerConfig := &container.Config{
		Image:        d.latestImage(),
		ExposedPorts: exposedPorts,
		Labels:       map[string]string{dockerLabel: "1"},
	}

	hostConfig := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyAlways},
		PortBindings:  portBindings,
		Mounts: []mount.Mount{{
			Type:   mount.TypeVolume,
			Source: d.Volume,
			Target: d.LogsPath,
		}},
	}

	// Create the new container
	resp, err := apiClient.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, d.Container)
	if err != nil {
		return 0, errors.Join(fmt.Errorf("container creation with name %s of image %s failed", d.Container, d.latestImage()), err)
	}

	// Start the new container
	if err := apiClient.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return 0, errors.Join(fmt.Errorf("container start with name %s and id %s of image %s failed", d.Container, resp.ID, d.latestImage()), err)
	}

	d.Log.Infof("Started container %s (ID: %s)", d.Container, resp.ID)

	if d.StatusPort != 0 && d.Healthcheck.Config.Retries > 0 {
		d.Log.Infof("Performing healthcheck on port %d...", hostPort)
		success, err := d.Healthcheck.perform(hostPort)
		if !success {
			return hostPort, fmt.Errorf("healthcheck on port %d failed for container %s", hostPort, d.Container)
		} else if err != nil {
			return hostPort, err
		}
		d.Log.Infof("Successfully performed healthcheck on container %s", d.Container)
	}

	return hostPort, nil
}

// latestImage returns the name with the floating tag under which the freshest build of the image is found
func (d *Deployment) latestImage() string {
	return d.Image + ":latest"
}
