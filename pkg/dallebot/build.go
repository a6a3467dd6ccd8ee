package dallebot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/opencontainers/go-digest"
	"github.com/otiai10/copy"
)

// defaultDockerfile builds the bot from the build context and runs it from the log directory's parent,
// matching the layout the stock volume mapping expects
const defaultDockerfile = `FROM golang:1.22-alpine AS build
WORKDIR /src
COPY . .
RUN go build -o /out/dallebot .

FROM alpine:3.19
WORKDIR /dallebot/dallebot
COPY --from=build /out/dallebot /usr/local/bin/dallebot
COPY config.yml .
ENTRYPOINT ["dallebot", "run", "config.yml"]
`

// Build builds the deployment's image from the build context.
// The image is tagged both with the dockerfile's digest and as latest.
// Any build failure aborts with an error, there is no retry and no partial state to recover
func (d *Deployment) Build(ctx context.Context) error {
	d.init()

	if err := d.parseDockerfile(); err != nil {
		return err
	}

	apiClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return errors.Join(fmt.Errorf("failed to create docker client"), err)
	}
	defer apiClient.Close()

	// Copy the context so the dockerfile can be dropped in without touching the source tree
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	if err := copy.Copy(d.Context, dir, copy.Options{Specials: true}); err != nil {
		return errors.Join(fmt.Errorf("failed to copy build context %s", d.Context), err)
	}
	if err := os.WriteFile(path.Join(dir, "Dockerfile"), []byte(d.dockerfileString), 0777); err != nil {
		return err
	}

	buildContext, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return errors.Join(fmt.Errorf("tar creation of build context failed"), err)
	}

	d.Log.Infof("Building image %s", d.taggedImage())
	buildRes, err := apiClient.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        []string{d.taggedImage(), d.latestImage()},
		ForceRemove: true,
		Labels:      map[string]string{dockerLabel: "1"},
	})
	if err != nil {
		return errors.Join(fmt.Errorf("image build of %s failed", d.taggedImage()), err)
	}

	// Wait for build to be done
	out, err := io.ReadAll(buildRes.Body)
	if err != nil {
		return err
	}
	d.Log.Tracef("Image build output:\n%s", string(out))

	if buildFailed(out) {
		return fmt.Errorf("image build of %s failed, build output: %s", d.taggedImage(), out)
	}

	d.Log.Infof("Built image %s", d.taggedImage())
	return nil
}

// buildFailed checks if the last stream message of the build output is an error-detail, meaning the build failed
func buildFailed(out []byte) bool {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	return strings.HasPrefix(lines[len(lines)-1], `{"errorDetail"`)
}

// parseDockerfile sets d.dockerfileString based on the fields set.
// It prioritizes Dockerfile, uses DockerfilePath if it is empty and falls back to the embedded default dockerfile.
// In addition, it sets dockerfileHash
func (d *Deployment) parseDockerfile() error {
	d.dockerfileString = d.Dockerfile
	if d.dockerfileString == "" && d.DockerfilePath != "" {
		file, err := os.ReadFile(d.DockerfilePath)
		if err != nil {
			return err
		}
		d.dockerfileString = string(file)
	}
	if d.dockerfileString == "" {
		d.dockerfileString = defaultDockerfile
	}
	d.dockerfileHash = digest.FromString(d.dockerfileString).Encoded()
	return nil
}

// taggedImage returns the name with the tag identifying the dockerfile which built the image
func (d *Deployment) taggedImage() string {
	return fmt.Sprintf("%s:%s", d.Image, d.dockerfileHash)
}
