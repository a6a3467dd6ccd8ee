package dallebot

import (
	"fmt"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
)

func TestTaggedImage(t *testing.T) {
	values := []struct {
		image      string
		dockerfile string
	}{
		{"dallebot/dallebot", "FROM alpine"},
		{"example/bot", "FROM scratch\nCOPY . .\n"},
	}

	for _, v := range values {
		deployment := Deployment{
			Image:      v.image,
			Dockerfile: v.dockerfile,
		}

		assert.Nil(t, deployment.parseDockerfile(), "parseDockerfile returned an error")

		expected := fmt.Sprintf("%s:%s", v.image, digest.FromString(v.dockerfile).Encoded())
		assert.Equal(t, expected, deployment.taggedImage(), "Wrong docker image")
		assert.Equal(t, v.image+":latest", deployment.latestImage(), "Wrong docker image")
	}
}

func TestParseDockerfileFallsBackToDefault(t *testing.T) {
	deployment := Deployment{Image: "dallebot/dallebot"}

	assert.Nil(t, deployment.parseDockerfile(), "parseDockerfile returned an error")
	assert.Equal(t, defaultDockerfile, deployment.dockerfileString, "Expected the embedded default dockerfile")
	assert.NotEmpty(t, deployment.dockerfileHash, "Expected a dockerfile hash")
}

func TestBuildFailed(t *testing.T) {
	values := []struct {
		output string
		failed bool
	}{
		{"", false},
		{`{"stream":"Step 1/4 : FROM alpine"}` + "\n", false},
		{`{"stream":"ok"}` + "\n" + `{"errorDetail":{"message":"boom"},"error":"boom"}` + "\n", true},
		{`{"errorDetail":{"message":"boom"},"error":"boom"}`, true},
		{`{"stream":"done"}`, false},
	}

	for i, v := range values {
		assert.Equalf(t, v.failed, buildFailed([]byte(v.output)), "buildFailed wrong for test %d; output: %q", i, v.output)
	}
}
