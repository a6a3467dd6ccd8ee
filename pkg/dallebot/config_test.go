package dallebot

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetBotFromConfig(t *testing.T) {
	yml := `
botToken: "token"
openaiApiKey: "key"
developerChatId: 42
requestDelay: 90
dailyLimit: 7
imageSize: 512
journalDir: "some/dir"
statusPort: 9999
maxConcurrentGenerations: 3
`

	bot, err := GetBotFromConfig(strings.NewReader(yml))
	assert.Nil(t, err, "GetBotFromConfig returned an error")

	assert.Equal(t, "token", bot.Token, "Mismatch in bot field")
	assert.Equal(t, "key", bot.OpenaiKey, "Mismatch in bot field")
	assert.Equal(t, int64(42), bot.DeveloperChatID, "Mismatch in bot field")
	assert.Equal(t, 90*time.Second, bot.RequestDelay, "Mismatch in bot field")
	assert.Equal(t, 7, bot.DailyLimit, "Mismatch in bot field")
	assert.Equal(t, 512, bot.ImageSize, "Mismatch in bot field")
	assert.Equal(t, "some/dir", bot.JournalDir, "Mismatch in bot field")
	assert.Equal(t, 9999, bot.StatusPort, "Mismatch in bot field")
	assert.Equal(t, uint(3), bot.MaxConcurrentGenerations, "Mismatch in bot field")
}

func TestGetBotFromConfigDefaults(t *testing.T) {
	yml := `
botToken: "token"
openaiApiKey: "key"
`

	bot, err := GetBotFromConfig(strings.NewReader(yml))
	assert.Nil(t, err, "GetBotFromConfig returned an error")

	assert.Equal(t, 60*time.Second, bot.RequestDelay, "Wrong default")
	assert.Equal(t, 5, bot.DailyLimit, "Wrong default")
	assert.Equal(t, 256, bot.ImageSize, "Wrong default")
	assert.Equal(t, "logs", bot.JournalDir, "Wrong default")
	assert.Equal(t, 8080, bot.StatusPort, "Wrong default")
	assert.Equal(t, uint(1), bot.MaxConcurrentGenerations, "Wrong default")
}

func TestGetDeploymentFromConfig(t *testing.T) {
	yml := `
botToken: "token"
deploy:
  image: "example/bot"
  container: "example"
  volume: "example_volume"
  logsPath: "/app/logs"
  context: "./bot"
  dockerfilePath: "Dockerfile.bot"
  statusPort: 1234
  hostPort: 5678
  healthcheck:
    path: "/ping"
    retries: 3
    backoff: 500
`

	deployment, err := GetDeploymentFromConfig(strings.NewReader(yml))
	assert.Nil(t, err, "GetDeploymentFromConfig returned an error")

	assert.Equal(t, "example/bot", deployment.Image, "Mismatch in deployment field")
	assert.Equal(t, "example", deployment.Container, "Mismatch in deployment field")
	assert.Equal(t, "example_volume", deployment.Volume, "Mismatch in deployment field")
	assert.Equal(t, "/app/logs", deployment.LogsPath, "Mismatch in deployment field")
	assert.Equal(t, "./bot", deployment.Context, "Mismatch in deployment field")
	assert.Equal(t, "Dockerfile.bot", deployment.DockerfilePath, "Mismatch in deployment field")
	assert.Equal(t, 1234, deployment.StatusPort, "Mismatch in deployment field")
	assert.Equal(t, 5678, deployment.HostPort, "Mismatch in deployment field")
	assert.Equal(t, "/ping", deployment.Healthcheck.Path, "Mismatch in deployment field")
	assert.Equal(t, 3, deployment.Healthcheck.Config.Retries, "Mismatch in deployment field")
	assert.Equal(t, 500*time.Millisecond, deployment.Healthcheck.Config.Backoff, "Mismatch in deployment field")
	assert.Equal(t, 100*time.Millisecond, deployment.Healthcheck.Config.BackoffIncrement, "Mismatch in deployment field")
}

func TestDefaultDeployment(t *testing.T) {
	deployment, err := DefaultDeployment()
	assert.Nil(t, err, "DefaultDeployment returned an error")

	assert.Equal(t, "dallebot/dallebot", deployment.Image, "Wrong default")
	assert.Equal(t, "dallebot", deployment.Container, "Wrong default")
	assert.Equal(t, "dallebot_volume", deployment.Volume, "Wrong default")
	assert.Equal(t, "/dallebot/dallebot/logs", deployment.LogsPath, "Wrong default")
	assert.Equal(t, ".", deployment.Context, "Wrong default")
	assert.Equal(t, 8080, deployment.StatusPort, "Wrong default")
	assert.Equal(t, "/healthz", deployment.Healthcheck.Path, "Wrong default")
	assert.Equal(t, 10, deployment.Healthcheck.Config.Retries, "Wrong default")
	assert.Equal(t, time.Second, deployment.Healthcheck.Config.Backoff, "Wrong default")
	assert.Equal(t, 2*time.Second, deployment.Healthcheck.Config.MaxBackoff, "Wrong default")
}

func TestGetDeploymentFromConfigWithoutDeployKey(t *testing.T) {
	// A config holding only bot settings yields the stock deployment
	yml := `
botToken: "token"
openaiApiKey: "key"
`

	deployment, err := GetDeploymentFromConfig(strings.NewReader(yml))
	assert.Nil(t, err, "GetDeploymentFromConfig returned an error")

	assert.Equal(t, "dallebot/dallebot", deployment.Image, "Wrong default")
	assert.Equal(t, "dallebot_volume", deployment.Volume, "Wrong default")
}
