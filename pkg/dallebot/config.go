package dallebot

import (
	"io"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type botYaml struct {
	BotToken     string `yaml:"botToken"`
	OpenaiApiKey string `yaml:"openaiApiKey"`

	DeveloperChatId int64 `yaml:"developerChatId"`

	RequestDelay time.Duration `yaml:"requestDelay" default:"60"`
	DailyLimit   int           `yaml:"dailyLimit" default:"5"`

	ImageSize int `yaml:"imageSize" default:"256"`

	JournalDir string `yaml:"journalDir" default:"logs"`

	StatusPort int `yaml:"statusPort" default:"8080"`

	MaxConcurrentGenerations uint `yaml:"maxConcurrentGenerations" default:"1"`
}

type deployYaml struct {
	Image     string `yaml:"image" default:"dallebot/dallebot"`
	Container string `yaml:"container" default:"dallebot"`
	Volume    string `yaml:"volume" default:"dallebot_volume"`

	LogsPath string `yaml:"logsPath" default:"/dallebot/dallebot/logs"`

	Context        string `yaml:"context" default:"."`
	Dockerfile     string `yaml:"dockerfile"`
	DockerfilePath string `yaml:"dockerfilePath"`

	StatusPort int `yaml:"statusPort" default:"8080"`
	HostPort   int `yaml:"hostPort" default:"8080"`

	Healthcheck healthcheckYaml `yaml:"healthcheck"`
}

type healthcheckYaml struct {
	Path string `yaml:"path" default:"/healthz"`

	Retries int `yaml:"retries" default:"10"`

	Backoff          time.Duration `yaml:"backoff" default:"1000"`
	BackoffIncrement time.Duration `yaml:"backoffIncrement" default:"100"`
	MaxBackoff       time.Duration `yaml:"maxBackoff" default:"2000"`
}

// GetBotFromConfig reads in a bot config in yaml format from a reader and initializes the corresponding bot struct
func GetBotFromConfig(r io.Reader) (*Bot, error) {
	var config botYaml

	// Read in yaml
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}

	if err := defaults.Set(&config); err != nil {
		return nil, err
	}

	// Convert to Bot struct
	bot := Bot{
		Token:     config.BotToken,
		OpenaiKey: config.OpenaiApiKey,

		DeveloperChatID: config.DeveloperChatId,

		RequestDelay: config.RequestDelay * time.Second,
		DailyLimit:   config.DailyLimit,

		ImageSize: config.ImageSize,

		JournalDir: config.JournalDir,

		StatusPort: config.StatusPort,

		MaxConcurrentGenerations: config.MaxConcurrentGenerations,
	}

	return &bot, nil
}

// GetDeploymentFromConfig reads in a deployment config in yaml format from a reader and initializes the corresponding deployment struct.
// The deployment settings live under the top-level "deploy" key, so the same config file can hold both the bot and the deployment config.
func GetDeploymentFromConfig(r io.Reader) (*Deployment, error) {
	var config struct {
		Deploy deployYaml `yaml:"deploy"`
	}

	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}

	return deploymentFromYaml(config.Deploy)
}

// DefaultDeployment returns a deployment with all config values set to their defaults.
// It replaces an entirely absent config file, deploying the stock image, container and volume names.
func DefaultDeployment() (*Deployment, error) {
	return deploymentFromYaml(deployYaml{})
}

func deploymentFromYaml(config deployYaml) (*Deployment, error) {
	if err := defaults.Set(&config); err != nil {
		return nil, err
	}

	deployment := Deployment{
		Image:     config.Image,
		Container: config.Container,
		Volume:    config.Volume,

		LogsPath: config.LogsPath,

		Context:        config.Context,
		Dockerfile:     config.Dockerfile,
		DockerfilePath: config.DockerfilePath,

		StatusPort: config.StatusPort,
		HostPort:   config.HostPort,

		Healthcheck: Healthcheck{
			Path: config.Healthcheck.Path,
			Config: HealthcheckConfig{
				Retries: config.Healthcheck.Retries,

				Backoff: config.Healthcheck.Backoff * time.Millisecond,

				BackoffIncrement: config.Healthcheck.BackoffIncrement * time.Millisecond,
				MaxBackoff:       config.Healthcheck.MaxBackoff * time.Millisecond,
			},
		},
	}

	return &deployment, nil
}
