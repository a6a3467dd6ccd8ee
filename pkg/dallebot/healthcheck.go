package dallebot

import (
	"fmt"
	"net/http"
	"time"
)

// HealthcheckConfig provides configurations for healthchecks being performed, such as the amount of retries or backoff duration
type HealthcheckConfig struct {
	Retries int // How many times this healthcheck should be retried until it is considered to have failed

	Backoff time.Duration // How long to wait between each healthcheck retry

	BackoffIncrement time.Duration // By how much to increment the backoff on each failed attempt
	MaxBackoff       time.Duration // The maximum duration the backoff may reach after incrementing. When the backoff has reached this value, it won't increase any further
}

// A Healthcheck is a single http GET request against the deployed container's published status port
type Healthcheck struct {
	Path string // The path to which the request is sent

	Config HealthcheckConfig // The config for this healthcheck
}

// perform performs the healthcheck against the passed host port.
// If the healthcheck is unsuccessful, the returned boolean is false and the error may not be nil.
// If the returned boolean is true, the returned error is nil
func (h Healthcheck) perform(port int) (bool, error) {
	var lastSuccess bool
	var lastError error

	backoffDuration := h.Config.Backoff
	for i := 0; i < h.Config.Retries; i++ {
		lastSuccess, lastError = h.performSingle(port)

		// Manage backoff
		if (i != h.Config.Retries-1) && !lastSuccess {
			time.Sleep(backoffDuration)
			backoffDuration += h.Config.BackoffIncrement
			if backoffDuration > h.Config.MaxBackoff {
				backoffDuration = h.Config.MaxBackoff
			}
		} else if lastSuccess {
			break
		}
	}

	return lastSuccess, lastError
}

// performSingle performs a single try of the healthcheck against the passed host port
func (h Healthcheck) performSingle(port int) (bool, error) {
	res, err := http.Get(fmt.Sprintf("http://localhost:%d%s", port, h.Path))
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	return res.StatusCode == 200, nil
}
