package dallebot

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// serverPort extracts the port a httptest server listens on
func serverPort(t *testing.T, serverURL string) int {
	// [0] := "http", [1]: //127.0.0.1, [2]: actual port
	port, err := strconv.Atoi(strings.Split(serverURL, ":")[2])
	assert.Nil(t, err, "couldn't get port of testing server")
	return port
}

func TestPerformSingleHealthcheck(t *testing.T) {
	t.Run("Unhealthy endpoint fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(500)
		}))
		defer server.Close()

		check := Healthcheck{Path: "/healthz"}

		ok, _ := check.performSingle(serverPort(t, server.URL))

		assert.False(t, ok, "Unhealthy endpoint resulted in successful healthcheck")
	})
	t.Run("Healthy endpoint succeeds", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(200)
		}))
		defer server.Close()

		check := Healthcheck{Path: "/healthz"}

		ok, err := check.performSingle(serverPort(t, server.URL))

		assert.True(t, ok, "Healthy endpoint resulted in failed healthcheck")
		assert.Nil(t, err, "Healthy endpoint resulted in an error being returned")
	})
	t.Run("Path gets requested", func(t *testing.T) {
		var requestedPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestedPath = r.URL.Path
			w.WriteHeader(200)
		}))
		defer server.Close()

		check := Healthcheck{Path: "/some/path"}

		ok, _ := check.performSingle(serverPort(t, server.URL))

		assert.True(t, ok, "Healthy endpoint resulted in failed healthcheck")
		assert.Equal(t, "/some/path", requestedPath, "Healthcheck requested the wrong path")
	})
}

func TestPerformHealthcheckRetries(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	defer server.Close()

	check := Healthcheck{
		Path: "/healthz",
		Config: HealthcheckConfig{
			Retries: 5,

			Backoff: time.Millisecond,

			BackoffIncrement: time.Millisecond,
			MaxBackoff:       2 * time.Millisecond,
		},
	}

	ok, err := check.perform(serverPort(t, server.URL))

	assert.True(t, ok, "Endpoint healthy on the third attempt resulted in failed healthcheck")
	assert.Nil(t, err, "Healthy endpoint resulted in an error being returned")
	assert.Equal(t, 3, requests, "Healthcheck did not stop retrying after the first success")
}
