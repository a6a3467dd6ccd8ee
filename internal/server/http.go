package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Init starts serving the status endpoints on the passed port in the background.
// The server binds all interfaces, as it has to be reachable through the container's published port
func (s *Server) Init(port int) error {
	router := gin.Default()

	router.GET("/healthz", s.getHealthz)
	router.GET("/stats", s.getStats)

	go router.Run(fmt.Sprintf(":%d", port))
	return nil
}

type statsResponse struct {
	TotalRequests int `json:"totalRequests"`
	RequestsToday int `json:"requestsToday"`

	UniqueUsers int `json:"uniqueUsers"`

	UptimeSeconds int `json:"uptimeSeconds"`
}

func (s *Server) getHealthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) getStats(c *gin.Context) {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	total, recent, users := s.journal.Stats(today)

	c.JSON(http.StatusOK, statsResponse{
		TotalRequests: total,
		RequestsToday: recent,

		UniqueUsers: users,

		UptimeSeconds: int(now.Sub(s.started).Seconds()),
	})
}
