package server

import (
	"time"

	"github.com/jakubwaller/dallebot/pkg/dallebot"
)

// A Server serves the bot's status over HTTP.
// The deployment's post-deploy healthcheck probes it, and it exposes the journal's statistics
type Server struct {
	journal *dallebot.Journal

	started time.Time
}

func New(journal *dallebot.Journal) *Server {
	return &Server{
		journal: journal,

		started: time.Now(),
	}
}
