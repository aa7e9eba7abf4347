// Package api exposes the simulation over HTTP and WebSocket: session
// lifecycle, request turns, task assignments, supervisor hints, and the two
// realtime namespaces.
package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/edusim/classsim/pkg/database"
	"github.com/edusim/classsim/pkg/events"
	"github.com/edusim/classsim/pkg/models"
	"github.com/edusim/classsim/pkg/orchestrator"
)

// Server wires the orchestrator and the realtime connection manager into an
// Echo instance.
type Server struct {
	echo        *echo.Echo
	service     *orchestrator.Service
	connManager *events.ConnectionManager
	dbClient    *database.Client
	started     time.Time
}

// NewServer builds the server with all routes and middleware registered.
// corsOrigins is the allowlist for browser clients; "*" allows any origin.
func NewServer(service *orchestrator.Service, connManager *events.ConnectionManager, corsOrigins []string) *Server {
	s := &Server{
		echo:        echo.New(),
		service:     service,
		connManager: connManager,
		started:     time.Now(),
	}
	s.echo.Use(corsMiddleware(corsOrigins))
	s.echo.Use(securityHeaders())
	s.setupRoutes()
	return s
}

// SetDatabaseClient enables database health reporting on /api/health.
// Optional — dev mode runs without a database.
func (s *Server) SetDatabaseClient(c *database.Client) {
	s.dbClient = c
}

func (s *Server) setupRoutes() {
	e := s.echo
	e.GET("/api/health", s.healthHandler)

	e.POST("/api/sessions", s.createSessionHandler)
	e.GET("/api/sessions", s.listSessionsHandler)
	e.GET("/api/sessions/:id", s.getSessionHandler)
	e.POST("/api/sessions/:id/turn", s.processTurnHandler)
	e.POST("/api/sessions/:id/task-assignment", s.taskAssignmentHandler)
	e.POST("/api/sessions/:id/supervisor-hint", s.supervisorHintHandler)

	e.GET("/ws/supervised", s.wsHandlerFor(models.ChannelSupervised))
	e.GET("/ws/unsupervised", s.wsHandlerFor(models.ChannelUnsupervised))
}

// Handler returns the root http.Handler for embedding in an http.Server.
func (s *Server) Handler() http.Handler {
	return s.echo
}
