package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/edusim/classsim/pkg/database"
	"github.com/edusim/classsim/pkg/orchestrator"
	"github.com/edusim/classsim/pkg/version"
)

func (s *Server) healthHandler(c echo.Context) error {
	body := map[string]any{
		"ok":      true,
		"uptime":  time.Since(s.started).Seconds(),
		"version": version.Full(),
	}
	if s.dbClient != nil {
		dbHealth, err := database.Health(c.Request().Context(), s.dbClient.DB())
		body["database"] = dbHealth
		if err != nil {
			body["ok"] = false
			return c.JSON(http.StatusServiceUnavailable, body)
		}
	}
	return c.JSON(http.StatusOK, body)
}

// POST /api/sessions
func (s *Server) createSessionHandler(c echo.Context) error {
	var in orchestrator.CreateSessionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.service.CreateSession(c.Request().Context(), in)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

// GET /api/sessions
func (s *Server) listSessionsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"sessions": s.service.ListSessions(),
	})
}

// GET /api/sessions/:id
func (s *Server) getSessionHandler(c echo.Context) error {
	id := c.PathParam("id")
	summary, err := s.service.GetSessionSummary(id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

type turnRequest struct {
	Message string `json:"message"`
}

// POST /api/sessions/:id/turn
func (s *Server) processTurnHandler(c echo.Context) error {
	id := c.PathParam("id")
	var req turnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.service.ProcessTurn(c.Request().Context(), id, req.Message)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// POST /api/sessions/:id/task-assignment
func (s *Server) taskAssignmentHandler(c echo.Context) error {
	id := c.PathParam("id")
	var in orchestrator.TaskAssignmentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.service.SubmitTaskAssignment(id, in); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "assigned"})
}

type hintRequest struct {
	Hint string `json:"hint"`
}

// POST /api/sessions/:id/supervisor-hint
func (s *Server) supervisorHintHandler(c echo.Context) error {
	id := c.PathParam("id")
	var req hintRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.service.SubmitSupervisorHint(id, req.Hint); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}
