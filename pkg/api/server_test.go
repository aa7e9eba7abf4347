package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusim/classsim/pkg/classroom"
	"github.com/edusim/classsim/pkg/events"
	"github.com/edusim/classsim/pkg/llm"
	"github.com/edusim/classsim/pkg/memory"
	"github.com/edusim/classsim/pkg/models"
	"github.com/edusim/classsim/pkg/orchestrator"
)

func newTestServer() *Server {
	svc := orchestrator.NewService(
		memory.NewStore(),
		classroom.NewStaticStore(classroom.DemoClassroom()),
		llm.NewMock(""),
		nil,
	)
	return NewServer(svc, events.NewConnectionManager(5*time.Second), []string{"*"})
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	body := `{"topic":"Fractions","classroomId":"` + classroom.DemoClassroom().ID + `"}`
	rec := doJSON(t, s, http.MethodPost, "/api/sessions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res orchestrator.CreateSessionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotEmpty(t, res.SessionID)
	return res.SessionID
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		OK     bool    `json:"ok"`
		Uptime float64 `json:"uptime"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.GreaterOrEqual(t, body.Uptime, 0.0)
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodGet, "/api/health", "")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodOptions, "/api/sessions", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORSOriginAllowlist(t *testing.T) {
	svc := orchestrator.NewService(
		memory.NewStore(),
		classroom.NewStaticStore(classroom.DemoClassroom()),
		llm.NewMock(""),
		nil,
	)
	s := NewServer(svc, events.NewConnectionManager(5*time.Second), []string{"https://app.example.com"})

	t.Run("allowlisted origin is echoed back", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("unlisted origin gets no allow header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestCreateSession(t *testing.T) {
	s := newTestServer()

	t.Run("classroom session", func(t *testing.T) {
		id := createSession(t, s)
		assert.NotEmpty(t, id)
	})

	t.Run("missing topic maps to 400", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/sessions",
			`{"classroomId":"`+classroom.DemoClassroom().ID+`"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "topic")
	})

	t.Run("unknown classroom maps to 404", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/sessions",
			`{"topic":"Fractions","classroomId":"missing"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed body maps to 400", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/sessions", `{"topic":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetSession(t *testing.T) {
	s := newTestServer()
	id := createSession(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, id, summary.ID)
	assert.Equal(t, models.ModeClassroom, summary.Mode)
	assert.Len(t, summary.Agents, 5)

	rec = doJSON(t, s, http.MethodGet, "/api/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessions(t *testing.T) {
	s := newTestServer()
	createSession(t, s)
	createSession(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Sessions []models.SessionListItem `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Sessions, 2)
}

func TestProcessTurnEndpoint(t *testing.T) {
	s := newTestServer()
	id := createSession(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/sessions/"+id+"/turn",
		`{"message":"Today we start with fractions. Who can tell me what a half means?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.TurnID)
	assert.NotEmpty(t, result.Transcript)

	t.Run("empty message maps to 400", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/sessions/"+id+"/turn", `{"message":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown session maps to 404", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/sessions/nope/turn", `{"message":"hello"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTaskAssignmentEndpoint(t *testing.T) {
	s := newTestServer()
	id := createSession(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/sessions/"+id+"/task-assignment",
		`{"mode":"pair","autonomousGrouping":true}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	t.Run("invalid mode maps to 400", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/sessions/"+id+"/task-assignment",
			`{"mode":"platoon","autonomousGrouping":true}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSupervisorHintEndpoint(t *testing.T) {
	s := newTestServer()
	id := createSession(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/sessions/"+id+"/supervisor-hint",
		`{"hint":"steer back to the number line"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	t.Run("empty hint maps to 400", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/sessions/"+id+"/supervisor-hint", `{"hint":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("hint outside classroom mode maps to 400", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/sessions",
			`{"topic":"Homework should be optional","mode":"debate"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var res orchestrator.CreateSessionResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

		rec = doJSON(t, s, http.MethodPost, "/api/sessions/"+res.SessionID+"/supervisor-hint",
			`{"hint":"concede gracefully"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
