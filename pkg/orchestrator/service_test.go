package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusim/classsim/pkg/classroom"
	"github.com/edusim/classsim/pkg/llm"
	"github.com/edusim/classsim/pkg/memory"
	"github.com/edusim/classsim/pkg/models"
)

func newTestService(tool llm.Tool) *Service {
	return NewService(memory.NewStore(), classroom.NewStaticStore(classroom.DemoClassroom()), tool, nil)
}

func createClassroomSession(t *testing.T, svc *Service, channel models.Channel) string {
	t.Helper()
	res, err := svc.CreateSession(context.Background(), CreateSessionInput{
		Topic:       "Fractions",
		Channel:     channel,
		ClassroomID: classroom.DemoClassroom().ID,
	})
	require.NoError(t, err)
	return res.SessionID
}

func setElapsedFraction(t *testing.T, svc *Service, id string, frac float64) {
	t.Helper()
	require.NoError(t, svc.store.With(id, func(s *models.Session) error {
		s.Runtime.SimulatedElapsedSeconds = s.Runtime.SimulatedTotalSeconds * frac
		return nil
	}))
}

func eventsOfType(events []models.SessionEvent, et models.EventType) []models.SessionEvent {
	var out []models.SessionEvent
	for _, e := range events {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

func TestCreateSessionValidation(t *testing.T) {
	svc := newTestService(llm.NewMock(""))
	ctx := context.Background()

	t.Run("missing topic", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, CreateSessionInput{ClassroomID: classroom.DemoClassroom().ID})
		assert.True(t, IsValidationError(err))
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, CreateSessionInput{Topic: "Fractions", Mode: "lecture"})
		assert.True(t, IsValidationError(err))
	})

	t.Run("responder bounds", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, CreateSessionInput{
			Topic:       "Fractions",
			ClassroomID: classroom.DemoClassroom().ID,
			Config:      models.SessionConfig{MinResponders: 3, MaxResponders: 2},
		})
		assert.True(t, IsValidationError(err))
	})

	t.Run("classroom mode requires classroom id", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, CreateSessionInput{Topic: "Fractions"})
		assert.True(t, IsValidationError(err))
	})

	t.Run("unknown classroom", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, CreateSessionInput{Topic: "Fractions", ClassroomID: "nope"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCreateSessionClassroom(t *testing.T) {
	svc := newTestService(llm.NewMock(""))
	id := createClassroomSession(t, svc, models.ChannelSupervised)

	summary, err := svc.GetSessionSummary(id)
	require.NoError(t, err)
	assert.Equal(t, models.ModeClassroom, summary.Mode)
	assert.Equal(t, models.ChannelSupervised, summary.Channel)
	// Teacher plus the four demo students.
	assert.Len(t, summary.Agents, 5)
	assert.NotNil(t, summary.Runtime)
	assert.Equal(t, 1, summary.Runtime.LessonTurn)
	assert.Equal(t, models.PhaseLecture, summary.Runtime.Phase)
	// Fully connected directed graph over 5 nodes.
	assert.Len(t, summary.Graph.Edges, 20)
	require.Len(t, eventsOfType(listEvents(t, svc, id), models.EventSessionCreated), 1)
}

func TestCreateSessionDebate(t *testing.T) {
	svc := newTestService(llm.NewMock(""))
	res, err := svc.CreateSession(context.Background(), CreateSessionInput{
		Topic: "Homework should be optional",
		Mode:  models.ModeDebate,
	})
	require.NoError(t, err)

	summary, err := svc.GetSessionSummary(res.SessionID)
	require.NoError(t, err)
	assert.Nil(t, summary.Runtime)
	require.Len(t, summary.Agents, 1)
	assert.Equal(t, models.TeacherAgentID, summary.Agents[0].ID)
	assert.True(t, summary.Graph.HasNode("user"))
}

func listEvents(t *testing.T, svc *Service, id string) []models.SessionEvent {
	t.Helper()
	var out []models.SessionEvent
	require.NoError(t, svc.store.With(id, func(s *models.Session) error {
		out = append(out, s.Events...)
		return nil
	}))
	return out
}

func TestGetSessionSummaryNotFound(t *testing.T) {
	svc := newTestService(llm.NewMock(""))
	_, err := svc.GetSessionSummary("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSessions(t *testing.T) {
	svc := newTestService(llm.NewMock(""))
	assert.Empty(t, svc.ListSessions())

	first := createClassroomSession(t, svc, models.ChannelSupervised)
	second := createClassroomSession(t, svc, models.ChannelUnsupervised)

	items := svc.ListSessions()
	require.Len(t, items, 2)
	ids := []string{items[0].ID, items[1].ID}
	assert.Contains(t, ids, first)
	assert.Contains(t, ids, second)
}

func TestSubmitSupervisorHint(t *testing.T) {
	svc := newTestService(llm.NewMock(""))

	t.Run("requires hint", func(t *testing.T) {
		id := createClassroomSession(t, svc, models.ChannelSupervised)
		assert.True(t, IsValidationError(svc.SubmitSupervisorHint(id, "")))
	})

	t.Run("unknown session", func(t *testing.T) {
		err := svc.SubmitSupervisorHint("missing", "slow down")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unsupervised rejected", func(t *testing.T) {
		id := createClassroomSession(t, svc, models.ChannelUnsupervised)
		err := svc.SubmitSupervisorHint(id, "slow down")
		assert.ErrorIs(t, err, ErrPreconditionFailed)
	})

	t.Run("debate rejected", func(t *testing.T) {
		res, err := svc.CreateSession(context.Background(), CreateSessionInput{
			Topic: "Homework", Mode: models.ModeDebate,
		})
		require.NoError(t, err)
		err = svc.SubmitSupervisorHint(res.SessionID, "slow down")
		assert.ErrorIs(t, err, ErrPreconditionFailed)
	})

	t.Run("newer hint overwrites", func(t *testing.T) {
		id := createClassroomSession(t, svc, models.ChannelSupervised)
		require.NoError(t, svc.SubmitSupervisorHint(id, "first"))
		require.NoError(t, svc.SubmitSupervisorHint(id, "second"))
		require.NoError(t, svc.store.With(id, func(s *models.Session) error {
			assert.Equal(t, "second", s.SupervisorHint)
			return nil
		}))
		assert.Len(t, eventsOfType(listEvents(t, svc, id), models.EventSupervisorHintReceived), 2)
	})
}

func TestValidationErrorUnwrap(t *testing.T) {
	err := NewValidationError("topic", "topic is required")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.True(t, IsValidationError(err))
	assert.False(t, IsValidationError(ErrNotFound))
}
