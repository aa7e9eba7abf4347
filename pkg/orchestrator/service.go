// Package orchestrator is the simulation core. It owns the request-turn
// pipeline: lesson time and phase, per-student affect decay, live actions,
// dialog sub-states (clarification, knowledge checks, boredom jokes,
// behavior interventions), the parallel teacher+student cycle, graph
// commits, and completion.
//
// Concurrency model: one request turn per session runs at a time (a
// per-session processing lock on top of the store's data lock). Inside a
// turn the teacher and the selected students run concurrently from an
// immutable pre-turn snapshot; their results are committed sequentially
// after the join. Any worker failure fails the whole turn.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edusim/classsim/pkg/agent"
	"github.com/edusim/classsim/pkg/classroom"
	"github.com/edusim/classsim/pkg/events"
	"github.com/edusim/classsim/pkg/graph"
	"github.com/edusim/classsim/pkg/llm"
	"github.com/edusim/classsim/pkg/memory"
	"github.com/edusim/classsim/pkg/models"
	"github.com/edusim/classsim/pkg/safety"
)

// Service drives sessions end to end.
type Service struct {
	store      *memory.Store
	classrooms classroom.Store
	tool       llm.Tool
	filter     *safety.Filter
	emitter    events.Emitter
	teacher    agent.Runner
	student    agent.Runner

	// Per-session processing locks: one request turn at a time per session.
	procMu sync.Mutex
	proc   map[string]*sync.Mutex
}

// NewService wires the orchestrator. A nil emitter disables realtime pushes.
func NewService(store *memory.Store, classrooms classroom.Store, tool llm.Tool, emitter events.Emitter) *Service {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Service{
		store:      store,
		classrooms: classrooms,
		tool:       tool,
		filter:     safety.NewFilter(),
		emitter:    emitter,
		teacher:    agent.NewTeacher(tool),
		student:    agent.NewStudent(tool),
		proc:       make(map[string]*sync.Mutex),
	}
}

func (s *Service) sessionLock(id string) *sync.Mutex {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	mu, ok := s.proc[id]
	if !ok {
		mu = &sync.Mutex{}
		s.proc[id] = mu
	}
	return mu
}

// CreateSessionInput is the session creation request.
type CreateSessionInput struct {
	Mode        models.SessionMode   `json:"mode"`
	Channel     models.Channel       `json:"channel"`
	Topic       string               `json:"topic"`
	ClassroomID string               `json:"classroomId"`
	Config      models.SessionConfig `json:"config"`
}

// CreateSessionResult identifies the created session.
type CreateSessionResult struct {
	SessionID string             `json:"sessionId"`
	Mode      models.SessionMode `json:"mode"`
	Channel   models.Channel     `json:"channel"`
}

// Responder count defaults; clamped to the student count per cycle.
const (
	defaultMinResponders = 2
	defaultMaxResponders = 4
)

// CreateSession validates the input, loads the classroom roster, builds the
// agents and graph, and registers the session.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (*CreateSessionResult, error) {
	if in.Topic == "" {
		return nil, NewValidationError("topic", "topic is required")
	}
	switch in.Mode {
	case models.ModeClassroom, models.ModeDebate:
	case "":
		in.Mode = models.ModeClassroom
	default:
		return nil, NewValidationError("mode", fmt.Sprintf("unknown mode %q", in.Mode))
	}
	switch in.Channel {
	case models.ChannelSupervised, models.ChannelUnsupervised:
	case "":
		in.Channel = models.ChannelSupervised
	default:
		return nil, NewValidationError("channel", fmt.Sprintf("unknown channel %q", in.Channel))
	}
	if in.Config.MinResponders <= 0 {
		in.Config.MinResponders = defaultMinResponders
	}
	if in.Config.MaxResponders <= 0 {
		in.Config.MaxResponders = defaultMaxResponders
	}
	if in.Config.MaxResponders < in.Config.MinResponders {
		return nil, NewValidationError("config.maxResponders", "maxResponders must be >= minResponders")
	}

	session := &models.Session{
		ID:      uuid.New().String(),
		Mode:    in.Mode,
		Channel: in.Channel,
		Topic:   in.Topic,
		Config:  in.Config,
	}

	var nodes []graph.Node
	switch in.Mode {
	case models.ModeClassroom:
		if in.ClassroomID == "" {
			return nil, NewValidationError("classroomId", "classroomId is required in classroom mode")
		}
		room, err := s.classrooms.GetClassroom(ctx, in.ClassroomID)
		if errors.Is(err, classroom.ErrNotFound) {
			return nil, fmt.Errorf("%w: classroom %s", ErrNotFound, in.ClassroomID)
		}
		if err != nil {
			return nil, fmt.Errorf("load classroom %s: %w", in.ClassroomID, err)
		}
		session.Agents = buildClassroomAgents(room)
		session.Runtime = models.NewClassroomRuntime(in.Config.SimulatedTotalSeconds)
		for _, a := range session.Agents {
			kind := graph.NodeStudent
			if a.Kind == models.KindTeacher {
				kind = graph.NodeTeacher
			}
			nodes = append(nodes, graph.Node{ID: a.ID, Label: a.DisplayName, Kind: kind})
		}
	case models.ModeDebate:
		session.Agents = []*models.AgentProfile{teacherProfile()}
		nodes = []graph.Node{
			{ID: models.TeacherAgentID, Label: "Teacher", Kind: graph.NodeTeacher},
			{ID: "user", Label: "You", Kind: graph.NodeUser},
		}
	}
	session.Graph = graph.New(nodes, in.Config.RelationshipOverrides)

	if err := s.store.CreateSession(session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	created := s.newEvent(session.ID, models.EventSessionCreated, "", "", map[string]any{
		"mode":    session.Mode,
		"channel": session.Channel,
		"topic":   session.Topic,
	})
	if err := s.store.AppendEvents(session.ID, []models.SessionEvent{created}); err != nil {
		return nil, err
	}
	s.emitter.EmitEvent(session.Channel, created)

	slog.Info("Session created",
		"session_id", session.ID, "mode", session.Mode,
		"channel", session.Channel, "agents", len(session.Agents))
	return &CreateSessionResult{SessionID: session.ID, Mode: session.Mode, Channel: session.Channel}, nil
}

func teacherProfile() *models.AgentProfile {
	return &models.AgentProfile{
		ID:          models.TeacherAgentID,
		Kind:        models.KindTeacher,
		DisplayName: "Teacher",
		State:       models.NewAgentState(models.KindTeacher),
	}
}

func buildClassroomAgents(room *classroom.Classroom) []*models.AgentProfile {
	agents := []*models.AgentProfile{teacherProfile()}
	for _, st := range room.Students {
		agents = append(agents, &models.AgentProfile{
			ID:          fmt.Sprintf("student_agent_%d", st.ID),
			Kind:        st.Kind,
			DisplayName: st.DisplayName,
			State:       models.NewAgentState(st.Kind),
		})
	}
	return agents
}

// summaryTurns is the transcript window of the session summary projection.
const summaryTurns = 8

// GetSessionSummary projects a session for GET /api/sessions/:id.
func (s *Service) GetSessionSummary(id string) (*models.SessionSummary, error) {
	var out *models.SessionSummary
	err := s.store.With(id, func(session *models.Session) error {
		out = &models.SessionSummary{
			ID:        session.ID,
			Mode:      session.Mode,
			Channel:   session.Channel,
			Topic:     session.Topic,
			Agents:    session.Agents,
			Turns:     session.LastTurns(summaryTurns),
			Metrics:   session.Metrics,
			Graph:     session.Graph,
			Runtime:   session.Runtime,
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return out, nil
}

// ListSessions returns the session list projection, newest first.
func (s *Service) ListSessions() []models.SessionListItem {
	return s.store.List()
}

// SubmitSupervisorHint stores a single-slot hint for the next teacher cycle.
// Supervised classroom sessions only.
func (s *Service) SubmitSupervisorHint(id, hint string) error {
	if hint == "" {
		return NewValidationError("hint", "hint is required")
	}
	var channel models.Channel
	err := s.store.With(id, func(session *models.Session) error {
		if session.Mode != models.ModeClassroom {
			return fmt.Errorf("%w: supervisor hints require classroom mode", ErrPreconditionFailed)
		}
		if session.Channel != models.ChannelSupervised {
			return fmt.Errorf("%w: supervisor hints require the supervised channel", ErrPreconditionFailed)
		}
		session.SupervisorHint = hint
		channel = session.Channel
		return nil
	})
	if errors.Is(err, memory.ErrSessionNotFound) {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	evt := s.newEvent(id, models.EventSupervisorHintReceived, "", "", map[string]any{"hint": hint})
	if err := s.store.AppendEvents(id, []models.SessionEvent{evt}); err != nil {
		return err
	}
	s.emitter.EmitEvent(channel, evt)
	return nil
}

// newEvent builds a session event; the caller appends and emits it.
func (s *Service) newEvent(sessionID string, t models.EventType, turnID, agentID string, payload map[string]any) models.SessionEvent {
	return models.SessionEvent{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		TurnID:    turnID,
		AgentID:   agentID,
		Type:      t,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
