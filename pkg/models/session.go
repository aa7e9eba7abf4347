package models

import (
	"time"

	"github.com/edusim/classsim/pkg/graph"
)

// SessionMode selects the simulation mode.
type SessionMode string

const (
	ModeClassroom SessionMode = "classroom"
	ModeDebate    SessionMode = "debate"
)

// Channel selects the supervision channel of a session.
type Channel string

const (
	ChannelSupervised   Channel = "supervised"
	ChannelUnsupervised Channel = "unsupervised"
)

// SessionConfig tunes a session at creation time.
type SessionConfig struct {
	MinResponders         int                          `json:"minResponders,omitempty"`
	MaxResponders         int                          `json:"maxResponders,omitempty"`
	SimulatedTotalSeconds float64                      `json:"simulatedTotalSeconds,omitempty"`
	RelationshipOverrides []graph.RelationshipOverride `json:"relationshipOverrides,omitempty"`
}

// SessionMetrics is the derived read-model of a session's health.
// TurnCount always equals the transcript length.
type SessionMetrics struct {
	TurnCount            int     `json:"turnCount"`
	AverageAttentiveness float64 `json:"averageAttentiveness"`
	AverageBehavior      float64 `json:"averageBehavior"`
	AverageComprehension float64 `json:"averageComprehension"`
	EngagementPct        float64 `json:"engagementPct"`
	ClarityPct           float64 `json:"clarityPct"`
	DebateOverall        float64 `json:"debateOverall,omitempty"`
}

// Session is the root aggregate: one simulated lesson or debate. It is owned
// exclusively by the session store for its lifetime; all mutation goes
// through the store so per-session writes serialize.
type Session struct {
	ID             string                    `json:"id"`
	Mode           SessionMode               `json:"mode"`
	Channel        Channel                   `json:"channel"`
	Topic          string                    `json:"topic"`
	Config         SessionConfig             `json:"config"`
	Agents         []*AgentProfile           `json:"agents"`
	Turns          []Turn                    `json:"turns"`
	Events         []SessionEvent            `json:"events"`
	Metrics        SessionMetrics            `json:"metrics"`
	Graph          *graph.CommunicationGraph `json:"communicationGraph"`
	Runtime        *ClassroomRuntime         `json:"classroomRuntime,omitempty"`
	SupervisorHint string                    `json:"-"`
	CreatedAt      time.Time                 `json:"createdAt"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
}

// Agent returns the agent with the given id, or nil.
func (s *Session) Agent(id string) *AgentProfile {
	for _, a := range s.Agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Students returns the student agents in roster order.
func (s *Session) Students() []*AgentProfile {
	var out []*AgentProfile
	for _, a := range s.Agents {
		if a.IsStudent() {
			out = append(out, a)
		}
	}
	return out
}

// LastTurns returns the trailing n turns of the transcript.
func (s *Session) LastTurns(n int) []Turn {
	if len(s.Turns) <= n {
		out := make([]Turn, len(s.Turns))
		copy(out, s.Turns)
		return out
	}
	out := make([]Turn, n)
	copy(out, s.Turns[len(s.Turns)-n:])
	return out
}

// SessionSummary is the projection returned by GET /api/sessions/:id.
type SessionSummary struct {
	ID        string                    `json:"id"`
	Mode      SessionMode               `json:"mode"`
	Channel   Channel                   `json:"channel"`
	Topic     string                    `json:"topic"`
	Agents    []*AgentProfile           `json:"agents"`
	Turns     []Turn                    `json:"turns"`
	Metrics   SessionMetrics            `json:"metrics"`
	Graph     *graph.CommunicationGraph `json:"communicationGraph"`
	Runtime   *ClassroomRuntime         `json:"classroomRuntime,omitempty"`
	CreatedAt time.Time                 `json:"createdAt"`
	UpdatedAt time.Time                 `json:"updatedAt"`
}

// SessionListItem is one row in the session list projection.
type SessionListItem struct {
	ID        string      `json:"id"`
	Mode      SessionMode `json:"mode"`
	Channel   Channel     `json:"channel"`
	Topic     string      `json:"topic"`
	TurnCount int         `json:"turnCount"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// TurnResult is the response of a processed request turn: the request turn
// id, a transcript slice, and only the events emitted during this call.
type TurnResult struct {
	TurnID     string                    `json:"turnId"`
	Transcript []Turn                    `json:"transcript"`
	Events     []SessionEvent            `json:"events"`
	Metrics    SessionMetrics            `json:"metrics"`
	Graph      *graph.CommunicationGraph `json:"graph"`
}
