// Package events provides real-time delivery of simulation events over
// WebSocket.
//
// Sessions live in process memory, so there is no cross-pod distribution and
// no catch-up protocol: a client that reconnects reloads the session via REST
// (GET /api/sessions/:id) and resubscribes. Everything pushed here is a
// projection of state that REST can also serve.
//
// Connections are namespaced by the path they were opened on (/ws/supervised
// or /ws/unsupervised). A connection only ever sees broadcasts for its own
// namespace, and the supervisor.whisper command is accepted on the supervised
// namespace only.
package events

import (
	"github.com/edusim/classsim/pkg/graph"
	"github.com/edusim/classsim/pkg/models"
)

// Server → client message types.
const (
	TypeConnectionReady       = "connection.ready"
	TypeSubscriptionConfirmed = "subscription.confirmed"
	TypeSubscriptionRemoved   = "subscription.removed"
	TypePong                  = "system.pong"
	TypeError                 = "system.error"

	// TypeAgentTurn carries one completed agent or system utterance.
	TypeAgentTurn = "simulation.agent_turn_emitted"
	// TypeAgentToken carries one streamed LLM token. High frequency,
	// ephemeral; the full text arrives with the agent_turn envelope.
	TypeAgentToken = "simulation.agent_token"
	// TypeTurnProcessed closes a request-turn cycle with fresh metrics.
	TypeTurnProcessed = "simulation.turn_processed"
	// TypeGraphUpdated carries the communication graph after a cycle commit.
	TypeGraphUpdated = "simulation.graph_updated"
	// TypeStudentStates carries the refreshed student affect states.
	TypeStudentStates = "simulation.student_states_updated"
)

// EnvelopeType maps a session event type to its realtime envelope type,
// e.g. session_created → "simulation.session_created".
func EnvelopeType(et models.EventType) string {
	return "simulation." + string(et)
}

// ChannelKey is the broadcast channel for one session on one namespace.
// Format: "{namespace}:{session_id}".
func ChannelKey(namespace models.Channel, sessionID string) string {
	return string(namespace) + ":" + sessionID
}

// Client → server command actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
	ActionWhisper     = "supervisor.whisper"
)

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId,omitempty"`
	// Hint is the whisper text for supervisor.whisper.
	Hint string `json:"hint,omitempty"`
}

// EventEnvelope wraps a session event for the wire.
type EventEnvelope struct {
	Type      string              `json:"type"` // "simulation.{event_type}"
	SessionID string              `json:"sessionId"`
	Event     models.SessionEvent `json:"event"`
	Timestamp string              `json:"timestamp"` // RFC3339Nano
}

// AgentTurnEnvelope wraps one transcript turn for the wire.
type AgentTurnEnvelope struct {
	Type      string      `json:"type"` // always TypeAgentTurn
	SessionID string      `json:"sessionId"`
	Turn      models.Turn `json:"turn"`
	Timestamp string      `json:"timestamp"` // RFC3339Nano
}

// AgentTokenEnvelope is one streamed token of an in-flight agent utterance.
type AgentTokenEnvelope struct {
	Type      string `json:"type"` // always TypeAgentToken
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
	TurnID    string `json:"turnId"` // request turn the token belongs to
	Delta     string `json:"delta"`
	Timestamp string `json:"timestamp"` // RFC3339Nano
}

// TurnProcessedEnvelope closes a cycle: id of the processed request turn plus
// the recomputed session metrics.
type TurnProcessedEnvelope struct {
	Type      string                `json:"type"` // always TypeTurnProcessed
	SessionID string                `json:"sessionId"`
	TurnID    string                `json:"turnId"`
	Metrics   models.SessionMetrics `json:"metrics"`
	Timestamp string                `json:"timestamp"` // RFC3339Nano
}

// GraphUpdatedEnvelope pushes the communication graph after a cycle changed
// edge weights or recorded activations.
type GraphUpdatedEnvelope struct {
	Type      string                    `json:"type"` // always TypeGraphUpdated
	SessionID string                    `json:"sessionId"`
	Graph     *graph.CommunicationGraph `json:"graph"`
	Timestamp string                    `json:"timestamp"` // RFC3339Nano
}

// StudentStatesEnvelope pushes the student roster with its refreshed affect
// states after a cycle commit.
type StudentStatesEnvelope struct {
	Type      string                 `json:"type"` // always TypeStudentStates
	SessionID string                 `json:"sessionId"`
	Students  []*models.AgentProfile `json:"students"`
	Timestamp string                 `json:"timestamp"` // RFC3339Nano
}
