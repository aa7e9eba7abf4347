package events

import (
	"github.com/edusim/classsim/pkg/graph"
	"github.com/edusim/classsim/pkg/models"
)

// Emitter is the orchestrator's outbound port for realtime pushes. Emits are
// best-effort fire-and-forget; the authoritative state is always the session
// store and the REST projections.
type Emitter interface {
	// EmitEvent pushes one session event to the session's subscribers.
	EmitEvent(namespace models.Channel, evt models.SessionEvent)
	// EmitAgentTurn pushes one completed transcript turn.
	EmitAgentTurn(namespace models.Channel, sessionID string, turn models.Turn)
	// EmitAgentToken pushes one streamed LLM token.
	EmitAgentToken(namespace models.Channel, sessionID, agentID, turnID, delta string)
	// EmitTurnProcessed closes a cycle with the recomputed metrics.
	EmitTurnProcessed(namespace models.Channel, sessionID, turnID string, metrics models.SessionMetrics)
	// EmitGraphUpdated pushes the communication graph after a cycle commit.
	EmitGraphUpdated(namespace models.Channel, sessionID string, g *graph.CommunicationGraph)
	// EmitStudentStates pushes the refreshed student affect states.
	EmitStudentStates(namespace models.Channel, sessionID string, students []*models.AgentProfile)
}

// NopEmitter discards all emits. Used by tests and batch tooling.
type NopEmitter struct{}

var _ Emitter = NopEmitter{}

func (NopEmitter) EmitEvent(models.Channel, models.SessionEvent)                 {}
func (NopEmitter) EmitAgentTurn(models.Channel, string, models.Turn)             {}
func (NopEmitter) EmitAgentToken(models.Channel, string, string, string, string) {}
func (NopEmitter) EmitTurnProcessed(models.Channel, string, string, models.SessionMetrics) {
}
func (NopEmitter) EmitGraphUpdated(models.Channel, string, *graph.CommunicationGraph) {}
func (NopEmitter) EmitStudentStates(models.Channel, string, []*models.AgentProfile)   {}
