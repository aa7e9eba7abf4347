package models

import "time"

// EventType is the closed enum of session event types.
type EventType string

const (
	EventSessionCreated             EventType = "session_created"
	EventTurnReceived               EventType = "turn_received"
	EventAgentStarted               EventType = "agent_started"
	EventAgentToken                 EventType = "agent_token"
	EventAgentDone                  EventType = "agent_done"
	EventSafetyNotice               EventType = "safety_notice"
	EventGraphEdgeActivated         EventType = "graph_edge_activated"
	EventSupervisorHintReceived     EventType = "supervisor_hint_received"
	EventSupervisorHintApplied      EventType = "supervisor_hint_applied"
	EventTaskAssignmentRequired     EventType = "task_assignment_required"
	EventTaskAssignmentSubmitted    EventType = "task_assignment_submitted"
	EventTaskReviewCompleted        EventType = "task_review_completed"
	EventInteractiveBoardModeChange EventType = "interactive_board_mode_changed"
	EventSessionCompleted           EventType = "session_completed"
	EventScoreUpdate                EventType = "score_update"
)

// SessionEvent is one entry in a session's append-only event log.
type SessionEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	TurnID    string         `json:"turnId,omitempty"`
	AgentID   string         `json:"agentId,omitempty"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
