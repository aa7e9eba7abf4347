package models

import "time"

// Role identifies the speaker of a turn.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleUser    Role = "user"
	RoleAgent   Role = "agent"
	RoleSystem  Role = "system"
)

// TurnMetadata carries per-turn context. RequestTurnID ties agent turns back
// to the request turn that produced them; Extra holds free-form fields.
type TurnMetadata struct {
	RequestTurnID string         `json:"requestTurnId,omitempty"`
	SpeechSeconds float64        `json:"speechSeconds,omitempty"`
	LessonTurn    int            `json:"lessonTurn,omitempty"`
	TeacherMode   string         `json:"teacherMode,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// Turn is one utterance in a session transcript. Turns are immutable once
// appended; the only exception is the documented tail rollback on an early
// abort of a request turn.
type Turn struct {
	ID        string       `json:"id"`
	SessionID string       `json:"sessionId"`
	Role      Role         `json:"role"`
	AgentID   string       `json:"agentId,omitempty"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"createdAt"`
	Metadata  TurnMetadata `json:"metadata"`
}
