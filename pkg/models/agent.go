package models

import (
	"math"
	"time"
)

// AgentKind identifies an agent's profile.
type AgentKind string

const (
	KindTeacher  AgentKind = "Teacher"
	KindADHD     AgentKind = "ADHD"
	KindAutistic AgentKind = "Autistic"
	KindTypical  AgentKind = "Typical"
)

// TeacherAgentID is the fixed id of the single teacher agent in a session.
const TeacherAgentID = "teacher"

// LiveActionKind classifies a live action as on or off task.
type LiveActionKind string

const (
	LiveActionOnTask  LiveActionKind = "on_task"
	LiveActionOffTask LiveActionKind = "off_task"
)

// LiveAction is the most recent observable classroom action of a student.
type LiveAction struct {
	Code     string         `json:"code"`
	Kind     LiveActionKind `json:"kind"`
	Label    string         `json:"label"`
	Severity string         `json:"severity"` // success | info | warning | danger
	At       time.Time      `json:"at"`
}

// AgentState is the mutable affect state of an agent. Scores live in
// [floor, 10] with one-decimal precision; floors depend on the agent kind.
type AgentState struct {
	Attentiveness          float64     `json:"attentiveness"`
	Behavior               float64     `json:"behavior"`
	Comprehension          float64     `json:"comprehension"`
	Profile                AgentKind   `json:"profile"`
	LiveAction             *LiveAction `json:"liveAction,omitempty"`
	DistractionStreak      int         `json:"distractionStreak"`
	PostPraiseFatigueTurns int         `json:"postPraiseFatigueTurns"`
	PostPraiseDecayBoost   float64     `json:"postPraiseDecayBoost"`
}

// AgentProfile is one participant in a session.
type AgentProfile struct {
	ID          string     `json:"id"`
	Kind        AgentKind  `json:"kind"`
	DisplayName string     `json:"displayName"`
	State       AgentState `json:"state"`
}

// IsStudent reports whether the agent is a student (anything but the teacher).
func (a *AgentProfile) IsStudent() bool {
	return a.Kind != KindTeacher
}

// ScoreFloors returns the per-kind lower bounds for attentiveness, behavior,
// and comprehension.
func ScoreFloors(kind AgentKind) (att, beh, comp float64) {
	switch kind {
	case KindADHD:
		return 1.5, 1.5, 1.0
	case KindTeacher:
		return 10, 10, 10
	default: // Typical, Autistic
		return 2.5, 2.0, 1.5
	}
}

// NewAgentState returns the initial state for an agent of the given kind.
func NewAgentState(kind AgentKind) AgentState {
	if kind == KindTeacher {
		return AgentState{Attentiveness: 10, Behavior: 10, Comprehension: 10, Profile: kind}
	}
	return AgentState{Attentiveness: 7, Behavior: 7, Comprehension: 5, Profile: kind}
}

// ClampScore clamps v to [floor, 10] and rounds to one decimal.
func ClampScore(v, floor float64) float64 {
	if v < floor {
		v = floor
	}
	if v > 10 {
		v = 10
	}
	return math.Round(v*10) / 10
}

// Round1 rounds to one decimal without clamping.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
