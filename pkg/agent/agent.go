// Package agent provides the teacher and student agent framework.
// Agents produce exactly one utterance per cycle from a prompt pair built
// by the orchestrator; they never mutate the session directly and instead
// return patches the orchestrator applies after the parallel join.
package agent

import (
	"context"

	"github.com/edusim/classsim/pkg/llm"
	"github.com/edusim/classsim/pkg/memory"
)

// Input is everything an agent needs for one cycle. All fields come from
// the pre-turn snapshot; workers never read in-flight mutations.
type Input struct {
	SessionID     string
	RequestTurnID string
	AgentID       string
	SystemPrompt  string
	UserPrompt    string
	// AllowedKnowledge holds the graph-memory lines the student may use.
	AllowedKnowledge []string
	// StateStimulus is the concatenated payload text of all activations
	// addressed to this agent in the current turn.
	StateStimulus string
	EmitToken     llm.TokenSink
}

// Result is one produced utterance plus optional side effects.
type Result struct {
	Message    string
	Metadata   map[string]any
	StatePatch *memory.StatePatch
}

// Runner produces one utterance per call. Returns (nil, error) on failure;
// a failed worker fails the whole request turn.
type Runner interface {
	Run(ctx context.Context, in *Input) (*Result, error)
}
