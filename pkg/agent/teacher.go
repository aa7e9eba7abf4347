package agent

import (
	"context"
	"fmt"

	"github.com/edusim/classsim/pkg/llm"
)

// Teacher produces one teacher utterance per cycle via the LLM tool.
type Teacher struct {
	tool llm.Tool
}

// NewTeacher creates a teacher agent. Panics on a nil tool (programming
// error in the wiring).
func NewTeacher(tool llm.Tool) *Teacher {
	if tool == nil {
		panic("agent.NewTeacher: tool must not be nil")
	}
	return &Teacher{tool: tool}
}

// Run implements Runner.
func (t *Teacher) Run(ctx context.Context, in *Input) (*Result, error) {
	text, err := t.tool.Generate(ctx, llm.Input{
		SystemPrompt: in.SystemPrompt,
		UserPrompt:   in.UserPrompt,
		EmitToken:    in.EmitToken,
	})
	if err != nil {
		return nil, fmt.Errorf("teacher agent %s: %w", in.AgentID, err)
	}
	return &Result{Message: text}, nil
}
