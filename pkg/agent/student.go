package agent

import (
	"context"
	"fmt"

	"github.com/edusim/classsim/pkg/llm"
	"github.com/edusim/classsim/pkg/memory"
)

// Student produces one student utterance per cycle. The utterance is
// constrained to the allowed graph memory; with nothing heard the student
// expresses uncertainty (the prompt instructs it, the mock enforces it).
type Student struct {
	tool llm.Tool
}

// NewStudent creates a student agent. Panics on a nil tool.
func NewStudent(tool llm.Tool) *Student {
	if tool == nil {
		panic("agent.NewStudent: tool must not be nil")
	}
	return &Student{tool: tool}
}

// Run implements Runner.
func (s *Student) Run(ctx context.Context, in *Input) (*Result, error) {
	text, err := s.tool.Generate(ctx, llm.Input{
		SystemPrompt: in.SystemPrompt,
		UserPrompt:   in.UserPrompt,
		EmitToken:    in.EmitToken,
	})
	if err != nil {
		return nil, fmt.Errorf("student agent %s: %w", in.AgentID, err)
	}

	result := &Result{Message: text}
	// Speaking from direct memory engages the student with the material.
	if len(in.AllowedKnowledge) > 0 {
		result.StatePatch = &memory.StatePatch{ComprehensionDelta: 0.1}
	}
	return result, nil
}
