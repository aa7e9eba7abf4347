package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusim/classsim/pkg/llm"
)

func TestTeacherRun(t *testing.T) {
	t.Run("returns the generated utterance", func(t *testing.T) {
		tool := llm.NewScripted()
		tool.AddSequential(llm.ScriptEntry{Text: "Welcome back, class."})
		teacher := NewTeacher(tool)

		res, err := teacher.Run(context.Background(), &Input{
			AgentID:      "teacher",
			SystemPrompt: "You are the teacher.",
			UserPrompt:   "Output one teacher utterance now.",
		})
		require.NoError(t, err)
		assert.Equal(t, "Welcome back, class.", res.Message)
		assert.Nil(t, res.StatePatch)
	})

	t.Run("propagates tool failure", func(t *testing.T) {
		tool := llm.NewScripted()
		tool.AddSequential(llm.ScriptEntry{Error: errors.New("provider down")})
		_, err := NewTeacher(tool).Run(context.Background(), &Input{AgentID: "teacher"})
		assert.Error(t, err)
	})
}

func TestStudentRun(t *testing.T) {
	t.Run("patches comprehension when speaking from memory", func(t *testing.T) {
		tool := llm.NewScripted()
		tool.AddSequential(llm.ScriptEntry{Text: "The denominator counts the parts."})
		res, err := NewStudent(tool).Run(context.Background(), &Input{
			AgentID:          "student_agent_1",
			AllowedKnowledge: []string{"Direct graph message: denominators count parts."},
		})
		require.NoError(t, err)
		require.NotNil(t, res.StatePatch)
		assert.Equal(t, 0.1, res.StatePatch.ComprehensionDelta)
	})

	t.Run("no patch without knowledge", func(t *testing.T) {
		tool := llm.NewScripted()
		tool.AddSequential(llm.ScriptEntry{Text: "I'm not sure."})
		res, err := NewStudent(tool).Run(context.Background(), &Input{AgentID: "student_agent_1"})
		require.NoError(t, err)
		assert.Nil(t, res.StatePatch)
	})
}
