package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("deterministic for the same prompt and seed", func(t *testing.T) {
		in := Input{SystemPrompt: "You are the teacher.", UserPrompt: "Teacher mode: lecture_delivery\nLesson focus: Equivalent fractions."}
		a, err := NewMock("seed").Generate(ctx, in)
		require.NoError(t, err)
		b, err := NewMock("seed").Generate(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("check question directive yields a keyword-rich question", func(t *testing.T) {
		out, err := NewMock("seed").Generate(ctx, Input{
			SystemPrompt: "You are the teacher.",
			UserPrompt:   "Teacher mode: lecture_delivery\nAsk one short check question about the current step.",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "?")
		lower := strings.ToLower(out)
		keyword := strings.Contains(lower, "what") || strings.Contains(lower, "which") ||
			strings.Contains(lower, "explain") || strings.Contains(lower, "denominator")
		assert.True(t, keyword, "expected a check-question keyword in %q", out)
	})

	t.Run("student with no memory expresses uncertainty", func(t *testing.T) {
		out, err := NewMock("seed").Generate(ctx, Input{
			SystemPrompt: "You are a student named Anna.",
			UserPrompt:   "Answer using only direct messages addressed to you.\nYou have 0 memory items.",
		})
		require.NoError(t, err)
		lower := strings.ToLower(out)
		assert.True(t, strings.Contains(lower, "not sure") || strings.Contains(lower, "don't") || strings.Contains(lower, "can't"),
			"expected uncertainty in %q", out)
	})

	t.Run("student answers from direct graph messages", func(t *testing.T) {
		out, err := NewMock("seed").Generate(ctx, Input{
			SystemPrompt: "You are a student named Anna.",
			UserPrompt:   "Direct graph message: The denominator counts equal parts of the whole\nAnswer now.",
		})
		require.NoError(t, err)
		assert.Contains(t, strings.ToLower(out), "denominator")
	})

	t.Run("streams tokens that concatenate to the result", func(t *testing.T) {
		var sb strings.Builder
		out, err := NewMock("seed").Generate(ctx, Input{
			SystemPrompt: "You are the teacher.",
			UserPrompt:   "Teacher mode: engagement_joke",
			EmitToken:    func(tok string) { sb.WriteString(tok) },
		})
		require.NoError(t, err)
		assert.Equal(t, out, sb.String())
	})
}

func TestScripted(t *testing.T) {
	ctx := context.Background()

	t.Run("routed entries match system prompt markers", func(t *testing.T) {
		s := NewScripted()
		s.AddRouted("student named Anna", ScriptEntry{Text: "anna says hi"})
		s.AddSequential(ScriptEntry{Text: "teacher speaks"})

		out, err := s.Generate(ctx, Input{SystemPrompt: "You are a student named Anna."})
		require.NoError(t, err)
		assert.Equal(t, "anna says hi", out)

		out, err = s.Generate(ctx, Input{SystemPrompt: "You are the teacher."})
		require.NoError(t, err)
		assert.Equal(t, "teacher speaks", out)
	})

	t.Run("exhausted script errors", func(t *testing.T) {
		s := NewScripted()
		_, err := s.Generate(ctx, Input{SystemPrompt: "anything"})
		assert.Error(t, err)
	})
}
