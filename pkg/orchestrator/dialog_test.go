package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusim/classsim/pkg/models"
)

func dialogSession() *models.Session {
	return &models.Session{
		ID:      "dialog-session",
		Mode:    models.ModeClassroom,
		Runtime: models.NewClassroomRuntime(0),
		Agents: []*models.AgentProfile{
			teacherProfile(),
			{ID: "st1", Kind: models.KindTypical, DisplayName: "Anna", State: models.NewAgentState(models.KindTypical)},
			{ID: "st2", Kind: models.KindADHD, DisplayName: "Ben", State: models.NewAgentState(models.KindADHD)},
		},
	}
}

func studentTurn(id, agentID, content string) models.Turn {
	return models.Turn{ID: id, Role: models.RoleAgent, AgentID: agentID, Content: content}
}

func TestLooksLikeQuestion(t *testing.T) {
	assert.True(t, looksLikeQuestion("Why is the denominator on the bottom?"))
	assert.True(t, looksLikeQuestion("how does this work"))
	assert.True(t, looksLikeQuestion("miért kell egyenlő részekre osztani"))
	assert.False(t, looksLikeQuestion("I finished the exercise."))
	assert.False(t, looksLikeQuestion("whatever you say"))
}

func TestDetectClarification(t *testing.T) {
	t.Run("opens on the newest student question", func(t *testing.T) {
		s := dialogSession()
		s.Turns = []models.Turn{
			studentTurn("t1", "st1", "I got 3 as my answer."),
			studentTurn("t2", "st2", "What does the denominator count?"),
		}
		detectClarification(s)
		c := s.Runtime.ActiveClarification
		require.NotNil(t, c)
		assert.Equal(t, "st2", c.StudentID)
		assert.Equal(t, "t2", c.QuestionTurnID)
		assert.Equal(t, "t2", s.Runtime.LastClarifiedQuestionTurnID)
	})

	t.Run("low comprehension doubles the required responses", func(t *testing.T) {
		s := dialogSession()
		s.Agent("st1").State.Comprehension = 3
		s.Turns = []models.Turn{studentTurn("t1", "st1", "Why are the parts equal?")}
		detectClarification(s)
		require.NotNil(t, s.Runtime.ActiveClarification)
		assert.Equal(t, 2, s.Runtime.ActiveClarification.RequiredResponseCount)
	})

	t.Run("never reopens a handled question", func(t *testing.T) {
		s := dialogSession()
		s.Turns = []models.Turn{studentTurn("t1", "st1", "Why are the parts equal?")}
		detectClarification(s)
		require.NotNil(t, s.Runtime.ActiveClarification)

		s.Runtime.ActiveClarification.ResponsesGiven = 5
		detectClarification(s)
		assert.Nil(t, s.Runtime.ActiveClarification, "answered clarification closes and does not reopen")
	})

	t.Run("teacher questions are ignored", func(t *testing.T) {
		s := dialogSession()
		s.Turns = []models.Turn{{
			ID: "t1", Role: models.RoleAgent, AgentID: models.TeacherAgentID,
			Content: "Who can tell me what a numerator is?",
		}}
		detectClarification(s)
		assert.Nil(t, s.Runtime.ActiveClarification)
	})

	t.Run("ages out after two lesson turns", func(t *testing.T) {
		s := dialogSession()
		s.Turns = []models.Turn{studentTurn("t1", "st1", "Why are the parts equal?")}
		detectClarification(s)
		require.NotNil(t, s.Runtime.ActiveClarification)

		s.Runtime.LessonTurn = s.Runtime.ActiveClarification.OpenedLessonTurn + 3
		detectClarification(s)
		assert.Nil(t, s.Runtime.ActiveClarification)
	})
}

func TestDetectKnowledgeCheck(t *testing.T) {
	q, ok := detectKnowledgeCheck("Let's pause here. Which fraction of the pizza is shaded?")
	require.True(t, ok)
	assert.Equal(t, "Which fraction of the pizza is shaded?", q)

	_, ok = detectKnowledgeCheck("Great work today, everyone.")
	assert.False(t, ok)

	// A question without any check vocabulary is not a knowledge check.
	_, ok = detectKnowledgeCheck("Ready?")
	assert.False(t, ok)
}

func TestExpectedKeywords(t *testing.T) {
	kws := expectedKeywords("Fractions", "Numerator and denominator", "Name the parts of a fraction and what each one counts.")
	assert.Contains(t, kws, "fractions")
	assert.Contains(t, kws, "numerator")
	assert.Contains(t, kws, "denominator")
	assert.NotContains(t, kws, "the")
	assert.NotContains(t, kws, "and")
	assert.LessOrEqual(t, len(kws), 10)

	// Duplicates collapse.
	seen := map[string]bool{}
	for _, k := range kws {
		assert.False(t, seen[k], "keyword %q repeated", k)
		seen[k] = true
	}
}

func TestGradeCheckAnswer(t *testing.T) {
	keywords := []string{"fraction", "equal", "parts", "denominator"}

	t.Run("reasoned keyword answer passes", func(t *testing.T) {
		score, correct := gradeCheckAnswer("Because 1/2 means one of two equal parts of the whole.", keywords)
		assert.True(t, correct)
		assert.GreaterOrEqual(t, score, 0.9)
	})

	t.Run("dont know always fails", func(t *testing.T) {
		_, correct := gradeCheckAnswer("I don't know, the denominator has equal parts because 1/2.", keywords)
		assert.False(t, correct)
		_, correct = gradeCheckAnswer("Nem tudom.", keywords)
		assert.False(t, correct)
	})

	t.Run("short vague answer fails", func(t *testing.T) {
		score, correct := gradeCheckAnswer("Maybe three?", keywords)
		assert.False(t, correct)
		assert.Less(t, score, 0.9)
	})
}
