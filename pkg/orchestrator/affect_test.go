package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusim/classsim/pkg/models"
)

func affectSession(studentCount int) *models.Session {
	s := &models.Session{
		ID:      "affect-session",
		Mode:    models.ModeClassroom,
		Runtime: models.NewClassroomRuntime(0),
		Agents:  []*models.AgentProfile{teacherProfile()},
	}
	names := []string{"Anna", "Ben", "Csilla", "David", "Emma", "Filip"}
	for i := 0; i < studentCount; i++ {
		s.Agents = append(s.Agents, &models.AgentProfile{
			ID:          names[i],
			Kind:        models.KindTypical,
			DisplayName: names[i],
			State:       models.NewAgentState(models.KindTypical),
		})
	}
	return s
}

func TestApplyNaturalDecayLowersScores(t *testing.T) {
	s := affectSession(3)
	before := make(map[string]models.AgentState)
	for _, st := range s.Students() {
		before[st.ID] = st.State
	}

	applyNaturalDecay(s, "req-1")

	for _, st := range s.Students() {
		prev := before[st.ID]
		assert.Less(t, st.State.Attentiveness, prev.Attentiveness)
		assert.Less(t, st.State.Behavior, prev.Behavior)
		// Comprehension decay can round away below 0.05.
		assert.LessOrEqual(t, st.State.Comprehension, prev.Comprehension)
		// One decay step never craters a score.
		assert.GreaterOrEqual(t, st.State.Attentiveness, prev.Attentiveness-0.48)
		assert.GreaterOrEqual(t, st.State.Behavior, prev.Behavior-0.35)
		assert.GreaterOrEqual(t, st.State.Comprehension, prev.Comprehension-0.28)
	}
}

func TestApplyNaturalDecayPostPraiseFatigue(t *testing.T) {
	s := affectSession(1)
	st := s.Students()[0]
	st.State.PostPraiseFatigueTurns = 3
	st.State.PostPraiseDecayBoost = 0.3

	applyNaturalDecay(s, "req-1")

	assert.Equal(t, 2, st.State.PostPraiseFatigueTurns)
	assert.Less(t, st.State.PostPraiseDecayBoost, 0.3, "the boost bleeds off over turns")
}

func TestDecayIsDeterministicPerSeed(t *testing.T) {
	a, b := affectSession(2), affectSession(2)
	applyNaturalDecay(a, "req-1")
	applyNaturalDecay(b, "req-1")
	for i, st := range a.Students() {
		assert.Equal(t, st.State, b.Students()[i].State)
	}
}

func TestBoredness(t *testing.T) {
	assert.InDelta(t, 3.0, boredness(models.AgentState{Attentiveness: 7, Behavior: 7}), 0.001)
	assert.Equal(t, 10.0, boredness(models.AgentState{}))
}

func TestUpdateBoredomGate(t *testing.T) {
	s := affectSession(2)
	for _, st := range s.Students() {
		st.State.Attentiveness = 5
		st.State.Behavior = 5
	}

	// First observation establishes the baseline; no joke yet.
	trend, due := updateBoredomGate(s)
	assert.False(t, due)
	assert.Zero(t, trend.RiseStreak)

	// Boredom rises sharply twice in a row above the level threshold.
	for _, st := range s.Students() {
		st.State.Attentiveness = 4.4
		st.State.Behavior = 4.4
	}
	_, due = updateBoredomGate(s)
	assert.False(t, due, "one rising step is not enough")

	for _, st := range s.Students() {
		st.State.Attentiveness = 3.8
		st.State.Behavior = 3.8
	}
	trend, due = updateBoredomGate(s)
	assert.True(t, due)
	assert.GreaterOrEqual(t, trend.Average, boredomJokeLevel)
	require.NotNil(t, s.Runtime.LastEngagementJokeTurn)

	// The cool-down gap suppresses an immediate second joke.
	for _, st := range s.Students() {
		st.State.Attentiveness = 3.0
		st.State.Behavior = 3.0
	}
	updateBoredomGate(s)
	for _, st := range s.Students() {
		st.State.Attentiveness = 2.2
		st.State.Behavior = 2.2
	}
	_, due = updateBoredomGate(s)
	assert.False(t, due)
}

func TestEvaluateInteractiveBoard(t *testing.T) {
	s := affectSession(4)

	// Half the class drops below the attention cutoff: board activates and
	// everyone gets the activation boost.
	s.Students()[0].State.Attentiveness = 3.0
	s.Students()[1].State.Attentiveness = 4.0
	before := s.Students()[2].State.Attentiveness

	changed, active := evaluateInteractiveBoard(s)
	assert.True(t, changed)
	assert.True(t, active)
	assert.Greater(t, s.Students()[2].State.Attentiveness, before)

	// Attention recovered: board deactivates.
	for _, st := range s.Students() {
		st.State.Attentiveness = 8.0
	}
	changed, active = evaluateInteractiveBoard(s)
	assert.True(t, changed)
	assert.False(t, active)

	// Steady state: no change reported.
	changed, active = evaluateInteractiveBoard(s)
	assert.False(t, changed)
	assert.False(t, active)
}

func TestResolveLiveActions(t *testing.T) {
	s := affectSession(4)
	alerts := resolveLiveActions(s, "req-1")

	for _, st := range s.Students() {
		require.NotNil(t, st.State.LiveAction, "every student rolls a live action")
		assert.NotEmpty(t, st.State.LiveAction.Code)
		assert.Contains(t, s.Runtime.PendingDistractionCounts, st.ID)
	}
	// Fresh class, no streaks yet: no behavior alerts on the first turn.
	assert.Empty(t, alerts)
}

func TestRecomputeMetrics(t *testing.T) {
	s := affectSession(2)
	s.Students()[0].State = models.AgentState{Attentiveness: 8, Behavior: 6, Comprehension: 4}
	s.Students()[1].State = models.AgentState{Attentiveness: 6, Behavior: 8, Comprehension: 6}

	recomputeMetrics(s)

	assert.Equal(t, 7.0, s.Metrics.AverageAttentiveness)
	assert.Equal(t, 7.0, s.Metrics.AverageBehavior)
	assert.Equal(t, 5.0, s.Metrics.AverageComprehension)
	assert.Equal(t, 70.0, s.Metrics.EngagementPct)
	assert.Equal(t, 50.0, s.Metrics.ClarityPct)
}

func TestClampRange(t *testing.T) {
	assert.Equal(t, 0.5, clampRange(0.5, 0, 1))
	assert.Equal(t, 0.0, clampRange(-2, 0, 1))
	assert.Equal(t, 1.0, clampRange(7, 0, 1))
}
