package orchestrator

import (
	"fmt"
	"math"
	"time"

	"github.com/edusim/classsim/pkg/lesson"
	"github.com/edusim/classsim/pkg/memory"
	"github.com/edusim/classsim/pkg/models"
	"github.com/edusim/classsim/pkg/roll"
)

// Decay bounds and modifiers.
const (
	boardMitigation    = 0.08
	postPraiseDecayAdd = 0.22
)

func phaseDecayMult(phase models.Phase) float64 {
	switch phase {
	case models.PhasePractice:
		return 1.10
	case models.PhaseReview:
		return 1.18
	default:
		return 1.00
	}
}

// applyNaturalDecay applies the per-turn deterministic decay to every
// student. Three independent rolls per student keep attention, behavior, and
// comprehension decorrelated while staying reproducible.
func applyNaturalDecay(session *models.Session, requestTurnID string) {
	rt := session.Runtime
	progress := float64(rt.LessonTurn) / float64(lesson.FractionsLessonTotalTurns)
	phaseMult := phaseDecayMult(rt.Phase)
	mitigation := 0.0
	if rt.InteractiveBoardActive {
		mitigation = boardMitigation
	}

	for _, st := range session.Students() {
		r1 := roll.Stable(session.ID, requestTurnID, st.ID, "attention")
		r2 := roll.Stable(session.ID, requestTurnID, st.ID, "behavior")
		r3 := roll.Stable(session.ID, requestTurnID, st.ID, "comprehension")

		fatigueNorm := float64(st.State.PostPraiseFatigueTurns) / 8
		boredNorm := boredness(st.State) / 10
		postPraiseMult := 1.0
		if st.State.PostPraiseFatigueTurns > 0 {
			postPraiseMult = 1 + st.State.PostPraiseDecayBoost + postPraiseDecayAdd
		}

		attDecay := clampRange((0.05+r1*0.16+progress*0.13+fatigueNorm*0.08)*phaseMult*postPraiseMult-mitigation, 0.02, 0.48)
		behDecay := clampRange((0.03+r2*0.10+progress*0.09+boredNorm*0.06)*phaseMult*postPraiseMult-mitigation*0.45, 0.01, 0.35)
		compExtra := 0.0
		if st.State.Attentiveness < 5 {
			compExtra = 0.035
		}
		compDecay := clampRange((0.02+r3*0.08+progress*0.07+compExtra)*phaseMult*postPraiseMult-mitigation*0.30, 0.01, 0.28)

		memory.ApplyStatePatch(st, memory.StatePatch{
			AttentivenessDelta: -attDecay,
			BehaviorDelta:      -behDecay,
			ComprehensionDelta: -compDecay,
		})
		if st.State.PostPraiseFatigueTurns > 0 {
			st.State.PostPraiseFatigueTurns--
		}
		st.State.PostPraiseDecayBoost = math.Round(st.State.PostPraiseDecayBoost*0.92*100) / 100
	}
}

// boredness derives the boredom signal of one student in [0,10].
func boredness(st models.AgentState) float64 {
	return clampRange(10-(st.Attentiveness*0.6+st.Behavior*0.4), 0, 10)
}

// Boredom-joke gate thresholds.
const (
	boredomRiseDelta  = 0.22
	boredomJokeLevel  = 4.9
	boredomJokeStreak = 2
	boredomJokeGap    = 3
)

// updateBoredomGate updates the class boredom trend and reports whether an
// engagement joke fires this turn.
func updateBoredomGate(session *models.Session) (trend boredomTrend, jokeDue bool) {
	rt := session.Runtime
	students := session.Students()
	if len(students) == 0 {
		return boredomTrend{}, false
	}

	var sum float64
	for _, st := range students {
		sum += boredness(st.State)
	}
	avg := sum / float64(len(students))

	delta := 0.0
	if rt.PreviousAverageBoredness != nil {
		delta = avg - *rt.PreviousAverageBoredness
	}
	if delta >= boredomRiseDelta {
		rt.BoredomRiseStreak++
	} else if rt.BoredomRiseStreak > 0 {
		rt.BoredomRiseStreak--
	}
	rt.PreviousAverageBoredness = &avg

	gapOK := rt.LastEngagementJokeTurn == nil ||
		rt.LessonTurn-*rt.LastEngagementJokeTurn >= boredomJokeGap
	jokeDue = (rt.Phase == models.PhaseLecture || rt.Phase == models.PhasePractice) &&
		gapOK && avg >= boredomJokeLevel && rt.BoredomRiseStreak >= boredomJokeStreak
	if jokeDue {
		rt.BoredomRiseStreak = 0
		turn := rt.LessonTurn
		rt.LastEngagementJokeTurn = &turn
	}
	return boredomTrend{Average: avg, Delta: delta, RiseStreak: rt.BoredomRiseStreak}, jokeDue
}

type boredomTrend struct {
	Average    float64
	Delta      float64
	RiseStreak int
}

// Interactive-board thresholds.
const (
	boardActivateRatio   = 0.45
	boardDeactivateRatio = 0.2
	boardDeactivateAvg   = 6.5
	boardActivationBoost = 1.2
	boardSustainBoost    = 0.35
	lowAttentionCutoff   = 4.5
)

// evaluateInteractiveBoard flips the board on a crowded low-attention class
// and off once attention recovers, granting the per-turn boosts.
// Returns whether the mode changed this turn.
func evaluateInteractiveBoard(session *models.Session) (changed, active bool) {
	rt := session.Runtime
	students := session.Students()
	if len(students) == 0 {
		return false, rt.InteractiveBoardActive
	}

	low := 0
	var attSum float64
	for _, st := range students {
		if st.State.Attentiveness <= lowAttentionCutoff {
			low++
		}
		attSum += st.State.Attentiveness
	}
	ratio := float64(low) / float64(len(students))
	avg := attSum / float64(len(students))

	justActivated := false
	switch {
	case !rt.InteractiveBoardActive && ratio >= boardActivateRatio:
		rt.InteractiveBoardActive = true
		justActivated = true
		changed = true
	case rt.InteractiveBoardActive && ratio <= boardDeactivateRatio && avg >= boardDeactivateAvg:
		rt.InteractiveBoardActive = false
		changed = true
	}

	if rt.InteractiveBoardActive {
		boost := boardSustainBoost
		if justActivated {
			boost = boardActivationBoost
		}
		for _, st := range students {
			memory.ApplyStatePatch(st, memory.StatePatch{AttentivenessDelta: boost})
		}
	}
	return changed, rt.InteractiveBoardActive
}

// Live-action template libraries.
var onTaskActions = []models.LiveAction{
	{Code: "listening", Kind: models.LiveActionOnTask, Label: "listening to the teacher", Severity: "success"},
	{Code: "note_taking", Kind: models.LiveActionOnTask, Label: "taking notes", Severity: "success"},
	{Code: "task_focus", Kind: models.LiveActionOnTask, Label: "working on the task", Severity: "success"},
	{Code: "peer_support", Kind: models.LiveActionOnTask, Label: "helping a classmate", Severity: "info"},
}

var offTaskActions = []models.LiveAction{
	{Code: "pen_clicking", Kind: models.LiveActionOffTask, Label: "clicking a pen", Severity: "warning"},
	{Code: "looking_out_window", Kind: models.LiveActionOffTask, Label: "looking out the window", Severity: "warning"},
	{Code: "playing_with_object", Kind: models.LiveActionOffTask, Label: "playing with an object", Severity: "warning"},
	{Code: "desk_doodling", Kind: models.LiveActionOffTask, Label: "doodling on the desk", Severity: "info"},
	{Code: "side_talking", Kind: models.LiveActionOffTask, Label: "talking to a neighbor", Severity: "danger"},
}

func phaseOffTaskAdj(phase models.Phase) float64 {
	switch phase {
	case models.PhaseLecture:
		return 0.06
	case models.PhasePractice:
		return 0.03
	default:
		return -0.01
	}
}

// resolveLiveActions rolls one live action per student, maintains distraction
// streaks, applies the resulting score deltas, and returns the behavior-alert
// lines for the teacher prompt.
func resolveLiveActions(session *models.Session, requestTurnID string) []string {
	rt := session.Runtime
	var alerts []string

	for _, st := range session.Students() {
		score := clampRange((10-st.State.Attentiveness)*0.5+(10-st.State.Behavior)*0.35+(10-st.State.Comprehension)*0.15, 0, 10)

		boardAdj := 0.0
		if rt.InteractiveBoardActive {
			boardAdj = -0.14
		}
		postPraisePenalty := 0.0
		if st.State.PostPraiseFatigueTurns > 0 {
			postPraisePenalty = 0.04
		}
		pOffTask := clampRange(0.1+score*0.07+phaseOffTaskAdj(rt.Phase)+boardAdj+postPraisePenalty, 0.05, 0.9)

		r := roll.Stable(session.ID, requestTurnID, st.ID, "live_action")
		offTask := r < pOffTask

		var action models.LiveAction
		if offTask {
			action = offTaskActions[roll.Pick(len(offTaskActions), session.ID, requestTurnID, st.ID, "template")]
		} else {
			action = onTaskActions[roll.Pick(len(onTaskActions), session.ID, requestTurnID, st.ID, "template")]
		}
		now := time.Now().UTC()
		action.At = now
		st.State.LiveAction = &action

		// Streak bookkeeping: alert fires when the pre-reset streak crosses
		// the per-student threshold, then the streak restarts.
		preReset := st.State.DistractionStreak
		if offTask {
			preReset++
		} else {
			preReset--
		}
		preReset = int(clampRange(float64(preReset), 0, 6))

		threshold := 3
		if st.Kind == models.KindADHD {
			threshold--
		}
		if score >= 7 {
			threshold--
		}
		threshold = int(clampRange(float64(threshold), 2, 4))

		if offTask && preReset >= threshold {
			alerts = append(alerts, fmt.Sprintf("Behavior alert: %s keeps drifting (%s).", st.DisplayName, action.Label))
			st.State.DistractionStreak = 0
		} else {
			st.State.DistractionStreak = preReset
		}
		rt.PendingDistractionCounts[st.ID] = st.State.DistractionStreak

		var attDelta, behDelta float64
		if offTask {
			attDelta = -(0.2 + score*0.05)
			behDelta = -(0.2 + score*0.05)
		} else {
			attDelta, behDelta = 0.12, 0.12
			if rt.InteractiveBoardActive {
				attDelta += 0.08
				behDelta += 0.08
			}
		}
		memory.ApplyStatePatch(st, memory.StatePatch{
			AttentivenessDelta: attDelta,
			BehaviorDelta:      behDelta,
		})
	}
	return alerts
}

// recomputeMetrics refreshes the derived classroom metrics from the student
// states. TurnCount stays owned by the store.
func recomputeMetrics(session *models.Session) {
	students := session.Students()
	if len(students) == 0 {
		return
	}
	var att, beh, comp float64
	for _, st := range students {
		att += st.State.Attentiveness
		beh += st.State.Behavior
		comp += st.State.Comprehension
	}
	n := float64(len(students))
	m := &session.Metrics
	m.AverageAttentiveness = models.Round1(att / n)
	m.AverageBehavior = models.Round1(beh / n)
	m.AverageComprehension = models.Round1(comp / n)
	m.EngagementPct = models.Round1(att / n * 10)
	m.ClarityPct = models.Round1(comp / n * 10)
}

func clampRange(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
