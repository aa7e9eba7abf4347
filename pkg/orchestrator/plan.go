package orchestrator

import (
	"strings"

	"github.com/edusim/classsim/pkg/graph"
	"github.com/edusim/classsim/pkg/models"
	"github.com/edusim/classsim/pkg/roll"
)

// studentAction is the planned behavior of one selected student this cycle.
type studentAction int

const (
	actionAnswerTeacher studentAction = iota
	actionTalkToPeer
	actionStaySilent
)

// studentPlan is the immutable per-student slice of the cycle snapshot.
type studentPlan struct {
	AgentID    string
	Action     studentAction
	PeerTarget string // set for actionTalkToPeer
	DelayMs    int
	OffTask    bool
}

// selectResponders picks this cycle's responding students. An active
// clarification pins the cycle to the asking student; otherwise a
// round-robin window over the roster, rotated by transcript+event length so
// consecutive turns reach different students.
func selectResponders(session *models.Session, requestTurnID string) []*models.AgentProfile {
	students := session.Students()
	if len(students) == 0 {
		return nil
	}
	if rt := session.Runtime; rt != nil && rt.ActiveClarification != nil {
		if st := session.Agent(rt.ActiveClarification.StudentID); st != nil {
			return []*models.AgentProfile{st}
		}
	}

	minR, maxR := session.Config.MinResponders, session.Config.MaxResponders
	if minR > len(students) {
		minR = len(students)
	}
	if maxR > len(students) {
		maxR = len(students)
	}
	size := minR
	if maxR > minR {
		size = minR + roll.Pick(maxR-minR+1, session.ID, requestTurnID, "responder_count")
	}

	start := (len(session.Turns) + len(session.Events)) % len(students)
	out := make([]*models.AgentProfile, 0, size)
	for i := 0; i < size; i++ {
		out = append(out, students[(start+i)%len(students)])
	}
	return out
}

// planStudent rolls the interaction plan for one selected student.
func planStudent(session *models.Session, st *models.AgentProfile, requestTurnID string, receivedBroadcast bool) studentPlan {
	s := st.State
	bored := boredness(s)
	fatigue := float64(s.PostPraiseFatigueTurns)
	offTask := s.LiveAction != nil && s.LiveAction.Kind == models.LiveActionOffTask

	teacherW := 0.45 + s.Attentiveness*0.035 + s.Comprehension*0.02 - bored*0.03 - fatigue*0.01
	if offTask {
		teacherW *= 0.7
	}

	peerW := 0.20 + s.Behavior*0.03 + s.Attentiveness*0.01 + (10-fatigue)*0.01
	if offTask {
		peerW += 0.16
	}
	if receivedBroadcast {
		peerW *= 0.35
	}
	if bored <= 4.2 {
		peerW += 0.12
	}

	silentW := 0.12 + fatigue*0.04 + clampRange(bored-6, 0, 10)*0.05
	if s.Attentiveness < 4 || s.Behavior < 4 {
		silentW += 0.12
	}

	action := studentAction(roll.Weighted(
		[]float64{teacherW, peerW, silentW},
		session.ID, requestTurnID, st.ID, "interaction"))

	plan := studentPlan{AgentID: st.ID, Action: action, OffTask: offTask}
	if action == actionTalkToPeer {
		plan.PeerTarget = pickPeerTarget(session, st, requestTurnID)
		if plan.PeerTarget == "" {
			plan.Action = actionAnswerTeacher
		}
	}

	jitter := roll.Stable(session.ID, requestTurnID, st.ID, "delay")
	plan.DelayMs = int(clampRange(120+fatigue*35+bored*18+jitter*180, 120, 900))
	return plan
}

// pickPeerTarget chooses who the student turns to, weighted by relationship,
// mutual edge weight, and the peer's engagement.
func pickPeerTarget(session *models.Session, st *models.AgentProfile, requestTurnID string) string {
	var peers []*models.AgentProfile
	var weights []float64
	for _, p := range session.Students() {
		if p.ID == st.ID {
			continue
		}
		rel := 1.0
		avgWeight := 0.6
		if e := session.Graph.EdgeBetween(st.ID, p.ID); e != nil {
			switch e.Relationship {
			case graph.RelationshipGood:
				rel = 1.25
			case graph.RelationshipBad:
				rel = 0.65
			}
			back := e.Weight
			if be := session.Graph.EdgeBetween(p.ID, st.ID); be != nil {
				back = be.Weight
			}
			avgWeight = (e.Weight + back) / 2
		}
		engagement := (p.State.Behavior*0.6 + p.State.Attentiveness*0.4) / 10
		peers = append(peers, p)
		weights = append(weights, rel*avgWeight*engagement)
	}
	if len(peers) == 0 {
		return ""
	}
	idx := roll.Weighted(weights, session.ID, requestTurnID, st.ID, "peer_target")
	return peers[idx].ID
}

// Windows for the graph-memory lines fed into a student prompt.
const (
	maxDirectLines       = 6
	maxOverheardWithDir  = 2
	maxOverheardFallback = 4
)

// allowedKnowledgeFor assembles the graph-memory lines a student may answer
// from: recent direct lines plus a couple of overheard ones, falling back to
// overheard-only, then to a single synthesized line.
func allowedKnowledgeFor(session *models.Session, studentID, fallbackText string) []string {
	var direct, overheard []string
	for _, a := range session.Graph.CurrentActivationsTo(studentID) {
		text := strings.TrimSpace(a.Payload.Text)
		if text == "" {
			continue
		}
		if a.Payload.LowConfidence() {
			overheard = append(overheard, "Overheard graph message (low weight): "+text)
		} else {
			direct = append(direct, "Direct graph message: "+text)
		}
	}

	if len(direct) > 0 {
		if len(direct) > maxDirectLines {
			direct = direct[len(direct)-maxDirectLines:]
		}
		if len(overheard) > maxOverheardWithDir {
			overheard = overheard[len(overheard)-maxOverheardWithDir:]
		}
		return append(direct, overheard...)
	}
	if len(overheard) > 0 {
		if len(overheard) > maxOverheardFallback {
			overheard = overheard[len(overheard)-maxOverheardFallback:]
		}
		return overheard
	}
	if strings.TrimSpace(fallbackText) != "" {
		return []string{"Direct graph message: " + strings.TrimSpace(fallbackText)}
	}
	return nil
}

// stimulusFor concatenates the payload text of everything addressed to the
// student this turn.
func stimulusFor(session *models.Session, studentID string) string {
	var parts []string
	for _, a := range session.Graph.CurrentActivationsTo(studentID) {
		if t := strings.TrimSpace(a.Payload.Text); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "No direct input reached you this turn."
	}
	return strings.Join(parts, " ")
}

// modeBannerFor renders the student's graph-driven mode banner.
func modeBannerFor(plan studentPlan, peerName string) string {
	switch plan.Action {
	case actionTalkToPeer:
		return "turning to " + peerName + " instead of the teacher."
	default:
		if plan.OffTask {
			return "half-distracted, answering the teacher."
		}
		return "answering the teacher."
	}
}
