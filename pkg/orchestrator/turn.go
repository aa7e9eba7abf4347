package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/edusim/classsim/pkg/agent"
	"github.com/edusim/classsim/pkg/agent/prompt"
	"github.com/edusim/classsim/pkg/graph"
	"github.com/edusim/classsim/pkg/lesson"
	"github.com/edusim/classsim/pkg/memory"
	"github.com/edusim/classsim/pkg/models"
	"github.com/edusim/classsim/pkg/roll"
)

// transcriptWindow is the transcript slice returned by ProcessTurn.
const transcriptWindow = 12

// nearEndWindowSeconds arms the lesson_closure teacher mode.
const nearEndWindowSeconds = 120

// turnOverheadSeconds is the simulated transition cost added per produced
// turn on top of the spoken seconds.
const turnOverheadSeconds = 1.5

// Attentiveness boost for students directly addressed by the teacher, by
// teacher mode.
var directBoostByMode = map[models.TeacherMode]float64{
	models.TeacherLectureDelivery:      0.5,
	models.TeacherClarificationDialog:  0.9,
	models.TeacherBehaviorIntervention: 0.6,
	models.TeacherEngagementJoke:       0.6,
	models.TeacherKnowledgeCheckPraise: 0.7,
	models.TeacherLessonClosure:        0.5,
}

// turnRecorder accumulates the events of one ProcessTurn call. Events are
// appended to the session log in place (the caller holds the session lock)
// and pushed to the realtime emitter as they happen.
type turnRecorder struct {
	svc     *Service
	channel models.Channel
	events  []models.SessionEvent
}

func (r *turnRecorder) record(session *models.Session, t models.EventType, turnID, agentID string, payload map[string]any) {
	evt := r.svc.newEvent(session.ID, t, turnID, agentID, payload)
	session.Events = append(session.Events, evt)
	r.events = append(r.events, evt)
	r.svc.emitter.EmitEvent(r.channel, evt)
}

// cycleJob is one planned agent execution, snapshotted before fan-out.
type cycleJob struct {
	AgentID      string
	DisplayName  string
	SystemPrompt string
	UserPrompt   string
	Knowledge    []string
	Stimulus     string
	DelayMs      int
	Plan         studentPlan
}

// completion is one finished worker, in completion order.
type completion struct {
	Job    cycleJob
	Result *agent.Result
}

// cycleSnapshot is everything the fan-out phase needs without touching the
// session.
type cycleSnapshot struct {
	RequestTurnID string
	TeacherMode   models.TeacherMode
	TeacherJob    *cycleJob
	StudentJobs   []cycleJob
	Responders    []string // responder agent ids, roster order
	Clarification *models.Clarification
	StepTitle     string
	DeliveryGoal  string
}

// ProcessTurn runs one request turn end to end. One turn per session at a
// time; inside the turn the teacher and the selected students execute
// concurrently from a pre-turn snapshot.
func (s *Service) ProcessTurn(ctx context.Context, id, message string) (*models.TurnResult, error) {
	if message == "" {
		return nil, NewValidationError("message", "message is required")
	}

	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	var mode models.SessionMode
	var channel models.Channel
	err := s.store.With(id, func(session *models.Session) error {
		mode, channel = session.Mode, session.Channel
		return nil
	})
	if errors.Is(err, memory.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rec := &turnRecorder{svc: s, channel: channel}
	if mode == models.ModeDebate {
		return s.processDebateTurn(ctx, id, message, rec)
	}
	return s.processClassroomTurn(ctx, id, message, rec)
}

func (s *Service) processClassroomTurn(ctx context.Context, id, message string, rec *turnRecorder) (*models.TurnResult, error) {
	requestTurnID := uuid.New().String()
	logger := slog.With("session_id", id, "request_turn_id", requestTurnID)

	var snap *cycleSnapshot
	var early *models.TurnResult
	err := s.store.With(id, func(session *models.Session) error {
		snap, early = s.prepareCycle(session, rec, requestTurnID, message)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if early != nil {
		s.emitter.EmitTurnProcessed(rec.channel, id, requestTurnID, early.Metrics)
		return early, nil
	}

	logger.Info("Cycle planned",
		"teacher_mode", snap.TeacherMode, "responders", len(snap.StudentJobs))

	completions, err := s.runCycle(ctx, id, rec.channel, snap)
	if err != nil {
		// No partial commit: drop the request turn if still at the tail.
		if rbErr := s.store.RollbackTurn(id, requestTurnID); rbErr != nil {
			logger.Warn("Rollback after worker failure skipped", "error", rbErr)
		}
		logger.Error("Cycle failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	var praised []praiseCandidate
	err = s.store.With(id, func(session *models.Session) error {
		praised = s.commitCycle(session, rec, snap, completions)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range praised {
		if err := s.runPraiseTurn(ctx, id, rec, snap, p); err != nil {
			logger.Warn("Praise turn failed", "student_id", p.StudentID, "error", err)
		}
	}

	var result *models.TurnResult
	var students []*models.AgentProfile
	err = s.store.With(id, func(session *models.Session) error {
		s.closeCycle(session, rec, snap)
		result = buildTurnResult(session, requestTurnID, rec.events)
		students = session.Students()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitter.EmitGraphUpdated(rec.channel, id, result.Graph)
	s.emitter.EmitStudentStates(rec.channel, id, students)
	s.emitter.EmitTurnProcessed(rec.channel, id, requestTurnID, result.Metrics)
	return result, nil
}

// prepareCycle runs pipeline steps 1-14 under the session lock: safety,
// request turn append, time derivation, decay, sub-state resolution,
// responder selection, kick-off activations, and prompt assembly. A non-nil
// early result short-circuits the turn (blocked input, practice gate,
// completion).
func (s *Service) prepareCycle(session *models.Session, rec *turnRecorder, requestTurnID, message string) (*cycleSnapshot, *models.TurnResult) {
	rt := session.Runtime
	session.Graph.ResetCurrentTurnActivity()

	verdict := s.filter.Inspect(message)
	rec.record(session, models.EventTurnReceived, requestTurnID, "", map[string]any{
		"flags": verdict.Flags,
	})
	if verdict.Blocked {
		systemTurn := models.Turn{
			ID:        uuid.New().String(),
			SessionID: session.ID,
			Role:      models.RoleSystem,
			Content:   verdict.Reason,
			CreatedAt: time.Now().UTC(),
			Metadata:  models.TurnMetadata{RequestTurnID: requestTurnID},
		}
		session.Turns = append(session.Turns, systemTurn)
		rec.record(session, models.EventSafetyNotice, systemTurn.ID, "", map[string]any{
			"flags":   verdict.Flags,
			"reason":  verdict.Reason,
			"blocked": true,
		})
		s.emitter.EmitAgentTurn(rec.channel, session.ID, systemTurn)
		return nil, buildTurnResult(session, requestTurnID, rec.events)
	}
	if len(verdict.Flags) > 0 {
		rec.record(session, models.EventSafetyNotice, requestTurnID, "", map[string]any{
			"flags":   verdict.Flags,
			"blocked": false,
		})
	}
	cleaned := verdict.CleanedText

	// Derive lesson turn and phase before appending, so the request turn
	// carries the turn it belongs to.
	progress := rt.SimulatedElapsedSeconds / rt.SimulatedTotalSeconds
	rt.LessonTurn = lesson.TurnFromProgress(progress)
	rt.Phase = lesson.PhaseForTurn(rt.LessonTurn)

	requestTurn := models.Turn{
		ID:        requestTurnID,
		SessionID: session.ID,
		Role:      models.RoleTeacher,
		Content:   cleaned,
		CreatedAt: time.Now().UTC(),
		Metadata: models.TurnMetadata{
			RequestTurnID: requestTurnID,
			SpeechSeconds: lesson.SpeechSeconds(cleaned, models.RoleTeacher),
			LessonTurn:    rt.LessonTurn,
		},
	}
	session.Turns = append(session.Turns, requestTurn)

	if rt.Completed || rt.SimulatedElapsedSeconds >= rt.SimulatedTotalSeconds-0.01 {
		_ = memory.RollbackTailTurn(session, requestTurnID)
		if !rt.Completed {
			now := time.Now().UTC()
			rt.Completed = true
			rt.Paused = true
			rt.CompletedAt = &now
			rt.CompletionReason = "simulated lesson time exhausted"
		}
		rec.record(session, models.EventSessionCompleted, "", "", map[string]any{
			"reason": rt.CompletionReason,
		})
		return nil, buildTurnResult(session, requestTurnID, rec.events)
	}

	applyNaturalDecay(session, requestTurnID)
	detectClarification(session)

	// Practice gate: supervised sessions pause for a human grouping
	// decision; unsupervised sessions group autonomously.
	if rt.Phase == models.PhasePractice && rt.ActiveTaskAssignment == nil {
		if session.Channel == models.ChannelSupervised {
			rt.Paused = true
			rt.PendingTaskAssignment = true
			rec.record(session, models.EventTaskAssignmentRequired, "", "", map[string]any{
				"lessonTurn": rt.LessonTurn,
			})
			_ = memory.RollbackTailTurn(session, requestTurnID)
			return nil, buildTurnResult(session, requestTurnID, rec.events)
		}
		s.autoAssignTask(session, rec)
	}

	if changed, active := evaluateInteractiveBoard(session); changed {
		rec.record(session, models.EventInteractiveBoardModeChange, "", "", map[string]any{
			"active": active,
		})
	}

	alerts := resolveLiveActions(session, requestTurnID)
	trend, jokeDue := updateBoredomGate(session)

	nearEnd := rt.SimulatedTotalSeconds-rt.SimulatedElapsedSeconds <= nearEndWindowSeconds
	teacherMode := resolveTeacherMode(rt, alerts, jokeDue, nearEnd)

	responders := selectResponders(session, requestTurnID)
	responderIDs := make([]string, 0, len(responders))
	for _, r := range responders {
		responderIDs = append(responderIDs, r.ID)
	}

	// Kick-off activations: route the instruction through the graph so the
	// students' allowed knowledge comes from edges, not from the raw text.
	if rt.ActiveClarification != nil {
		_, _ = session.Graph.Activate(graph.ActivateInput{
			TurnID:          requestTurnID,
			From:            models.TeacherAgentID,
			To:              rt.ActiveClarification.StudentID,
			InteractionType: graph.ActionTeacherToStudent,
			Payload: graph.Payload{
				ActionType: graph.ActionTeacherToStudent,
				Text:       cleaned,
				Phase:      "clarification_kickoff",
			},
		})
		rec.record(session, models.EventGraphEdgeActivated, requestTurnID, models.TeacherAgentID, map[string]any{
			"to": rt.ActiveClarification.StudentID, "interactionType": graph.ActionTeacherToStudent,
		})
	} else {
		for _, st := range session.Students() {
			_, _ = session.Graph.Activate(graph.ActivateInput{
				TurnID:          requestTurnID,
				From:            models.TeacherAgentID,
				To:              st.ID,
				InteractionType: graph.ActionTeacherBroadcast,
				Payload: graph.Payload{
					ActionType: graph.ActionTeacherBroadcast,
					Text:       cleaned,
				},
			})
		}
		rec.record(session, models.EventGraphEdgeActivated, requestTurnID, models.TeacherAgentID, map[string]any{
			"interactionType": graph.ActionTeacherBroadcast, "recipients": len(session.Students()),
		})
	}

	hint := session.SupervisorHint
	if hint != "" {
		session.SupervisorHint = ""
		rec.record(session, models.EventSupervisorHintApplied, requestTurnID, "", map[string]any{
			"hint": hint,
		})
	}

	step := lesson.StepAt(rt.LessonTurn)
	snap := &cycleSnapshot{
		RequestTurnID: requestTurnID,
		TeacherMode:   teacherMode,
		Responders:    responderIDs,
		Clarification: rt.ActiveClarification,
		StepTitle:     step.Title,
		DeliveryGoal:  step.DeliveryGoal,
	}

	teacherSystem, teacherUser := prompt.BuildTeacher(s.teacherPromptInput(session, snap, cleaned, alerts, trend, jokeDue, nearEnd, hint))
	snap.TeacherJob = &cycleJob{
		AgentID:      models.TeacherAgentID,
		DisplayName:  "Teacher",
		SystemPrompt: teacherSystem,
		UserPrompt:   teacherUser,
	}
	rec.record(session, models.EventAgentStarted, requestTurnID, models.TeacherAgentID, nil)

	taskContext := prompt.DescribeTaskAssignment(rt.ActiveTaskAssignment, func(id string) string {
		return displayName(session, id)
	})
	for _, st := range responders {
		broadcastReceived := rt.ActiveClarification == nil
		plan := planStudent(session, st, requestTurnID, broadcastReceived)
		if plan.Action == actionStaySilent {
			// Silence still costs focus; no LLM call, no activation.
			memory.ApplyStatePatch(st, memory.StatePatch{
				AttentivenessDelta: -0.15,
				BehaviorDelta:      -0.1,
			})
			continue
		}
		knowledge := allowedKnowledgeFor(session, st.ID, cleaned)
		stimulus := stimulusFor(session, st.ID)
		system, user := prompt.BuildStudent(prompt.StudentInput{
			DisplayName:      st.DisplayName,
			Kind:             st.Kind,
			ModeBanner:       modeBannerFor(plan, displayName(session, plan.PeerTarget)),
			TaskContext:      taskContext,
			AllowedKnowledge: knowledge,
			StateStimulus:    stimulus,
		})
		snap.StudentJobs = append(snap.StudentJobs, cycleJob{
			AgentID:      st.ID,
			DisplayName:  st.DisplayName,
			SystemPrompt: system,
			UserPrompt:   user,
			Knowledge:    knowledge,
			Stimulus:     stimulus,
			DelayMs:      plan.DelayMs,
			Plan:         plan,
		})
		rec.record(session, models.EventAgentStarted, requestTurnID, st.ID, nil)
	}

	return snap, nil
}

// autoAssignTask builds the autonomous practice assignment for unsupervised
// sessions: individual early in practice, pairs later, groups at the end.
func (s *Service) autoAssignTask(session *models.Session, rec *turnRecorder) {
	rt := session.Runtime
	mode := models.TaskModeGroup
	switch {
	case rt.LessonTurn <= lesson.PracticeStartTurn()+2:
		mode = models.TaskIndividual
	case rt.LessonTurn <= lesson.ReviewStartTurn()-1:
		mode = models.TaskPair
	}

	studentIDs := make([]string, 0, len(session.Agents))
	for _, a := range session.Students() {
		studentIDs = append(studentIDs, a.ID)
	}
	groups, err := buildGroups(mode, studentIDs)
	if err != nil {
		return
	}
	rt.ActiveTaskAssignment = &models.TaskAssignment{
		Mode:       mode,
		Groups:     groups,
		AssignedBy: "teacher_agent",
		AssignedAt: time.Now().UTC(),
		LessonTurn: rt.LessonTurn,
	}
	rt.PendingTaskAssignment = false
	rec.record(session, models.EventTaskAssignmentSubmitted, "", "", map[string]any{
		"mode":       mode,
		"assignedBy": "teacher_agent",
		"lessonTurn": rt.LessonTurn,
	})
}

// resolveTeacherMode picks the cycle's teacher mode by priority.
func resolveTeacherMode(rt *models.ClassroomRuntime, alerts []string, jokeDue, nearEnd bool) models.TeacherMode {
	switch {
	case rt.ActiveClarification != nil:
		return models.TeacherClarificationDialog
	case len(alerts) > 0:
		return models.TeacherBehaviorIntervention
	case jokeDue:
		return models.TeacherEngagementJoke
	case nearEnd:
		return models.TeacherLessonClosure
	default:
		return models.TeacherLectureDelivery
	}
}

func (s *Service) teacherPromptInput(session *models.Session, snap *cycleSnapshot, cleaned string, alerts []string, trend boredomTrend, jokeDue, nearEnd bool, hint string) prompt.TeacherInput {
	rt := session.Runtime

	var signals []string
	for _, t := range session.LastTurns(8) {
		if t.Role == models.RoleAgent && t.AgentID != models.TeacherAgentID {
			signals = append(signals, fmt.Sprintf("%s: %s", displayName(session, t.AgentID), t.Content))
		}
	}
	if len(signals) > 4 {
		signals = signals[len(signals)-4:]
	}

	var snapshot []string
	if session.Channel == models.ChannelUnsupervised {
		for _, st := range session.Students() {
			snapshot = append(snapshot, fmt.Sprintf("%s: attentiveness %.1f, behavior %.1f, comprehension %.1f",
				st.DisplayName, st.State.Attentiveness, st.State.Behavior, st.State.Comprehension))
		}
	}

	var liveLines []string
	for _, st := range session.Students() {
		if st.State.LiveAction == nil {
			continue
		}
		liveLines = append(liveLines, fmt.Sprintf("%s is %s.", st.DisplayName, st.State.LiveAction.Label))
		if len(liveLines) == 10 {
			break
		}
	}

	nodeIDs := append([]string{models.TeacherAgentID}, snap.Responders...)
	var relLines []string
	for _, e := range session.Graph.TopEdgesFrom(nodeIDs, 5) {
		relLines = append(relLines, fmt.Sprintf("%s -> %s: %s, weight %.2f",
			displayName(session, e.From), displayName(session, e.To), e.Relationship, e.Weight))
	}

	var channelLines []string
	acts := session.Graph.CurrentTurnActivations
	if len(acts) > 6 {
		acts = acts[len(acts)-6:]
	}
	for _, a := range acts {
		channelLines = append(channelLines, fmt.Sprintf("%s -> %s (%s)",
			displayName(session, a.From), displayName(session, a.To), a.InteractionType))
	}

	in := prompt.TeacherInput{
		Topic:              session.Topic,
		Mode:               snap.TeacherMode,
		LessonTurn:         rt.LessonTurn,
		TotalTurns:         lesson.FractionsLessonTotalTurns,
		StepTitle:          snap.StepTitle,
		DeliveryGoal:       snap.DeliveryGoal,
		TaskContext:        prompt.DescribeTaskAssignment(rt.ActiveTaskAssignment, func(id string) string { return displayName(session, id) }),
		BoardActive:        rt.InteractiveBoardActive,
		Instruction:        cleaned,
		StudentSignals:     signals,
		StateSnapshot:      snapshot,
		LiveActionLines:    liveLines,
		Boredness:          &prompt.BorednessTrend{Average: trend.Average, Delta: trend.Delta, RiseStreak: trend.RiseStreak},
		BehaviorAlerts:     alerts,
		EngagementJokeDue:  jokeDue,
		RelationshipLines:  relLines,
		ActiveChannelLines: channelLines,
		NearEnd:            nearEnd,
		SupervisorHint:     hint,
	}
	if rt.ActiveKnowledgeCheck != nil {
		in.PendingCheck = rt.ActiveKnowledgeCheck.Question
	} else if rt.ActiveClarification == nil && rt.LessonTurn%3 == 0 {
		in.KnowledgeCheckDue = true
	}
	if c := rt.ActiveClarification; c != nil {
		in.Clarification = c.Question
		in.ClarifyingStudent = displayName(session, c.StudentID)
	}
	return in
}

// runCycle fans out the teacher and student jobs, staggering students by
// their planned delay, and returns the completions in completion order.
func (s *Service) runCycle(ctx context.Context, sessionID string, channel models.Channel, snap *cycleSnapshot) ([]completion, error) {
	var mu sync.Mutex
	var done []completion

	g, ctx := errgroup.WithContext(ctx)

	run := func(job cycleJob, runner agent.Runner, delay time.Duration) func() error {
		return func() error {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			res, err := runner.Run(ctx, &agent.Input{
				SessionID:        sessionID,
				RequestTurnID:    snap.RequestTurnID,
				AgentID:          job.AgentID,
				SystemPrompt:     job.SystemPrompt,
				UserPrompt:       job.UserPrompt,
				AllowedKnowledge: job.Knowledge,
				StateStimulus:    job.Stimulus,
				EmitToken: func(token string) {
					s.emitter.EmitAgentToken(channel, sessionID, job.AgentID, snap.RequestTurnID, token)
				},
			})
			if err != nil {
				return err
			}
			mu.Lock()
			done = append(done, completion{Job: job, Result: res})
			mu.Unlock()
			return nil
		}
	}

	g.Go(run(*snap.TeacherJob, s.teacher, 0))
	for _, job := range snap.StudentJobs {
		g.Go(run(job, s.student, time.Duration(job.DelayMs)*time.Millisecond))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return done, nil
}

// praiseCandidate is a student who answered an open knowledge check
// correctly and gets a public praise turn.
type praiseCandidate struct {
	StudentID   string
	DisplayName string
	Answer      string
}

// commitCycle applies the fan-out results: turns, activations, state patches,
// and boosts in completion order, then grades the student replies against the
// knowledge check. Grading is a separate pass so a student whose reply
// finished before the teacher's check-opening question is still evaluated.
func (s *Service) commitCycle(session *models.Session, rec *turnRecorder, snap *cycleSnapshot, completions []completion) []praiseCandidate {
	rt := session.Runtime

	for _, c := range completions {
		turn := models.Turn{
			ID:        uuid.New().String(),
			SessionID: session.ID,
			Role:      models.RoleAgent,
			AgentID:   c.Job.AgentID,
			Content:   c.Result.Message,
			CreatedAt: time.Now().UTC(),
			Metadata: models.TurnMetadata{
				RequestTurnID: snap.RequestTurnID,
				LessonTurn:    rt.LessonTurn,
				Extra:         c.Result.Metadata,
			},
		}

		if c.Job.AgentID == models.TeacherAgentID {
			turn.Metadata.TeacherMode = string(snap.TeacherMode)
			turn.Metadata.SpeechSeconds = lesson.SpeechSeconds(c.Result.Message, models.RoleTeacher)
			session.Turns = append(session.Turns, turn)
			s.commitTeacherResult(session, rec, snap, turn)
		} else {
			turn.Metadata.SpeechSeconds = lesson.SpeechSeconds(c.Result.Message, models.RoleAgent)
			session.Turns = append(session.Turns, turn)
			s.commitStudentResult(session, rec, snap, c, turn)
		}

		rec.record(session, models.EventAgentDone, turn.ID, c.Job.AgentID, map[string]any{
			"requestTurnId": snap.RequestTurnID,
		})
		s.emitter.EmitAgentTurn(rec.channel, session.ID, turn)
	}

	var praised []praiseCandidate
	for _, c := range completions {
		if c.Job.AgentID == models.TeacherAgentID {
			continue
		}
		if cand, ok := gradeAgainstCheck(session, c.Job, c.Result.Message); ok {
			praised = append(praised, cand)
		}
	}

	// Close an exhausted or expired knowledge check.
	if kc := rt.ActiveKnowledgeCheck; kc != nil {
		unresolved := 0
		for _, id := range kc.TargetStudentIDs {
			if !kc.Resolved(id) {
				unresolved++
			}
		}
		if unresolved == 0 || kc.Expired(rt.LessonTurn) {
			rt.ActiveKnowledgeCheck = nil
		}
	}
	return praised
}

// commitTeacherResult routes the finished teacher utterance through the
// graph: knowledge-check opening, clarification answers with their overhear
// broadcast, or a plain targeted delivery, plus the attentiveness boosts.
func (s *Service) commitTeacherResult(session *models.Session, rec *turnRecorder, snap *cycleSnapshot, turn models.Turn) {
	rt := session.Runtime
	message := turn.Content

	if question, ok := detectKnowledgeCheck(message); ok && rt.ActiveKnowledgeCheck == nil && snap.Clarification == nil {
		rt.ActiveKnowledgeCheck = &models.KnowledgeCheck{
			Question:         question,
			TargetStudentIDs: snap.Responders,
			ExpectedKeywords: expectedKeywords(session.Topic, snap.StepTitle, snap.DeliveryGoal),
			OpenedLessonTurn: rt.LessonTurn,
		}
		for _, id := range snap.Responders {
			_, _ = session.Graph.Activate(graph.ActivateInput{
				TurnID:          turn.ID,
				From:            models.TeacherAgentID,
				To:              id,
				InteractionType: graph.ActionTeacherQuestion,
				Payload:         graph.Payload{ActionType: graph.ActionTeacherQuestion, Text: message},
			})
		}
		rec.record(session, models.EventGraphEdgeActivated, turn.ID, models.TeacherAgentID, map[string]any{
			"interactionType": graph.ActionTeacherQuestion, "recipients": len(snap.Responders),
		})
	} else if c := snap.Clarification; c != nil {
		_, _ = session.Graph.Activate(graph.ActivateInput{
			TurnID:          turn.ID,
			From:            models.TeacherAgentID,
			To:              c.StudentID,
			InteractionType: graph.ActionTeacherToStudent,
			Payload:         graph.Payload{ActionType: graph.ActionTeacherToStudent, Text: message, Phase: "clarification_dialogue"},
		})
		if rt.ActiveClarification != nil {
			rt.ActiveClarification.ResponsesGiven++
		}
		// Non-asking students overhear a summary on a low-weight channel.
		summary := summarize(message)
		for _, st := range session.Students() {
			if st.ID == c.StudentID {
				continue
			}
			_, _ = session.Graph.Activate(graph.ActivateInput{
				TurnID:          turn.ID,
				From:            models.TeacherAgentID,
				To:              st.ID,
				InteractionType: graph.ActionTeacherBroadcast,
				Payload: graph.Payload{
					ActionType: graph.ActionTeacherBroadcast,
					Text:       summary,
					Confidence: "low",
					Phase:      "clarification_overhear",
				},
			})
		}
		rec.record(session, models.EventGraphEdgeActivated, turn.ID, models.TeacherAgentID, map[string]any{
			"interactionType": graph.ActionTeacherToStudent, "phase": "clarification_dialogue",
		})
	} else {
		for _, id := range snap.Responders {
			_, _ = session.Graph.Activate(graph.ActivateInput{
				TurnID:          turn.ID,
				From:            models.TeacherAgentID,
				To:              id,
				InteractionType: graph.ActionTeacherToStudent,
				Payload:         graph.Payload{ActionType: graph.ActionTeacherToStudent, Text: message},
			})
		}
		rec.record(session, models.EventGraphEdgeActivated, turn.ID, models.TeacherAgentID, map[string]any{
			"interactionType": graph.ActionTeacherToStudent, "recipients": len(snap.Responders),
		})
	}

	// Direct recipients re-engage; in a clarification the rest of the class
	// gets a small passive boost from listening in.
	boost := directBoostByMode[snap.TeacherMode]
	direct := make(map[string]bool, len(snap.Responders))
	if snap.Clarification != nil {
		direct[snap.Clarification.StudentID] = true
	} else {
		for _, id := range snap.Responders {
			direct[id] = true
		}
	}
	for _, st := range session.Students() {
		switch {
		case direct[st.ID]:
			memory.ApplyStatePatch(st, memory.StatePatch{AttentivenessDelta: boost})
		case snap.Clarification != nil:
			passive := 0.15 + 0.1*roll.Stable(session.ID, snap.RequestTurnID, st.ID, "passive_boost")
			memory.ApplyStatePatch(st, memory.StatePatch{AttentivenessDelta: passive})
		}
	}
}

// commitStudentResult appends the student's graph activation per the
// interaction plan and applies any agent-provided state patch.
func (s *Service) commitStudentResult(session *models.Session, rec *turnRecorder, snap *cycleSnapshot, c completion, turn models.Turn) {
	if c.Result.StatePatch != nil {
		if st := session.Agent(c.Job.AgentID); st != nil {
			memory.ApplyStatePatch(st, *c.Result.StatePatch)
		}
	}

	to := models.TeacherAgentID
	interaction := graph.ActionStudentToTeacher
	if c.Job.Plan.Action == actionTalkToPeer && c.Job.Plan.PeerTarget != "" {
		to = c.Job.Plan.PeerTarget
		interaction = graph.ActionStudentToStudent
	}
	_, _ = session.Graph.Activate(graph.ActivateInput{
		TurnID:          turn.ID,
		From:            c.Job.AgentID,
		To:              to,
		InteractionType: interaction,
		Payload:         graph.Payload{ActionType: interaction, Text: turn.Content},
	})
	rec.record(session, models.EventGraphEdgeActivated, turn.ID, c.Job.AgentID, map[string]any{
		"to": to, "interactionType": interaction,
	})
}

// gradeAgainstCheck evaluates one student reply against the open knowledge
// check and marks it resolved on a likely-correct answer.
func gradeAgainstCheck(session *models.Session, job cycleJob, answer string) (praiseCandidate, bool) {
	kc := session.Runtime.ActiveKnowledgeCheck
	if kc == nil || kc.Expired(session.Runtime.LessonTurn) {
		return praiseCandidate{}, false
	}
	target := false
	for _, id := range kc.TargetStudentIDs {
		if id == job.AgentID {
			target = true
			break
		}
	}
	if !target || kc.Resolved(job.AgentID) {
		return praiseCandidate{}, false
	}
	if _, correct := gradeCheckAnswer(answer, kc.ExpectedKeywords); !correct {
		return praiseCandidate{}, false
	}
	kc.ResolvedStudents = append(kc.ResolvedStudents, job.AgentID)
	return praiseCandidate{
		StudentID:   job.AgentID,
		DisplayName: job.DisplayName,
		Answer:      answer,
	}, true
}

// runPraiseTurn produces the public praise utterance for one correct answer
// and applies the praise effects.
func (s *Service) runPraiseTurn(ctx context.Context, id string, rec *turnRecorder, snap *cycleSnapshot, p praiseCandidate) error {
	var system, user string
	err := s.store.With(id, func(session *models.Session) error {
		in := s.teacherPromptInput(session, snap, "", nil, boredomTrend{}, false, false, "")
		in.Mode = models.TeacherKnowledgeCheckPraise
		in.PraiseStudent = p.DisplayName
		in.PendingCheck = ""
		in.KnowledgeCheckDue = false
		system, user = prompt.BuildTeacher(in)
		rec.record(session, models.EventAgentStarted, snap.RequestTurnID, models.TeacherAgentID, map[string]any{
			"teacherMode": string(models.TeacherKnowledgeCheckPraise),
		})
		return nil
	})
	if err != nil {
		return err
	}

	res, err := s.teacher.Run(ctx, &agent.Input{
		SessionID:     id,
		RequestTurnID: snap.RequestTurnID,
		AgentID:       models.TeacherAgentID,
		SystemPrompt:  system,
		UserPrompt:    user,
		EmitToken: func(token string) {
			s.emitter.EmitAgentToken(rec.channel, id, models.TeacherAgentID, snap.RequestTurnID, token)
		},
	})
	if err != nil {
		return err
	}

	return s.store.With(id, func(session *models.Session) error {
		rt := session.Runtime
		turn := models.Turn{
			ID:        uuid.New().String(),
			SessionID: session.ID,
			Role:      models.RoleAgent,
			AgentID:   models.TeacherAgentID,
			Content:   res.Message,
			CreatedAt: time.Now().UTC(),
			Metadata: models.TurnMetadata{
				RequestTurnID: snap.RequestTurnID,
				SpeechSeconds: lesson.SpeechSeconds(res.Message, models.RoleTeacher),
				LessonTurn:    rt.LessonTurn,
				TeacherMode:   string(models.TeacherKnowledgeCheckPraise),
			},
		}
		session.Turns = append(session.Turns, turn)

		if st := session.Agent(p.StudentID); st != nil {
			memory.ApplyStatePatch(st, memory.StatePatch{
				AttentivenessDelta: 0.7,
				BehaviorDelta:      0.45,
				ComprehensionDelta: 1,
			})
			now := time.Now().UTC()
			st.State.LiveAction = &models.LiveAction{
				Code: "task_focus", Kind: models.LiveActionOnTask,
				Label: "working on the task", Severity: "success", At: now,
			}
			st.State.DistractionStreak = 0
			st.State.PostPraiseFatigueTurns = minInt(st.State.PostPraiseFatigueTurns+3, 8)
			st.State.PostPraiseDecayBoost = clampRange(st.State.PostPraiseDecayBoost+0.1, 0, 0.5)
			rt.PendingDistractionCounts[st.ID] = 0
		}

		_, _ = session.Graph.Activate(graph.ActivateInput{
			TurnID:          turn.ID,
			From:            models.TeacherAgentID,
			To:              p.StudentID,
			InteractionType: graph.ActionTeacherPraise,
			Payload:         graph.Payload{ActionType: graph.ActionTeacherPraise, Text: res.Message},
		})
		rec.record(session, models.EventGraphEdgeActivated, turn.ID, models.TeacherAgentID, map[string]any{
			"to": p.StudentID, "interactionType": graph.ActionTeacherPraise,
		})
		rec.record(session, models.EventAgentDone, turn.ID, models.TeacherAgentID, map[string]any{
			"requestTurnId": snap.RequestTurnID, "teacherMode": string(models.TeacherKnowledgeCheckPraise),
		})
		s.emitter.EmitAgentTurn(rec.channel, session.ID, turn)
		return nil
	})
}

// closeCycle advances simulated time by this request's spoken seconds,
// applies the review-phase task review, and recomputes metrics.
func (s *Service) closeCycle(session *models.Session, rec *turnRecorder, snap *cycleSnapshot) {
	rt := session.Runtime

	var spoken float64
	var produced int
	for _, t := range session.Turns {
		if t.Metadata.RequestTurnID == snap.RequestTurnID {
			spoken += t.Metadata.SpeechSeconds
			produced++
		}
	}
	additional := spoken + float64(produced)*turnOverheadSeconds
	rt.SimulatedElapsedSeconds = clampRange(rt.SimulatedElapsedSeconds+additional, 0, rt.SimulatedTotalSeconds)
	if rt.SimulatedElapsedSeconds >= rt.SimulatedTotalSeconds-0.01 && !rt.Completed {
		now := time.Now().UTC()
		rt.Completed = true
		rt.Paused = true
		rt.CompletedAt = &now
		rt.CompletionReason = "simulated lesson time exhausted"
		rec.record(session, models.EventSessionCompleted, "", "", map[string]any{
			"reason": rt.CompletionReason,
		})
	}

	s.applyTaskReview(session, rec)
	recomputeMetrics(session)
}

// applyTaskReview grades every grouped student once per review lesson turn.
func (s *Service) applyTaskReview(session *models.Session, rec *turnRecorder) {
	rt := session.Runtime
	if rt.Phase != models.PhaseReview || rt.ActiveTaskAssignment == nil {
		return
	}
	if rt.LastReviewTurn != nil && *rt.LastReviewTurn == rt.LessonTurn {
		return
	}

	for _, g := range rt.ActiveTaskAssignment.Groups {
		for _, id := range g.StudentIDs {
			st := session.Agent(id)
			if st == nil {
				continue
			}
			signal := st.State.Attentiveness*0.35 + st.State.Comprehension*0.45 + st.State.Behavior*0.2
			solved := signal >= 5.5
			delta := 1.0
			if !solved {
				delta = -1.0
			}
			memory.ApplyStatePatch(st, memory.StatePatch{
				ComprehensionDelta: delta,
				BehaviorDelta:      delta,
			})
			_, _ = session.Graph.Activate(graph.ActivateInput{
				TurnID:          snapTurnID(session),
				From:            models.TeacherAgentID,
				To:              id,
				InteractionType: graph.ActionTaskFeedback,
				Payload: graph.Payload{
					ActionType: graph.ActionTaskFeedback,
					Solved:     &solved,
				},
			})
		}
	}
	turn := rt.LessonTurn
	rt.LastReviewTurn = &turn
	rec.record(session, models.EventTaskReviewCompleted, "", "", map[string]any{
		"lessonTurn": rt.LessonTurn,
	})
}

// snapTurnID returns the id of the transcript tail, the turn the review
// feedback hangs off.
func snapTurnID(session *models.Session) string {
	if len(session.Turns) == 0 {
		return ""
	}
	return session.Turns[len(session.Turns)-1].ID
}

func buildTurnResult(session *models.Session, requestTurnID string, events []models.SessionEvent) *models.TurnResult {
	metrics := session.Metrics
	metrics.TurnCount = len(session.Turns)
	return &models.TurnResult{
		TurnID:     requestTurnID,
		Transcript: session.LastTurns(transcriptWindow),
		Events:     events,
		Metrics:    metrics,
		Graph:      session.Graph,
	}
}

func displayName(session *models.Session, id string) string {
	if id == "" {
		return ""
	}
	if a := session.Agent(id); a != nil {
		return a.DisplayName
	}
	return id
}

func summarize(text string) string {
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			return text[:i+1]
		}
	}
	if len(text) > 140 {
		return text[:137] + "..."
	}
	return text
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
