package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edusim/classsim/pkg/agent"
	"github.com/edusim/classsim/pkg/agent/prompt"
	"github.com/edusim/classsim/pkg/graph"
	"github.com/edusim/classsim/pkg/lesson"
	"github.com/edusim/classsim/pkg/models"
	"github.com/edusim/classsim/pkg/rubric"
)

// debateHistoryTurns is how many trailing turns feed the debate prompt.
const debateHistoryTurns = 10

// processDebateTurn runs one debate exchange: safety, the user's argument,
// one teacher rebuttal, and a rubric score over the pair.
func (s *Service) processDebateTurn(ctx context.Context, id, message string, rec *turnRecorder) (*models.TurnResult, error) {
	requestTurnID := uuid.New().String()

	var topic string
	var system, user string
	var early *models.TurnResult
	err := s.store.With(id, func(session *models.Session) error {
		topic = session.Topic
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
			early = buildTurnResult(session, requestTurnID, rec.events)
			return nil
		}
		if len(verdict.Flags) > 0 {
			rec.record(session, models.EventSafetyNotice, requestTurnID, "", map[string]any{
				"flags":   verdict.Flags,
				"blocked": false,
			})
		}

		session.Turns = append(session.Turns, models.Turn{
			ID:        requestTurnID,
			SessionID: session.ID,
			Role:      models.RoleUser,
			Content:   verdict.CleanedText,
			CreatedAt: time.Now().UTC(),
			Metadata:  models.TurnMetadata{RequestTurnID: requestTurnID},
		})
		_, _ = session.Graph.Activate(graph.ActivateInput{
			TurnID:          requestTurnID,
			From:            "user",
			To:              models.TeacherAgentID,
			InteractionType: graph.ActionStudentToTeacher,
			Payload:         graph.Payload{ActionType: graph.ActionStudentToTeacher, Text: verdict.CleanedText},
		})

		var history []string
		for _, t := range session.LastTurns(debateHistoryTurns) {
			switch t.Role {
			case models.RoleUser:
				history = append(history, "Opponent: "+t.Content)
			case models.RoleAgent:
				history = append(history, "You: "+t.Content)
			}
		}
		system, user = prompt.BuildDebate(prompt.DebateInput{
			Topic:       topic,
			History:     history,
			UserMessage: verdict.CleanedText,
		})
		rec.record(session, models.EventAgentStarted, requestTurnID, models.TeacherAgentID, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if early != nil {
		return early, nil
	}

	res, err := s.teacher.Run(ctx, &agent.Input{
		SessionID:     id,
		RequestTurnID: requestTurnID,
		AgentID:       models.TeacherAgentID,
		SystemPrompt:  system,
		UserPrompt:    user,
		EmitToken: func(token string) {
			s.emitter.EmitAgentToken(rec.channel, id, models.TeacherAgentID, requestTurnID, token)
		},
	})
	if err != nil {
		_ = s.store.RollbackTurn(id, requestTurnID)
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	var result *models.TurnResult
	err = s.store.With(id, func(session *models.Session) error {
		turn := models.Turn{
			ID:        uuid.New().String(),
			SessionID: session.ID,
			Role:      models.RoleAgent,
			AgentID:   models.TeacherAgentID,
			Content:   res.Message,
			CreatedAt: time.Now().UTC(),
			Metadata: models.TurnMetadata{
				RequestTurnID: requestTurnID,
				SpeechSeconds: lesson.SpeechSeconds(res.Message, models.RoleTeacher),
			},
		}
		session.Turns = append(session.Turns, turn)
		_, _ = session.Graph.Activate(graph.ActivateInput{
			TurnID:          turn.ID,
			From:            models.TeacherAgentID,
			To:              "user",
			InteractionType: graph.ActionTeacherToStudent,
			Payload:         graph.Payload{ActionType: graph.ActionTeacherToStudent, Text: res.Message},
		})
		rec.record(session, models.EventAgentDone, turn.ID, models.TeacherAgentID, map[string]any{
			"requestTurnId": requestTurnID,
		})
		s.emitter.EmitAgentTurn(rec.channel, session.ID, turn)

		scores := rubric.ScoreDebate(session.Topic, message, res.Message)
		rec.record(session, models.EventScoreUpdate, requestTurnID, "", map[string]any{
			"argumentStrength": scores.ArgumentStrength,
			"evidenceUse":      scores.EvidenceUse,
			"clarity":          scores.Clarity,
			"rebuttal":         scores.Rebuttal,
			"overall":          scores.Overall,
			"feedback":         scores.Feedback,
		})

		// Running average over the session's score updates.
		n := 0
		for _, e := range session.Events {
			if e.Type == models.EventScoreUpdate {
				n++
			}
		}
		prev := session.Metrics.DebateOverall
		session.Metrics.DebateOverall = models.Round1((prev*float64(n-1) + scores.Overall) / float64(n))

		result = buildTurnResult(session, requestTurnID, rec.events)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitter.EmitTurnProcessed(rec.channel, id, requestTurnID, result.Metrics)
	return result, nil
}
