package orchestrator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/edusim/classsim/pkg/memory"
	"github.com/edusim/classsim/pkg/models"
)

// TaskAssignmentInput is the supervisor's (or teacher agent's) grouping
// request for the practice phase.
type TaskAssignmentInput struct {
	Mode               models.TaskMode    `json:"mode"`
	Groups             []models.TaskGroup `json:"groups,omitempty"`
	AutonomousGrouping bool               `json:"autonomousGrouping,omitempty"`
	AssignedBy         string             `json:"assignedBy,omitempty"`
}

// SubmitTaskAssignment normalizes and installs a task assignment, clears the
// pending flag, and unpauses the session. Classroom mode only.
func (s *Service) SubmitTaskAssignment(id string, in TaskAssignmentInput) error {
	if in.AssignedBy == "" {
		in.AssignedBy = "supervisor_user"
	}

	var channel models.Channel
	var lessonTurn int
	err := s.store.With(id, func(session *models.Session) error {
		if session.Mode != models.ModeClassroom || session.Runtime == nil {
			return fmt.Errorf("%w: task assignments require classroom mode", ErrPreconditionFailed)
		}
		channel = session.Channel
		lessonTurn = session.Runtime.LessonTurn

		studentIDs := make([]string, 0, len(session.Agents))
		for _, a := range session.Students() {
			studentIDs = append(studentIDs, a.ID)
		}

		var groups []models.TaskGroup
		var err error
		if in.AutonomousGrouping {
			groups, err = buildGroups(in.Mode, studentIDs)
		} else {
			groups, err = normalizeGroups(in.Mode, in.Groups, studentIDs)
		}
		if err != nil {
			return err
		}

		next := *session.Runtime
		next.ActiveTaskAssignment = &models.TaskAssignment{
			Mode:       in.Mode,
			Groups:     groups,
			AssignedBy: in.AssignedBy,
			AssignedAt: time.Now().UTC(),
			LessonTurn: next.LessonTurn,
		}
		next.PendingTaskAssignment = false
		next.Paused = false
		session.Runtime = &next
		return nil
	})
	if errors.Is(err, memory.ErrSessionNotFound) {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	evt := s.newEvent(id, models.EventTaskAssignmentSubmitted, "", "", map[string]any{
		"mode":       in.Mode,
		"assignedBy": in.AssignedBy,
		"lessonTurn": lessonTurn,
	})
	if err := s.store.AppendEvents(id, []models.SessionEvent{evt}); err != nil {
		return err
	}
	s.emitter.EmitEvent(channel, evt)
	return nil
}

// normalizeGroups validates supervisor-supplied groups against the roster.
// Individual mode ignores the input and always yields one group per student.
func normalizeGroups(mode models.TaskMode, groups []models.TaskGroup, studentIDs []string) ([]models.TaskGroup, error) {
	switch mode {
	case models.TaskIndividual:
		return buildGroups(mode, studentIDs)
	case models.TaskPair, models.TaskModeGroup:
	default:
		return nil, NewValidationError("mode", fmt.Sprintf("unknown task mode %q", mode))
	}

	if len(groups) == 0 {
		return nil, NewValidationError("groups", "groups are required for pair and group mode")
	}

	known := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		known[id] = true
	}

	seen := make(map[string]bool)
	out := make([]models.TaskGroup, 0, len(groups))
	for i, g := range groups {
		if len(g.StudentIDs) == 0 {
			return nil, NewValidationError("groups", fmt.Sprintf("group %d is empty", i+1))
		}
		if mode == models.TaskPair && len(g.StudentIDs) > 2 {
			return nil, NewValidationError("groups", fmt.Sprintf("pair group %d has more than 2 students", i+1))
		}
		for _, id := range g.StudentIDs {
			if !known[id] {
				return nil, NewValidationError("groups", fmt.Sprintf("unknown student %q", id))
			}
			if seen[id] {
				return nil, NewValidationError("groups", fmt.Sprintf("student %q appears in more than one group", id))
			}
			seen[id] = true
		}
		gid := g.ID
		if gid == "" {
			gid = uuid.New().String()
		}
		out = append(out, models.TaskGroup{ID: gid, StudentIDs: g.StudentIDs})
	}
	return out, nil
}

// buildGroups builds autonomous groups: one per student for individual,
// round-robin pairs, or max(2, ceil(N/3)) round-robin groups.
func buildGroups(mode models.TaskMode, studentIDs []string) ([]models.TaskGroup, error) {
	n := len(studentIDs)
	if n == 0 {
		return nil, NewValidationError("groups", "session has no students")
	}

	var groupCount int
	switch mode {
	case models.TaskIndividual:
		groupCount = n
	case models.TaskPair:
		groupCount = (n + 1) / 2
	case models.TaskModeGroup:
		groupCount = int(math.Max(2, math.Ceil(float64(n)/3)))
		if groupCount > n {
			groupCount = n
		}
	default:
		return nil, NewValidationError("mode", fmt.Sprintf("unknown task mode %q", mode))
	}

	groups := make([]models.TaskGroup, groupCount)
	for i := range groups {
		groups[i].ID = uuid.New().String()
	}
	for i, id := range studentIDs {
		g := &groups[i%groupCount]
		g.StudentIDs = append(g.StudentIDs, id)
	}
	return groups, nil
}
