package models

import "time"

// Phase is the coarse lesson phase derived from the lesson turn.
type Phase string

const (
	PhaseLecture  Phase = "lecture"
	PhasePractice Phase = "practice"
	PhaseReview   Phase = "review"
)

// TaskMode is the grouping mode of a task assignment.
type TaskMode string

const (
	TaskIndividual TaskMode = "individual"
	TaskPair       TaskMode = "pair"
	TaskModeGroup  TaskMode = "group"
)

// TaskGroup is one group of students working a task together.
type TaskGroup struct {
	ID         string   `json:"id"`
	StudentIDs []string `json:"studentIds"`
}

// TaskAssignment is the practice-phase work assignment.
type TaskAssignment struct {
	Mode       TaskMode    `json:"mode"`
	Groups     []TaskGroup `json:"groups"`
	AssignedBy string      `json:"assignedBy"` // supervisor_user | teacher_agent
	AssignedAt time.Time   `json:"assignedAt"`
	LessonTurn int         `json:"lessonTurn"`
}

// KnowledgeCheck is an open teacher question graded by keyword match.
type KnowledgeCheck struct {
	Question         string   `json:"question"`
	TargetStudentIDs []string `json:"targetStudentIds"`
	ExpectedKeywords []string `json:"expectedKeywords"`
	OpenedLessonTurn int      `json:"openedLessonTurn"`
	ResolvedStudents []string `json:"resolvedStudents,omitempty"`
}

// Resolved reports whether the given student already answered correctly.
func (k *KnowledgeCheck) Resolved(studentID string) bool {
	for _, id := range k.ResolvedStudents {
		if id == studentID {
			return true
		}
	}
	return false
}

// Expired reports whether the check aged out at the given lesson turn.
func (k *KnowledgeCheck) Expired(lessonTurn int) bool {
	return lessonTurn > k.OpenedLessonTurn+2
}

// Clarification is the sub-state where one student's question pins the next
// cycle to that student until the teacher has explained enough.
type Clarification struct {
	StudentID             string `json:"studentId"`
	QuestionTurnID        string `json:"questionTurnId"`
	Question              string `json:"question"`
	RequiredResponseCount int    `json:"requiredResponseCount"`
	ResponsesGiven        int    `json:"responsesGiven"`
	OpenedLessonTurn      int    `json:"openedLessonTurn"`
}

// DefaultSimulatedTotalSeconds is the default simulated lesson length (45 min).
const DefaultSimulatedTotalSeconds = 2700

// ClassroomRuntime is the classroom-mode simulation state of a session.
type ClassroomRuntime struct {
	LessonTurn                  int             `json:"lessonTurn"`
	Phase                       Phase           `json:"phase"`
	Paused                      bool            `json:"paused"`
	Completed                   bool            `json:"completed"`
	CompletedAt                 *time.Time      `json:"completedAt,omitempty"`
	CompletionReason            string          `json:"completionReason,omitempty"`
	PendingTaskAssignment       bool            `json:"pendingTaskAssignment"`
	ActiveTaskAssignment        *TaskAssignment `json:"activeTaskAssignment,omitempty"`
	InteractiveBoardActive      bool            `json:"interactiveBoardActive"`
	SimulatedElapsedSeconds     float64         `json:"simulatedElapsedSeconds"`
	SimulatedTotalSeconds       float64         `json:"simulatedTotalSeconds"`
	PendingDistractionCounts    map[string]int  `json:"pendingDistractionCounts,omitempty"`
	PreviousAverageBoredness    *float64        `json:"previousAverageBoredness,omitempty"`
	BoredomRiseStreak           int             `json:"boredomRiseStreak"`
	LastEngagementJokeTurn      *int            `json:"lastEngagementJokeTurn,omitempty"`
	ActiveKnowledgeCheck        *KnowledgeCheck `json:"activeKnowledgeCheck,omitempty"`
	ActiveClarification         *Clarification  `json:"activeClarification,omitempty"`
	LastClarifiedQuestionTurnID string          `json:"lastClarifiedQuestionTurnId,omitempty"`
	LastReviewTurn              *int            `json:"lastReviewTurn,omitempty"`
}

// NewClassroomRuntime returns the initial runtime for a classroom session.
func NewClassroomRuntime(totalSeconds float64) *ClassroomRuntime {
	if totalSeconds <= 0 {
		totalSeconds = DefaultSimulatedTotalSeconds
	}
	return &ClassroomRuntime{
		LessonTurn:               1,
		Phase:                    PhaseLecture,
		SimulatedTotalSeconds:    totalSeconds,
		PendingDistractionCounts: make(map[string]int),
	}
}
