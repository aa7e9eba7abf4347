package prompt

import (
	"fmt"
	"strings"

	"github.com/edusim/classsim/pkg/models"
)

// BorednessTrend summarizes the class boredom signal for the teacher.
type BorednessTrend struct {
	Average    float64
	Delta      float64
	RiseStreak int
}

// TeacherInput carries everything the teacher prompt is assembled from.
// Absent fields drop their lines; the line order below is the contract.
type TeacherInput struct {
	Topic              string
	Mode               models.TeacherMode
	LessonTurn         int
	TotalTurns         int
	StepTitle          string
	DeliveryGoal       string
	TaskContext        string // describeTaskAssignment output, or empty
	BoardActive        bool
	Instruction        string // the inbound supervised/cleaned message
	StudentSignals     []string
	StateSnapshot      []string // per-student state lines, unsupervised only
	LiveActionLines    []string // at most 10
	Boredness          *BorednessTrend
	BehaviorAlerts     []string
	EngagementJokeDue  bool
	PendingCheck       string // open knowledge-check question
	KnowledgeCheckDue  bool   // every 3rd lesson turn when idle
	RelationshipLines  []string // top 5 by weight
	ActiveChannelLines []string // last 6 this cycle
	Clarification      string   // the asking student's question
	ClarifyingStudent  string
	NearEnd            bool
	SupervisorHint     string
	PraiseStudent      string // display name, praise mode only
}

// BuildTeacher assembles the system and user prompts for one teacher cycle.
func BuildTeacher(in TeacherInput) (system, user string) {
	system = NewBuilder().
		Addf("You are the teacher of a simulated classroom lesson about %s.", in.Topic).
		Add("Speak naturally to the class in one short paragraph. Never break character.").
		String()

	b := NewBuilder().
		Addf("Teacher mode: %s", in.Mode).
		Addf("Lesson turn %d of %d.", in.LessonTurn, in.TotalTurns).
		Addf("Lesson focus: %s.", strings.TrimRight(in.StepTitle, ".")).
		Addf("Delivery goal: %s", in.DeliveryGoal)

	if in.TaskContext != "" {
		b.Addf("Task context: %s", in.TaskContext)
	} else {
		b.Add("Task context: No active task assignment.")
	}
	b.Maybe(in.BoardActive, "The interactive board is active; reference it when useful.").
		MaybeStr(maybePrefixed("Incoming instruction: ", in.Instruction))

	if len(in.StudentSignals) > 0 {
		b.Add("Recent student signals:").AddAll(in.StudentSignals)
	}
	if len(in.StateSnapshot) > 0 {
		b.Add("Student state snapshot:").AddAll(in.StateSnapshot)
	}
	if len(in.LiveActionLines) > 0 {
		b.Add("Live classroom actions:").AddAll(in.LiveActionLines)
	}
	if in.Boredness != nil {
		b.Addf("Boredness trend: average %.1f, change %+.2f, rise streak %d.",
			in.Boredness.Average, in.Boredness.Delta, in.Boredness.RiseStreak)
	}
	if len(in.BehaviorAlerts) > 0 {
		b.AddAll(in.BehaviorAlerts).
			Add("Behavior rule: redirect the flagged students by name before continuing the lesson.")
	}
	b.Maybe(in.EngagementJokeDue,
		"Engagement rule: the class is drifting, open with one short, kind joke before continuing.").
		MaybeStr(maybePrefixed("Pending knowledge check, do not ask a new question: ", in.PendingCheck)).
		Maybe(in.KnowledgeCheckDue,
			"Ask one short check question about the current step to a few students.")

	if len(in.RelationshipLines) > 0 {
		b.Add("Relationship signals:").AddAll(in.RelationshipLines)
	}
	if len(in.ActiveChannelLines) > 0 {
		b.Add("Active channels this cycle:").AddAll(in.ActiveChannelLines)
	}
	if in.Clarification != "" {
		b.Addf("%s asked: %q", in.ClarifyingStudent, in.Clarification).
			Add("Answer this question directly and address only that student this turn.")
	}
	b.Maybe(in.NearEnd, "The lesson is nearly over: begin wrapping up toward a closing summary.").
		MaybeStr(maybePrefixed("Supervisor hint: ", in.SupervisorHint)).
		MaybeStr(maybePrefixed("Praise student: ", in.PraiseStudent)).
		Add("Output one teacher utterance now.")

	return system, b.String()
}

func maybePrefixed(prefix, s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return prefix + s
}

// DescribeTaskAssignment renders a task assignment for prompt context.
func DescribeTaskAssignment(t *models.TaskAssignment, nameOf func(string) string) string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Groups))
	for _, g := range t.Groups {
		names := make([]string, 0, len(g.StudentIDs))
		for _, id := range g.StudentIDs {
			names = append(names, nameOf(id))
		}
		parts = append(parts, strings.Join(names, ", "))
	}
	return fmt.Sprintf("%s task assigned by %s: %s", t.Mode, t.AssignedBy, strings.Join(parts, " | "))
}
