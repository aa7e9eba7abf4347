package prompt

import (
	"strings"

	"github.com/edusim/classsim/pkg/models"
)

// StudentInput carries everything a student prompt is assembled from.
type StudentInput struct {
	DisplayName      string
	Kind             models.AgentKind
	ModeBanner       string   // graph-driven mode, e.g. "answering the teacher"
	TaskContext      string   // truncated assignment context
	AllowedKnowledge []string // "Direct graph message:" / "Overheard graph message (low weight):" lines
	StateStimulus    string
}

// maxTaskContextChars truncates assignment context so it never dominates the
// prompt.
const maxTaskContextChars = 160

// BuildStudent assembles the system and user prompts for one student cycle.
// Line order: identity, mode banner, task context, knowledge rule, memory
// lines, memory count, stimulus, closing directive.
func BuildStudent(in StudentInput) (system, user string) {
	system = NewBuilder().
		Addf("You are a student named %s in a simulated classroom.", in.DisplayName).
		Addf("Your learner profile is %s. Answer in one or two short sentences, in character.", in.Kind).
		String()

	task := in.TaskContext
	if len(task) > maxTaskContextChars {
		task = task[:maxTaskContextChars-3] + "..."
	}

	b := NewBuilder().
		MaybeStr(maybePrefixed("Right now you are ", in.ModeBanner)).
		MaybeStr(maybePrefixed("Task context: ", task)).
		Add("Answer using only direct messages addressed to you; overheard lines are unreliable.").
		AddAll(in.AllowedKnowledge).
		Addf("You have %d memory items.", len(in.AllowedKnowledge)).
		Maybe(len(in.AllowedKnowledge) == 0,
			"You heard nothing this turn: say that you are unsure instead of inventing an answer.").
		MaybeStr(maybePrefixed("What just reached you: ", strings.TrimSpace(in.StateStimulus))).
		Add("Reply with one student utterance now.")

	return system, b.String()
}
