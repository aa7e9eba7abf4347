package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/edusim/classsim/pkg/roll"
)

// Mock is a deterministic Tool: the same prompt pair and seed always yield
// the same text. It recognizes the directive markers the prompt builders
// emit and answers in kind, so a full classroom cycle runs without any
// provider credentials.
type Mock struct {
	seed string
}

// NewMock creates a deterministic mock tool with the given seed.
func NewMock(seed string) *Mock {
	if seed == "" {
		seed = "classsim"
	}
	return &Mock{seed: seed}
}

var (
	focusLine     = regexp.MustCompile(`(?m)^Lesson focus: (.+)$`)
	knowledgeLine = regexp.MustCompile(`(?m)^Direct graph message: (.+)$`)
	overheardLine = regexp.MustCompile(`(?m)^Overheard graph message \(low weight\): (.+)$`)
	modeLine      = regexp.MustCompile(`(?m)^Teacher mode: (\w+)$`)
	praiseLine    = regexp.MustCompile(`(?m)^Praise student: (.+)$`)
)

var checkQuestions = []string{
	"Quick check: what is 1/2 of 6, and how does the denominator tell you how many equal parts to make?",
	"Can someone explain which number is the numerator in 3/4 and what it counts?",
	"What fraction of 8 slices is 2 slices, and why does the denominator matter here?",
}

var teacherTemplates = map[string][]string{
	"lecture_delivery": {
		"Let's keep going with %s. Picture a whole split into equal parts; the fraction just names how many of those parts we take.",
		"Back to %s. Remember, the bottom number counts the equal parts and the top number counts how many we shaded.",
		"So, %s. Watch the board: if I cut this bar into four equal pieces, each piece is one fourth.",
	},
	"clarification_dialogue": {
		"Great question. The numerator is the top number: it counts how many equal parts we are talking about, while the denominator below counts how many parts make the whole.",
		"Let me slow down on that. Think of a pizza cut into equal slices; the bottom number says how many slices the pizza has, the top number says how many are yours.",
	},
	"behavior_intervention": {
		"Eyes up here, please. I need everyone back with me before we move on, and I'll come around to check your work in a moment.",
		"Let's refocus. Put the pens down and look at the board; this next part matters for your task.",
	},
	"engagement_joke": {
		"Why did 1/5 go to the spa? Because it needed to relax and be reduced! Alright, back to our fractions.",
		"What did the numerator say to the denominator? You can count on me! Okay, let's keep our energy up.",
	},
	"knowledge_check_praise": {
		"Excellent reasoning, %s! You used the denominator exactly right, everyone take note of how that answer was built.",
		"That is exactly it, %s, well done! Splitting the whole into equal parts first is the key move.",
	},
	"lesson_closure": {
		"We're almost out of time, so let's land this: today we saw what fractions are, how the numerator and denominator work, and where fractions show up around us. Great work, everyone.",
		"Before the bell: remember that a fraction names equal parts of a whole. Think of one place you'll spot a fraction before tomorrow.",
	},
}

var studentUncertain = []string{
	"I'm not sure, I didn't catch that part.",
	"Sorry, I don't really know, I missed what was said.",
	"Hmm, I can't answer that, I didn't hear the explanation.",
}

var studentAnswers = []string{
	"I think %s So the denominator tells how many equal parts there are.",
	"From what I heard, %s That means we count the shaded parts on top.",
	"I remember that %s So 1/2 of 6 is 3 because we split it into equal parts.",
}

// Generate produces a deterministic utterance keyed on the prompt markers.
func (m *Mock) Generate(ctx context.Context, in Input) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := m.compose(in.SystemPrompt, in.UserPrompt)
	if in.EmitToken != nil {
		for i, w := range strings.Fields(text) {
			if i > 0 {
				in.EmitToken(" ")
			}
			in.EmitToken(w)
		}
	}
	return text, nil
}

func (m *Mock) compose(system, user string) string {
	prompt := system + "\n" + user
	pick := func(options []string) string {
		return options[roll.Pick(len(options), m.seed, prompt)]
	}

	// Student prompts carry graph-memory lines; handle them first.
	if strings.Contains(system, "You are a student") {
		direct := knowledgeLine.FindAllStringSubmatch(user, -1)
		overheard := overheardLine.FindAllStringSubmatch(user, -1)
		if len(direct) == 0 && len(overheard) == 0 {
			return pick(studentUncertain)
		}
		var source string
		if len(direct) > 0 {
			source = direct[len(direct)-1][1]
		} else {
			source = overheard[len(overheard)-1][1]
		}
		source = strings.TrimSpace(source)
		if !strings.HasSuffix(source, ".") && !strings.HasSuffix(source, "?") && !strings.HasSuffix(source, "!") {
			source += "."
		}
		return strings.ReplaceAll(pick(studentAnswers), "%s", sentenceCase(source))
	}

	if strings.Contains(strings.ToLower(prompt), "ask one short check question") {
		return pick(checkQuestions)
	}

	mode := "lecture_delivery"
	if mm := modeLine.FindStringSubmatch(user); mm != nil {
		mode = mm[1]
	}
	templates, ok := teacherTemplates[mode]
	if !ok {
		templates = teacherTemplates["lecture_delivery"]
	}
	tpl := pick(templates)

	if strings.Contains(tpl, "%s") {
		arg := "our lesson"
		switch mode {
		case "knowledge_check_praise":
			if nm := praiseLine.FindStringSubmatch(user); nm != nil {
				arg = nm[1]
			}
		default:
			if fm := focusLine.FindStringSubmatch(user); fm != nil {
				arg = strings.ToLower(strings.TrimRight(fm[1], "."))
			}
		}
		return strings.ReplaceAll(tpl, "%s", arg)
	}
	return tpl
}

func sentenceCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// Close implements Tool.
func (m *Mock) Close() error { return nil }
