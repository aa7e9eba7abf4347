package orchestrator

import (
	"regexp"
	"strings"

	"github.com/edusim/classsim/pkg/models"
)

// questionStems holds the locale-specific interrogative stems used for
// clarification detection. Localization stays data-driven: add a stem set
// instead of branching on language.
var questionStems = map[string][]string{
	"en": {"what", "why", "how", "which", "who", "can you", "could you"},
	"hu": {"miért", "hogyan", "melyik", "segít", "mit jelent"},
}

// clarificationLookback is how many trailing turns are scanned for an open
// student question.
const clarificationLookback = 6

// looksLikeQuestion reports whether a student utterance reads as a question.
func looksLikeQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	lower := strings.ToLower(text)
	for _, stems := range questionStems {
		for _, stem := range stems {
			if strings.HasPrefix(lower, stem+" ") {
				return true
			}
		}
	}
	return false
}

// detectClarification scans recent history for the latest unanswered student
// question and opens a clarification sub-state for it. Idempotent per
// question turn: a question already clarified never reopens.
func detectClarification(session *models.Session) {
	rt := session.Runtime
	if rt.ActiveClarification != nil {
		if rt.LessonTurn > rt.ActiveClarification.OpenedLessonTurn+2 ||
			rt.ActiveClarification.ResponsesGiven >= rt.ActiveClarification.RequiredResponseCount {
			rt.ActiveClarification = nil
		} else {
			return
		}
	}

	turns := session.LastTurns(clarificationLookback)
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if t.Role != models.RoleAgent || t.AgentID == models.TeacherAgentID {
			continue
		}
		if !looksLikeQuestion(t.Content) {
			continue
		}
		if t.ID == rt.LastClarifiedQuestionTurnID {
			return // newest question was already handled
		}
		student := session.Agent(t.AgentID)
		if student == nil {
			return
		}
		required := 1
		if student.State.Comprehension < 5 {
			required = 2
		}
		rt.ActiveClarification = &models.Clarification{
			StudentID:             t.AgentID,
			QuestionTurnID:        t.ID,
			Question:              strings.TrimSpace(t.Content),
			RequiredResponseCount: required,
			OpenedLessonTurn:      rt.LessonTurn,
		}
		rt.LastClarifiedQuestionTurnID = t.ID
		return
	}
}

// Knowledge-check keyword set: a teacher utterance qualifies as a check when
// it asks a question and touches one of these.
var checkKeywords = []string{
	"what", "why", "how", "which", "can", "explain", "compare", "define",
	"numerator", "denominator", "fraction",
}

var questionSentence = regexp.MustCompile(`[^.!?]*\?`)

// detectKnowledgeCheck decides whether a teacher utterance opens a knowledge
// check, returning the stored question sentence.
func detectKnowledgeCheck(text string) (question string, ok bool) {
	if !strings.Contains(text, "?") {
		return "", false
	}
	lower := strings.ToLower(text)
	matched := false
	for _, kw := range checkKeywords {
		if strings.Contains(lower, kw) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}
	q := strings.TrimSpace(questionSentence.FindString(text))
	if q == "" {
		return "", false
	}
	return q, true
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "into": true, "from": true, "are": true, "our": true,
	"one": true, "their": true, "them": true, "its": true, "using": true,
	"let": true, "lets": true, "like": true, "show": true, "each": true,
}

// expectedKeywords derives the grading vocabulary of a knowledge check: the
// first 10 distinct non-stopword tokens of topic + step title + goal.
func expectedKeywords(topic, stepTitle, deliveryGoal string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(strings.ToLower(topic + " " + stepTitle + " " + deliveryGoal)) {
		w = strings.Trim(w, ".,!?:;\"'()")
		if len(w) < 4 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == 10 {
			break
		}
	}
	return out
}

var fractionToken = regexp.MustCompile(`\b\d+\s*/\s*\d+\b`)

var reasoningCues = []string{"because", "so that", "which means", "that means", "equal parts", "mert", "tehát"}

var dontKnowPatterns = []string{
	"i don't know", "i dont know", "not sure", "no idea", "i can't answer",
	"nem tudom",
}

// gradeCheckAnswer scores one reply against an open knowledge check.
// Threshold for "likely correct" is 0.9.
func gradeCheckAnswer(answer string, keywords []string) (score float64, correct bool) {
	lower := strings.ToLower(answer)
	for _, p := range dontKnowPatterns {
		if strings.Contains(lower, p) {
			return 0, false
		}
	}

	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	score = 0.45 * float64(hits)
	if fractionToken.MatchString(answer) {
		score += 0.45
	}
	for _, cue := range reasoningCues {
		if strings.Contains(lower, cue) {
			score += 0.40
			break
		}
	}
	if len(strings.Fields(answer)) >= 6 {
		score += 0.30
	}
	return score, score >= 0.9
}
