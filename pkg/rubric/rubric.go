// Package rubric scores debate exchanges. Used only in debate mode.
package rubric

import (
	"strings"

	"github.com/edusim/classsim/pkg/models"
)

// Scores is one debate rubric evaluation on the 0-10 scale.
type Scores struct {
	ArgumentStrength float64 `json:"argumentStrength"`
	EvidenceUse      float64 `json:"evidenceUse"`
	Clarity          float64 `json:"clarity"`
	Rebuttal         float64 `json:"rebuttal"`
	Overall          float64 `json:"overall"`
	Feedback         string  `json:"feedback"`
}

var evidenceCues = []string{"because", "for example", "studies", "research", "data", "evidence", "according to"}
var rebuttalCues = []string{"however", "but", "on the other hand", "while", "although", "counter"}

// ScoreDebate grades one user/teacher exchange with a keyword and structure
// heuristic. Deterministic so sessions replay identically.
func ScoreDebate(topic, userMessage, teacherMessage string) Scores {
	lower := strings.ToLower(userMessage)
	words := len(strings.Fields(userMessage))

	argument := 3.0
	if words >= 12 {
		argument += 2
	}
	if words >= 30 {
		argument += 1.5
	}
	for _, w := range strings.Fields(strings.ToLower(topic)) {
		if len(w) > 3 && strings.Contains(lower, w) {
			argument += 1.5
			break
		}
	}

	evidence := 2.0
	for _, cue := range evidenceCues {
		if strings.Contains(lower, cue) {
			evidence += 2
		}
	}

	clarity := 8.0
	if words > 80 {
		clarity -= 2
	}
	if words < 6 {
		clarity -= 3
	}

	rebuttal := 2.0
	for _, cue := range rebuttalCues {
		if strings.Contains(lower, cue) {
			rebuttal += 2.5
		}
	}

	s := Scores{
		ArgumentStrength: clamp10(argument),
		EvidenceUse:      clamp10(evidence),
		Clarity:          clamp10(clarity),
		Rebuttal:         clamp10(rebuttal),
	}
	s.Overall = models.Round1((s.ArgumentStrength + s.EvidenceUse + s.Clarity + s.Rebuttal) / 4)
	s.Feedback = feedback(s)
	return s
}

func feedback(s Scores) string {
	switch {
	case s.Overall >= 7.5:
		return "Strong, well-supported argument. Keep anticipating the other side's points."
	case s.Overall >= 5:
		return "Solid position. Add concrete evidence and address the counterargument directly."
	default:
		return "State your claim first, then back it with one example and respond to the opposing view."
	}
}

func clamp10(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v > 10 {
		v = 10
	}
	return models.Round1(v)
}
