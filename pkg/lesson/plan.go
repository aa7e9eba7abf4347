// Package lesson holds the static fractions lesson plan and the simulated
// time arithmetic that maps elapsed seconds to lesson turns and phases.
package lesson

import (
	"math"
	"strings"

	"github.com/edusim/classsim/pkg/models"
)

// FractionsLessonTotalTurns is the number of steps in the fractions plan.
const FractionsLessonTotalTurns = 9

// Step is one entry of the lesson plan.
type Step struct {
	Turn         int    `json:"turn"`
	Title        string `json:"title"`
	DeliveryGoal string `json:"deliveryGoal"`
}

// The plan is the sole source of lesson topic progression.
var fractionsSteps = [FractionsLessonTotalTurns]Step{
	{1, "What is a fraction?", "Introduce fractions as equal parts of a whole using pizza slices."},
	{2, "Numerator and denominator", "Name the parts of a fraction and what each one counts."},
	{3, "Fractions on the number line", "Place halves and quarters between 0 and 1 on a number line."},
	{4, "Equivalent fractions", "Show that 1/2, 2/4, and 4/8 cover the same amount."},
	{5, "Comparing fractions", "Compare fractions with the same denominator, then the same numerator."},
	{6, "Fractions of a set", "Find a fraction of a group of objects, like 1/3 of 12 apples."},
	{7, "Adding like fractions", "Add fractions with the same denominator and simplify."},
	{8, "Everyday fractions", "Connect fractions to recipes, money, and time."},
	{9, "Review and reflect", "Recap the key ideas and let students explain one in their own words."},
}

// StepAt returns the plan step for the given lesson turn, clamped to [1, N].
func StepAt(turn int) Step {
	if turn < 1 {
		turn = 1
	}
	if turn > FractionsLessonTotalTurns {
		turn = FractionsLessonTotalTurns
	}
	return fractionsSteps[turn-1]
}

// TurnFromProgress maps lesson progress in [0,1] to a lesson turn.
func TurnFromProgress(progress float64) int {
	turn := int(math.Floor(progress*FractionsLessonTotalTurns)) + 1
	if turn < 1 {
		return 1
	}
	if turn > FractionsLessonTotalTurns {
		return FractionsLessonTotalTurns
	}
	return turn
}

// PracticeStartTurn is the first lesson turn of the practice phase.
func PracticeStartTurn() int {
	return int(math.Ceil(float64(FractionsLessonTotalTurns)/3)) + 1
}

// ReviewStartTurn is the first lesson turn of the review phase.
func ReviewStartTurn() int {
	return int(math.Ceil(2*float64(FractionsLessonTotalTurns)/3)) + 1
}

// PhaseForTurn derives the coarse phase from a lesson turn.
func PhaseForTurn(turn int) models.Phase {
	switch {
	case turn < PracticeStartTurn():
		return models.PhaseLecture
	case turn < ReviewStartTurn():
		return models.PhasePractice
	default:
		return models.PhaseReview
	}
}

// Words-per-minute pacing for speech length estimates.
const (
	teacherWPM = 130
	studentWPM = 115
)

// SpeechSeconds estimates how long an utterance takes to say out loud.
// Sentence boundaries add a short pause each.
func SpeechSeconds(text string, role models.Role) float64 {
	words := len(strings.Fields(text))
	sentences := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentences++
		}
	}
	wpm := studentWPM
	if role == models.RoleTeacher {
		wpm = teacherWPM
	}
	seconds := math.Round(float64(words)/float64(wpm)*60 + math.Max(0, float64(sentences-1))*0.45)
	if seconds < 2 {
		return 2
	}
	if seconds > 45 {
		return 45
	}
	return seconds
}
