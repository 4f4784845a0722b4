// Package grading computes answer correctness and submission scores.
// All functions are pure and operate on already-loaded data; answers
// are immutable after creation, so nothing here needs caching.
package grading

import (
	"math"

	"github.com/medway/exam-backend/internal/model"
)

// CorrectOption returns the option code of the question's alternative
// flagged correct. ok is false when no alternative is flagged.
func CorrectOption(q *model.Question) (option int, ok bool) {
	if q == nil {
		return 0, false
	}
	for _, alt := range q.Alternatives {
		if alt.IsCorrect {
			return alt.Option, true
		}
	}
	return 0, false
}

// IsCorrect reports whether the selected option matches the question's
// correct alternative. A question with no correct alternative, or a
// missing question, grades as incorrect — never an error.
func IsCorrect(selectedOption int, q *model.Question) bool {
	correct, ok := CorrectOption(q)
	if !ok {
		return false
	}
	return selectedOption == correct
}

// CorrectCount counts answers whose selected option matches the
// correct alternative of their question. Questions are looked up by
// id; answers to unknown questions grade as incorrect.
func CorrectCount(answers []model.SubmissionAnswer, questions map[int]*model.Question) int {
	count := 0
	for _, a := range answers {
		if IsCorrect(a.SelectedOption, questions[a.QuestionID]) {
			count++
		}
	}
	return count
}

// Score returns the percentage of correct answers rounded to two
// decimals. A submission with zero answers scores 0.
func Score(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return Round2(100 * float64(correct) / float64(total))
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
