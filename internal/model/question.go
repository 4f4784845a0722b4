package model

// SelectionType defines whether a question accepts one or multiple
// correct alternatives.
type SelectionType string

const (
	SelectionSingle   SelectionType = "SINGLE"
	SelectionMultiple SelectionType = "MULTIPLE"
)

// Option bounds for alternatives: 1..5 mapped to letters A..E.
const (
	OptionMin = 1
	OptionMax = 5
)

// Question represents a multiple-choice question.
type Question struct {
	ID            int           `json:"id"`
	Content       string        `json:"content"`
	SelectionType SelectionType `json:"selection_type"`
	Alternatives  []Alternative `json:"alternatives,omitempty"`
}

// Alternative is one selectable option of a question. Option codes are
// unique within a question.
type Alternative struct {
	ID         int    `json:"id"`
	QuestionID int    `json:"question_id"`
	Option     int    `json:"option"`
	Content    string `json:"content"`
	IsCorrect  bool   `json:"is_correct"`
}

// OptionLetter maps an option code to its display letter (1..5 → A..E).
// Returns "" for codes outside the valid range.
func OptionLetter(option int) string {
	if option < OptionMin || option > OptionMax {
		return ""
	}
	return string(rune('A' + option - 1))
}

// CreateQuestionRequest is the payload for creating a question with its
// alternatives.
type CreateQuestionRequest struct {
	Content       string                     `json:"content" binding:"required,min=1,max=2000"`
	SelectionType string                     `json:"selection_type" binding:"omitempty,oneof=SINGLE MULTIPLE"`
	Alternatives  []CreateAlternativeRequest `json:"alternatives" binding:"required,min=2,max=5,dive"`
}

// CreateAlternativeRequest is one alternative within a question payload.
type CreateAlternativeRequest struct {
	Option    int    `json:"option" binding:"required,min=1,max=5"`
	Content   string `json:"content" binding:"required,min=1,max=2000"`
	IsCorrect bool   `json:"is_correct"`
}
