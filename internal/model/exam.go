package model

// Exam represents an exam: a named, ordered set of questions.
type Exam struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ExamQuestion links a question to an exam at a position number.
// Both (exam, number) and (exam, question) are unique.
type ExamQuestion struct {
	ExamID     int `json:"exam_id"`
	QuestionID int `json:"question_id"`
	Number     int `json:"number"`
}

// ExamDetail is an exam with its ordered questions and counters.
type ExamDetail struct {
	ID               int            `json:"id"`
	Name             string         `json:"name"`
	TotalQuestions   int            `json:"total_questions"`
	TotalSubmissions int            `json:"total_submissions"`
	Questions        []NumberedItem `json:"questions"`
}

// NumberedItem is one (number, question) entry of an exam.
type NumberedItem struct {
	Number   int      `json:"number"`
	Question Question `json:"question"`
}

// ExamSummary is the list representation of an exam.
type ExamSummary struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	TotalQuestions int    `json:"total_questions"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// AttachQuestionRequest adds an existing question to an exam at a number.
type AttachQuestionRequest struct {
	QuestionID int `json:"question_id" binding:"required,min=1"`
	Number     int `json:"number" binding:"required,min=1"`
}

// ExamFilter narrows exam listings.
type ExamFilter struct {
	Name         string
	HasQuestions *bool
	MinQuestions *int
}
