package model

import "time"

// ExamSubmission is one student's completed answer set for one exam.
// A student may submit a given exam at most once; the (student, exam)
// uniqueness constraint in the store is the single source of truth.
type ExamSubmission struct {
	ID          int       `json:"id"`
	StudentID   int       `json:"student_id"`
	ExamID      int       `json:"exam_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// SubmissionAnswer records the option a student selected for one
// question. Correctness is derived on read, never stored.
type SubmissionAnswer struct {
	ID             int `json:"id"`
	SubmissionID   int `json:"submission_id"`
	QuestionID     int `json:"question_id"`
	SelectedOption int `json:"selected_option"`
}

// SubmitExamRequest is the ingress payload for an exam submission.
type SubmitExamRequest struct {
	StudentID int                `json:"student_id" binding:"required,min=1"`
	ExamID    int                `json:"exam_id" binding:"required,min=1"`
	Answers   []AnswerSubmission `json:"answers" binding:"required,min=1,dive"`
}

// AnswerSubmission is one answer within a submission payload.
type AnswerSubmission struct {
	QuestionID     int `json:"question_id" binding:"required,min=1"`
	SelectedOption int `json:"selected_option" binding:"required,min=1,max=5"`
}

// SubmissionResult is the worker's result payload for a finished task.
// Created reports whether this task performed the row creation or
// converged on a pre-existing submission.
type SubmissionResult struct {
	Created    bool           `json:"created"`
	Submission SubmissionInfo `json:"submission"`
}

// SubmissionInfo summarizes a persisted submission.
type SubmissionInfo struct {
	ID           int     `json:"id"`
	StudentID    int     `json:"student_id"`
	ExamID       int     `json:"exam_id"`
	Score        float64 `json:"score"`
	TotalAnswers int     `json:"total_answers"`
}

// ExamResult is the full graded read-side view of a submission.
type ExamResult struct {
	ID              int              `json:"id"`
	StudentName     string           `json:"student_name"`
	ExamName        string           `json:"exam_name"`
	SubmittedAt     time.Time        `json:"submitted_at"`
	TotalQuestions  int              `json:"total_questions"`
	CorrectAnswers  int              `json:"correct_answers"`
	ScorePercentage float64          `json:"score_percentage"`
	Questions       []QuestionResult `json:"questions"`
}

// QuestionResult is the per-question breakdown within an ExamResult.
// StudentAnswer and CorrectAnswer are nil when the student skipped the
// question or no alternative is flagged correct, respectively.
type QuestionResult struct {
	ID                  int                 `json:"id"`
	Content             string              `json:"content"`
	Alternatives        []AlternativeResult `json:"alternatives"`
	StudentAnswer       *int                `json:"student_answer"`
	StudentAnswerLetter string              `json:"student_answer_letter"`
	CorrectAnswer       *int                `json:"correct_answer"`
	CorrectAnswerLetter string              `json:"correct_answer_letter"`
	IsCorrect           bool                `json:"is_correct"`
}

// AlternativeResult is one alternative within a QuestionResult.
type AlternativeResult struct {
	Option       int    `json:"option"`
	OptionLetter string `json:"option_letter"`
	Content      string `json:"content"`
	IsCorrect    bool   `json:"is_correct"`
}

// SubmissionListItem is the list representation of a submission with
// its derived score.
type SubmissionListItem struct {
	ID           int       `json:"id"`
	StudentID    int       `json:"student_id"`
	StudentName  string    `json:"student_name"`
	ExamID       int       `json:"exam_id"`
	ExamName     string    `json:"exam_name"`
	SubmittedAt  time.Time `json:"submitted_at"`
	TotalAnswers int       `json:"total_answers"`
	Score        float64   `json:"score"`
}

// SubmissionFilter narrows submission listings. Score bounds apply to
// the derived score; date bounds apply to submitted_at.
type SubmissionFilter struct {
	StudentID     *int
	ExamID        *int
	StudentName   string
	ExamName      string
	MinScore      *float64
	MaxScore      *float64
	SubmittedFrom *time.Time
	SubmittedTo   *time.Time
}

// SubmissionAnalysis compares one submission against the rest of its
// exam's submissions.
type SubmissionAnalysis struct {
	YourScore        float64 `json:"your_score"`
	AverageScore     float64 `json:"average_score"`
	Rank             int     `json:"rank"`
	TotalSubmissions int     `json:"total_submissions"`
	AboveAverage     bool    `json:"above_average"`
}

// ExamStatistics aggregates all submissions of an exam.
type ExamStatistics struct {
	TotalSubmissions    int                  `json:"total_submissions"`
	AverageScore        float64              `json:"average_score"`
	HighestScore        float64              `json:"highest_score"`
	LowestScore         float64              `json:"lowest_score"`
	QuestionsStatistics []QuestionStatistics `json:"questions_statistics"`
}

// QuestionStatistics reports per-question accuracy across submissions.
type QuestionStatistics struct {
	QuestionID         int     `json:"question_id"`
	Number             int     `json:"number"`
	Content            string  `json:"content"`
	TotalAnswers       int     `json:"total_answers"`
	CorrectAnswers     int     `json:"correct_answers"`
	AccuracyPercentage float64 `json:"accuracy_percentage"`
}
