package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/medway/exam-backend/internal/grading"
	"github.com/medway/exam-backend/internal/model"
	"github.com/medway/exam-backend/internal/taskqueue"
)

// ErrNotFound marks lookups whose target does not exist. Handlers map
// it to 404.
var ErrNotFound = errors.New("not found")

// MsgDuplicateSubmission is the non-field error reported when the
// advisory duplicate check trips at ingress. Handlers use it to pick
// the DUPLICATE_SUBMISSION error code.
const MsgDuplicateSubmission = "Student has already submitted this exam"

// SubmissionStore is the submission persistence surface the service
// needs.
type SubmissionStore interface {
	Exists(ctx context.Context, studentID, examID int) (bool, error)
	GetByID(ctx context.Context, id int) (*model.ExamSubmission, error)
	GetByStudentAndExam(ctx context.Context, studentID, examID int) (*model.ExamSubmission, error)
	GetAnswers(ctx context.Context, submissionID int) ([]model.SubmissionAnswer, error)
	List(ctx context.Context, filter model.SubmissionFilter, page, perPage int) ([]model.SubmissionListItem, int64, error)
	Analysis(ctx context.Context, submissionID int) (*model.SubmissionAnalysis, error)
}

// StudentStore resolves students for validation and result assembly.
type StudentStore interface {
	Exists(ctx context.Context, id int) (bool, error)
	GetByID(ctx context.Context, id int) (*model.Student, error)
}

// ExamStore resolves exams and their question sets.
type ExamStore interface {
	Exists(ctx context.Context, id int) (bool, error)
	GetByID(ctx context.Context, id int) (*model.Exam, error)
	QuestionIDs(ctx context.Context, examID int) ([]int, error)
	ListQuestions(ctx context.Context, examID int) ([]model.NumberedItem, error)
}

// QuestionStore checks referential integrity of answered questions.
type QuestionStore interface {
	ExistingIDs(ctx context.Context, ids []int) ([]int, error)
}

// TaskBroker is the async queue surface: enqueue validated payloads
// and look up task state for pollers.
type TaskBroker interface {
	Enqueue(ctx context.Context, payload taskqueue.SubmissionPayload) (string, error)
	Get(ctx context.Context, taskID string) (*taskqueue.Record, error)
}

// SubmissionService validates inbound submissions, hands them to the
// task queue, and assembles graded read-side views.
type SubmissionService struct {
	submissions SubmissionStore
	students    StudentStore
	exams       ExamStore
	questions   QuestionStore
	broker      TaskBroker
	log         zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	submissions SubmissionStore,
	students StudentStore,
	exams ExamStore,
	questions QuestionStore,
	broker TaskBroker,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		submissions: submissions,
		students:    students,
		exams:       exams,
		questions:   questions,
		broker:      broker,
		log:         log.With().Str("component", "submission_service").Logger(),
	}
}

// Submit validates the payload and enqueues a submission-creation
// task. On validation failure it returns a field → message map; the
// submission row itself is never written here — that is the worker's
// job, so the duplicate check is advisory and the worker re-verifies
// atomically.
func (s *SubmissionService) Submit(ctx context.Context, req *model.SubmitExamRequest) (taskID string, fieldErrs map[string]string, err error) {
	exists, err := s.students.Exists(ctx, req.StudentID)
	if err != nil {
		return "", nil, fmt.Errorf("check student: %w", err)
	}
	if !exists {
		return "", map[string]string{"student_id": "Student does not exist"}, nil
	}

	exists, err = s.exams.Exists(ctx, req.ExamID)
	if err != nil {
		return "", nil, fmt.Errorf("check exam: %w", err)
	}
	if !exists {
		return "", map[string]string{"exam_id": "Exam does not exist"}, nil
	}

	questionIDs := make([]int, 0, len(req.Answers))
	seen := make(map[int]bool, len(req.Answers))
	for _, a := range req.Answers {
		if seen[a.QuestionID] {
			return "", map[string]string{"answers": "Duplicate questions found in answers"}, nil
		}
		seen[a.QuestionID] = true
		questionIDs = append(questionIDs, a.QuestionID)
	}

	existing, err := s.questions.ExistingIDs(ctx, questionIDs)
	if err != nil {
		return "", nil, fmt.Errorf("check questions: %w", err)
	}
	if len(existing) != len(questionIDs) {
		return "", map[string]string{"answers": "One or more questions do not exist"}, nil
	}

	examQuestionIDs, err := s.exams.QuestionIDs(ctx, req.ExamID)
	if err != nil {
		return "", nil, fmt.Errorf("load exam questions: %w", err)
	}
	inExam := make(map[int]bool, len(examQuestionIDs))
	for _, id := range examQuestionIDs {
		inExam[id] = true
	}
	var invalid []int
	for _, id := range questionIDs {
		if !inExam[id] {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		sort.Ints(invalid)
		return "", map[string]string{
			"non_field_errors": fmt.Sprintf("Questions %s do not belong to exam %d", formatIDs(invalid), req.ExamID),
		}, nil
	}

	submitted, err := s.submissions.Exists(ctx, req.StudentID, req.ExamID)
	if err != nil {
		return "", nil, fmt.Errorf("check existing submission: %w", err)
	}
	if submitted {
		return "", map[string]string{"non_field_errors": MsgDuplicateSubmission}, nil
	}

	taskID, err = s.broker.Enqueue(ctx, taskqueue.SubmissionPayload{
		StudentID: req.StudentID,
		ExamID:    req.ExamID,
		Answers:   req.Answers,
	})
	if err != nil {
		return "", nil, fmt.Errorf("enqueue submission: %w", err)
	}

	s.log.Info().
		Str("task_id", taskID).
		Int("student_id", req.StudentID).
		Int("exam_id", req.ExamID).
		Int("answers", len(req.Answers)).
		Msg("Submission enqueued")

	return taskID, nil, nil
}

// Status returns the task's state record. An unknown task id reports
// QUEUED: the record may simply not have been written yet, and pollers
// must treat non-terminal states as "try again later".
func (s *SubmissionService) Status(ctx context.Context, taskID string) (*taskqueue.Record, error) {
	rec, err := s.broker.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if rec == nil {
		return &taskqueue.Record{State: taskqueue.StateQueued}, nil
	}
	return rec, nil
}

// GetResult assembles the full graded result for a submission id.
func (s *SubmissionService) GetResult(ctx context.Context, submissionID int) (*model.ExamResult, error) {
	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return s.assembleResult(ctx, sub)
}

// GetResultByPair assembles the graded result for a (student, exam)
// pair.
func (s *SubmissionService) GetResultByPair(ctx context.Context, studentID, examID int) (*model.ExamResult, error) {
	sub, err := s.submissions.GetByStudentAndExam(ctx, studentID, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return s.assembleResult(ctx, sub)
}

// assembleResult joins the submission's answers with the exam's
// questions and alternatives and grades each answer. Questions the
// student skipped appear with a nil student answer and grade as
// incorrect.
func (s *SubmissionService) assembleResult(ctx context.Context, sub *model.ExamSubmission) (*model.ExamResult, error) {
	student, err := s.students.GetByID(ctx, sub.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	exam, err := s.exams.GetByID(ctx, sub.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	answers, err := s.submissions.GetAnswers(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("get answers: %w", err)
	}
	items, err := s.exams.ListQuestions(ctx, sub.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list exam questions: %w", err)
	}

	answerByQuestion := make(map[int]*model.SubmissionAnswer, len(answers))
	questionByID := make(map[int]*model.Question, len(items))
	for i := range answers {
		answerByQuestion[answers[i].QuestionID] = &answers[i]
	}
	for i := range items {
		questionByID[items[i].Question.ID] = &items[i].Question
	}

	result := &model.ExamResult{
		ID:             sub.ID,
		StudentName:    student.Name,
		ExamName:       exam.Name,
		SubmittedAt:    sub.SubmittedAt,
		TotalQuestions: len(answers),
		CorrectAnswers: grading.CorrectCount(answers, questionByID),
	}
	result.ScorePercentage = grading.Score(result.CorrectAnswers, len(answers))

	for i := range items {
		q := &items[i].Question

		qr := model.QuestionResult{
			ID:           q.ID,
			Content:      q.Content,
			Alternatives: make([]model.AlternativeResult, 0, len(q.Alternatives)),
		}
		for _, alt := range q.Alternatives {
			qr.Alternatives = append(qr.Alternatives, model.AlternativeResult{
				Option:       alt.Option,
				OptionLetter: model.OptionLetter(alt.Option),
				Content:      alt.Content,
				IsCorrect:    alt.IsCorrect,
			})
		}

		if correct, ok := grading.CorrectOption(q); ok {
			qr.CorrectAnswer = &correct
			qr.CorrectAnswerLetter = model.OptionLetter(correct)
		}

		if ans, ok := answerByQuestion[q.ID]; ok {
			selected := ans.SelectedOption
			qr.StudentAnswer = &selected
			qr.StudentAnswerLetter = model.OptionLetter(selected)
			qr.IsCorrect = grading.IsCorrect(selected, q)
		}

		result.Questions = append(result.Questions, qr)
	}

	return result, nil
}

// List retrieves submissions matching the filter, paginated.
func (s *SubmissionService) List(ctx context.Context, filter model.SubmissionFilter, page, perPage int) ([]model.SubmissionListItem, int64, error) {
	return s.submissions.List(ctx, filter, page, perPage)
}

// ListByStudent retrieves all submissions of one student.
func (s *SubmissionService) ListByStudent(ctx context.Context, studentID, page, perPage int) ([]model.SubmissionListItem, int64, error) {
	exists, err := s.students.Exists(ctx, studentID)
	if err != nil {
		return nil, 0, fmt.Errorf("check student: %w", err)
	}
	if !exists {
		return nil, 0, ErrNotFound
	}
	return s.submissions.List(ctx, model.SubmissionFilter{StudentID: &studentID}, page, perPage)
}

// Analysis compares a submission against the other submissions of its
// exam.
func (s *SubmissionService) Analysis(ctx context.Context, submissionID int) (*model.SubmissionAnalysis, error) {
	if _, err := s.submissions.GetByID(ctx, submissionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	analysis, err := s.submissions.Analysis(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("analyze submission: %w", err)
	}
	return analysis, nil
}

// formatIDs renders ids as "[1, 2, 3]".
func formatIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
