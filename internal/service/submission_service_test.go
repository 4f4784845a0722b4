package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/medway/exam-backend/internal/model"
	"github.com/medway/exam-backend/internal/taskqueue"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type fakeSubmissionStore struct {
	submitted  bool
	submission *model.ExamSubmission
	answers    []model.SubmissionAnswer
	analysis   *model.SubmissionAnalysis
	items      []model.SubmissionListItem
}

func (f *fakeSubmissionStore) Exists(ctx context.Context, studentID, examID int) (bool, error) {
	return f.submitted, nil
}

func (f *fakeSubmissionStore) GetByID(ctx context.Context, id int) (*model.ExamSubmission, error) {
	if f.submission == nil {
		return nil, pgx.ErrNoRows
	}
	return f.submission, nil
}

func (f *fakeSubmissionStore) GetByStudentAndExam(ctx context.Context, studentID, examID int) (*model.ExamSubmission, error) {
	if f.submission == nil {
		return nil, pgx.ErrNoRows
	}
	return f.submission, nil
}

func (f *fakeSubmissionStore) GetAnswers(ctx context.Context, submissionID int) ([]model.SubmissionAnswer, error) {
	return f.answers, nil
}

func (f *fakeSubmissionStore) List(ctx context.Context, filter model.SubmissionFilter, page, perPage int) ([]model.SubmissionListItem, int64, error) {
	return f.items, int64(len(f.items)), nil
}

func (f *fakeSubmissionStore) Analysis(ctx context.Context, submissionID int) (*model.SubmissionAnalysis, error) {
	return f.analysis, nil
}

type fakeStudentStore struct {
	students map[int]*model.Student
}

func (f *fakeStudentStore) Exists(ctx context.Context, id int) (bool, error) {
	_, ok := f.students[id]
	return ok, nil
}

func (f *fakeStudentStore) GetByID(ctx context.Context, id int) (*model.Student, error) {
	s, ok := f.students[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

type fakeExamStore struct {
	exams     map[int]*model.Exam
	questions map[int][]model.NumberedItem
}

func (f *fakeExamStore) Exists(ctx context.Context, id int) (bool, error) {
	_, ok := f.exams[id]
	return ok, nil
}

func (f *fakeExamStore) GetByID(ctx context.Context, id int) (*model.Exam, error) {
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

func (f *fakeExamStore) QuestionIDs(ctx context.Context, examID int) ([]int, error) {
	ids := make([]int, 0, len(f.questions[examID]))
	for _, item := range f.questions[examID] {
		ids = append(ids, item.Question.ID)
	}
	return ids, nil
}

func (f *fakeExamStore) ListQuestions(ctx context.Context, examID int) ([]model.NumberedItem, error) {
	return f.questions[examID], nil
}

type fakeQuestionStore struct {
	ids map[int]bool
}

func (f *fakeQuestionStore) ExistingIDs(ctx context.Context, ids []int) ([]int, error) {
	existing := make([]int, 0, len(ids))
	for _, id := range ids {
		if f.ids[id] {
			existing = append(existing, id)
		}
	}
	return existing, nil
}

type fakeBroker struct {
	enqueued []taskqueue.SubmissionPayload
	record   *taskqueue.Record
	err      error
}

func (f *fakeBroker) Enqueue(ctx context.Context, payload taskqueue.SubmissionPayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, payload)
	return "task-123", nil
}

func (f *fakeBroker) Get(ctx context.Context, taskID string) (*taskqueue.Record, error) {
	return f.record, f.err
}

func singleQuestion(id, correctOption int) model.Question {
	q := model.Question{ID: id, SelectionType: model.SelectionSingle}
	for opt := 1; opt <= 4; opt++ {
		q.Alternatives = append(q.Alternatives, model.Alternative{
			QuestionID: id,
			Option:     opt,
			Content:    "alt",
			IsCorrect:  opt == correctOption,
		})
	}
	return q
}

func newSubmitFixture() (*SubmissionService, *fakeBroker) {
	broker := &fakeBroker{}
	svc := NewSubmissionService(
		&fakeSubmissionStore{},
		&fakeStudentStore{students: map[int]*model.Student{1: {ID: 1, Name: "Alice"}}},
		&fakeExamStore{
			exams: map[int]*model.Exam{2: {ID: 2, Name: "Finals"}},
			questions: map[int][]model.NumberedItem{
				2: {
					{Number: 1, Question: singleQuestion(10, 1)},
					{Number: 2, Question: singleQuestion(11, 2)},
				},
			},
		},
		&fakeQuestionStore{ids: map[int]bool{10: true, 11: true, 12: true}},
		broker,
		testLogger(),
	)
	return svc, broker
}

func TestSubmitEnqueuesTask(t *testing.T) {
	svc, broker := newSubmitFixture()

	taskID, fieldErrs, err := svc.Submit(context.Background(), &model.SubmitExamRequest{
		StudentID: 1,
		ExamID:    2,
		Answers: []model.AnswerSubmission{
			{QuestionID: 10, SelectedOption: 1},
			{QuestionID: 11, SelectedOption: 3},
		},
	})
	require.NoError(t, err)
	require.Empty(t, fieldErrs)
	require.Equal(t, "task-123", taskID)
	require.Len(t, broker.enqueued, 1)
	require.Equal(t, 1, broker.enqueued[0].StudentID)
	require.Equal(t, 2, broker.enqueued[0].ExamID)
	require.Len(t, broker.enqueued[0].Answers, 2)
}

func TestSubmitUnknownStudent(t *testing.T) {
	svc, broker := newSubmitFixture()

	_, fieldErrs, err := svc.Submit(context.Background(), &model.SubmitExamRequest{
		StudentID: 99,
		ExamID:    2,
		Answers:   []model.AnswerSubmission{{QuestionID: 10, SelectedOption: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"student_id": "Student does not exist"}, fieldErrs)
	require.Empty(t, broker.enqueued)
}

func TestSubmitUnknownExam(t *testing.T) {
	svc, _ := newSubmitFixture()

	_, fieldErrs, err := svc.Submit(context.Background(), &model.SubmitExamRequest{
		StudentID: 1,
		ExamID:    99,
		Answers:   []model.AnswerSubmission{{QuestionID: 10, SelectedOption: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"exam_id": "Exam does not exist"}, fieldErrs)
}

func TestSubmitDuplicateQuestions(t *testing.T) {
	svc, _ := newSubmitFixture()

	_, fieldErrs, err := svc.Submit(context.Background(), &model.SubmitExamRequest{
		StudentID: 1,
		ExamID:    2,
		Answers: []model.AnswerSubmission{
			{QuestionID: 10, SelectedOption: 1},
			{QuestionID: 10, SelectedOption: 2},
		},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"answers": "Duplicate questions found in answers"}, fieldErrs)
}

func TestSubmitUnknownQuestion(t *testing.T) {
	svc, _ := newSubmitFixture()

	_, fieldErrs, err := svc.Submit(context.Background(), &model.SubmitExamRequest{
		StudentID: 1,
		ExamID:    2,
		Answers:   []model.AnswerSubmission{{QuestionID: 999, SelectedOption: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"answers": "One or more questions do not exist"}, fieldErrs)
}

func TestSubmitQuestionNotInExam(t *testing.T) {
	svc, _ := newSubmitFixture()

	// Question 12 exists in the bank but is not part of exam 2.
	_, fieldErrs, err := svc.Submit(context.Background(), &model.SubmitExamRequest{
		StudentID: 1,
		ExamID:    2,
		Answers: []model.AnswerSubmission{
			{QuestionID: 10, SelectedOption: 1},
			{QuestionID: 12, SelectedOption: 2},
		},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"non_field_errors": "Questions [12] do not belong to exam 2",
	}, fieldErrs)
}

func TestSubmitDuplicateSubmission(t *testing.T) {
	broker := &fakeBroker{}
	svc := NewSubmissionService(
		&fakeSubmissionStore{submitted: true},
		&fakeStudentStore{students: map[int]*model.Student{1: {ID: 1}}},
		&fakeExamStore{
			exams: map[int]*model.Exam{2: {ID: 2}},
			questions: map[int][]model.NumberedItem{
				2: {{Number: 1, Question: singleQuestion(10, 1)}},
			},
		},
		&fakeQuestionStore{ids: map[int]bool{10: true}},
		broker,
		testLogger(),
	)

	_, fieldErrs, err := svc.Submit(context.Background(), &model.SubmitExamRequest{
		StudentID: 1,
		ExamID:    2,
		Answers:   []model.AnswerSubmission{{QuestionID: 10, SelectedOption: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"non_field_errors": MsgDuplicateSubmission}, fieldErrs)
	require.Empty(t, broker.enqueued)
}

func TestStatusUnknownTaskReportsQueued(t *testing.T) {
	svc, _ := newSubmitFixture()

	rec, err := svc.Status(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Equal(t, taskqueue.StateQueued, rec.State)
}

func TestStatusReturnsRecord(t *testing.T) {
	broker := &fakeBroker{record: &taskqueue.Record{State: taskqueue.StateSucceeded}}
	svc := NewSubmissionService(&fakeSubmissionStore{}, &fakeStudentStore{}, &fakeExamStore{}, &fakeQuestionStore{}, broker, testLogger())

	rec, err := svc.Status(context.Background(), "task-123")
	require.NoError(t, err)
	require.Equal(t, taskqueue.StateSucceeded, rec.State)
}

func TestGetResultGradesAnswers(t *testing.T) {
	submittedAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := &fakeSubmissionStore{
		submission: &model.ExamSubmission{ID: 5, StudentID: 1, ExamID: 2, SubmittedAt: submittedAt},
		answers: []model.SubmissionAnswer{
			{SubmissionID: 5, QuestionID: 10, SelectedOption: 1},
			{SubmissionID: 5, QuestionID: 11, SelectedOption: 3},
		},
	}
	svc := NewSubmissionService(
		store,
		&fakeStudentStore{students: map[int]*model.Student{1: {ID: 1, Name: "Alice"}}},
		&fakeExamStore{
			exams: map[int]*model.Exam{2: {ID: 2, Name: "Finals"}},
			questions: map[int][]model.NumberedItem{
				2: {
					{Number: 1, Question: singleQuestion(10, 1)},
					{Number: 2, Question: singleQuestion(11, 2)},
					{Number: 3, Question: singleQuestion(12, 4)},
				},
			},
		},
		&fakeQuestionStore{},
		&fakeBroker{},
		testLogger(),
	)

	result, err := svc.GetResult(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, "Alice", result.StudentName)
	require.Equal(t, "Finals", result.ExamName)
	require.Equal(t, submittedAt, result.SubmittedAt)
	require.Equal(t, 2, result.TotalQuestions)
	require.Equal(t, 1, result.CorrectAnswers)
	require.Equal(t, 50.0, result.ScorePercentage)
	require.Len(t, result.Questions, 3)

	first := result.Questions[0]
	require.True(t, first.IsCorrect)
	require.NotNil(t, first.StudentAnswer)
	require.Equal(t, 1, *first.StudentAnswer)
	require.Equal(t, "A", first.StudentAnswerLetter)
	require.NotNil(t, first.CorrectAnswer)
	require.Equal(t, "A", first.CorrectAnswerLetter)

	second := result.Questions[1]
	require.False(t, second.IsCorrect)
	require.Equal(t, "C", second.StudentAnswerLetter)
	require.Equal(t, "B", second.CorrectAnswerLetter)

	// Skipped question: no student answer and graded as incorrect.
	third := result.Questions[2]
	require.Nil(t, third.StudentAnswer)
	require.Empty(t, third.StudentAnswerLetter)
	require.False(t, third.IsCorrect)
}

func TestGetResultNotFound(t *testing.T) {
	svc := NewSubmissionService(&fakeSubmissionStore{}, &fakeStudentStore{}, &fakeExamStore{}, &fakeQuestionStore{}, &fakeBroker{}, testLogger())

	_, err := svc.GetResult(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetResultByPair(context.Background(), 1, 2)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListByStudentUnknownStudent(t *testing.T) {
	svc := NewSubmissionService(&fakeSubmissionStore{}, &fakeStudentStore{}, &fakeExamStore{}, &fakeQuestionStore{}, &fakeBroker{}, testLogger())

	_, _, err := svc.ListByStudent(context.Background(), 99, 1, 20)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAnalysis(t *testing.T) {
	store := &fakeSubmissionStore{
		submission: &model.ExamSubmission{ID: 5, StudentID: 1, ExamID: 2},
		analysis: &model.SubmissionAnalysis{
			YourScore:        80,
			AverageScore:     60,
			Rank:             2,
			TotalSubmissions: 10,
			AboveAverage:     true,
		},
	}
	svc := NewSubmissionService(store, &fakeStudentStore{}, &fakeExamStore{}, &fakeQuestionStore{}, &fakeBroker{}, testLogger())

	analysis, err := svc.Analysis(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 2, analysis.Rank)
	require.True(t, analysis.AboveAverage)
}

func TestSubmitEnqueueFailure(t *testing.T) {
	broker := &fakeBroker{err: errors.New("redis down")}
	svc := NewSubmissionService(
		&fakeSubmissionStore{},
		&fakeStudentStore{students: map[int]*model.Student{1: {ID: 1}}},
		&fakeExamStore{
			exams: map[int]*model.Exam{2: {ID: 2}},
			questions: map[int][]model.NumberedItem{
				2: {{Number: 1, Question: singleQuestion(10, 1)}},
			},
		},
		&fakeQuestionStore{ids: map[int]bool{10: true}},
		broker,
		testLogger(),
	)

	_, _, err := svc.Submit(context.Background(), &model.SubmitExamRequest{
		StudentID: 1,
		ExamID:    2,
		Answers:   []model.AnswerSubmission{{QuestionID: 10, SelectedOption: 1}},
	})
	require.Error(t, err)
}
