package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/medway/exam-backend/internal/model"
	"github.com/medway/exam-backend/internal/repository"
)

// ErrConflict marks writes rejected by a uniqueness constraint that
// callers surface as a client-facing conflict.
var ErrConflict = errors.New("conflict")

// ExamCatalog is the exam persistence surface the service needs.
type ExamCatalog interface {
	GetByID(ctx context.Context, id int) (*model.Exam, error)
	Exists(ctx context.Context, id int) (bool, error)
	Create(ctx context.Context, e *model.Exam) error
	AttachQuestion(ctx context.Context, eq *model.ExamQuestion) error
	ListQuestions(ctx context.Context, examID int) ([]model.NumberedItem, error)
	List(ctx context.Context, filter model.ExamFilter, page, perPage int) ([]model.ExamSummary, int64, error)
}

// ExamSubmissionStats aggregates submissions for reporting.
type ExamSubmissionStats interface {
	CountByExam(ctx context.Context, examID int) (int, error)
	Statistics(ctx context.Context, examID int) (*model.ExamStatistics, error)
}

// ExamService handles exam catalog reads, statistics, and the
// administrative write path.
type ExamService struct {
	exams     ExamCatalog
	stats     ExamSubmissionStats
	questions QuestionStore
	log       zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamCatalog, stats ExamSubmissionStats, questions QuestionStore, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:     exams,
		stats:     stats,
		questions: questions,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// List retrieves exams matching the filter, paginated.
func (s *ExamService) List(ctx context.Context, filter model.ExamFilter, page, perPage int) ([]model.ExamSummary, int64, error) {
	return s.exams.List(ctx, filter, page, perPage)
}

// GetDetail retrieves an exam with ordered questions and counters.
// Alternatives' correctness flags are included; this is an
// administrative read, not the student paper.
func (s *ExamService) GetDetail(ctx context.Context, examID int) (*model.ExamDetail, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	items, err := s.exams.ListQuestions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	totalSubmissions, err := s.stats.CountByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}

	if items == nil {
		items = []model.NumberedItem{}
	}
	return &model.ExamDetail{
		ID:               exam.ID,
		Name:             exam.Name,
		TotalQuestions:   len(items),
		TotalSubmissions: totalSubmissions,
		Questions:        items,
	}, nil
}

// Statistics aggregates all submissions of an exam.
func (s *ExamService) Statistics(ctx context.Context, examID int) (*model.Exam, *model.ExamStatistics, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}

	stats, err := s.stats.Statistics(ctx, examID)
	if err != nil {
		return nil, nil, fmt.Errorf("exam statistics: %w", err)
	}
	return exam, stats, nil
}

// Create inserts a new exam.
func (s *ExamService) Create(ctx context.Context, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{Name: req.Name}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	s.log.Info().Int("exam_id", exam.ID).Str("name", exam.Name).Msg("Exam created")
	return exam, nil
}

// AttachQuestion links an existing question to an exam at a position
// number. Position numbers and questions are unique within an exam.
func (s *ExamService) AttachQuestion(ctx context.Context, examID int, req *model.AttachQuestionRequest) error {
	exists, err := s.exams.Exists(ctx, examID)
	if err != nil {
		return fmt.Errorf("check exam: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	existing, err := s.questions.ExistingIDs(ctx, []int{req.QuestionID})
	if err != nil {
		return fmt.Errorf("check question: %w", err)
	}
	if len(existing) == 0 {
		return ErrNotFound
	}

	err = s.exams.AttachQuestion(ctx, &model.ExamQuestion{
		ExamID:     examID,
		QuestionID: req.QuestionID,
		Number:     req.Number,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrConflict
		}
		return fmt.Errorf("attach question: %w", err)
	}
	return nil
}
