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

// ErrSingleChoiceCorrect rejects SINGLE questions declared with more
// than one correct alternative.
var ErrSingleChoiceCorrect = errors.New("single-choice questions allow only one correct alternative")

// QuestionCatalog is the question persistence surface the service
// needs.
type QuestionCatalog interface {
	GetByID(ctx context.Context, id int) (*model.Question, error)
	Create(ctx context.Context, q *model.Question) error
	SetCorrectAlternative(ctx context.Context, alternativeID int) error
}

// QuestionService handles the administrative question write path.
type QuestionService struct {
	questions QuestionCatalog
	log       zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questions QuestionCatalog, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		questions: questions,
		log:       log.With().Str("component", "question_service").Logger(),
	}
}

// GetByID retrieves a question with its alternatives.
func (s *QuestionService) GetByID(ctx context.Context, id int) (*model.Question, error) {
	q, err := s.questions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

// Create validates and inserts a question with its alternatives.
// Option codes must be unique within the question, and a SINGLE
// question may declare at most one correct alternative.
func (s *QuestionService) Create(ctx context.Context, req *model.CreateQuestionRequest) (*model.Question, error) {
	selectionType := model.SelectionType(req.SelectionType)
	if selectionType == "" {
		selectionType = model.SelectionSingle
	}

	seenOptions := make(map[int]bool, len(req.Alternatives))
	correctCount := 0
	for _, alt := range req.Alternatives {
		if seenOptions[alt.Option] {
			return nil, ErrConflict
		}
		seenOptions[alt.Option] = true
		if alt.IsCorrect {
			correctCount++
		}
	}
	if selectionType == model.SelectionSingle && correctCount > 1 {
		return nil, ErrSingleChoiceCorrect
	}

	q := &model.Question{
		Content:       req.Content,
		SelectionType: selectionType,
		Alternatives:  make([]model.Alternative, len(req.Alternatives)),
	}
	for i, alt := range req.Alternatives {
		q.Alternatives[i] = model.Alternative{
			Option:    alt.Option,
			Content:   alt.Content,
			IsCorrect: alt.IsCorrect,
		}
	}

	if err := s.questions.Create(ctx, q); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create question: %w", err)
	}

	s.log.Info().Int("question_id", q.ID).Str("selection_type", string(selectionType)).Msg("Question created")
	return q, nil
}

// SetCorrect flags an alternative as correct. For SINGLE questions the
// store clears sibling correctness in the same transaction.
func (s *QuestionService) SetCorrect(ctx context.Context, alternativeID int) error {
	if err := s.questions.SetCorrectAlternative(ctx, alternativeID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("set correct alternative: %w", err)
	}
	return nil
}
