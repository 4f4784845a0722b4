package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medway/exam-backend/internal/model"
)

// QuestionRepository handles question and alternative data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetByID retrieves a question with its alternatives ordered by option.
func (r *QuestionRepository) GetByID(ctx context.Context, id int) (*model.Question, error) {
	q := &model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, content, selection_type FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.Content, &q.SelectionType)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, question_id, option, content, is_correct
		 FROM alternatives WHERE question_id = $1
		 ORDER BY option`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var alt model.Alternative
		if err := rows.Scan(&alt.ID, &alt.QuestionID, &alt.Option, &alt.Content, &alt.IsCorrect); err != nil {
			return nil, err
		}
		q.Alternatives = append(q.Alternatives, alt)
	}
	return q, rows.Err()
}

// ExistingIDs filters ids down to those that reference a question.
func (r *QuestionRepository) ExistingIDs(ctx context.Context, ids []int) ([]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM questions WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var existing []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing = append(existing, id)
	}
	return existing, rows.Err()
}

// Create inserts a question together with its alternatives in one
// transaction. For SINGLE questions at most one alternative may be
// flagged correct; that is validated by the service before this call,
// and the (question, option) uniqueness constraint backs the rest.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO questions (content, selection_type) VALUES ($1, $2)
		 RETURNING id`,
		q.Content, q.SelectionType,
	).Scan(&q.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}

	for i := range q.Alternatives {
		alt := &q.Alternatives[i]
		alt.QuestionID = q.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO alternatives (question_id, option, content, is_correct)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			alt.QuestionID, alt.Option, alt.Content, alt.IsCorrect,
		).Scan(&alt.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
	}

	return tx.Commit(ctx)
}

// SetCorrectAlternative flags an alternative as correct. When the
// owning question's selection type is SINGLE, correctness on sibling
// alternatives is cleared in the same transaction, so the invariant
// holds even under concurrent writes.
func (r *QuestionRepository) SetCorrectAlternative(ctx context.Context, alternativeID int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var questionID int
	var selectionType model.SelectionType
	err = tx.QueryRow(ctx,
		`SELECT q.id, q.selection_type
		 FROM alternatives a
		 JOIN questions q ON q.id = a.question_id
		 WHERE a.id = $1
		 FOR UPDATE OF q`, alternativeID,
	).Scan(&questionID, &selectionType)
	if err != nil {
		return err
	}

	if selectionType == model.SelectionSingle {
		_, err = tx.Exec(ctx,
			`UPDATE alternatives SET is_correct = false
			 WHERE question_id = $1 AND id <> $2 AND is_correct`,
			questionID, alternativeID)
		if err != nil {
			return err
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE alternatives SET is_correct = true WHERE id = $1`, alternativeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return tx.Commit(ctx)
}
