package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medway/exam-backend/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by id.
func (r *ExamRepository) GetByID(ctx context.Context, id int) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Exists reports whether an exam with the given id exists.
func (r *ExamRepository) Exists(ctx context.Context, id int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exams WHERE id = $1)`, id,
	).Scan(&exists)
	return exists, err
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (name) VALUES ($1) RETURNING id`, e.Name,
	).Scan(&e.ID)
}

// QuestionIDs returns the set of question ids attached to an exam.
func (r *ExamRepository) QuestionIDs(ctx context.Context, examID int) ([]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id FROM exam_questions WHERE exam_id = $1`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AttachQuestion links a question to an exam at a position number.
// Both (exam, number) and (exam, question) are unique; violating
// either returns ErrDuplicate.
func (r *ExamRepository) AttachQuestion(ctx context.Context, eq *model.ExamQuestion) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_questions (exam_id, question_id, number)
		 VALUES ($1, $2, $3)`,
		eq.ExamID, eq.QuestionID, eq.Number)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ListQuestions returns the exam's questions in position order, with
// alternatives loaded.
func (r *ExamRepository) ListQuestions(ctx context.Context, examID int) ([]model.NumberedItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT eq.number, q.id, q.content, q.selection_type
		 FROM exam_questions eq
		 JOIN questions q ON q.id = eq.question_id
		 WHERE eq.exam_id = $1
		 ORDER BY eq.number`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.NumberedItem
	index := make(map[int]int) // question id → items index
	for rows.Next() {
		var item model.NumberedItem
		if err := rows.Scan(&item.Number, &item.Question.ID, &item.Question.Content, &item.Question.SelectionType); err != nil {
			return nil, err
		}
		index[item.Question.ID] = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	altRows, err := r.pool.Query(ctx,
		`SELECT a.id, a.question_id, a.option, a.content, a.is_correct
		 FROM alternatives a
		 JOIN exam_questions eq ON eq.question_id = a.question_id
		 WHERE eq.exam_id = $1
		 ORDER BY a.question_id, a.option`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer altRows.Close()

	for altRows.Next() {
		var alt model.Alternative
		if err := altRows.Scan(&alt.ID, &alt.QuestionID, &alt.Option, &alt.Content, &alt.IsCorrect); err != nil {
			return nil, err
		}
		if i, ok := index[alt.QuestionID]; ok {
			items[i].Question.Alternatives = append(items[i].Question.Alternatives, alt)
		}
	}
	return items, altRows.Err()
}

// List retrieves exams matching the filter, paginated, with question
// counts.
func (r *ExamRepository) List(ctx context.Context, filter model.ExamFilter, page, perPage int) ([]model.ExamSummary, int64, error) {
	offset := (page - 1) * perPage

	baseQuery := `
		FROM exams e
		LEFT JOIN exam_questions eq ON eq.exam_id = e.id
	`
	where := " WHERE true"
	var args []any

	if filter.Name != "" {
		args = append(args, "%"+filter.Name+"%")
		where += fmt.Sprintf(" AND e.name ILIKE $%d", len(args))
	}

	having := ""
	if filter.HasQuestions != nil {
		if *filter.HasQuestions {
			having = " HAVING COUNT(eq.id) > 0"
		} else {
			having = " HAVING COUNT(eq.id) = 0"
		}
	}
	if filter.MinQuestions != nil {
		args = append(args, *filter.MinQuestions)
		clause := fmt.Sprintf("COUNT(eq.id) >= $%d", len(args))
		if having == "" {
			having = " HAVING " + clause
		} else {
			having += " AND " + clause
		}
	}

	grouped := "SELECT e.id, e.name, COUNT(eq.id) AS total_questions " +
		baseQuery + where + " GROUP BY e.id, e.name" + having

	var total int64
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM ("+grouped+") AS g", args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := grouped + fmt.Sprintf(" ORDER BY e.id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.ExamSummary
	for rows.Next() {
		var e model.ExamSummary
		if err := rows.Scan(&e.ID, &e.Name, &e.TotalQuestions); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}
