package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medway/exam-backend/internal/model"
)

// scoreExpr derives a submission's score in SQL: the percentage of
// answers whose selected option matches the question's alternative
// flagged correct, rounded to two decimals, 0 for zero answers. It
// expects submission_answers aliased "a" and the correct-alternative
// join aliased "alt".
const scoreExpr = `COALESCE(ROUND(100.0 * COUNT(alt.id) / NULLIF(COUNT(a.id), 0), 2), 0)::float8`

// correctAltJoin matches an answer to the correct alternative of its
// question, if the selection is right.
const correctAltJoin = `LEFT JOIN alternatives alt
			ON alt.question_id = a.question_id
			AND alt.option = a.selected_option
			AND alt.is_correct`

// SubmissionRepository handles exam submission persistence. Its
// uniqueness constraints — one submission per (student, exam), one
// answer per (submission, question) — are the single source of truth
// for conflict detection.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// CreateWithAnswers atomically creates the submission and its answers,
// or converges on the existing row. In one transaction:
//
//  1. INSERT ... ON CONFLICT DO NOTHING on (student_id, exam_id). No
//     returned row means this job lost the race with a concurrent
//     identical submission (or is a redelivery); the existing row is
//     reloaded and answers are left untouched.
//  2. Only the creating job bulk-inserts its answers, each with
//     ON CONFLICT DO NOTHING so a resumed job with overlapping answers
//     cannot trip the per-(submission, question) constraint.
//
// created reports whether this call performed the creation.
func (r *SubmissionRepository) CreateWithAnswers(ctx context.Context, studentID, examID int, answers []model.AnswerSubmission) (sub *model.ExamSubmission, created bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	sub = &model.ExamSubmission{StudentID: studentID, ExamID: examID}
	created = true

	err = tx.QueryRow(ctx,
		`INSERT INTO exam_submissions (student_id, exam_id)
		 VALUES ($1, $2)
		 ON CONFLICT (student_id, exam_id) DO NOTHING
		 RETURNING id, submitted_at`,
		studentID, examID,
	).Scan(&sub.ID, &sub.SubmittedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		created = false
		err = tx.QueryRow(ctx,
			`SELECT id, submitted_at FROM exam_submissions
			 WHERE student_id = $1 AND exam_id = $2`,
			studentID, examID,
		).Scan(&sub.ID, &sub.SubmittedAt)
	}
	if err != nil {
		return nil, false, fmt.Errorf("create submission: %w", err)
	}

	if created && len(answers) > 0 {
		batch := &pgx.Batch{}
		for _, a := range answers {
			batch.Queue(
				`INSERT INTO submission_answers (submission_id, question_id, selected_option)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (submission_id, question_id) DO NOTHING`,
				sub.ID, a.QuestionID, a.SelectedOption)
		}
		br := tx.SendBatch(ctx, batch)
		for range answers {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return nil, false, fmt.Errorf("insert answers: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return nil, false, fmt.Errorf("close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return sub, created, nil
}

// Exists reports whether a submission exists for (student, exam). The
// ingress API uses this as an advisory time-of-check; the worker's
// transaction re-verifies atomically.
func (r *SubmissionRepository) Exists(ctx context.Context, studentID, examID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_submissions WHERE student_id = $1 AND exam_id = $2)`,
		studentID, examID,
	).Scan(&exists)
	return exists, err
}

// GetByID retrieves a submission by id.
func (r *SubmissionRepository) GetByID(ctx context.Context, id int) (*model.ExamSubmission, error) {
	s := &model.ExamSubmission{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, student_id, exam_id, submitted_at FROM exam_submissions WHERE id = $1`, id,
	).Scan(&s.ID, &s.StudentID, &s.ExamID, &s.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByStudentAndExam retrieves the submission for a (student, exam)
// pair.
func (r *SubmissionRepository) GetByStudentAndExam(ctx context.Context, studentID, examID int) (*model.ExamSubmission, error) {
	s := &model.ExamSubmission{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, student_id, exam_id, submitted_at FROM exam_submissions
		 WHERE student_id = $1 AND exam_id = $2`,
		studentID, examID,
	).Scan(&s.ID, &s.StudentID, &s.ExamID, &s.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CountByExam returns the number of submissions for an exam.
func (r *SubmissionRepository) CountByExam(ctx context.Context, examID int) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_submissions WHERE exam_id = $1`, examID,
	).Scan(&count)
	return count, err
}

// GetAnswers retrieves a submission's answers ordered by question id.
func (r *SubmissionRepository) GetAnswers(ctx context.Context, submissionID int) ([]model.SubmissionAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, submission_id, question_id, selected_option
		 FROM submission_answers WHERE submission_id = $1
		 ORDER BY question_id`, submissionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.SubmissionAnswer
	for rows.Next() {
		var a model.SubmissionAnswer
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.QuestionID, &a.SelectedOption); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// ScoreInfo returns the derived score and answer count of a submission.
func (r *SubmissionRepository) ScoreInfo(ctx context.Context, submissionID int) (score float64, totalAnswers int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(a.id), `+scoreExpr+`
		 FROM exam_submissions s
		 LEFT JOIN submission_answers a ON a.submission_id = s.id
		 `+correctAltJoin+`
		 WHERE s.id = $1
		 GROUP BY s.id`, submissionID,
	).Scan(&totalAnswers, &score)
	return score, totalAnswers, err
}

// List retrieves submissions matching the filter, paginated, with
// derived scores.
func (r *SubmissionRepository) List(ctx context.Context, filter model.SubmissionFilter, page, perPage int) ([]model.SubmissionListItem, int64, error) {
	offset := (page - 1) * perPage

	where := " WHERE true"
	var args []any

	if filter.StudentID != nil {
		args = append(args, *filter.StudentID)
		where += fmt.Sprintf(" AND s.student_id = $%d", len(args))
	}
	if filter.ExamID != nil {
		args = append(args, *filter.ExamID)
		where += fmt.Sprintf(" AND s.exam_id = $%d", len(args))
	}
	if filter.StudentName != "" {
		args = append(args, "%"+filter.StudentName+"%")
		where += fmt.Sprintf(" AND st.name ILIKE $%d", len(args))
	}
	if filter.ExamName != "" {
		args = append(args, "%"+filter.ExamName+"%")
		where += fmt.Sprintf(" AND e.name ILIKE $%d", len(args))
	}
	if filter.SubmittedFrom != nil {
		args = append(args, *filter.SubmittedFrom)
		where += fmt.Sprintf(" AND s.submitted_at >= $%d", len(args))
	}
	if filter.SubmittedTo != nil {
		args = append(args, *filter.SubmittedTo)
		where += fmt.Sprintf(" AND s.submitted_at <= $%d", len(args))
	}

	having := ""
	if filter.MinScore != nil {
		args = append(args, *filter.MinScore)
		having = fmt.Sprintf(" HAVING %s >= $%d", scoreExpr, len(args))
	}
	if filter.MaxScore != nil {
		args = append(args, *filter.MaxScore)
		clause := fmt.Sprintf("%s <= $%d", scoreExpr, len(args))
		if having == "" {
			having = " HAVING " + clause
		} else {
			having += " AND " + clause
		}
	}

	grouped := `
		SELECT s.id, s.student_id, st.name, s.exam_id, e.name, s.submitted_at,
		       COUNT(a.id) AS total_answers, ` + scoreExpr + ` AS score
		FROM exam_submissions s
		JOIN students st ON st.id = s.student_id
		JOIN exams e ON e.id = s.exam_id
		LEFT JOIN submission_answers a ON a.submission_id = s.id
		` + correctAltJoin + where + `
		GROUP BY s.id, s.student_id, st.name, s.exam_id, e.name, s.submitted_at` + having

	var total int64
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM ("+grouped+") AS g", args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := grouped + fmt.Sprintf(" ORDER BY s.submitted_at DESC, s.id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []model.SubmissionListItem
	for rows.Next() {
		var it model.SubmissionListItem
		if err := rows.Scan(&it.ID, &it.StudentID, &it.StudentName, &it.ExamID, &it.ExamName,
			&it.SubmittedAt, &it.TotalAnswers, &it.Score); err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

// Statistics aggregates all submissions of an exam: overall score
// spread plus per-question accuracy in position order.
func (r *SubmissionRepository) Statistics(ctx context.Context, examID int) (*model.ExamStatistics, error) {
	stats := &model.ExamStatistics{}

	err := r.pool.QueryRow(ctx,
		`WITH scores AS (
			SELECT s.id, `+scoreExpr+` AS score
			FROM exam_submissions s
			LEFT JOIN submission_answers a ON a.submission_id = s.id
			`+correctAltJoin+`
			WHERE s.exam_id = $1
			GROUP BY s.id
		)
		SELECT COUNT(*),
		       COALESCE(ROUND(AVG(score)::numeric, 2), 0)::float8,
		       COALESCE(MAX(score), 0)::float8,
		       COALESCE(MIN(score), 0)::float8
		FROM scores`, examID,
	).Scan(&stats.TotalSubmissions, &stats.AverageScore, &stats.HighestScore, &stats.LowestScore)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT eq.question_id, eq.number, q.content,
		        COUNT(a.id),
		        COUNT(alt.id),
		        COALESCE(ROUND(100.0 * COUNT(alt.id) / NULLIF(COUNT(a.id), 0), 2), 0)::float8
		 FROM exam_questions eq
		 JOIN questions q ON q.id = eq.question_id
		 LEFT JOIN submission_answers a ON a.question_id = eq.question_id
			AND a.submission_id IN (SELECT id FROM exam_submissions WHERE exam_id = $1)
		 `+correctAltJoin+`
		 WHERE eq.exam_id = $1
		 GROUP BY eq.question_id, eq.number, q.content
		 ORDER BY eq.number`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var qs model.QuestionStatistics
		if err := rows.Scan(&qs.QuestionID, &qs.Number, &qs.Content,
			&qs.TotalAnswers, &qs.CorrectAnswers, &qs.AccuracyPercentage); err != nil {
			return nil, err
		}
		stats.QuestionsStatistics = append(stats.QuestionsStatistics, qs)
	}
	return stats, rows.Err()
}

// Analysis compares one submission's score against the other
// submissions of the same exam. The submission must exist.
func (r *SubmissionRepository) Analysis(ctx context.Context, submissionID int) (*model.SubmissionAnalysis, error) {
	a := &model.SubmissionAnalysis{}
	err := r.pool.QueryRow(ctx,
		`WITH scores AS (
			SELECT s.id, `+scoreExpr+` AS score
			FROM exam_submissions s
			LEFT JOIN submission_answers a ON a.submission_id = s.id
			`+correctAltJoin+`
			WHERE s.exam_id = (SELECT exam_id FROM exam_submissions WHERE id = $1)
			GROUP BY s.id
		)
		SELECT (SELECT score FROM scores WHERE id = $1),
		       COALESCE(ROUND(AVG(score)::numeric, 2), 0)::float8,
		       (SELECT COUNT(*) + 1 FROM scores
		        WHERE score > (SELECT score FROM scores WHERE id = $1)),
		       COUNT(*)
		FROM scores`, submissionID,
	).Scan(&a.YourScore, &a.AverageScore, &a.Rank, &a.TotalSubmissions)
	if err != nil {
		return nil, err
	}
	a.AboveAverage = a.YourScore > a.AverageScore
	return a, nil
}
