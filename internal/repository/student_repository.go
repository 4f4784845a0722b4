package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medway/exam-backend/internal/model"
)

// StudentRepository handles student data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetByID retrieves a student by id.
func (r *StudentRepository) GetByID(ctx context.Context, id int) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, created_at FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Email, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Exists reports whether a student with the given id exists.
func (r *StudentRepository) Exists(ctx context.Context, id int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)`, id,
	).Scan(&exists)
	return exists, err
}

// Create inserts a new student. Returns ErrDuplicate when the email is
// already taken.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO students (name, email) VALUES ($1, $2)
		 RETURNING id, created_at`,
		s.Name, s.Email,
	).Scan(&s.ID, &s.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}
