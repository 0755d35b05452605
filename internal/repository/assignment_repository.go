package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classbridge/classbridge-api/internal/models"
)

// AssignmentRepository handles persistence of subject assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create persists a new assignment record.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO subject_assignments (id, subject_id, teacher_id, title, description, due_date, file_url, created_at)
        VALUES (:id, :subject_id, :teacher_id, :title, :description, :due_date, :file_url, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// FindByID returns an assignment by its id.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	const query = `SELECT id, subject_id, teacher_id, title, description, due_date, file_url, created_at
        FROM subject_assignments WHERE id = $1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ListBySubject returns all assignments under a subject.
func (r *AssignmentRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.Assignment, error) {
	const query = `SELECT id, subject_id, teacher_id, title, description, due_date, file_url, created_at
        FROM subject_assignments WHERE subject_id = $1 ORDER BY created_at DESC`
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, subjectID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}
