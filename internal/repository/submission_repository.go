package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classbridge/classbridge-api/internal/models"
)

// SubmissionRepository handles persistence of assignment submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a submission. The (assignment_id, student_id) unique
// key rejects duplicate submissions; callers translate
// IsUniqueViolation into a conflict.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO subject_submissions (id, assignment_id, student_id, file_url, submitted_at, graded, marks, graded_at)
        VALUES (:id, :assignment_id, :student_id, :file_url, :submitted_at, :graded, :marks, :graded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return err
	}
	return nil
}

// FindByID returns a submission by its id.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, student_id, file_url, submitted_at, graded, marks, graded_at
        FROM subject_submissions WHERE id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// FindByAssignmentAndStudent returns the student's submission for an
// assignment, or sql.ErrNoRows when none exists yet.
func (r *SubmissionRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, student_id, file_url, submitted_at, graded, marks, graded_at
        FROM subject_submissions WHERE assignment_id = $1 AND student_id = $2`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListByAssignment returns submissions joined with student names.
// Students whose account has since been removed show as Unknown.
func (r *SubmissionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	const query = `SELECT s.id, s.assignment_id, s.student_id, s.file_url, s.submitted_at, s.graded, s.marks, s.graded_at,
        COALESCE(u.full_name, 'Unknown') AS student_name
        FROM subject_submissions s
        LEFT JOIN users u ON u.id = s.student_id
        WHERE s.assignment_id = $1
        ORDER BY s.submitted_at`
	var submissions []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &submissions, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// Grade marks a submission as graded with the given marks. Calling it
// again overwrites the previous marks and graded_at.
func (r *SubmissionRepository) Grade(ctx context.Context, id string, marks float64, gradedAt time.Time) error {
	const query = `UPDATE subject_submissions SET graded = TRUE, marks = $2, graded_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, marks, gradedAt)
	if err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check grade rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
