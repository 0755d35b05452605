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

// SubjectRepository handles persistence of subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs the repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// Create persists a new subject. The class_code column carries a
// unique key; callers detect IsUniqueViolation and retry with a
// freshly generated code.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO subjects (id, branch_id, teacher_id, class_name, subject_name, description, class_code, created_at)
        VALUES (:id, :branch_id, :teacher_id, :class_name, :subject_name, :description, :class_code, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return err
	}
	return nil
}

// FindByID returns a subject by its id.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	const query = `SELECT id, branch_id, teacher_id, class_name, subject_name, description, class_code, created_at
        FROM subjects WHERE id = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// FindByClassCode returns the subject carrying the given join code.
// Codes are stored upper-case; callers normalize before lookup.
func (r *SubjectRepository) FindByClassCode(ctx context.Context, code string) (*models.Subject, error) {
	const query = `SELECT id, branch_id, teacher_id, class_name, subject_name, description, class_code, created_at
        FROM subjects WHERE class_code = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, code); err != nil {
		return nil, err
	}
	return &subject, nil
}

// ListByBranch returns all subjects under a branch.
func (r *SubjectRepository) ListByBranch(ctx context.Context, branchID string) ([]models.Subject, error) {
	const query = `SELECT id, branch_id, teacher_id, class_name, subject_name, description, class_code, created_at
        FROM subjects WHERE branch_id = $1 ORDER BY created_at DESC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, branchID); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// DeleteCascade removes a subject and all dependent records in one
// transaction: members, study materials, submissions per assignment,
// assignments, then the subject itself. It returns the file URLs of
// removed records so the caller can reap the backing blobs.
func (r *SubjectRepository) DeleteCascade(ctx context.Context, subjectID string) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin subject delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	orphaned, err := deleteSubjectTx(ctx, tx, subjectID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit subject delete: %w", err)
	}
	return orphaned, nil
}

// deleteSubjectTx performs the child-first cascade inside an existing
// transaction. Branch deletion reuses it per subject.
func deleteSubjectTx(ctx context.Context, tx *sqlx.Tx, subjectID string) ([]string, error) {
	var orphaned []string

	var materialFiles []string
	if err := tx.SelectContext(ctx, &materialFiles,
		`SELECT file_url FROM study_materials WHERE subject_id = $1`, subjectID); err != nil {
		return nil, fmt.Errorf("list subject material files: %w", err)
	}
	orphaned = append(orphaned, materialFiles...)

	var assignmentFiles []string
	if err := tx.SelectContext(ctx, &assignmentFiles,
		`SELECT file_url FROM subject_assignments WHERE subject_id = $1 AND file_url IS NOT NULL`, subjectID); err != nil {
		return nil, fmt.Errorf("list subject assignment files: %w", err)
	}
	orphaned = append(orphaned, assignmentFiles...)

	var submissionFiles []string
	if err := tx.SelectContext(ctx, &submissionFiles,
		`SELECT s.file_url FROM subject_submissions s
         JOIN subject_assignments a ON a.id = s.assignment_id
         WHERE a.subject_id = $1`, subjectID); err != nil {
		return nil, fmt.Errorf("list subject submission files: %w", err)
	}
	orphaned = append(orphaned, submissionFiles...)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subject_members WHERE subject_id = $1`, subjectID); err != nil {
		return nil, fmt.Errorf("delete subject members: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM study_materials WHERE subject_id = $1`, subjectID); err != nil {
		return nil, fmt.Errorf("delete study materials: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subject_submissions WHERE assignment_id IN (SELECT id FROM subject_assignments WHERE subject_id = $1)`, subjectID); err != nil {
		return nil, fmt.Errorf("delete subject submissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subject_assignments WHERE subject_id = $1`, subjectID); err != nil {
		return nil, fmt.Errorf("delete subject assignments: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("delete subject: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check subject delete rows: %w", err)
	}
	if affected == 0 {
		return nil, sql.ErrNoRows
	}
	return orphaned, nil
}
