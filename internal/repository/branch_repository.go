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

// BranchRepository handles persistence of branches.
type BranchRepository struct {
	db *sqlx.DB
}

// NewBranchRepository constructs the repository.
func NewBranchRepository(db *sqlx.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

// Create persists a new branch record.
func (r *BranchRepository) Create(ctx context.Context, branch *models.Branch) error {
	if branch.ID == "" {
		branch.ID = uuid.NewString()
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO branches (id, teacher_id, branch_name, description, created_at)
        VALUES (:id, :teacher_id, :branch_name, :description, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, branch); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	return nil
}

// FindByID returns a branch by its id.
func (r *BranchRepository) FindByID(ctx context.Context, id string) (*models.Branch, error) {
	const query = `SELECT id, teacher_id, branch_name, description, created_at FROM branches WHERE id = $1`
	var branch models.Branch
	if err := r.db.GetContext(ctx, &branch, query, id); err != nil {
		return nil, err
	}
	return &branch, nil
}

// ListByTeacher returns all branches owned by a teacher.
func (r *BranchRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Branch, error) {
	const query = `SELECT id, teacher_id, branch_name, description, created_at
        FROM branches WHERE teacher_id = $1 ORDER BY created_at DESC`
	var branches []models.Branch
	if err := r.db.SelectContext(ctx, &branches, query, teacherID); err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return branches, nil
}

// DeleteCascade removes a branch and every subject beneath it, with
// each subject's members, materials, assignments and submissions, in a
// single transaction. It returns the file URLs of removed records so
// the caller can reap the backing blobs.
func (r *BranchRepository) DeleteCascade(ctx context.Context, branchID string) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin branch delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var subjectIDs []string
	if err := tx.SelectContext(ctx, &subjectIDs, `SELECT id FROM subjects WHERE branch_id = $1`, branchID); err != nil {
		return nil, fmt.Errorf("list branch subjects: %w", err)
	}

	var orphaned []string
	for _, subjectID := range subjectIDs {
		files, err := deleteSubjectTx(ctx, tx, subjectID)
		if err != nil {
			return nil, err
		}
		orphaned = append(orphaned, files...)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, branchID)
	if err != nil {
		return nil, fmt.Errorf("delete branch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check branch delete rows: %w", err)
	}
	if affected == 0 {
		return nil, sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit branch delete: %w", err)
	}
	return orphaned, nil
}
