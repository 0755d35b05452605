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

// MaterialRepository handles persistence of study materials.
type MaterialRepository struct {
	db *sqlx.DB
}

// NewMaterialRepository constructs the repository.
func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// Create persists a new study material record.
func (r *MaterialRepository) Create(ctx context.Context, material *models.StudyMaterial) error {
	if material.ID == "" {
		material.ID = uuid.NewString()
	}
	if material.CreatedAt.IsZero() {
		material.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO study_materials (id, subject_id, title, description, file_url, uploaded_by, created_at)
        VALUES (:id, :subject_id, :title, :description, :file_url, :uploaded_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, material); err != nil {
		return fmt.Errorf("create study material: %w", err)
	}
	return nil
}

// FindByID returns a study material by its id.
func (r *MaterialRepository) FindByID(ctx context.Context, id string) (*models.StudyMaterial, error) {
	const query = `SELECT id, subject_id, title, description, file_url, uploaded_by, created_at
        FROM study_materials WHERE id = $1`
	var material models.StudyMaterial
	if err := r.db.GetContext(ctx, &material, query, id); err != nil {
		return nil, err
	}
	return &material, nil
}

// ListBySubject returns all study materials under a subject.
func (r *MaterialRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.StudyMaterial, error) {
	const query = `SELECT id, subject_id, title, description, file_url, uploaded_by, created_at
        FROM study_materials WHERE subject_id = $1 ORDER BY created_at DESC`
	var materials []models.StudyMaterial
	if err := r.db.SelectContext(ctx, &materials, query, subjectID); err != nil {
		return nil, fmt.Errorf("list study materials: %w", err)
	}
	return materials, nil
}

// Delete removes a study material by id.
func (r *MaterialRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM study_materials WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete study material: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check material delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
