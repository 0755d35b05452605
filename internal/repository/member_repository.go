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

// MemberRepository handles persistence of subject memberships.
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository constructs the repository.
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Create inserts a membership. The (subject_id, student_id) unique key
// makes the insert itself the uniqueness check; callers translate
// IsUniqueViolation into a conflict.
func (r *MemberRepository) Create(ctx context.Context, member *models.SubjectMember) error {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}
	const query = `INSERT INTO subject_members (id, subject_id, student_id, joined_at)
        VALUES (:id, :subject_id, :student_id, :joined_at)`
	if _, err := r.db.NamedExecContext(ctx, query, member); err != nil {
		return err
	}
	return nil
}

// Exists reports whether the student already holds a membership in the subject.
func (r *MemberRepository) Exists(ctx context.Context, subjectID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM subject_members WHERE subject_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, subjectID, studentID); err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("check membership: %w", err)
	}
	return true, nil
}

// Roster returns the subject's members joined with their user profiles.
func (r *MemberRepository) Roster(ctx context.Context, subjectID string) ([]models.RosterEntry, error) {
	const query = `SELECT m.id AS member_id, u.id AS student_id, u.full_name, u.email, m.joined_at
        FROM subject_members m
        JOIN users u ON u.id = m.student_id
        WHERE m.subject_id = $1
        ORDER BY m.joined_at`
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, subjectID); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return roster, nil
}

// Delete removes a membership by its own id. A missing row surfaces as
// sql.ErrNoRows so callers can report not-found instead of silently
// succeeding.
func (r *MemberRepository) Delete(ctx context.Context, memberID string) error {
	const query = `DELETE FROM subject_members WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, memberID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check member delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID returns a membership by its id.
func (r *MemberRepository) FindByID(ctx context.Context, memberID string) (*models.SubjectMember, error) {
	const query = `SELECT id, subject_id, student_id, joined_at FROM subject_members WHERE id = $1`
	var member models.SubjectMember
	if err := r.db.GetContext(ctx, &member, query, memberID); err != nil {
		return nil, err
	}
	return &member, nil
}

// SubjectsByStudent returns the subjects a student has joined. The
// inner join drops membership rows whose subject has been deleted.
func (r *MemberRepository) SubjectsByStudent(ctx context.Context, studentID string) ([]models.Subject, error) {
	const query = `SELECT s.id, s.branch_id, s.teacher_id, s.class_name, s.subject_name, s.description, s.class_code, s.created_at
        FROM subject_members m
        JOIN subjects s ON s.id = m.subject_id
        WHERE m.student_id = $1
        ORDER BY m.joined_at DESC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, studentID); err != nil {
		return nil, fmt.Errorf("list student subjects: %w", err)
	}
	return subjects, nil
}
