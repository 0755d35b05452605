package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/classbridge/classbridge-api/internal/models"
)

func TestSubjectRepositoryCreateReturnsRawUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	pqErr := &pq.Error{Code: "23505", Constraint: "subjects_class_code_key"}
	mock.ExpectExec("INSERT INTO subjects").WillReturnError(pqErr)

	err := repo.Create(context.Background(), &models.Subject{
		BranchID:    "br-1",
		TeacherID:   "tea-1",
		ClassName:   "10A",
		SubjectName: "Mathematics",
		ClassCode:   "AB12CD",
	})
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryFindByClassCode(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	rows := sqlmock.NewRows([]string{"id", "branch_id", "teacher_id", "class_name", "subject_name", "description", "class_code", "created_at"}).
		AddRow("sub-1", "br-1", "tea-1", "10A", "Mathematics", "", "AB12CD", time.Now())
	mock.ExpectQuery("SELECT id, branch_id, teacher_id, class_name, subject_name, description, class_code, created_at\\s+FROM subjects WHERE class_code").
		WithArgs("AB12CD").
		WillReturnRows(rows)

	subject, err := repo.FindByClassCode(context.Background(), "AB12CD")
	require.NoError(t, err)
	require.Equal(t, "sub-1", subject.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryDeleteCascade(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT file_url FROM study_materials WHERE subject_id = $1")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_url"}).AddRow("/api/v1/files/mat-token"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT file_url FROM subject_assignments WHERE subject_id = $1 AND file_url IS NOT NULL")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_url"}))
	mock.ExpectQuery("SELECT s.file_url FROM subject_submissions s").
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_url"}).AddRow("/api/v1/files/sub-token"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM subject_members WHERE subject_id = $1")).
		WithArgs("sub-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM study_materials WHERE subject_id = $1")).
		WithArgs("sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM subject_submissions WHERE assignment_id IN").
		WithArgs("sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM subject_assignments WHERE subject_id = $1")).
		WithArgs("sub-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM subjects WHERE id = $1")).
		WithArgs("sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	orphaned, err := repo.DeleteCascade(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Equal(t, []string{"/api/v1/files/mat-token", "/api/v1/files/sub-token"}, orphaned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryDeleteCascadeMissingSubject(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT file_url FROM study_materials WHERE subject_id = $1")).
		WithArgs("sub-404").
		WillReturnRows(sqlmock.NewRows([]string{"file_url"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT file_url FROM subject_assignments WHERE subject_id = $1 AND file_url IS NOT NULL")).
		WithArgs("sub-404").
		WillReturnRows(sqlmock.NewRows([]string{"file_url"}))
	mock.ExpectQuery("SELECT s.file_url FROM subject_submissions s").
		WithArgs("sub-404").
		WillReturnRows(sqlmock.NewRows([]string{"file_url"}))
	mock.ExpectExec("DELETE FROM subject_members").WithArgs("sub-404").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM study_materials").WithArgs("sub-404").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM subject_submissions").WithArgs("sub-404").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM subject_assignments").WithArgs("sub-404").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM subjects").WithArgs("sub-404").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.DeleteCascade(context.Background(), "sub-404")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
