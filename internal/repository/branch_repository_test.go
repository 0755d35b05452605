package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/classbridge/classbridge-api/internal/models"
)

func TestBranchRepositoryListByTeacher(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBranchRepository(db)

	rows := sqlmock.NewRows([]string{"id", "teacher_id", "branch_name", "description", "created_at"}).
		AddRow("br-1", "tea-1", "North Campus", "", time.Now()).
		AddRow("br-2", "tea-1", "South Campus", "evening classes", time.Now().Add(-time.Hour))
	mock.ExpectQuery("SELECT id, teacher_id, branch_name, description, created_at\\s+FROM branches WHERE teacher_id").
		WithArgs("tea-1").
		WillReturnRows(rows)

	branches, err := repo.ListByTeacher(context.Background(), "tea-1")
	require.NoError(t, err)
	require.Len(t, branches, 2)
	require.Equal(t, "North Campus", branches[0].BranchName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBranchRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBranchRepository(db)

	mock.ExpectExec("INSERT INTO branches").WillReturnResult(sqlmock.NewResult(0, 1))

	branch := &models.Branch{TeacherID: "tea-1", BranchName: "North Campus"}
	require.NoError(t, repo.Create(context.Background(), branch))
	require.NotEmpty(t, branch.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBranchRepositoryDeleteCascadeSpansSubjects(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBranchRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM subjects WHERE branch_id = $1")).
		WithArgs("br-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sub-1"))

	// Cascade for the single subject beneath the branch.
	mock.ExpectQuery("SELECT file_url FROM study_materials").
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_url"}).AddRow("/api/v1/files/tok"))
	mock.ExpectQuery("SELECT file_url FROM subject_assignments").
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_url"}))
	mock.ExpectQuery("SELECT s.file_url FROM subject_submissions s").
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_url"}))
	mock.ExpectExec("DELETE FROM subject_members").WithArgs("sub-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM study_materials").WithArgs("sub-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM subject_submissions").WithArgs("sub-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM subject_assignments").WithArgs("sub-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM subjects").WithArgs("sub-1").WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM branches WHERE id = $1")).
		WithArgs("br-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	orphaned, err := repo.DeleteCascade(context.Background(), "br-1")
	require.NoError(t, err)
	require.Equal(t, []string{"/api/v1/files/tok"}, orphaned)
	require.NoError(t, mock.ExpectationsWereMet())
}
