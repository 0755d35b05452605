package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/classbridge/classbridge-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestMemberRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	mock.ExpectExec("INSERT INTO subject_members").
		WillReturnResult(sqlmock.NewResult(0, 1))

	member := &models.SubjectMember{SubjectID: "sub-1", StudentID: "stu-1"}
	require.NoError(t, repo.Create(context.Background(), member))
	require.NotEmpty(t, member.ID)
	require.False(t, member.JoinedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepositoryExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM subject_members WHERE subject_id = $1 AND student_id = $2 LIMIT 1")).
		WithArgs("sub-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.Exists(context.Background(), "sub-1", "stu-1")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM subject_members WHERE subject_id = $1 AND student_id = $2 LIMIT 1")).
		WithArgs("sub-1", "stu-2").
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.Exists(context.Background(), "sub-1", "stu-2")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepositoryRoster(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	joined := time.Now()
	rows := sqlmock.NewRows([]string{"member_id", "student_id", "full_name", "email", "joined_at"}).
		AddRow("mem-1", "stu-1", "Ada Lovelace", "ada@example.com", joined).
		AddRow("mem-2", "stu-2", "Alan Turing", "alan@example.com", joined.Add(time.Minute))
	mock.ExpectQuery("SELECT m.id AS member_id, u.id AS student_id").
		WithArgs("sub-1").
		WillReturnRows(rows)

	roster, err := repo.Roster(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	require.Equal(t, "Ada Lovelace", roster[0].FullName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepositoryDeleteMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM subject_members WHERE id = $1")).
		WithArgs("mem-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "mem-404")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepositorySubjectsByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	rows := sqlmock.NewRows([]string{"id", "branch_id", "teacher_id", "class_name", "subject_name", "description", "class_code", "created_at"}).
		AddRow("sub-1", "br-1", "tea-1", "10A", "Mathematics", "", "AB12CD", time.Now())
	mock.ExpectQuery("SELECT s.id, s.branch_id, s.teacher_id").
		WithArgs("stu-1").
		WillReturnRows(rows)

	subjects, err := repo.SubjectsByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	require.Equal(t, "AB12CD", subjects[0].ClassCode)
	require.NoError(t, mock.ExpectationsWereMet())
}
