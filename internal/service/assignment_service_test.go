package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classbridge/classbridge-api/internal/models"
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
)

type fakeAssignmentRepo struct {
	assignments map[string]models.Assignment
	created     *models.Assignment
	bySubject   []models.Assignment
}

func (f *fakeAssignmentRepo) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = "asg-new"
	}
	if f.assignments == nil {
		f.assignments = make(map[string]models.Assignment)
	}
	f.assignments[assignment.ID] = *assignment
	f.created = assignment
	return nil
}

func (f *fakeAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if a, ok := f.assignments[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAssignmentRepo) ListBySubject(ctx context.Context, subjectID string) ([]models.Assignment, error) {
	return f.bySubject, nil
}

func TestAssignmentServiceCreateStoresCallerDueDate(t *testing.T) {
	repo := &fakeAssignmentRepo{}
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	svc := NewAssignmentService(repo, subjects, nil, nil, nil)

	due := time.Date(2026, 10, 15, 23, 59, 0, 0, time.FixedZone("PKT", 5*3600))
	assignment, err := svc.Create(context.Background(), "tea-1", "sub-1", CreateAssignmentRequest{
		Title:   "Quiz 1",
		DueDate: due,
	})
	require.NoError(t, err)
	assert.Equal(t, "tea-1", assignment.TeacherID)
	assert.True(t, assignment.DueDate.Equal(due))
	assert.Equal(t, time.UTC, assignment.DueDate.Location())
	require.NotNil(t, repo.created)
	assert.True(t, repo.created.DueDate.Equal(due))
}

func TestAssignmentServiceCreateRejectsZeroDueDate(t *testing.T) {
	repo := &fakeAssignmentRepo{}
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	svc := NewAssignmentService(repo, subjects, nil, nil, nil)

	_, err := svc.Create(context.Background(), "tea-1", "sub-1", CreateAssignmentRequest{Title: "Quiz 1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestAssignmentServiceCreateForbiddenSubject(t *testing.T) {
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	svc := NewAssignmentService(&fakeAssignmentRepo{}, subjects, nil, nil, nil)

	_, err := svc.Create(context.Background(), "tea-2", "sub-1", CreateAssignmentRequest{
		Title:   "Quiz 1",
		DueDate: time.Now().Add(24 * time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceListRequiresMembership(t *testing.T) {
	repo := &fakeAssignmentRepo{bySubject: []models.Assignment{{ID: "asg-1", SubjectID: "sub-1", Title: "Quiz 1"}}}
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	members := &fakeMembershipChecker{pairs: map[string]bool{pairKey("sub-1", "stu-1"): true}}
	svc := NewAssignmentService(repo, subjects, members, nil, nil)

	member := &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}
	assignments, err := svc.ListBySubject(context.Background(), member, "sub-1")
	require.NoError(t, err)
	assert.Len(t, assignments, 1)

	outsider := &models.JWTClaims{UserID: "stu-2", Role: models.RoleStudent}
	_, err = svc.ListBySubject(context.Background(), outsider, "sub-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceListForbiddenForOtherTeacher(t *testing.T) {
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	svc := NewAssignmentService(&fakeAssignmentRepo{}, subjects, nil, nil, nil)

	other := &models.JWTClaims{UserID: "tea-2", Role: models.RoleTeacher}
	_, err := svc.ListBySubject(context.Background(), other, "sub-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
