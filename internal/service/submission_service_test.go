package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classbridge/classbridge-api/internal/models"
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
)

type fakeSubmissionRepo struct {
	submissions map[string]models.Submission
	byPair      map[string]models.Submission
	createErr   error
	created     *models.Submission
	graded      map[string]float64
}

func (f *fakeSubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	if f.createErr != nil {
		return f.createErr
	}
	if submission.ID == "" {
		submission.ID = "smt-new"
	}
	f.created = submission
	return nil
}

func (f *fakeSubmissionRepo) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	if s, ok := f.submissions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeSubmissionRepo) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	if s, ok := f.byPair[pairKey(assignmentID, studentID)]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeSubmissionRepo) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	var out []models.SubmissionDetail
	for _, s := range f.submissions {
		if s.AssignmentID == assignmentID {
			out = append(out, models.SubmissionDetail{Submission: s})
		}
	}
	return out, nil
}

func (f *fakeSubmissionRepo) Grade(ctx context.Context, id string, marks float64, gradedAt time.Time) error {
	if _, ok := f.submissions[id]; !ok {
		return sql.ErrNoRows
	}
	if f.graded == nil {
		f.graded = make(map[string]float64)
	}
	f.graded[id] = marks
	return nil
}

type fakeAssignmentReader struct {
	assignments map[string]models.Assignment
}

func (f *fakeAssignmentReader) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if a, ok := f.assignments[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func mathAssignment() map[string]models.Assignment {
	return map[string]models.Assignment{
		"asg-1": {ID: "asg-1", SubjectID: "sub-1", TeacherID: "tea-1", Title: "Week 1 problem set", DueDate: time.Now().Add(48 * time.Hour)},
	}
}

func TestSubmissionServiceSubmit(t *testing.T) {
	repo := &fakeSubmissionRepo{}
	members := &fakeMembershipChecker{pairs: map[string]bool{pairKey("sub-1", "stu-1"): true}}
	svc := NewSubmissionService(repo, &fakeAssignmentReader{assignments: mathAssignment()}, members, nil, nil)

	submission, err := svc.Submit(context.Background(), "stu-1", "asg-1", SubmitAssignmentRequest{FileURL: "/api/v1/files/tok"})
	require.NoError(t, err)
	assert.False(t, submission.Graded)
	assert.Nil(t, submission.Marks)
	require.NotNil(t, repo.created)
	assert.Equal(t, "stu-1", repo.created.StudentID)
}

func TestSubmissionServiceSubmitNotMember(t *testing.T) {
	svc := NewSubmissionService(&fakeSubmissionRepo{}, &fakeAssignmentReader{assignments: mathAssignment()}, &fakeMembershipChecker{}, nil, nil)

	_, err := svc.Submit(context.Background(), "stu-2", "asg-1", SubmitAssignmentRequest{FileURL: "/api/v1/files/tok"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubmissionServiceSubmitDuplicate(t *testing.T) {
	repo := &fakeSubmissionRepo{createErr: &pq.Error{Code: "23505"}}
	members := &fakeMembershipChecker{pairs: map[string]bool{pairKey("sub-1", "stu-1"): true}}
	svc := NewSubmissionService(repo, &fakeAssignmentReader{assignments: mathAssignment()}, members, nil, nil)

	_, err := svc.Submit(context.Background(), "stu-1", "asg-1", SubmitAssignmentRequest{FileURL: "/api/v1/files/tok"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmissionServiceStatusPending(t *testing.T) {
	svc := NewSubmissionService(&fakeSubmissionRepo{}, &fakeAssignmentReader{assignments: mathAssignment()}, &fakeMembershipChecker{}, nil, nil)

	submission, err := svc.Status(context.Background(), "stu-1", "asg-1")
	require.NoError(t, err)
	assert.Nil(t, submission)
}

func TestSubmissionServiceGrade(t *testing.T) {
	repo := &fakeSubmissionRepo{submissions: map[string]models.Submission{
		"smt-1": {ID: "smt-1", AssignmentID: "asg-1", StudentID: "stu-1", FileURL: "/api/v1/files/tok"},
	}}
	svc := NewSubmissionService(repo, &fakeAssignmentReader{assignments: mathAssignment()}, &fakeMembershipChecker{}, nil, nil)

	marks := 87.5
	submission, err := svc.Grade(context.Background(), "tea-1", "smt-1", GradeSubmissionRequest{Marks: &marks})
	require.NoError(t, err)
	assert.True(t, submission.Graded)
	require.NotNil(t, submission.Marks)
	assert.Equal(t, marks, *submission.Marks)
	assert.NotNil(t, submission.GradedAt)
	assert.Equal(t, marks, repo.graded["smt-1"])
}

func TestSubmissionServiceGradeForbidden(t *testing.T) {
	repo := &fakeSubmissionRepo{submissions: map[string]models.Submission{
		"smt-1": {ID: "smt-1", AssignmentID: "asg-1", StudentID: "stu-1"},
	}}
	svc := NewSubmissionService(repo, &fakeAssignmentReader{assignments: mathAssignment()}, &fakeMembershipChecker{}, nil, nil)

	marks := 50.0
	_, err := svc.Grade(context.Background(), "tea-other", "smt-1", GradeSubmissionRequest{Marks: &marks})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.graded)
}
