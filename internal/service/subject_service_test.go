package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classbridge/classbridge-api/internal/models"
	"github.com/classbridge/classbridge-api/pkg/classcode"
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
)

type fakeSubjectRepo struct {
	subjects    map[string]models.Subject
	createErrs  []error
	createCalls int
	created     []models.Subject
	cascaded    []string
	orphaned    []string
}

func (f *fakeSubjectRepo) Create(ctx context.Context, subject *models.Subject) error {
	f.createCalls++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if subject.ID == "" {
		subject.ID = "sub-new"
	}
	f.created = append(f.created, *subject)
	return nil
}

func (f *fakeSubjectRepo) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := f.subjects[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeSubjectRepo) ListByBranch(ctx context.Context, branchID string) ([]models.Subject, error) {
	var out []models.Subject
	for _, s := range f.subjects {
		if s.BranchID == branchID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubjectRepo) DeleteCascade(ctx context.Context, subjectID string) ([]string, error) {
	if _, ok := f.subjects[subjectID]; !ok {
		return nil, sql.ErrNoRows
	}
	delete(f.subjects, subjectID)
	f.cascaded = append(f.cascaded, subjectID)
	return f.orphaned, nil
}

type fakeBranchReader struct {
	branches map[string]models.Branch
}

func (f *fakeBranchReader) FindByID(ctx context.Context, id string) (*models.Branch, error) {
	if b, ok := f.branches[id]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

type fakeMembershipChecker struct {
	pairs map[string]bool
}

func (f *fakeMembershipChecker) Exists(ctx context.Context, subjectID, studentID string) (bool, error) {
	return f.pairs[pairKey(subjectID, studentID)], nil
}

type fakeReaper struct {
	reaped []string
}

func (f *fakeReaper) Reap(urls []string) { f.reaped = append(f.reaped, urls...) }

func teacherBranch() map[string]models.Branch {
	return map[string]models.Branch{"br-1": {ID: "br-1", TeacherID: "tea-1", BranchName: "North Campus"}}
}

func TestSubjectServiceCreateAllocatesCode(t *testing.T) {
	repo := &fakeSubjectRepo{}
	svc := NewSubjectService(repo, &fakeBranchReader{branches: teacherBranch()}, nil, nil, nil, nil, nil)

	subject, err := svc.Create(context.Background(), "tea-1", "br-1", CreateSubjectRequest{ClassName: "10A", SubjectName: "Mathematics"})
	require.NoError(t, err)
	assert.True(t, classcode.Valid(subject.ClassCode))
	assert.Equal(t, "tea-1", subject.TeacherID)
}

func TestSubjectServiceCreateRetriesOnCodeCollision(t *testing.T) {
	repo := &fakeSubjectRepo{createErrs: []error{&pq.Error{Code: "23505"}, &pq.Error{Code: "23505"}}}
	svc := NewSubjectService(repo, &fakeBranchReader{branches: teacherBranch()}, nil, nil, nil, nil, nil)

	subject, err := svc.Create(context.Background(), "tea-1", "br-1", CreateSubjectRequest{ClassName: "10A", SubjectName: "Mathematics"})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.createCalls)
	assert.NotEmpty(t, subject.ClassCode)
}

func TestSubjectServiceCreateExhaustsRetries(t *testing.T) {
	errs := make([]error, codeAllocationAttempts)
	for i := range errs {
		errs[i] = &pq.Error{Code: "23505"}
	}
	repo := &fakeSubjectRepo{createErrs: errs}
	svc := NewSubjectService(repo, &fakeBranchReader{branches: teacherBranch()}, nil, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), "tea-1", "br-1", CreateSubjectRequest{ClassName: "10A", SubjectName: "Mathematics"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceCreateForbiddenBranch(t *testing.T) {
	svc := NewSubjectService(&fakeSubjectRepo{}, &fakeBranchReader{branches: teacherBranch()}, nil, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), "tea-other", "br-1", CreateSubjectRequest{ClassName: "10A", SubjectName: "Mathematics"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceGetStudentRequiresMembership(t *testing.T) {
	repo := &fakeSubjectRepo{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	members := &fakeMembershipChecker{pairs: map[string]bool{pairKey("sub-1", "stu-1"): true}}
	svc := NewSubjectService(repo, &fakeBranchReader{}, members, nil, nil, nil, nil)

	enrolled := &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}
	subject, err := svc.Get(context.Background(), enrolled, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", subject.ID)

	outsider := &models.JWTClaims{UserID: "stu-2", Role: models.RoleStudent}
	_, err = svc.Get(context.Background(), outsider, "sub-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceDeleteReapsOrphans(t *testing.T) {
	repo := &fakeSubjectRepo{
		subjects: map[string]models.Subject{"sub-1": mathSubject()},
		orphaned: []string{"/api/v1/files/tok1", "/api/v1/files/tok2"},
	}
	reaper := &fakeReaper{}
	cache := &fakeRosterCache{}
	svc := NewSubjectService(repo, &fakeBranchReader{}, nil, reaper, cache, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "tea-1", "sub-1"))
	assert.Equal(t, []string{"sub-1"}, repo.cascaded)
	assert.Equal(t, []string{"/api/v1/files/tok1", "/api/v1/files/tok2"}, reaper.reaped)
	assert.Contains(t, cache.deletes, "roster:sub-1")
}

func TestSubjectServiceDeleteForbidden(t *testing.T) {
	repo := &fakeSubjectRepo{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	svc := NewSubjectService(repo, &fakeBranchReader{}, nil, nil, nil, nil, nil)

	err := svc.Delete(context.Background(), "tea-other", "sub-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.cascaded)
}
