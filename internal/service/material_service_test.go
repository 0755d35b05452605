package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classbridge/classbridge-api/internal/models"
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
)

type fakeMaterialRepo struct {
	materials map[string]models.StudyMaterial
	created   *models.StudyMaterial
	bySubject []models.StudyMaterial
	deleted   []string
}

func (f *fakeMaterialRepo) Create(ctx context.Context, material *models.StudyMaterial) error {
	if material.ID == "" {
		material.ID = "mat-new"
	}
	if f.materials == nil {
		f.materials = make(map[string]models.StudyMaterial)
	}
	f.materials[material.ID] = *material
	f.created = material
	return nil
}

func (f *fakeMaterialRepo) FindByID(ctx context.Context, id string) (*models.StudyMaterial, error) {
	if m, ok := f.materials[id]; ok {
		return &m, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeMaterialRepo) ListBySubject(ctx context.Context, subjectID string) ([]models.StudyMaterial, error) {
	return f.bySubject, nil
}

func (f *fakeMaterialRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.materials[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.materials, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func sampleMaterial() models.StudyMaterial {
	return models.StudyMaterial{
		ID:         "mat-1",
		SubjectID:  "sub-1",
		Title:      "Chapter 3 notes",
		FileURL:    "/api/v1/files/tok-mat-1",
		UploadedBy: "tea-1",
	}
}

func TestMaterialServiceCreate(t *testing.T) {
	repo := &fakeMaterialRepo{}
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	svc := NewMaterialService(repo, subjects, nil, nil, nil, nil)

	material, err := svc.Create(context.Background(), "tea-1", "sub-1", CreateMaterialRequest{
		Title:   "Chapter 3 notes",
		FileURL: "/api/v1/files/tok-mat-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "sub-1", material.SubjectID)
	assert.Equal(t, "tea-1", material.UploadedBy)
	require.NotNil(t, repo.created)
}

func TestMaterialServiceCreateForbiddenSubject(t *testing.T) {
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	svc := NewMaterialService(&fakeMaterialRepo{}, subjects, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), "tea-2", "sub-1", CreateMaterialRequest{
		Title:   "Chapter 3 notes",
		FileURL: "/api/v1/files/tok-mat-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMaterialServiceCreateMissingFileURL(t *testing.T) {
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	svc := NewMaterialService(&fakeMaterialRepo{}, subjects, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), "tea-1", "sub-1", CreateMaterialRequest{Title: "Chapter 3 notes"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMaterialServiceListRequiresMembership(t *testing.T) {
	repo := &fakeMaterialRepo{bySubject: []models.StudyMaterial{sampleMaterial()}}
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	members := &fakeMembershipChecker{pairs: map[string]bool{pairKey("sub-1", "stu-1"): true}}
	svc := NewMaterialService(repo, subjects, members, nil, nil, nil)

	member := &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}
	materials, err := svc.ListBySubject(context.Background(), member, "sub-1")
	require.NoError(t, err)
	assert.Len(t, materials, 1)

	outsider := &models.JWTClaims{UserID: "stu-2", Role: models.RoleStudent}
	_, err = svc.ListBySubject(context.Background(), outsider, "sub-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMaterialServiceDeleteReapsFile(t *testing.T) {
	repo := &fakeMaterialRepo{materials: map[string]models.StudyMaterial{"mat-1": sampleMaterial()}}
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	reaper := &fakeReaper{}
	svc := NewMaterialService(repo, subjects, nil, reaper, nil, nil)

	err := svc.Delete(context.Background(), "tea-1", "mat-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"mat-1"}, repo.deleted)
	assert.Equal(t, []string{"/api/v1/files/tok-mat-1"}, reaper.reaped)
}

func TestMaterialServiceDeleteForbidden(t *testing.T) {
	repo := &fakeMaterialRepo{materials: map[string]models.StudyMaterial{"mat-1": sampleMaterial()}}
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	svc := NewMaterialService(repo, subjects, nil, nil, nil, nil)

	err := svc.Delete(context.Background(), "tea-2", "mat-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestMaterialServiceDeleteNotFound(t *testing.T) {
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{"sub-1": mathSubject()}}
	svc := NewMaterialService(&fakeMaterialRepo{}, subjects, nil, nil, nil, nil)

	err := svc.Delete(context.Background(), "tea-1", "mat-404")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
