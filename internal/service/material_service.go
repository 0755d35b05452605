package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classbridge/classbridge-api/internal/models"
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
)

type materialRepository interface {
	Create(ctx context.Context, material *models.StudyMaterial) error
	FindByID(ctx context.Context, id string) (*models.StudyMaterial, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.StudyMaterial, error)
	Delete(ctx context.Context, id string) error
}

// CreateMaterialRequest describes study material creation payload.
type CreateMaterialRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	FileURL     string `json:"file_url" validate:"required"`
}

// MaterialService manages study materials shared under a subject.
type MaterialService struct {
	repo      materialRepository
	subjects  subjectReader
	members   membershipChecker
	reaper    fileReaper
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMaterialService constructs MaterialService.
func NewMaterialService(repo materialRepository, subjects subjectReader, members membershipChecker, reaper fileReaper, validate *validator.Validate, logger *zap.Logger) *MaterialService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaterialService{repo: repo, subjects: subjects, members: members, reaper: reaper, validator: validate, logger: logger}
}

// Create shares a new material under the subject owned by the actor.
func (s *MaterialService) Create(ctx context.Context, actorID, subjectID string, req CreateMaterialRequest) (*models.StudyMaterial, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid material payload")
	}

	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject.TeacherID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "subject belongs to another teacher")
	}

	material := &models.StudyMaterial{
		SubjectID:   subjectID,
		Title:       req.Title,
		Description: req.Description,
		FileURL:     req.FileURL,
		UploadedBy:  actorID,
	}
	if err := s.repo.Create(ctx, material); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create material")
	}
	return material, nil
}

// ListBySubject returns a subject's materials to the owning teacher or
// an enrolled student.
func (s *MaterialService) ListBySubject(ctx context.Context, claims *models.JWTClaims, subjectID string) ([]models.StudyMaterial, error) {
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if claims.Role == models.RoleTeacher {
		if subject.TeacherID != claims.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "subject belongs to another teacher")
		}
	} else {
		enrolled, err := s.members.Exists(ctx, subjectID, claims.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
		}
		if !enrolled {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not a member of this subject")
		}
	}

	materials, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list materials")
	}
	return materials, nil
}

// Delete removes one material and reaps its file.
func (s *MaterialService) Delete(ctx context.Context, actorID, materialID string) error {
	material, err := s.repo.FindByID(ctx, materialID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}

	subject, err := s.subjects.FindByID(ctx, material.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject.TeacherID != actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "subject belongs to another teacher")
	}

	if err := s.repo.Delete(ctx, materialID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete material")
	}

	if s.reaper != nil && material.FileURL != "" {
		s.reaper.Reap([]string{material.FileURL})
	}
	return nil
}
