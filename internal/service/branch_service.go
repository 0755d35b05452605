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

type branchRepository interface {
	Create(ctx context.Context, branch *models.Branch) error
	FindByID(ctx context.Context, id string) (*models.Branch, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Branch, error)
	DeleteCascade(ctx context.Context, branchID string) ([]string, error)
}

// CreateBranchRequest describes branch creation payload.
type CreateBranchRequest struct {
	BranchName  string `json:"branch_name" validate:"required"`
	Description string `json:"description"`
}

// BranchService manages teacher-owned branches, the top level of the
// branch/subject hierarchy.
type BranchService struct {
	repo      branchRepository
	subjects  subjectLister
	reaper    fileReaper
	cache     rosterCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBranchService constructs BranchService.
func NewBranchService(repo branchRepository, subjects subjectLister, reaper fileReaper, cache rosterCache, validate *validator.Validate, logger *zap.Logger) *BranchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BranchService{repo: repo, subjects: subjects, reaper: reaper, cache: cache, validator: validate, logger: logger}
}

// Create makes a new branch owned by the acting teacher.
func (s *BranchService) Create(ctx context.Context, teacherID string, req CreateBranchRequest) (*models.Branch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid branch payload")
	}
	branch := &models.Branch{
		TeacherID:   teacherID,
		BranchName:  req.BranchName,
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, branch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create branch")
	}
	return branch, nil
}

// List returns the acting teacher's branches.
func (s *BranchService) List(ctx context.Context, teacherID string) ([]models.Branch, error) {
	branches, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list branches")
	}
	return branches, nil
}

// Delete removes a branch and every subject beneath it. Only the
// owning teacher may delete; the cascade is atomic and orphaned files
// are handed to the reaper after commit.
func (s *BranchService) Delete(ctx context.Context, actorID, branchID string) error {
	branch, err := s.repo.FindByID(ctx, branchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}
	if branch.TeacherID != actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "branch belongs to another teacher")
	}

	subjects, err := s.subjects.ListByBranch(ctx, branchID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list branch subjects")
	}

	orphaned, err := s.repo.DeleteCascade(ctx, branchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete branch")
	}

	for _, subject := range subjects {
		s.invalidateRoster(ctx, subject.ID)
	}
	if s.reaper != nil && len(orphaned) > 0 {
		s.reaper.Reap(orphaned)
	}
	return nil
}

func (s *BranchService) invalidateRoster(ctx context.Context, subjectID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, rosterCacheKey(subjectID)); err != nil {
		s.logger.Warn("failed to invalidate roster cache", zap.String("subject_id", subjectID), zap.Error(err))
	}
}
