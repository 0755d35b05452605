package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classbridge/classbridge-api/internal/models"
	"github.com/classbridge/classbridge-api/internal/repository"
	"github.com/classbridge/classbridge-api/pkg/classcode"
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
)

// codeAllocationAttempts bounds class-code generation retries when an
// insert collides with an existing code.
const codeAllocationAttempts = 5

type subjectRepository interface {
	Create(ctx context.Context, subject *models.Subject) error
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	ListByBranch(ctx context.Context, branchID string) ([]models.Subject, error)
	DeleteCascade(ctx context.Context, subjectID string) ([]string, error)
}

type subjectLister interface {
	ListByBranch(ctx context.Context, branchID string) ([]models.Subject, error)
}

type branchReader interface {
	FindByID(ctx context.Context, id string) (*models.Branch, error)
}

type membershipChecker interface {
	Exists(ctx context.Context, subjectID, studentID string) (bool, error)
}

// fileReaper accepts file URLs orphaned by deletes for out-of-band
// removal. Failures never surface to the deleting caller.
type fileReaper interface {
	Reap(urls []string)
}

// rosterCache is the redis-backed cache for subject rosters.
type rosterCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CreateSubjectRequest describes subject creation payload.
type CreateSubjectRequest struct {
	ClassName   string `json:"class_name" validate:"required"`
	SubjectName string `json:"subject_name" validate:"required"`
	Description string `json:"description"`
}

// SubjectService manages subjects, including class-code allocation and
// the cascading delete of a subject's dependent records.
type SubjectService struct {
	repo      subjectRepository
	branches  branchReader
	members   membershipChecker
	reaper    fileReaper
	cache     rosterCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs SubjectService.
func NewSubjectService(repo subjectRepository, branches branchReader, members membershipChecker, reaper fileReaper, cache rosterCache, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, branches: branches, members: members, reaper: reaper, cache: cache, validator: validate, logger: logger}
}

// Create allocates a class code and persists a new subject under the
// branch. The code's unique key rejects collisions; creation retries
// with a fresh code a bounded number of times.
func (s *SubjectService) Create(ctx context.Context, actorID, branchID string, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	branch, err := s.branches.FindByID(ctx, branchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}
	if branch.TeacherID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "branch belongs to another teacher")
	}

	for attempt := 0; attempt < codeAllocationAttempts; attempt++ {
		code, err := classcode.Generate()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate class code")
		}
		subject := &models.Subject{
			BranchID:    branchID,
			TeacherID:   actorID,
			ClassName:   req.ClassName,
			SubjectName: req.SubjectName,
			Description: req.Description,
			ClassCode:   code,
		}
		if err := s.repo.Create(ctx, subject); err != nil {
			if repository.IsUniqueViolation(err) {
				s.logger.Debug("class code collision, retrying", zap.String("code", code))
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
		}
		return subject, nil
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "could not allocate a unique class code")
}

// Get returns a subject visible to the actor: the owning teacher or an
// enrolled student.
func (s *SubjectService) Get(ctx context.Context, claims *models.JWTClaims, subjectID string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if err := s.authorizeRead(ctx, claims, subject); err != nil {
		return nil, err
	}
	return subject, nil
}

// ListByBranch returns the subjects under a branch owned by the actor.
func (s *SubjectService) ListByBranch(ctx context.Context, actorID, branchID string) ([]models.Subject, error) {
	branch, err := s.branches.FindByID(ctx, branchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}
	if branch.TeacherID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "branch belongs to another teacher")
	}
	subjects, err := s.repo.ListByBranch(ctx, branchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}

// Delete removes the subject with its members, materials, assignments
// and submissions in one transaction. Orphaned files go to the reaper
// after commit, and the cached roster is invalidated.
func (s *SubjectService) Delete(ctx context.Context, actorID, subjectID string) error {
	subject, err := s.repo.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject.TeacherID != actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "subject belongs to another teacher")
	}

	orphaned, err := s.repo.DeleteCascade(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, rosterCacheKey(subjectID)); err != nil {
			s.logger.Warn("failed to invalidate roster cache", zap.String("subject_id", subjectID), zap.Error(err))
		}
	}
	if s.reaper != nil && len(orphaned) > 0 {
		s.reaper.Reap(orphaned)
	}
	return nil
}

func (s *SubjectService) authorizeRead(ctx context.Context, claims *models.JWTClaims, subject *models.Subject) error {
	if claims.Role == models.RoleTeacher {
		if subject.TeacherID != claims.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "subject belongs to another teacher")
		}
		return nil
	}
	enrolled, err := s.members.Exists(ctx, subject.ID, claims.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !enrolled {
		return appErrors.Clone(appErrors.ErrForbidden, "not a member of this subject")
	}
	return nil
}
