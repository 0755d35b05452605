package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classbridge/classbridge-api/internal/models"
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.Assignment, error)
}

// CreateAssignmentRequest describes assignment creation payload. The
// due date is caller-supplied and must be present.
type CreateAssignmentRequest struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	FileURL     *string   `json:"file_url,omitempty"`
}

// AssignmentService manages assignments posted under a subject.
type AssignmentService struct {
	repo      assignmentRepository
	subjects  subjectReader
	members   membershipChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(repo assignmentRepository, subjects subjectReader, members membershipChecker, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, subjects: subjects, members: members, validator: validate, logger: logger}
}

// Create posts a new assignment under the subject owned by the actor.
func (s *AssignmentService) Create(ctx context.Context, actorID, subjectID string, req CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
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

	assignment := &models.Assignment{
		SubjectID:   subjectID,
		TeacherID:   actorID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate.UTC(),
		FileURL:     req.FileURL,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return assignment, nil
}

// ListBySubject returns a subject's assignments to the owning teacher
// or an enrolled student.
func (s *AssignmentService) ListBySubject(ctx context.Context, claims *models.JWTClaims, subjectID string) ([]models.Assignment, error) {
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if err := s.authorizeRead(ctx, claims, subject); err != nil {
		return nil, err
	}

	assignments, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

func (s *AssignmentService) authorizeRead(ctx context.Context, claims *models.JWTClaims, subject *models.Subject) error {
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
