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
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
)

type submissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error)
	Grade(ctx context.Context, id string, marks float64, gradedAt time.Time) error
}

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

// SubmitAssignmentRequest carries a student's uploaded answer file.
type SubmitAssignmentRequest struct {
	FileURL string `json:"file_url" validate:"required"`
}

// GradeSubmissionRequest carries the marks awarded by the teacher.
// Marks are deliberately not range-checked here; any bounds belong to
// the client's input controls.
type GradeSubmissionRequest struct {
	Marks *float64 `json:"marks" validate:"required"`
}

// SubmissionService covers the submit and grade workflows.
type SubmissionService struct {
	repo        submissionRepository
	assignments assignmentReader
	members     membershipChecker
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSubmissionService constructs SubmissionService.
func NewSubmissionService(repo submissionRepository, assignments assignmentReader, members membershipChecker, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{repo: repo, assignments: assignments, members: members, validator: validate, logger: logger}
}

// Submit records a student's answer for an assignment. The
// (assignment, student) unique key rejects a second submission.
func (s *SubmissionService) Submit(ctx context.Context, studentID, assignmentID string, req SubmitAssignmentRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	enrolled, err := s.members.Exists(ctx, assignment.SubjectID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a member of this subject")
	}

	submission := &models.Submission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		FileURL:      req.FileURL,
		SubmittedAt:  time.Now().UTC(),
		Graded:       false,
		Marks:        nil,
	}
	if err := s.repo.Create(ctx, submission); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "already submitted this assignment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	return submission, nil
}

// ListByAssignment returns all submissions for an assignment owned by
// the acting teacher, with student names resolved.
func (s *SubmissionService) ListByAssignment(ctx context.Context, actorID, assignmentID string) ([]models.SubmissionDetail, error) {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment.TeacherID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assignment belongs to another teacher")
	}

	submissions, err := s.repo.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// Status returns the student's own submission for an assignment, or
// nil when none exists yet. The nil result drives the client's
// pending state.
func (s *SubmissionService) Status(ctx context.Context, studentID, assignmentID string) (*models.Submission, error) {
	submission, err := s.repo.FindByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

// Grade marks a submission with the given marks. Re-grading overwrites
// the previous marks and graded timestamp.
func (s *SubmissionService) Grade(ctx context.Context, actorID, submissionID string, req GradeSubmissionRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	submission, err := s.repo.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	assignment, err := s.assignments.FindByID(ctx, submission.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment.TeacherID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assignment belongs to another teacher")
	}

	gradedAt := time.Now().UTC()
	if err := s.repo.Grade(ctx, submissionID, *req.Marks, gradedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}

	submission.Graded = true
	submission.Marks = req.Marks
	submission.GradedAt = &gradedAt
	return submission, nil
}
