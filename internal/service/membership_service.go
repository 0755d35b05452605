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

type memberRepository interface {
	Create(ctx context.Context, member *models.SubjectMember) error
	Exists(ctx context.Context, subjectID, studentID string) (bool, error)
	Roster(ctx context.Context, subjectID string) ([]models.RosterEntry, error)
	Delete(ctx context.Context, memberID string) error
	FindByID(ctx context.Context, memberID string) (*models.SubjectMember, error)
	SubjectsByStudent(ctx context.Context, studentID string) ([]models.Subject, error)
}

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	FindByClassCode(ctx context.Context, code string) (*models.Subject, error)
}

type cacheLookupRecorder interface {
	RecordCacheLookup(hit bool)
}

// JoinSubjectRequest carries the join code a student typed.
type JoinSubjectRequest struct {
	ClassCode string `json:"class_code" validate:"required"`
}

// MembershipService maintains the student/subject relation: joining by
// class code, rosters, and removal.
type MembershipService struct {
	repo      memberRepository
	subjects  subjectReader
	cache     rosterCache
	cacheTTL  time.Duration
	metrics   cacheLookupRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMembershipService constructs MembershipService.
func NewMembershipService(repo memberRepository, subjects subjectReader, cache rosterCache, cacheTTL time.Duration, metrics cacheLookupRecorder, validate *validator.Validate, logger *zap.Logger) *MembershipService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &MembershipService{repo: repo, subjects: subjects, cache: cache, cacheTTL: cacheTTL, metrics: metrics, validator: validate, logger: logger}
}

// Join enrolls the student in the subject behind the given class code.
// Codes are case-insensitive at entry. The membership unique key makes
// the insert the authoritative uniqueness check; the advance Exists
// lookup only provides the precise conflict message in the common case.
func (s *MembershipService) Join(ctx context.Context, studentID string, req JoinSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid join payload")
	}

	code := classcode.Normalize(req.ClassCode)
	subject, err := s.subjects.FindByClassCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invalid class code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up class code")
	}

	joined, err := s.repo.Exists(ctx, subject.ID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if joined {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already joined this subject")
	}

	member := &models.SubjectMember{SubjectID: subject.ID, StudentID: studentID, JoinedAt: time.Now().UTC()}
	if err := s.repo.Create(ctx, member); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "already joined this subject")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join subject")
	}

	s.invalidateRoster(ctx, subject.ID)
	return subject, nil
}

// Roster returns the subject's members with their profiles, serving
// from the redis cache when warm. Only the owning teacher may read it.
func (s *MembershipService) Roster(ctx context.Context, actorID, subjectID string) ([]models.RosterEntry, error) {
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

	key := rosterCacheKey(subjectID)
	if s.cache != nil {
		var cached []models.RosterEntry
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheLookup(true)
			}
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("roster cache read failed", zap.String("subject_id", subjectID), zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordCacheLookup(false)
		}
	}

	roster, err := s.repo.Roster(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, roster, s.cacheTTL); err != nil {
			s.logger.Warn("roster cache write failed", zap.String("subject_id", subjectID), zap.Error(err))
		}
	}
	return roster, nil
}

// RemoveStudent deletes a membership by its id. Removal of an id that
// never existed reports not found rather than silently succeeding.
func (s *MembershipService) RemoveStudent(ctx context.Context, actorID, memberID string) error {
	member, err := s.repo.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "membership not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}

	subject, err := s.subjects.FindByID(ctx, member.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject.TeacherID != actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "subject belongs to another teacher")
	}

	if err := s.repo.Delete(ctx, memberID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "membership not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove student")
	}

	s.invalidateRoster(ctx, member.SubjectID)
	return nil
}

// SubjectsByStudent lists the subjects the student has joined.
// Memberships whose subject has since been deleted are skipped.
func (s *MembershipService) SubjectsByStudent(ctx context.Context, studentID string) ([]models.Subject, error) {
	subjects, err := s.repo.SubjectsByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list joined subjects")
	}
	return subjects, nil
}

func (s *MembershipService) invalidateRoster(ctx context.Context, subjectID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, rosterCacheKey(subjectID)); err != nil {
		s.logger.Warn("failed to invalidate roster cache", zap.String("subject_id", subjectID), zap.Error(err))
	}
}

func rosterCacheKey(subjectID string) string {
	return "roster:" + subjectID
}
