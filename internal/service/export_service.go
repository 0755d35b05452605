package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/classbridge/classbridge-api/internal/models"
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
	"github.com/classbridge/classbridge-api/pkg/export"
)

// GradebookFormat selects the rendered export type.
type GradebookFormat string

const (
	GradebookFormatCSV GradebookFormat = "csv"
	GradebookFormatPDF GradebookFormat = "pdf"
)

type rosterSource interface {
	Roster(ctx context.Context, subjectID string) ([]models.RosterEntry, error)
}

type assignmentLister interface {
	ListBySubject(ctx context.Context, subjectID string) ([]models.Assignment, error)
}

type submissionLister interface {
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// GradebookFile is a fully rendered gradebook ready to stream to the caller.
type GradebookFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders a subject's gradebook: one row per enrolled
// student, one column per assignment, marks where graded.
type ExportService struct {
	subjects    subjectReader
	roster      rosterSource
	assignments assignmentLister
	submissions submissionLister
	csv         csvRenderer
	pdf         pdfRenderer
	logger      *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(subjects subjectReader, roster rosterSource, assignments assignmentLister, submissions submissionLister, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		subjects:    subjects,
		roster:      roster,
		assignments: assignments,
		submissions: submissions,
		csv:         csv,
		pdf:         pdf,
		logger:      logger,
	}
}

// Gradebook assembles and renders the gradebook for a subject. Only the
// owning teacher may export it.
func (s *ExportService) Gradebook(ctx context.Context, actorID, subjectID string, format GradebookFormat) (*GradebookFile, error) {
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

	dataset, err := s.buildDataset(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("%s / %s gradebook", subject.ClassName, subject.SubjectName)
	var payload []byte
	var contentType, ext string
	switch format {
	case GradebookFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType, ext = "text/csv", "csv"
	case GradebookFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
		contentType, ext = "application/pdf", "pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render gradebook")
	}

	return &GradebookFile{
		Filename:    fmt.Sprintf("gradebook-%s-%s.%s", slugify(subject.SubjectName), time.Now().UTC().Format("20060102"), ext),
		ContentType: contentType,
		Data:        payload,
	}, nil
}

func (s *ExportService) buildDataset(ctx context.Context, subjectID string) (export.Dataset, error) {
	roster, err := s.roster.Roster(ctx, subjectID)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	assignments, err := s.assignments.ListBySubject(ctx, subjectID)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}

	// Column labels come from titles, but nothing stops a teacher from
	// reusing one, so cells are keyed by assignment id and repeated
	// titles get a numeric suffix to keep the rendered columns apart.
	headers := []string{"Student", "Email"}
	labels := make(map[string]string, len(assignments))
	titleSeen := make(map[string]int, len(assignments))
	for _, a := range assignments {
		titleSeen[a.Title]++
		label := a.Title
		if n := titleSeen[a.Title]; n > 1 {
			label = fmt.Sprintf("%s (%d)", a.Title, n)
		}
		labels[a.ID] = label
		headers = append(headers, label)
	}

	// marks[studentID][assignmentID] = cell value
	marks := make(map[string]map[string]string, len(roster))
	for _, entry := range roster {
		marks[entry.StudentID] = make(map[string]string, len(assignments))
	}
	for _, a := range assignments {
		submissions, err := s.submissions.ListByAssignment(ctx, a.ID)
		if err != nil {
			return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
		}
		for _, sub := range submissions {
			cells, ok := marks[sub.StudentID]
			if !ok {
				continue
			}
			switch {
			case sub.Graded && sub.Marks != nil:
				cells[a.ID] = strconv.FormatFloat(*sub.Marks, 'f', -1, 64)
			default:
				cells[a.ID] = "submitted"
			}
		}
	}

	rows := make([]map[string]string, 0, len(roster))
	for _, entry := range roster {
		row := map[string]string{
			"Student": entry.FullName,
			"Email":   entry.Email,
		}
		for _, a := range assignments {
			if cell, ok := marks[entry.StudentID][a.ID]; ok {
				row[labels[a.ID]] = cell
			} else {
				row[labels[a.ID]] = "missing"
			}
		}
		rows = append(rows, row)
	}

	return export.Dataset{Headers: headers, Rows: rows}, nil
}

func slugify(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "subject"
	}
	return b.String()
}
