package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/noah-isme/academia-api/pkg/export"
)

// ExportFormat enumerates the downloadable report formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type renderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportFile is a rendered report ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders student reports as downloadable files.
type ExportService struct {
	reports   *ReportService
	renderers map[ExportFormat]renderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService with the CSV and PDF renderers.
func NewExportService(reports *ReportService, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		reports: reports,
		renderers: map[ExportFormat]renderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
	}
}

// StudentReport renders a student's report in the requested format. Students
// without enrollments have nothing to export.
func (s *ExportService) StudentReport(ctx context.Context, studentID string, format ExportFormat) (*ExportFile, error) {
	r, ok := s.renderers[format]
	if !ok {
		return nil, validationError(fmt.Errorf("unsupported format %q", format), "format must be csv or pdf")
	}

	name, rows, err := s.reports.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound(NoEnrollmentsDetail)
	}
	report := BuildStudentReport(name, rows)

	dataset := export.Dataset{
		Title:   "Student report: " + name,
		Headers: []string{"Course", "Grade"},
		Rows:    make([][]string, 0, len(rows)),
		Summary: [][2]string{{"Average grade", formatGrade(report.AverageGrade)}},
	}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, []string{row.CourseTitle, formatGrade(row.Grade)})
	}

	body, err := r.Render(dataset)
	if err != nil {
		s.logger.Error("render report", zap.String("student_id", studentID), zap.String("format", string(format)), zap.Error(err))
		return nil, internalError(err, "failed to render report")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("report-%s.%s", slug(name), r.Extension()),
		ContentType: r.ContentType(),
		Body:        body,
	}, nil
}

func formatGrade(g *float64) string {
	if g == nil {
		return ""
	}
	return strconv.FormatFloat(*g, 'f', 2, 64)
}

func slug(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return "student"
	}
	return strings.Join(fields, "-")
}
