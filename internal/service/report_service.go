package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academia-api/internal/dto"
	"github.com/noah-isme/academia-api/internal/models"
)

// NoEnrollmentsDetail is the report detail for students without enrollments.
const NoEnrollmentsDetail = "no enrollments"

type reportRowSource interface {
	ReportRows(ctx context.Context, studentID string) ([]models.ReportRow, error)
}

// ReportService builds student reports, optionally served from cache.
type ReportService struct {
	students studentLookup
	rows     reportRowSource
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewReportService constructs a ReportService.
func NewReportService(students studentLookup, rows reportRowSource, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{students: students, rows: rows, cache: cache, metrics: metrics, logger: logger}
}

// StudentReport returns the report of a student. enrolled is false when the
// student exists but has no enrollments; the report then carries the
// NoEnrollmentsDetail marker.
func (s *ReportService) StudentReport(ctx context.Context, studentID string) (report *dto.StudentReport, enrolled bool, cacheHit bool, err error) {
	var cached dto.StudentReport
	if s.cache.Get(ctx, ReportCacheKey(studentID), &cached) {
		return &cached, len(cached.Courses) > 0, true, nil
	}

	generation := s.cache.Generation()
	name, rows, err := s.load(ctx, studentID)
	if err != nil {
		return nil, false, false, err
	}
	built := BuildStudentReport(name, rows)
	s.cache.SetIfCurrent(ctx, ReportCacheKey(studentID), built, generation)
	return &built, len(rows) > 0, false, nil
}

// load reads the student's name and ordered report rows.
func (s *ReportService) load(ctx context.Context, studentID string) (string, []models.ReportRow, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if isNotFound(err) {
			return "", nil, notFound("student not found")
		}
		return "", nil, internalError(err, "failed to load student")
	}
	start := time.Now()
	rows, err := s.rows.ReportRows(ctx, studentID)
	s.metrics.ObserveDBQuery("report_rows", time.Since(start))
	if err != nil {
		return "", nil, internalError(err, "failed to load report")
	}
	return student.Name, rows, nil
}

// BuildStudentReport aggregates ordered report rows. Course titles keep the
// row order; the average covers non-null grades only, rounded to two
// decimals, and is nil when no grade exists.
func BuildStudentReport(name string, rows []models.ReportRow) dto.StudentReport {
	report := dto.StudentReport{Name: name, Courses: make([]string, 0, len(rows))}
	if len(rows) == 0 {
		report.Detail = NoEnrollmentsDetail
		return report
	}

	var sum float64
	var graded int
	for _, row := range rows {
		report.Courses = append(report.Courses, row.CourseTitle)
		if row.Grade != nil {
			sum += *row.Grade
			graded++
		}
	}
	if graded > 0 {
		avg := math.Round(sum/float64(graded)*100) / 100
		report.AverageGrade = &avg
	}
	return report
}
