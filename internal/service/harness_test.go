package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academia-api/internal/dto"
	"github.com/noah-isme/academia-api/internal/models"
	"github.com/noah-isme/academia-api/internal/validation"
	appErrors "github.com/noah-isme/academia-api/pkg/errors"
)

// today is the evaluation date used by every service test.
var today = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type harness struct {
	db          *memDB
	cacheRepo   *memoryCache
	metrics     *MetricsService
	students    *StudentService
	courses     *CourseService
	enrollments *EnrollmentService
	reports     *ReportService
	exports     *ExportService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newMemDB()
	cacheRepo := newMemoryCache()
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, nil, true)
	paging := PageConfig{DefaultSize: 20, MaxSize: 100}
	rules := validation.NewEnrollmentRules(func() time.Time { return today })

	h := &harness{db: db, cacheRepo: cacheRepo, metrics: metrics}
	h.students = NewStudentService(memStudents{db}, cache, paging, nil, nil)
	h.courses = NewCourseService(memCourses{db}, cache, paging, nil, nil)
	h.enrollments = NewEnrollmentService(EnrollmentDeps{
		Repo:     memEnrollments{db},
		Students: memStudents{db},
		Courses:  memCourses{db},
		Rules:    rules,
		Cache:    cache,
		Metrics:  metrics,
		Paging:   paging,
	})
	h.reports = NewReportService(memStudents{db}, memEnrollments{db}, cache, metrics, nil)
	h.exports = NewExportService(h.reports, nil)
	return h
}

func (h *harness) student(t *testing.T, name, email string) *models.Student {
	t.Helper()
	s, err := h.students.Create(context.Background(), dto.StudentRequest{Name: name, Email: email})
	require.NoError(t, err)
	return s
}

func (h *harness) course(t *testing.T, title, start string, active bool) *models.Course {
	t.Helper()
	date, err := models.ParseDate(start)
	require.NoError(t, err)
	c, err := h.courses.Create(context.Background(), dto.CourseRequest{Title: title, StartDate: &date, Active: &active})
	require.NoError(t, err)
	return c
}

func (h *harness) enroll(t *testing.T, studentID, courseID string, grade *float64) *models.EnrollmentDetail {
	t.Helper()
	e, err := h.enrollments.Create(context.Background(), dto.EnrollmentRequest{StudentID: studentID, CourseID: courseID, Grade: grade})
	require.NoError(t, err)
	return e
}

// backdate moves a course start into the past without going through the service.
func (h *harness) backdate(courseID string, start time.Time) {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	c := h.db.courses[courseID]
	c.StartDate = models.NewDate(start)
	h.db.courses[courseID] = c
}

func grade(v float64) *float64 { return &v }

func requireAppError(t *testing.T, err error, status int) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, status, appErr.Status, appErr.Message)
	return appErr
}

func ruleNames(t *testing.T, appErr *appErrors.Error) []string {
	t.Helper()
	details, ok := appErr.Details.([]appErrors.FieldError)
	require.True(t, ok, "expected itemized details")
	names := make([]string, 0, len(details))
	for _, d := range details {
		names = append(names, d.Rule)
	}
	return names
}
