package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academia-api/internal/dto"
	"github.com/noah-isme/academia-api/internal/middleware"
	"github.com/noah-isme/academia-api/internal/models"
	"github.com/noah-isme/academia-api/internal/service"
	appErrors "github.com/noah-isme/academia-api/pkg/errors"
)

const (
	mariaID   = "6f1c1f43-6d39-4a4e-9f8a-8a3e3c2f9a10"
	physicsID = "3d0e6a51-2a39-4b8f-a0b2-2e5d8a9f7c41"
	enrollID  = "b7e4c2a1-9d3f-4e6b-8a1c-5f2d7e9b3a60"
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type studentServiceStub struct {
	student    *models.Student
	err        error
	lastFilter models.StudentFilter
	lastReq    dto.StudentRequest
	lastPatch  dto.StudentPatch
	courses    []models.Course
}

func (s *studentServiceStub) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	s.lastFilter = filter
	return []models.Student{*s.student}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, s.err
}

func (s *studentServiceStub) Get(ctx context.Context, id string) (*models.Student, error) {
	return s.student, s.err
}

func (s *studentServiceStub) Create(ctx context.Context, req dto.StudentRequest) (*models.Student, error) {
	s.lastReq = req
	return s.student, s.err
}

func (s *studentServiceStub) Update(ctx context.Context, id string, req dto.StudentRequest) (*models.Student, error) {
	s.lastReq = req
	return s.student, s.err
}

func (s *studentServiceStub) Patch(ctx context.Context, id string, patch dto.StudentPatch) (*models.Student, error) {
	s.lastPatch = patch
	return s.student, s.err
}

func (s *studentServiceStub) Delete(ctx context.Context, id string) error { return s.err }

func (s *studentServiceStub) Courses(ctx context.Context, id string) ([]models.Course, error) {
	return s.courses, s.err
}

func TestStudentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &studentServiceStub{student: &models.Student{ID: mariaID, Name: "Maria", Email: "maria@test.com"}}
	h := NewStudentHandler(stub)

	c, w := newGinContext(http.MethodPost, "/students", []byte(`{"name":"Maria","email":"maria@test.com","id":"ignored","registered_at":"2020-01-01T00:00:00Z"}`))
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, dto.StudentRequest{Name: "Maria", Email: "maria@test.com"}, stub.lastReq)
	var student models.Student
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &student))
	assert.Equal(t, mariaID, student.ID)
}

func TestStudentHandlerCreateMalformedJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewStudentHandler(&studentServiceStub{})

	c, w := newGinContext(http.MethodPost, "/students", []byte(`{"name":`))
	h.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)
}

func TestStudentHandlerConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &studentServiceStub{err: appErrors.Clone(appErrors.ErrConflict, "email already registered")}
	h := NewStudentHandler(stub)

	c, w := newGinContext(http.MethodPost, "/students", []byte(`{"name":"Maria","email":"maria@test.com"}`))
	h.Create(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "email already registered", decode(t, w).Error.Message)
}

func TestStudentHandlerMalformedIDIsNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewStudentHandler(&studentServiceStub{})

	c, w := newGinContext(http.MethodGet, "/students/42", nil)
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	h.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "student not found", decode(t, w).Error.Message)
}

func TestStudentHandlerListParsesQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &studentServiceStub{student: &models.Student{ID: mariaID, Name: "Maria"}}
	h := NewStudentHandler(stub)

	c, w := newGinContext(http.MethodGet, "/students?search=+mar+&sort=email&order=desc&page=2&limit=5", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StudentFilter{Search: "mar", Page: 2, PageSize: 5, SortBy: "email", SortOrder: "desc"}, stub.lastFilter)
	assert.Equal(t, 1, decode(t, w).Pagination.TotalCount)
}

func TestStudentHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewStudentHandler(&studentServiceStub{})

	r := gin.New()
	r.DELETE("/students/:id", h.Delete)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/students/"+mariaID, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

type enrollmentServiceStub struct {
	detail     *models.EnrollmentDetail
	err        error
	lastReq    dto.EnrollmentRequest
	lastPatch  dto.EnrollmentPatch
	lastFilter models.EnrollmentFilter
}

func (s *enrollmentServiceStub) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	s.lastFilter = filter
	return []models.EnrollmentDetail{}, &models.Pagination{Page: 1, PageSize: 20}, s.err
}

func (s *enrollmentServiceStub) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	return s.detail, s.err
}

func (s *enrollmentServiceStub) Create(ctx context.Context, req dto.EnrollmentRequest) (*models.EnrollmentDetail, error) {
	s.lastReq = req
	return s.detail, s.err
}

func (s *enrollmentServiceStub) Update(ctx context.Context, id string, req dto.EnrollmentRequest) (*models.EnrollmentDetail, error) {
	s.lastReq = req
	return s.detail, s.err
}

func (s *enrollmentServiceStub) Patch(ctx context.Context, id string, patch dto.EnrollmentPatch) (*models.EnrollmentDetail, error) {
	s.lastPatch = patch
	return s.detail, s.err
}

func (s *enrollmentServiceStub) Delete(ctx context.Context, id string) error { return s.err }

func TestEnrollmentHandlerRuleRejection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &enrollmentServiceStub{err: appErrors.WithDetails(appErrors.ErrValidation, "cannot enroll in an inactive course", []appErrors.FieldError{
		{Field: "course_id", Rule: "inactive_course", Message: "cannot enroll in an inactive course"},
	})}
	h := NewEnrollmentHandler(stub)

	c, w := newGinContext(http.MethodPost, "/enrollments", []byte(`{"student_id":"`+mariaID+`","course_id":"`+physicsID+`","enrolled_at":"2020-01-01T00:00:00Z"}`))
	h.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.Equal(t, "cannot enroll in an inactive course", env.Error.Message)
	details, ok := env.Error.Details.([]interface{})
	require.True(t, ok)
	assert.Equal(t, "inactive_course", details[0].(map[string]interface{})["rule"])
	assert.Equal(t, dto.EnrollmentRequest{StudentID: mariaID, CourseID: physicsID}, stub.lastReq)
}

func TestEnrollmentHandlerPatchExplicitNullGrade(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &enrollmentServiceStub{detail: &models.EnrollmentDetail{Enrollment: models.Enrollment{ID: enrollID}}}
	h := NewEnrollmentHandler(stub)

	c, w := newGinContext(http.MethodPatch, "/enrollments/"+enrollID, []byte(`{"grade":null}`))
	c.Params = gin.Params{{Key: "id", Value: enrollID}}
	h.Patch(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, stub.lastPatch.Grade.Set)
	assert.Nil(t, stub.lastPatch.Grade.Value)
}

func TestEnrollmentHandlerListFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &enrollmentServiceStub{}
	h := NewEnrollmentHandler(stub)

	c, w := newGinContext(http.MethodGet, "/enrollments?student_id="+mariaID+"&grade_gte=7&grade_lte=9.5&sort=grade", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, mariaID, stub.lastFilter.StudentID)
	require.NotNil(t, stub.lastFilter.GradeGTE)
	assert.Equal(t, 7.0, *stub.lastFilter.GradeGTE)
	assert.Equal(t, 9.5, *stub.lastFilter.GradeLTE)
	assert.Nil(t, stub.lastFilter.Grade)
	assert.Equal(t, "grade", stub.lastFilter.SortBy)
}

func TestEnrollmentHandlerListRejectsMalformedFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewEnrollmentHandler(&enrollmentServiceStub{})

	for _, query := range []string{"course_id=abc", "grade=high"} {
		c, w := newGinContext(http.MethodGet, "/enrollments?"+query, nil)
		h.List(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

type reportServiceStub struct {
	report   *dto.StudentReport
	enrolled bool
	hit      bool
	err      error
}

func (s *reportServiceStub) StudentReport(ctx context.Context, studentID string) (*dto.StudentReport, bool, bool, error) {
	return s.report, s.enrolled, s.hit, s.err
}

type exportServiceStub struct {
	file       *service.ExportFile
	err        error
	lastFormat service.ExportFormat
}

func (s *exportServiceStub) StudentReport(ctx context.Context, studentID string, format service.ExportFormat) (*service.ExportFile, error) {
	s.lastFormat = format
	return s.file, s.err
}

func TestReportHandlerStudentReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &reportServiceStub{report: &dto.StudentReport{Name: "Maria", Courses: []string{"Physics"}}, enrolled: true, hit: true}
	h := NewReportHandler(stub, nil)

	c, w := newGinContext(http.MethodGet, "/students/"+mariaID+"/report", nil)
	c.Params = gin.Params{{Key: "id", Value: mariaID}}
	h.StudentReport(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.JSONEq(t, `{"name":"Maria","courses":["Physics"],"average_grade":null}`, string(env.Data))
	assert.Equal(t, true, env.Meta["cache_hit"])
}

func TestReportHandlerNoEnrollments(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &reportServiceStub{report: &dto.StudentReport{Name: "Maria", Detail: "no enrollments", Courses: []string{}}}
	h := NewReportHandler(stub, nil)

	c, w := newGinContext(http.MethodGet, "/students/"+mariaID+"/report", nil)
	c.Params = gin.Params{{Key: "id", Value: mariaID}}
	h.StudentReport(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"name":"Maria","detail":"no enrollments","courses":[],"average_grade":null}`, string(decode(t, w).Data))
}

func TestReportHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &exportServiceStub{file: &service.ExportFile{Filename: "report-maria.pdf", ContentType: "application/pdf", Body: []byte("%PDF-1.3")}}
	h := NewReportHandler(&reportServiceStub{}, stub)

	c, w := newGinContext(http.MethodGet, "/students/"+mariaID+"/report/export?format=PDF", nil)
	c.Params = gin.Params{{Key: "id", Value: mariaID}}
	h.ExportStudentReport(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportFormatPDF, stub.lastFormat)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="report-maria.pdf"`)
}

type pingStub struct{ err error }

func (p pingStub) PingContext(ctx context.Context) error { return p.err }

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, w := newGinContext(http.MethodGet, "/ready", nil)
	NewMetricsHandler(nil, pingStub{}).Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/ready", nil)
	NewMetricsHandler(nil, pingStub{err: context.DeadlineExceeded}).Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRegisterMountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.WithResponseMeta())
	Register(api, Handlers{
		Students:    NewStudentHandler(&studentServiceStub{courses: []models.Course{{ID: physicsID, Title: "Physics"}}}),
		Courses:     NewCourseHandler(nil),
		Enrollments: NewEnrollmentHandler(&enrollmentServiceStub{}),
		Reports:     NewReportHandler(&reportServiceStub{}, &exportServiceStub{}),
		Metrics:     NewMetricsHandler(service.NewMetricsService(), nil),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/students/"+mariaID+"/courses", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var courses []models.Course
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &courses))
	assert.Equal(t, "Physics", courses[0].Title)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/metrics/summary", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	paths := map[string]bool{}
	for _, route := range r.Routes() {
		paths[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /api/v1/courses/:id/students",
		"PATCH /api/v1/enrollments/:id",
		"GET /api/v1/students/:id/report/export",
	} {
		assert.True(t, paths[want], want)
	}
}
