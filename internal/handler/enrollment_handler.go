package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academia-api/internal/dto"
	"github.com/noah-isme/academia-api/internal/models"
	"github.com/noah-isme/academia-api/pkg/response"
)

type enrollmentService interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Create(ctx context.Context, req dto.EnrollmentRequest) (*models.EnrollmentDetail, error)
	Update(ctx context.Context, id string, req dto.EnrollmentRequest) (*models.EnrollmentDetail, error)
	Patch(ctx context.Context, id string, patch dto.EnrollmentPatch) (*models.EnrollmentDetail, error)
	Delete(ctx context.Context, id string) error
}

const enrollmentNotFound = "enrollment not found"

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param course_id query string false "Filter by course"
// @Param grade query number false "Exact grade"
// @Param grade_gte query number false "Minimum grade"
// @Param grade_lte query number false "Maximum grade"
// @Param search query string false "Search student name, email or course title"
// @Param sort query string false "enrolled_at, grade, student_name or course_title"
// @Param order query string false "asc or desc"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	filter, err := enrollmentFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

func enrollmentFilter(c *gin.Context) (models.EnrollmentFilter, error) {
	var filter models.EnrollmentFilter
	var err error
	if filter.StudentID, err = queryUUID(c, "student_id"); err != nil {
		return filter, err
	}
	if filter.CourseID, err = queryUUID(c, "course_id"); err != nil {
		return filter, err
	}
	if filter.Grade, err = queryFloat(c, "grade"); err != nil {
		return filter, err
	}
	if filter.GradeGTE, err = queryFloat(c, "grade_gte"); err != nil {
		return filter, err
	}
	if filter.GradeLTE, err = queryFloat(c, "grade_lte"); err != nil {
		return filter, err
	}
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Page, filter.PageSize = paging(c)
	filter.SortBy, filter.SortOrder = sorting(c)
	return filter, nil
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	id, ok := pathID(c, enrollmentNotFound)
	if !ok {
		return
	}
	enrollment, err := h.enrollments.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Create godoc
// @Summary Enroll a student in a course
// @Description Rejected with 400 when the course is inactive, has already started, or the student is already enrolled.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req dto.EnrollmentRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Update godoc
// @Summary Replace enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.EnrollmentRequest true "Enrollment payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [put]
func (h *EnrollmentHandler) Update(c *gin.Context) {
	id, ok := pathID(c, enrollmentNotFound)
	if !ok {
		return
	}
	var req dto.EnrollmentRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Patch godoc
// @Summary Partially update enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.EnrollmentPatch true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [patch]
func (h *EnrollmentHandler) Patch(c *gin.Context) {
	id, ok := pathID(c, enrollmentNotFound)
	if !ok {
		return
	}
	var patch dto.EnrollmentPatch
	if !bindJSON(c, &patch) {
		return
	}
	enrollment, err := h.enrollments.Patch(c.Request.Context(), id, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Delete godoc
// @Summary Delete enrollment
// @Tags Enrollments
// @Param id path string true "Enrollment ID"
// @Success 204
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, enrollmentNotFound)
	if !ok {
		return
	}
	if err := h.enrollments.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
