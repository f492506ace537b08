package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academia-api/internal/dto"
	"github.com/noah-isme/academia-api/internal/models"
	appErrors "github.com/noah-isme/academia-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	ListStudents(ctx context.Context, courseID string) ([]models.Student, error)
	StudentIDs(ctx context.Context, courseID string) ([]string, error)
}

// CourseService handles course use-cases.
type CourseService struct {
	repo      courseRepository
	cache     *CacheService
	paging    PageConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(repo courseRepository, cache *CacheService, paging PageConfig, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, cache: cache, paging: paging, validator: validate, logger: logger}
}

// List returns courses and pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	filter.Page, filter.PageSize = s.paging.resolve(filter.Page, filter.PageSize)
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list courses")
	}
	return courses, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("course not found")
		}
		return nil, internalError(err, "failed to load course")
	}
	return course, nil
}

// Create registers a course. Courses are inactive unless stated otherwise.
func (s *CourseService) Create(ctx context.Context, req dto.CourseRequest) (*models.Course, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validate(req); err != nil {
		return nil, err
	}
	course := &models.Course{Title: req.Title, Description: req.Description, StartDate: *req.StartDate}
	if req.Active != nil {
		course.Active = *req.Active
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, internalError(err, "failed to create course")
	}
	return course, nil
}

// Update replaces the editable fields of a course. Existing enrollments are
// not re-evaluated when a course is deactivated or rescheduled.
func (s *CourseService) Update(ctx context.Context, id string, req dto.CourseRequest) (*models.Course, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validate(req); err != nil {
		return nil, err
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	course.Title = req.Title
	course.Description = req.Description
	course.StartDate = *req.StartDate
	if req.Active != nil {
		course.Active = *req.Active
	}
	if err := s.repo.Update(ctx, course); err != nil {
		if isNotFound(err) {
			return nil, notFound("course not found")
		}
		return nil, internalError(err, "failed to update course")
	}
	s.invalidateEnrolled(ctx, id)
	return course, nil
}

// Patch applies a partial update.
func (s *CourseService) Patch(ctx context.Context, id string, patch dto.CoursePatch) (*models.Course, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	start := current.StartDate
	active := current.Active
	base := dto.CourseRequest{Title: current.Title, Description: current.Description, StartDate: &start, Active: &active}
	return s.Update(ctx, id, patch.Apply(base))
}

// Delete removes a course together with its enrollments.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	studentIDs, err := s.repo.StudentIDs(ctx, id)
	if err != nil {
		return internalError(err, "failed to load course enrollments")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if isNotFound(err) {
			return notFound("course not found")
		}
		return internalError(err, "failed to delete course")
	}
	s.cache.InvalidateStudents(ctx, studentIDs...)
	return nil
}

// Students lists the students enrolled in a course, in enrollment order.
func (s *CourseService) Students(ctx context.Context, id string) ([]models.Student, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	students, err := s.repo.ListStudents(ctx, id)
	if err != nil {
		return nil, internalError(err, "failed to list course students")
	}
	return students, nil
}

func (s *CourseService) validate(req dto.CourseRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid course payload")
	}
	if req.StartDate.IsZero() {
		return appErrors.WithDetails(appErrors.ErrValidation, "invalid course payload", []appErrors.FieldError{
			{Field: "start_date", Rule: "required", Message: "start_date is required"},
		})
	}
	return nil
}

func (s *CourseService) invalidateEnrolled(ctx context.Context, courseID string) {
	if !s.cache.Enabled() {
		return
	}
	ids, err := s.repo.StudentIDs(ctx, courseID)
	if err != nil {
		s.logger.Warn("falling back to full report invalidation", zap.String("course_id", courseID), zap.Error(err))
		s.cache.InvalidateReports(ctx)
		return
	}
	s.cache.InvalidateStudents(ctx, ids...)
}
