package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academia-api/internal/dto"
	"github.com/noah-isme/academia-api/internal/models"
	"github.com/noah-isme/academia-api/pkg/database"
	appErrors "github.com/noah-isme/academia-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
	ListCourses(ctx context.Context, studentID string) ([]models.Course, error)
}

// StudentService handles student use-cases.
type StudentService struct {
	repo      studentRepository
	cache     *CacheService
	paging    PageConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, cache *CacheService, paging PageConfig, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, cache: cache, paging: paging, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	filter.Page, filter.PageSize = s.paging.resolve(filter.Page, filter.PageSize)
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list students")
	}
	return students, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("student not found")
		}
		return nil, internalError(err, "failed to load student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req dto.StudentRequest) (*models.Student, error) {
	req = normalizeStudent(req)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	if err := s.ensureEmailFree(ctx, req.Email, ""); err != nil {
		return nil, err
	}
	student := &models.Student{Name: req.Name, Email: req.Email}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, s.writeError(err, "failed to create student")
	}
	return student, nil
}

// Update replaces name and email of a student.
func (s *StudentService) Update(ctx context.Context, id string, req dto.StudentRequest) (*models.Student, error) {
	req = normalizeStudent(req)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, req.Email, id); err != nil {
		return nil, err
	}
	student.Name = req.Name
	student.Email = req.Email
	if err := s.repo.Update(ctx, student); err != nil {
		if isNotFound(err) {
			return nil, notFound("student not found")
		}
		return nil, s.writeError(err, "failed to update student")
	}
	s.cache.InvalidateStudents(ctx, id)
	return student, nil
}

// Patch applies a partial update.
func (s *StudentService) Patch(ctx context.Context, id string, patch dto.StudentPatch) (*models.Student, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, id, patch.Apply(dto.StudentRequest{Name: current.Name, Email: current.Email}))
}

// Delete removes a student together with their enrollments.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if isNotFound(err) {
			return notFound("student not found")
		}
		return internalError(err, "failed to delete student")
	}
	s.cache.InvalidateStudents(ctx, id)
	return nil
}

// Courses lists the courses a student is enrolled in, in enrollment order.
func (s *StudentService) Courses(ctx context.Context, id string) ([]models.Course, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	courses, err := s.repo.ListCourses(ctx, id)
	if err != nil {
		return nil, internalError(err, "failed to list student courses")
	}
	return courses, nil
}

func (s *StudentService) ensureEmailFree(ctx context.Context, email, excludeID string) error {
	exists, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return internalError(err, "failed to validate email")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}
	return nil
}

func (s *StudentService) writeError(err error, message string) error {
	if database.IsUniqueViolation(err, database.ConstraintStudentEmail) {
		s.logger.Warn("student email race resolved by constraint", zap.Error(err))
		return appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}
	return internalError(err, message)
}

func normalizeStudent(req dto.StudentRequest) dto.StudentRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	return req
}
