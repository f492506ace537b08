package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academia-api/internal/dto"
	"github.com/noah-isme/academia-api/internal/models"
	"github.com/noah-isme/academia-api/internal/repository"
	"github.com/noah-isme/academia-api/internal/validation"
	"github.com/noah-isme/academia-api/pkg/database"
	appErrors "github.com/noah-isme/academia-api/pkg/errors"
)

// DuplicateEnrollmentMessage is returned whenever a (student, course) pair
// already exists, whether detected by the rules or by the storage constraint.
const DuplicateEnrollmentMessage = "student is already enrolled in this course"

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsForPair(ctx context.Context, studentID, courseID, excludeID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Update(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) error
}

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type courseLookup interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// EnrollmentService manages enrollment lifecycle. Every create and update is
// checked against the enrollment rules here and again by the repository
// inside the write transaction.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  studentLookup
	courses   courseLookup
	rules     *validation.EnrollmentRules
	cache     *CacheService
	metrics   *MetricsService
	paging    PageConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// EnrollmentDeps groups the collaborators of EnrollmentService.
type EnrollmentDeps struct {
	Repo      enrollmentRepository
	Students  studentLookup
	Courses   courseLookup
	Rules     *validation.EnrollmentRules
	Cache     *CacheService
	Metrics   *MetricsService
	Paging    PageConfig
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(deps EnrollmentDeps) *EnrollmentService {
	if deps.Rules == nil {
		deps.Rules = validation.NewEnrollmentRules(nil)
	}
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      deps.Repo,
		students:  deps.Students,
		courses:   deps.Courses,
		rules:     deps.Rules,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		paging:    deps.Paging,
		validator: deps.Validator,
		logger:    deps.Logger,
	}
}

// List returns enrollments and pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	filter.Page, filter.PageSize = s.paging.resolve(filter.Page, filter.PageSize)
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list enrollments")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns an enrollment with its student and course labels.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("enrollment not found")
		}
		return nil, internalError(err, "failed to load enrollment")
	}
	return detail, nil
}

// Create enrolls a student in a course.
func (s *EnrollmentService) Create(ctx context.Context, req dto.EnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment payload")
	}
	course, err := s.loadParties(ctx, req)
	if err != nil {
		return nil, err
	}
	candidate := validation.Candidate{StudentID: req.StudentID, CourseID: req.CourseID}
	if err := s.check(ctx, candidate, course); err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{StudentID: req.StudentID, CourseID: req.CourseID, Grade: req.Grade}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, s.writeError(err, candidate, "failed to create enrollment")
	}
	s.cache.InvalidateStudents(ctx, enrollment.StudentID)
	return s.Get(ctx, enrollment.ID)
}

// Update replaces the student, course and grade of an enrollment.
func (s *EnrollmentService) Update(ctx context.Context, id string, req dto.EnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment payload")
	}
	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	course, err := s.loadParties(ctx, req)
	if err != nil {
		return nil, err
	}
	candidate := validation.Candidate{
		ID:               id,
		StudentID:        req.StudentID,
		CourseID:         req.CourseID,
		CurrentStudentID: current.StudentID,
		CurrentCourseID:  current.CourseID,
	}
	if err := s.check(ctx, candidate, course); err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{ID: id, StudentID: req.StudentID, CourseID: req.CourseID, Grade: req.Grade}
	if err := s.repo.Update(ctx, enrollment); err != nil {
		if isNotFound(err) {
			return nil, notFound("enrollment not found")
		}
		return nil, s.writeError(err, candidate, "failed to update enrollment")
	}
	s.cache.InvalidateStudents(ctx, current.StudentID, enrollment.StudentID)
	return s.Get(ctx, id)
}

// Patch applies a partial update on top of the stored enrollment.
func (s *EnrollmentService) Patch(ctx context.Context, id string, patch dto.EnrollmentPatch) (*models.EnrollmentDetail, error) {
	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	base := dto.EnrollmentRequest{StudentID: current.StudentID, CourseID: current.CourseID, Grade: current.Grade}
	return s.Update(ctx, id, patch.Apply(base))
}

// Delete removes an enrollment.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	current, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if isNotFound(err) {
			return notFound("enrollment not found")
		}
		return internalError(err, "failed to delete enrollment")
	}
	s.cache.InvalidateStudents(ctx, current.StudentID)
	return nil
}

func (s *EnrollmentService) find(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("enrollment not found")
		}
		return nil, internalError(err, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) loadParties(ctx context.Context, req dto.EnrollmentRequest) (*models.Course, error) {
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if isNotFound(err) {
			return nil, notFound("student not found")
		}
		return nil, internalError(err, "failed to load student")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("course not found")
		}
		return nil, internalError(err, "failed to load course")
	}
	return course, nil
}

func (s *EnrollmentService) check(ctx context.Context, candidate validation.Candidate, course *models.Course) error {
	err := s.rules.Check(ctx, candidate, *course, s.repo)
	if err == nil {
		return nil
	}
	if violations, ok := validation.AsViolations(err); ok {
		return s.rejected(candidate, violations)
	}
	return internalError(err, "failed to evaluate enrollment rules")
}

func (s *EnrollmentService) rejected(candidate validation.Candidate, violations validation.Violations) error {
	for _, v := range violations {
		s.metrics.RecordRuleRejection(string(v.Rule))
	}
	s.logger.Info("enrollment rejected",
		zap.String("student_id", candidate.StudentID),
		zap.String("course_id", candidate.CourseID),
		zap.String("reason", violations.Error()),
	)
	return ruleError(violations)
}

// writeError maps repository write failures. Rule violations raised inside the
// transaction reflect state that changed after the pre-check.
func (s *EnrollmentService) writeError(err error, candidate validation.Candidate, message string) error {
	if violations, ok := validation.AsViolations(err); ok {
		return s.rejected(candidate, violations)
	}
	switch {
	case database.IsUniqueViolation(err, database.ConstraintEnrollmentPair):
		s.metrics.RecordConflict(database.ConstraintEnrollmentPair)
		s.logger.Warn("duplicate enrollment race resolved by constraint",
			zap.String("student_id", candidate.StudentID),
			zap.String("course_id", candidate.CourseID),
		)
		return appErrors.Clone(appErrors.ErrConflict, DuplicateEnrollmentMessage)
	case errors.Is(err, repository.ErrCourseMissing),
		database.IsForeignKeyViolation(err, database.ConstraintEnrollmentCourseFK):
		return notFound("course not found")
	case database.IsForeignKeyViolation(err, database.ConstraintEnrollmentStudentFK):
		return notFound("student not found")
	case database.IsCheckViolation(err, database.ConstraintEnrollmentGradeRange):
		return appErrors.WithDetails(appErrors.ErrValidation, "invalid enrollment payload", []appErrors.FieldError{
			{Field: "grade", Rule: "grade", Message: "grade must be between 0 and 10 with at most two decimals"},
		})
	}
	return internalError(err, message)
}
