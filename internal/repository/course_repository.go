package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academia-api/internal/models"
)

// CourseSorts lists the sort keys accepted when listing courses.
var CourseSorts = map[string]string{
	"title":      "c.title",
	"start_date": "c.start_date",
}

const courseColumns = "c.id, c.title, c.description, c.start_date, c.active, c.created_at"

// CourseRepository manages persistence for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses matching the provided filters.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var where whereBuilder
	if filter.Active != nil {
		where.add("c.active = $%d", *filter.Active)
	}
	where.search(filter.Search, "c.title", "c.description")
	base := "FROM courses c" + where.clause()

	order := orderBy(filter.SortBy, filter.SortOrder, CourseSorts, "title", "ASC")
	limit, offset := limitOffset(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY %s, c.id LIMIT %d OFFSET %d", courseColumns, base, order, limit, offset)

	courses := []models.Course{}
	if err := r.db.SelectContext(ctx, &courses, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID fetches a course by ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	return findCourse(ctx, r.db, id, false)
}

// findCourse loads a course through q, optionally holding a share lock on the
// row so it cannot change until the surrounding transaction ends.
func findCourse(ctx context.Context, q querier, id string, lock bool) (*models.Course, error) {
	query := "SELECT " + courseColumns + " FROM courses c WHERE c.id = $1"
	if lock {
		query += " FOR SHARE"
	}
	var course models.Course
	if err := q.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	course.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO courses (id, title, description, start_date, active, created_at)
        VALUES (:id, :title, :description, :start_date, :active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update modifies an existing course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	const query = `UPDATE courses SET title = :title, description = :description, start_date = :start_date, active = :active
        WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a course and, by cascade, its enrollments.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return requireAffected(res)
}

// ListStudents returns the students enrolled in a course, in enrollment order.
func (r *CourseRepository) ListStudents(ctx context.Context, courseID string) ([]models.Student, error) {
	const query = `SELECT s.id, s.name, s.email, s.registered_at
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        WHERE e.course_id = $1
        ORDER BY e.enrolled_at, e.id`
	students := []models.Student{}
	if err := r.db.SelectContext(ctx, &students, query, courseID); err != nil {
		return nil, fmt.Errorf("list course students: %w", err)
	}
	return students, nil
}

// StudentIDs returns the IDs of every student enrolled in a course.
func (r *CourseRepository) StudentIDs(ctx context.Context, courseID string) ([]string, error) {
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, `SELECT student_id FROM enrollments WHERE course_id = $1`, courseID); err != nil {
		return nil, fmt.Errorf("list course student ids: %w", err)
	}
	return ids, nil
}
