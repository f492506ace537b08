package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academia-api/internal/models"
	"github.com/noah-isme/academia-api/internal/validation"
	"github.com/noah-isme/academia-api/pkg/database"
)

// ErrCourseMissing is returned by writes whose target course no longer exists.
var ErrCourseMissing = errors.New("course not found")

// EnrollmentSorts lists the sort keys accepted when listing enrollments.
var EnrollmentSorts = map[string]string{
	"enrolled_at":  "e.enrolled_at",
	"grade":        "e.grade",
	"student_name": "s.name",
	"course_title": "c.title",
}

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.course_id, e.enrolled_at, e.grade,
        s.name AS student_name, s.email AS student_email, c.title AS course_title `

const enrollmentJoins = `FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN courses c ON c.id = e.course_id`

// EnrollmentRepository handles persistence of enrollments. Writes re-run the
// enrollment rules inside their transaction.
type EnrollmentRepository struct {
	db    *sqlx.DB
	rules *validation.EnrollmentRules
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB, rules *validation.EnrollmentRules) *EnrollmentRepository {
	if rules == nil {
		rules = validation.NewEnrollmentRules(nil)
	}
	return &EnrollmentRepository{db: db, rules: rules}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var where whereBuilder
	if filter.StudentID != "" {
		where.add("e.student_id = $%d", filter.StudentID)
	}
	if filter.CourseID != "" {
		where.add("e.course_id = $%d", filter.CourseID)
	}
	if filter.Grade != nil {
		where.add("e.grade = $%d", *filter.Grade)
	}
	if filter.GradeGTE != nil {
		where.add("e.grade >= $%d", *filter.GradeGTE)
	}
	if filter.GradeLTE != nil {
		where.add("e.grade <= $%d", *filter.GradeLTE)
	}
	where.search(filter.Search, "s.name", "s.email", "c.title")
	base := enrollmentJoins + where.clause()

	order := orderBy(filter.SortBy, filter.SortOrder, EnrollmentSorts, "enrolled_at", "DESC")
	limit, offset := limitOffset(filter.Page, filter.PageSize)
	query := fmt.Sprintf("%s%s ORDER BY %s, e.id LIMIT %d OFFSET %d", enrollmentDetailSelect, base, order, limit, offset)

	items := []models.EnrollmentDetail{}
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return items, total, nil
}

// FindByID fetches an enrollment by ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	return findEnrollment(ctx, r.db, id, false)
}

func findEnrollment(ctx context.Context, q querier, id string, lock bool) (*models.Enrollment, error) {
	query := `SELECT id, student_id, course_id, enrolled_at, grade FROM enrollments WHERE id = $1`
	if lock {
		query += " FOR UPDATE"
	}
	var enrollment models.Enrollment
	if err := q.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID fetches an enrollment with its student and course labels.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + enrollmentJoins + " WHERE e.id = $1"
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsForPair reports whether an enrollment other than excludeID links the
// student to the course.
func (r *EnrollmentRepository) ExistsForPair(ctx context.Context, studentID, courseID, excludeID string) (bool, error) {
	return pairLookup{q: r.db}.ExistsForPair(ctx, studentID, courseID, excludeID)
}

// pairLookup answers duplicate checks through a specific connection or transaction.
type pairLookup struct {
	q querier
}

func (p pairLookup) ExistsForPair(ctx context.Context, studentID, courseID, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2`
	args := []interface{}{studentID, courseID}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	query += ")"
	var exists bool
	if err := p.q.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("check enrollment pair: %w", err)
	}
	return exists, nil
}

// Create inserts a new enrollment after checking the rules against the locked course row.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		course, err := r.lockCourse(ctx, tx, enrollment.CourseID)
		if err != nil {
			return err
		}
		candidate := validation.Candidate{StudentID: enrollment.StudentID, CourseID: enrollment.CourseID}
		if err := r.rules.Check(ctx, candidate, *course, pairLookup{q: tx}); err != nil {
			return err
		}
		return insertEnrollment(ctx, tx, enrollment)
	})
}

// Update changes the student, course or grade of an enrollment. The enrolled
// instant is never rewritten.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := findEnrollment(ctx, tx, enrollment.ID, true)
		if err != nil {
			return err
		}
		course, err := r.lockCourse(ctx, tx, enrollment.CourseID)
		if err != nil {
			return err
		}
		candidate := validation.Candidate{
			ID:               enrollment.ID,
			StudentID:        enrollment.StudentID,
			CourseID:         enrollment.CourseID,
			CurrentStudentID: current.StudentID,
			CurrentCourseID:  current.CourseID,
		}
		if err := r.rules.Check(ctx, candidate, *course, pairLookup{q: tx}); err != nil {
			return err
		}

		const query = `UPDATE enrollments SET student_id = :student_id, course_id = :course_id, grade = :grade WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, query, enrollment); err != nil {
			return fmt.Errorf("update enrollment: %w", err)
		}
		enrollment.EnrolledAt = current.EnrolledAt
		return nil
	})
}

func (r *EnrollmentRepository) lockCourse(ctx context.Context, tx *sqlx.Tx, courseID string) (*models.Course, error) {
	course, err := findCourse(ctx, tx, courseID, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCourseMissing
		}
		return nil, fmt.Errorf("lock course: %w", err)
	}
	return course, nil
}

func insertEnrollment(ctx context.Context, q querier, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (id, student_id, course_id, enrolled_at, grade)
        VALUES (:id, :student_id, :course_id, :enrolled_at, :grade)`
	if _, err := q.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// BulkCreate inserts enrollments in one transaction without evaluating the
// enrollment rules. The unique pair constraint still applies.
func (r *EnrollmentRepository) BulkCreate(ctx context.Context, enrollments []models.Enrollment) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for i := range enrollments {
			if err := insertEnrollment(ctx, tx, &enrollments[i]); err != nil {
				return fmt.Errorf("bulk row %d: %w", i, err)
			}
		}
		return nil
	})
}

// Delete removes an enrollment.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return requireAffected(res)
}

// ReportRows returns a student's enrollments joined with course titles, in enrollment order.
func (r *EnrollmentRepository) ReportRows(ctx context.Context, studentID string) ([]models.ReportRow, error) {
	const query = `SELECT e.course_id, c.title AS course_title, e.enrolled_at, e.grade
        FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1
        ORDER BY e.enrolled_at, e.id`
	rows := []models.ReportRow{}
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list report rows: %w", err)
	}
	return rows, nil
}
