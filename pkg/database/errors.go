package database

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE codes used for classification.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// Constraint names declared by the schema migrations.
const (
	ConstraintStudentEmail         = "students_email_key"
	ConstraintEnrollmentPair       = "enrollments_student_course_key"
	ConstraintEnrollmentStudentFK  = "enrollments_student_id_fkey"
	ConstraintEnrollmentCourseFK   = "enrollments_course_id_fkey"
	ConstraintEnrollmentGradeRange = "enrollments_grade_check"
)

func pqError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}

// IsUniqueViolation reports whether err is a unique violation. When
// constraint is non-empty the violated constraint must match.
func IsUniqueViolation(err error, constraint string) bool {
	return matches(err, codeUniqueViolation, constraint)
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error, constraint string) bool {
	return matches(err, codeForeignKeyViolation, constraint)
}

// IsCheckViolation reports whether err is a check constraint violation.
func IsCheckViolation(err error, constraint string) bool {
	return matches(err, codeCheckViolation, constraint)
}

func matches(err error, code, constraint string) bool {
	pqErr, ok := pqError(err)
	if !ok || string(pqErr.Code) != code {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
