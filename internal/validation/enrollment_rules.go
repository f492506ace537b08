// Package validation holds the enrollment rule set shared by the request
// validation path and the persistence path.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/academia-api/internal/models"
)

// Rule names a business rule an enrollment must satisfy.
type Rule string

const (
	RuleInactiveCourse      Rule = "inactive_course"
	RuleCourseStarted       Rule = "course_already_started"
	RuleDuplicateEnrollment Rule = "duplicate_enrollment"
)

// RuleViolation reports a failed rule. Violations compare equal under
// errors.Is when their rules match.
type RuleViolation struct {
	Rule    Rule
	Field   string
	Message string
}

func (v *RuleViolation) Error() string { return v.Message }

// Is matches any violation of the same rule.
func (v *RuleViolation) Is(target error) bool {
	t, ok := target.(*RuleViolation)
	return ok && t.Rule == v.Rule
}

var (
	ErrInactiveCourse = &RuleViolation{
		Rule:    RuleInactiveCourse,
		Field:   "course_id",
		Message: "cannot enroll in an inactive course",
	}
	ErrCourseAlreadyStarted = &RuleViolation{
		Rule:    RuleCourseStarted,
		Field:   "course_id",
		Message: "cannot enroll in a course that has already started",
	}
	ErrDuplicateEnrollment = &RuleViolation{
		Rule:    RuleDuplicateEnrollment,
		Field:   "student_id",
		Message: "student is already enrolled in this course",
	}
)

// Violations is the set of rules a candidate failed, in evaluation order.
type Violations []*RuleViolation

func (v Violations) Error() string {
	msgs := make([]string, len(v))
	for i, violation := range v {
		msgs[i] = violation.Message
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes each violation to errors.Is and errors.As.
func (v Violations) Unwrap() []error {
	errs := make([]error, len(v))
	for i, violation := range v {
		errs[i] = violation
	}
	return errs
}

// AsViolations extracts rule violations from err.
func AsViolations(err error) (Violations, bool) {
	var v Violations
	if errors.As(err, &v) && len(v) > 0 {
		return v, true
	}
	return nil, false
}

// Candidate is an enrollment about to be written. ID is empty for creates;
// for updates CurrentStudentID and CurrentCourseID hold the pair stored
// before the change.
type Candidate struct {
	ID               string
	StudentID        string
	CourseID         string
	CurrentStudentID string
	CurrentCourseID  string
}

// IsNew reports whether the candidate has no stored identity yet.
func (c Candidate) IsNew() bool { return c.ID == "" }

// entersCourse is true whenever the write produces a pair that was not stored
// before: a create, a move to another course, or a different student.
func (c Candidate) entersCourse() bool {
	return c.IsNew() || c.CourseID != c.CurrentCourseID || c.StudentID != c.CurrentStudentID
}

// PairLookup answers whether another enrollment holds the (student, course)
// pair. excludeID is ignored when empty.
type PairLookup interface {
	ExistsForPair(ctx context.Context, studentID, courseID, excludeID string) (bool, error)
}

// EnrollmentRules evaluates the enrollment business rules.
type EnrollmentRules struct {
	now func() time.Time
}

// NewEnrollmentRules builds the rule set. A nil clock defaults to time.Now.
func NewEnrollmentRules(now func() time.Time) *EnrollmentRules {
	if now == nil {
		now = time.Now
	}
	return &EnrollmentRules{now: now}
}

// Today is the UTC calendar date at evaluation time.
func (r *EnrollmentRules) Today() models.Date {
	return models.NewDate(r.now().UTC())
}

// Check returns nil when the candidate may be persisted, Violations when one
// or more rules fail, or a plain error when the duplicate lookup fails.
//
// The course-state rules apply when the candidate enters the course (a create,
// or an update that changes the student or the course); grading an enrollment
// in a running course stays possible. The duplicate rule always applies and
// excludes the candidate's own identity.
func (r *EnrollmentRules) Check(ctx context.Context, c Candidate, course models.Course, lookup PairLookup) error {
	if course.ID != c.CourseID {
		return fmt.Errorf("check enrollment: course %q does not match candidate course %q", course.ID, c.CourseID)
	}

	var violations Violations
	if c.entersCourse() {
		if !course.Active {
			violations = append(violations, ErrInactiveCourse)
		}
		if course.StartDate.Before(r.Today()) {
			violations = append(violations, ErrCourseAlreadyStarted)
		}
	}

	exists, err := lookup.ExistsForPair(ctx, c.StudentID, c.CourseID, c.ID)
	if err != nil {
		return fmt.Errorf("check duplicate enrollment: %w", err)
	}
	if exists {
		violations = append(violations, ErrDuplicateEnrollment)
	}

	if len(violations) > 0 {
		return violations
	}
	return nil
}
