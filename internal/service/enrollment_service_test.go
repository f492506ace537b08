package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academia-api/internal/dto"
	"github.com/noah-isme/academia-api/internal/models"
)

func TestEnrollmentCreateInActiveFutureCourse(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	physics := h.course(t, "Physics", "2026-11-03", true)

	created := h.enroll(t, maria.ID, physics.ID, nil)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Maria", created.StudentName)
	assert.Equal(t, "Physics", created.CourseTitle)
	assert.False(t, created.EnrolledAt.IsZero())
	assert.Nil(t, created.Grade)
}

func TestEnrollmentCreateRejectsInactiveCourse(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	chemistry := h.course(t, "Chemistry", "2026-11-03", false)

	_, err := h.enrollments.Create(context.Background(), dto.EnrollmentRequest{StudentID: maria.ID, CourseID: chemistry.ID})
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, "cannot enroll in an inactive course", appErr.Message)
	assert.Equal(t, []string{"inactive_course"}, ruleNames(t, appErr))
	assert.Equal(t, uint64(1), h.metrics.Snapshot().RuleRejections["inactive_course"])
	assert.Empty(t, h.db.enrollments)
}

func TestEnrollmentCreateRejectsStartedCourse(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	history := h.course(t, "History", "2026-10-18", true)

	_, err := h.enrollments.Create(context.Background(), dto.EnrollmentRequest{StudentID: maria.ID, CourseID: history.ID})
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, []string{"course_already_started"}, ruleNames(t, appErr))
}

func TestEnrollmentCreateOnStartDateIsAllowed(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	starting := h.course(t, "Biology", "2026-10-19", true)

	h.enroll(t, maria.ID, starting.ID, nil)
}

func TestEnrollmentCreateReportsEveryViolation(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	old := h.course(t, "Latin", "2026-01-10", false)

	_, err := h.enrollments.Create(context.Background(), dto.EnrollmentRequest{StudentID: maria.ID, CourseID: old.ID})
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, []string{"inactive_course", "course_already_started"}, ruleNames(t, appErr))
}

func TestEnrollmentCreateDuplicate(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	physics := h.course(t, "Physics", "2026-11-03", true)
	h.enroll(t, maria.ID, physics.ID, nil)

	_, err := h.enrollments.Create(context.Background(), dto.EnrollmentRequest{StudentID: maria.ID, CourseID: physics.ID})
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, DuplicateEnrollmentMessage, appErr.Message)
	assert.Equal(t, []string{"duplicate_enrollment"}, ruleNames(t, appErr))
	assert.Len(t, h.db.enrollments, 1)
}

func TestEnrollmentCreateConcurrentDuplicateIsConflict(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	physics := h.course(t, "Physics", "2026-11-03", true)
	h.db.raceOnCreate = true

	_, err := h.enrollments.Create(context.Background(), dto.EnrollmentRequest{StudentID: maria.ID, CourseID: physics.ID})
	appErr := requireAppError(t, err, http.StatusConflict)
	assert.Equal(t, DuplicateEnrollmentMessage, appErr.Message)
	assert.Equal(t, uint64(1), h.metrics.Snapshot().Conflicts)
}

func TestEnrollmentCreateMissingParties(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	physics := h.course(t, "Physics", "2026-11-03", true)
	ghost := "9b2f9e4c-3f0a-4c55-8d8e-3f4a2b1c0d9e"

	_, err := h.enrollments.Create(context.Background(), dto.EnrollmentRequest{StudentID: ghost, CourseID: physics.ID})
	assert.Equal(t, "student not found", requireAppError(t, err, http.StatusNotFound).Message)

	_, err = h.enrollments.Create(context.Background(), dto.EnrollmentRequest{StudentID: maria.ID, CourseID: ghost})
	assert.Equal(t, "course not found", requireAppError(t, err, http.StatusNotFound).Message)
}

func TestEnrollmentCreateValidatesPayload(t *testing.T) {
	h := newHarness(t)
	_, err := h.enrollments.Create(context.Background(), dto.EnrollmentRequest{StudentID: "nope", Grade: grade(10.5)})
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.ElementsMatch(t, []string{"uuid", "required", "grade"}, ruleNames(t, appErr))
}

func TestEnrollmentUpdateKeepsOwnPairAndGradesRunningCourse(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	physics := h.course(t, "Physics", "2026-11-03", true)
	created := h.enroll(t, maria.ID, physics.ID, nil)

	h.backdate(physics.ID, today.AddDate(0, 0, -7))

	updated, err := h.enrollments.Update(context.Background(), created.ID, dto.EnrollmentRequest{
		StudentID: maria.ID, CourseID: physics.ID, Grade: grade(9.25),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Grade)
	assert.Equal(t, 9.25, *updated.Grade)
	assert.Equal(t, created.EnrolledAt, updated.EnrolledAt)
}

func TestEnrollmentUpdateMovingIntoInactiveCourse(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	physics := h.course(t, "Physics", "2026-11-03", true)
	chemistry := h.course(t, "Chemistry", "2026-11-03", false)
	created := h.enroll(t, maria.ID, physics.ID, nil)

	_, err := h.enrollments.Patch(context.Background(), created.ID, dto.EnrollmentPatch{CourseID: &chemistry.ID})
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, []string{"inactive_course"}, ruleNames(t, appErr))
}

func TestEnrollmentPatchSwappingStudentIntoClosedCourse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	maria := h.student(t, "Maria", "maria@test.com")
	juan := h.student(t, "Juan", "juan@test.com")
	physics := h.course(t, "Physics", "2026-11-03", true)
	created := h.enroll(t, maria.ID, physics.ID, grade(8))

	inactive := false
	_, err := h.courses.Patch(ctx, physics.ID, dto.CoursePatch{Active: &inactive})
	require.NoError(t, err)
	h.backdate(physics.ID, today.AddDate(0, 0, -7))

	_, err = h.enrollments.Create(ctx, dto.EnrollmentRequest{StudentID: juan.ID, CourseID: physics.ID})
	requireAppError(t, err, http.StatusBadRequest)

	_, err = h.enrollments.Patch(ctx, created.ID, dto.EnrollmentPatch{StudentID: &juan.ID})
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, []string{"inactive_course", "course_already_started"}, ruleNames(t, appErr))

	stored, err := h.enrollments.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, maria.ID, stored.StudentID)

	// Grading the existing enrollment in the closed course is still allowed.
	_, err = h.enrollments.Patch(ctx, created.ID, dto.EnrollmentPatch{Grade: dto.OptionalGrade{Set: true, Value: grade(9)}})
	assert.NoError(t, err)
}

func TestEnrollmentUpdateOntoExistingPair(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	physics := h.course(t, "Physics", "2026-11-03", true)
	history := h.course(t, "History", "2026-11-10", true)
	h.enroll(t, maria.ID, physics.ID, nil)
	second := h.enroll(t, maria.ID, history.ID, nil)

	_, err := h.enrollments.Patch(context.Background(), second.ID, dto.EnrollmentPatch{CourseID: &physics.ID})
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Contains(t, ruleNames(t, appErr), "duplicate_enrollment")
}

func TestEnrollmentPatchClearsGrade(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	physics := h.course(t, "Physics", "2026-11-03", true)
	created := h.enroll(t, maria.ID, physics.ID, grade(7))

	updated, err := h.enrollments.Patch(context.Background(), created.ID, dto.EnrollmentPatch{Grade: dto.OptionalGrade{Set: true}})
	require.NoError(t, err)
	assert.Nil(t, updated.Grade)
}

func TestEnrollmentDeleteAndMissing(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	physics := h.course(t, "Physics", "2026-11-03", true)
	created := h.enroll(t, maria.ID, physics.ID, nil)

	require.NoError(t, h.enrollments.Delete(context.Background(), created.ID))
	requireAppError(t, h.enrollments.Delete(context.Background(), created.ID), http.StatusNotFound)
	_, err := h.enrollments.Get(context.Background(), created.ID)
	requireAppError(t, err, http.StatusNotFound)
}

func TestEnrollmentListPaginationDefaults(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	physics := h.course(t, "Physics", "2026-11-03", true)
	h.enroll(t, maria.ID, physics.ID, nil)

	items, pagination, err := h.enrollments.List(context.Background(), models.EnrollmentFilter{PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestEnrollmentRulesUseInjectedClock(t *testing.T) {
	h := newHarness(t)
	maria := h.student(t, "Maria", "maria@test.com")
	course := h.course(t, "Night class", today.Format("2006-01-02"), true)
	h.backdate(course.ID, today.Add(-24*time.Hour))

	_, err := h.enrollments.Create(context.Background(), dto.EnrollmentRequest{StudentID: maria.ID, CourseID: course.ID})
	requireAppError(t, err, http.StatusBadRequest)
}
