package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/noah-isme/academia-api/internal/models"
	"github.com/noah-isme/academia-api/pkg/database"
)

// memDB is an in-memory stand-in for the relational store, including the
// unique and cascade constraints of the schema.
type memDB struct {
	mu          sync.Mutex
	clock       time.Time
	students    map[string]models.Student
	courses     map[string]models.Course
	enrollments map[string]models.Enrollment

	// raceOnCreate makes the next enrollment insert fail as if a concurrent
	// request committed the same pair first.
	raceOnCreate bool
}

func newMemDB() *memDB {
	return &memDB{
		clock:       time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
		students:    map[string]models.Student{},
		courses:     map[string]models.Course{},
		enrollments: map[string]models.Enrollment{},
	}
}

func (db *memDB) nextID() string {
	return uuid.NewString()
}

func (db *memDB) tick() time.Time {
	db.clock = db.clock.Add(time.Minute)
	return db.clock
}

func (db *memDB) orderedEnrollments(match func(models.Enrollment) bool) []models.Enrollment {
	var out []models.Enrollment
	for _, e := range db.enrollments {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EnrolledAt.Before(out[j].EnrolledAt)
	})
	return out
}

type memStudents struct{ db *memDB }

func (r memStudents) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Student, 0, len(r.db.students))
	for _, s := range r.db.students {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (r memStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (r memStudents) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.students {
		if s.Email == email && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r memStudents) Create(ctx context.Context, student *models.Student) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.students {
		if s.Email == student.Email {
			return &pq.Error{Code: "23505", Constraint: database.ConstraintStudentEmail}
		}
	}
	student.ID = r.db.nextID()
	student.RegisteredAt = r.db.tick()
	r.db.students[student.ID] = *student
	return nil
}

func (r memStudents) Update(ctx context.Context, student *models.Student) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.students[student.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Name = student.Name
	stored.Email = student.Email
	r.db.students[student.ID] = stored
	*student = stored
	return nil
}

func (r memStudents) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.db.students, id)
	for eid, e := range r.db.enrollments {
		if e.StudentID == id {
			delete(r.db.enrollments, eid)
		}
	}
	return nil
}

func (r memStudents) ListCourses(ctx context.Context, studentID string) ([]models.Course, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	courses := []models.Course{}
	for _, e := range r.db.orderedEnrollments(func(e models.Enrollment) bool { return e.StudentID == studentID }) {
		courses = append(courses, r.db.courses[e.CourseID])
	}
	return courses, nil
}

type memCourses struct{ db *memDB }

func (r memCourses) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []models.Course{}
	for _, c := range r.db.courses {
		if filter.Active == nil || c.Active == *filter.Active {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (r memCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r memCourses) Create(ctx context.Context, course *models.Course) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	course.ID = r.db.nextID()
	course.CreatedAt = r.db.tick()
	r.db.courses[course.ID] = *course
	return nil
}

func (r memCourses) Update(ctx context.Context, course *models.Course) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	r.db.courses[course.ID] = *course
	return nil
}

func (r memCourses) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.db.courses, id)
	for eid, e := range r.db.enrollments {
		if e.CourseID == id {
			delete(r.db.enrollments, eid)
		}
	}
	return nil
}

func (r memCourses) ListStudents(ctx context.Context, courseID string) ([]models.Student, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	students := []models.Student{}
	for _, e := range r.db.orderedEnrollments(func(e models.Enrollment) bool { return e.CourseID == courseID }) {
		students = append(students, r.db.students[e.StudentID])
	}
	return students, nil
}

func (r memCourses) StudentIDs(ctx context.Context, courseID string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ids := []string{}
	for _, e := range r.db.enrollments {
		if e.CourseID == courseID {
			ids = append(ids, e.StudentID)
		}
	}
	return ids, nil
}

type memEnrollments struct{ db *memDB }

func (r memEnrollments) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []models.EnrollmentDetail{}
	for _, e := range r.db.orderedEnrollments(func(e models.Enrollment) bool {
		return (filter.StudentID == "" || e.StudentID == filter.StudentID) &&
			(filter.CourseID == "" || e.CourseID == filter.CourseID)
	}) {
		out = append(out, r.detail(e))
	}
	return out, len(out), nil
}

func (r memEnrollments) detail(e models.Enrollment) models.EnrollmentDetail {
	s := r.db.students[e.StudentID]
	return models.EnrollmentDetail{Enrollment: e, StudentName: s.Name, StudentEmail: s.Email, CourseTitle: r.db.courses[e.CourseID].Title}
}

func (r memEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (r memEnrollments) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := r.detail(e)
	return &d, nil
}

func (r memEnrollments) ExistsForPair(ctx context.Context, studentID, courseID, excludeID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.pairTaken(studentID, courseID, excludeID), nil
}

func (r memEnrollments) pairTaken(studentID, courseID, excludeID string) bool {
	for _, e := range r.db.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID && e.ID != excludeID {
			return true
		}
	}
	return false
}

func (r memEnrollments) Create(ctx context.Context, enrollment *models.Enrollment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.raceOnCreate || r.pairTaken(enrollment.StudentID, enrollment.CourseID, "") {
		r.db.raceOnCreate = false
		return fmt.Errorf("create enrollment: %w", &pq.Error{Code: "23505", Constraint: database.ConstraintEnrollmentPair})
	}
	enrollment.ID = r.db.nextID()
	enrollment.EnrolledAt = r.db.tick()
	r.db.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (r memEnrollments) Update(ctx context.Context, enrollment *models.Enrollment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.enrollments[enrollment.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if r.pairTaken(enrollment.StudentID, enrollment.CourseID, enrollment.ID) {
		return &pq.Error{Code: "23505", Constraint: database.ConstraintEnrollmentPair}
	}
	stored.StudentID = enrollment.StudentID
	stored.CourseID = enrollment.CourseID
	stored.Grade = enrollment.Grade
	r.db.enrollments[enrollment.ID] = stored
	return nil
}

func (r memEnrollments) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.enrollments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.db.enrollments, id)
	return nil
}

func (r memEnrollments) ReportRows(ctx context.Context, studentID string) ([]models.ReportRow, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rows := []models.ReportRow{}
	for _, e := range r.db.orderedEnrollments(func(e models.Enrollment) bool { return e.StudentID == studentID }) {
		rows = append(rows, models.ReportRow{CourseID: e.CourseID, CourseTitle: r.db.courses[e.CourseID].Title, EnrolledAt: e.EnrolledAt, Grade: e.Grade})
	}
	return rows, nil
}
