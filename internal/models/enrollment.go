package models

import "time"

// Enrollment links one student to one course.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
	Grade      *float64  `db:"grade" json:"grade"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
	CourseTitle  string `db:"course_title" json:"course_title"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Grade     *float64
	GradeGTE  *float64
	GradeLTE  *float64
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ReportRow is one enrollment of a student joined with its course.
type ReportRow struct {
	CourseID    string    `db:"course_id"`
	CourseTitle string    `db:"course_title"`
	EnrolledAt  time.Time `db:"enrolled_at"`
	Grade       *float64  `db:"grade"`
}
