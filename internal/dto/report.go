package dto

// StudentReport summarises a student's enrollments. Detail is set only when
// the student has no enrollments.
type StudentReport struct {
	Name         string   `json:"name"`
	Detail       string   `json:"detail,omitempty"`
	Courses      []string `json:"courses"`
	AverageGrade *float64 `json:"average_grade"`
}
