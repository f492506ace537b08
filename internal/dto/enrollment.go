package dto

import (
	"bytes"
	"encoding/json"
)

// EnrollmentRequest is the full enrollment payload. The enrolled instant and
// identity are never accepted from clients.
type EnrollmentRequest struct {
	StudentID string   `json:"student_id" validate:"required,uuid"`
	CourseID  string   `json:"course_id" validate:"required,uuid"`
	Grade     *float64 `json:"grade" validate:"omitempty,grade"`
}

// EnrollmentPatch carries a partial enrollment update.
type EnrollmentPatch struct {
	StudentID *string       `json:"student_id"`
	CourseID  *string       `json:"course_id"`
	Grade     OptionalGrade `json:"grade"`
}

// Apply overlays the patch on a full request.
func (p EnrollmentPatch) Apply(base EnrollmentRequest) EnrollmentRequest {
	if p.StudentID != nil {
		base.StudentID = *p.StudentID
	}
	if p.CourseID != nil {
		base.CourseID = *p.CourseID
	}
	if p.Grade.Set {
		base.Grade = p.Grade.Value
	}
	return base
}

// OptionalGrade distinguishes an absent grade from an explicit null.
type OptionalGrade struct {
	Set   bool
	Value *float64
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *OptionalGrade) UnmarshalJSON(data []byte) error {
	g.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		g.Value = nil
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	g.Value = &v
	return nil
}
