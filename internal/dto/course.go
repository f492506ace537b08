package dto

import "github.com/noah-isme/academia-api/internal/models"

// CourseRequest is the full course payload. Active defaults to false when omitted.
type CourseRequest struct {
	Title       string       `json:"title" validate:"required,max=100"`
	Description string       `json:"description"`
	StartDate   *models.Date `json:"start_date" validate:"required"`
	Active      *bool        `json:"active"`
}

// CoursePatch carries a partial course update.
type CoursePatch struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	StartDate   *models.Date `json:"start_date"`
	Active      *bool        `json:"active"`
}

// Apply overlays the patch on a full request.
func (p CoursePatch) Apply(base CourseRequest) CourseRequest {
	if p.Title != nil {
		base.Title = *p.Title
	}
	if p.Description != nil {
		base.Description = *p.Description
	}
	if p.StartDate != nil {
		base.StartDate = p.StartDate
	}
	if p.Active != nil {
		base.Active = p.Active
	}
	return base
}
