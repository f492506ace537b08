package dto

// StudentRequest is the full student payload accepted on create and replace.
// Identity and registration time are assigned by the server.
type StudentRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=254"`
}

// StudentPatch carries a partial student update.
type StudentPatch struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// Apply overlays the patch on a full request.
func (p StudentPatch) Apply(base StudentRequest) StudentRequest {
	if p.Name != nil {
		base.Name = *p.Name
	}
	if p.Email != nil {
		base.Email = *p.Email
	}
	return base
}
