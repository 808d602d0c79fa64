package dto

// CreateAssignmentRequest hands an issue to a staff member.
type CreateAssignmentRequest struct {
	IssueID string `json:"issue_id" validate:"required"`
	StaffID string `json:"staff_id" validate:"required"`
}

// CompleteAssignmentRequest closes a work order. The completion
// photo becomes the issue's AFTER evidence.
type CompleteAssignmentRequest struct {
	CompletionNote     string `json:"completion_note" validate:"required,min=10,max=1000"`
	CompletionPhotoURL string `json:"completion_photo_url" validate:"required,url"`
}
