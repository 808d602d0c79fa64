package dto

import "github.com/campuscare/campuscare-api/internal/models"

// CreateIssueRequest is the payload for reporting a new issue.
// At least one BEFORE photo URL is required as evidence.
type CreateIssueRequest struct {
	Title       string               `json:"title" validate:"omitempty,max=200"`
	Description string               `json:"description" validate:"required,min=10,max=2000"`
	Category    models.IssueCategory `json:"category" validate:"required"`
	LocationID  string               `json:"location_id" validate:"required"`
	IsAnonymous bool                 `json:"is_anonymous"`
	PhotoURLs   []string             `json:"photo_urls" validate:"required,min=1,max=5,dive,url"`
}

// UpdateIssueRequest carries a partial issue edit. Nil fields are
// left untouched.
type UpdateIssueRequest struct {
	Title       *string               `json:"title,omitempty" validate:"omitempty,max=200"`
	Description *string               `json:"description,omitempty" validate:"omitempty,min=10,max=2000"`
	Category    *models.IssueCategory `json:"category,omitempty"`
	Status      *models.IssueStatus   `json:"status,omitempty"`
	Priority    *models.IssuePriority `json:"priority,omitempty"`
	Note        string                `json:"note,omitempty" validate:"omitempty,max=500"`
}

// IssueQuery captures list filters from the query string.
type IssueQuery struct {
	Status   string `form:"status"`
	Category string `form:"category"`
	Priority string `form:"priority"`
	Location string `form:"location"`
	Sort     string `form:"sort"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
