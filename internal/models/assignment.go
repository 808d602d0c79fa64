package models

import "time"

// Assignment is a work order linking one issue to one staff member.
// StartedAt and CompletedAt advance monotonically; completion fields
// are written together when the work order closes.
type Assignment struct {
	ID                 string     `db:"id" json:"id"`
	IssueID            string     `db:"issue_id" json:"issue_id"`
	StaffID            string     `db:"staff_id" json:"staff_id"`
	AssignedBy         string     `db:"assigned_by" json:"assigned_by"`
	AssignedAt         time.Time  `db:"assigned_at" json:"assigned_at"`
	StartedAt          *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CompletionNote     *string    `db:"completion_note" json:"completion_note,omitempty"`
	CompletionPhotoURL *string    `db:"completion_photo_url" json:"completion_photo_url,omitempty"`
}

// Open reports whether the work order is still incomplete.
func (a *Assignment) Open() bool {
	return a != nil && a.CompletedAt == nil
}

// AssignmentDetail adds issue context to a staff worklist row.
type AssignmentDetail struct {
	Assignment
	IssueDescription  string        `db:"issue_description" json:"issue_description"`
	IssueCategory     IssueCategory `db:"issue_category" json:"issue_category"`
	IssueStatus       IssueStatus   `db:"issue_status" json:"issue_status"`
	IssuePriority     IssuePriority `db:"issue_priority" json:"issue_priority"`
	IssueUrgencyScore int           `db:"issue_urgency_score" json:"issue_urgency_score"`
	IssueDueBy        time.Time     `db:"issue_due_by" json:"issue_due_by"`
	IssueLocationID   string        `db:"issue_location_id" json:"issue_location_id"`
}
