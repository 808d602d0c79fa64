package models

import "time"

// IssueCategory identifies the kind of facility a report concerns.
type IssueCategory string

const (
	CategoryWashroom  IssueCategory = "WASHROOM"
	CategoryClassroom IssueCategory = "CLASSROOM"
	CategoryHostel    IssueCategory = "HOSTEL"
	CategoryCanteen   IssueCategory = "CANTEEN"
	CategoryCorridor  IssueCategory = "CORRIDOR"
	CategoryLab       IssueCategory = "LAB"
	CategoryOutdoor   IssueCategory = "OUTDOOR"
	CategoryOther     IssueCategory = "OTHER"
)

// ValidCategory reports whether the category belongs to the closed set.
func ValidCategory(c IssueCategory) bool {
	switch c {
	case CategoryWashroom, CategoryClassroom, CategoryHostel, CategoryCanteen,
		CategoryCorridor, CategoryLab, CategoryOutdoor, CategoryOther:
		return true
	}
	return false
}

// IssueStatus is the lifecycle state of a reported issue.
type IssueStatus string

const (
	StatusPending    IssueStatus = "PENDING"
	StatusAssigned   IssueStatus = "ASSIGNED"
	StatusInProgress IssueStatus = "IN_PROGRESS"
	StatusResolved   IssueStatus = "RESOLVED"
	StatusRejected   IssueStatus = "REJECTED"
)

// ValidStatus reports whether the status is one of the five states.
func ValidStatus(s IssueStatus) bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s IssueStatus) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// IssuePriority ranks how fast a report needs attention.
type IssuePriority string

const (
	PriorityLow      IssuePriority = "LOW"
	PriorityMedium   IssuePriority = "MEDIUM"
	PriorityHigh     IssuePriority = "HIGH"
	PriorityCritical IssuePriority = "CRITICAL"
)

// ValidPriority reports whether the priority is a known level.
func ValidPriority(p IssuePriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Issue is a reported facility problem tracked through its lifecycle.
// ReporterID is nil for anonymous reports. DueBy is frozen at
// creation; UrgencyScore is recomputed on creation, vote toggles, and
// priority edits.
type Issue struct {
	ID              string        `db:"id" json:"id"`
	Title           *string       `db:"title" json:"title,omitempty"`
	Description     string        `db:"description" json:"description"`
	Category        IssueCategory `db:"category" json:"category"`
	LocationID      string        `db:"location_id" json:"location_id"`
	Status          IssueStatus   `db:"status" json:"status"`
	Priority        IssuePriority `db:"priority" json:"priority"`
	UrgencyScore    int           `db:"urgency_score" json:"urgency_score"`
	EscalationLevel int           `db:"escalation_level" json:"escalation_level"`
	DueBy           time.Time     `db:"due_by" json:"due_by"`
	IsAnonymous     bool          `db:"is_anonymous" json:"is_anonymous"`
	ReporterID      *string       `db:"reporter_id" json:"reporter_id,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
	ResolvedAt      *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
}

// PhotoKind distinguishes report evidence from completion evidence.
type PhotoKind string

const (
	PhotoBefore PhotoKind = "BEFORE"
	PhotoAfter  PhotoKind = "AFTER"
)

// Photo is evidence attached to an issue, stored as an external URL.
type Photo struct {
	ID        string    `db:"id" json:"id"`
	IssueID   string    `db:"issue_id" json:"issue_id"`
	URL       string    `db:"url" json:"url"`
	Kind      PhotoKind `db:"kind" json:"kind"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IssueDetail augments an issue with its read-side context.
type IssueDetail struct {
	Issue
	Photos         []Photo     `json:"photos"`
	VoteCount      int         `json:"vote_count"`
	CallerHasVoted bool        `json:"caller_has_voted"`
	LocationName   string      `json:"location_name,omitempty"`
	OpenAssignment *Assignment `json:"open_assignment,omitempty"`
}

// IssueFilter captures list criteria for browsing issues.
type IssueFilter struct {
	Status     IssueStatus
	Category   IssueCategory
	Priority   IssuePriority
	LocationID string
	ReporterID string
	SortBy     string
	Page       int
	PageSize   int
}

// Location is a place on campus an issue refers to.
type Location struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Building  string    `db:"building" json:"building"`
	Floor     int       `db:"floor" json:"floor"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
