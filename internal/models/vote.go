package models

import "time"

// Vote is one user's endorsement of an issue's urgency. A unique
// index on (issue_id, user_id) keeps votes one-per-user.
type Vote struct {
	ID        string    `db:"id" json:"id"`
	IssueID   string    `db:"issue_id" json:"issue_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// VoteAction names the effect of a toggle call.
type VoteAction string

const (
	VoteActionVoted   VoteAction = "voted"
	VoteActionUnvoted VoteAction = "unvoted"
)

// VoteResult reports the outcome of a vote toggle.
type VoteResult struct {
	Action       VoteAction `json:"action"`
	VoteCount    int        `json:"vote_count"`
	UrgencyScore int        `json:"urgency_score"`
	Escalated    bool       `json:"escalated"`
}
