package models

import "time"

// StatusHistoryEntry is one append-only audit record of a status
// transition. FromStatus is nil for the creation entry. Entries are
// never mutated.
type StatusHistoryEntry struct {
	ID         string       `db:"id" json:"id"`
	IssueID    string       `db:"issue_id" json:"issue_id"`
	FromStatus *IssueStatus `db:"from_status" json:"from_status,omitempty"`
	ToStatus   IssueStatus  `db:"to_status" json:"to_status"`
	ChangedBy  string       `db:"changed_by" json:"changed_by"`
	Note       *string      `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}
