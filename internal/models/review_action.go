package models

import "time"

// ReviewActionKind enumerates what a reviewer did to a proposal.
type ReviewActionKind string

const (
	ReviewActionApproved ReviewActionKind = "approved"
	ReviewActionRejected ReviewActionKind = "rejected"
	ReviewActionEdited   ReviewActionKind = "edited"
)

// Valid reports whether the action kind is supported.
func (k ReviewActionKind) Valid() bool {
	switch k {
	case ReviewActionApproved, ReviewActionRejected, ReviewActionEdited:
		return true
	default:
		return false
	}
}

// ReviewAction is an append-only audit record of a review decision. PreviousContent is
// only set for edits.
type ReviewAction struct {
	ID              string           `db:"id" json:"id"`
	ProposalID      string           `db:"proposal_id" json:"proposal_id"`
	ReviewerID      string           `db:"reviewer_id" json:"reviewer_id"`
	Action          ReviewActionKind `db:"action" json:"action"`
	PreviousContent *string          `db:"previous_content" json:"previous_content,omitempty"`
	Note            *string          `db:"note" json:"note,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
}
