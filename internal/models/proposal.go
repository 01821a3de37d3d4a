package models

import "time"

// ProposalKind distinguishes the reviewable artifacts.
type ProposalKind string

const (
	ProposalKindObjective   ProposalKind = "OBJECTIVE"
	ProposalKindRubricLevel ProposalKind = "RUBRIC_LEVEL"
)

// Valid reports whether the kind is supported.
func (k ProposalKind) Valid() bool {
	switch k {
	case ProposalKindObjective, ProposalKindRubricLevel:
		return true
	default:
		return false
	}
}

// ProposalStatus captures the review lifecycle of a proposal.
type ProposalStatus string

const (
	ProposalStatusDraft    ProposalStatus = "draft"
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusApproved ProposalStatus = "approved"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// Valid reports whether the status is one of the four lifecycle states.
func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalStatusDraft, ProposalStatusPending, ProposalStatusApproved, ProposalStatusRejected:
		return true
	default:
		return false
	}
}

// Rubric levels range from beginner (1) to advanced (4).
const (
	MinRubricLevel = 1
	MaxRubricLevel = 4
)

// Proposal is a reviewable learning objective or rubric level description.
// Archived proposals keep their last status and content verbatim; ArchivedAt marks them
// as history superseded by a fork.
type Proposal struct {
	ID             string         `db:"id" json:"id"`
	Kind           ProposalKind   `db:"kind" json:"kind"`
	DisciplineID   string         `db:"discipline_id" json:"discipline_id"`
	GradeLevel     string         `db:"grade_level" json:"grade_level"`
	Period         int            `db:"period" json:"period"`
	SkillCode      string         `db:"skill_code" json:"skill_code"`
	OrderIndex     int            `db:"order_index" json:"order_index"`
	ObjectiveID    *string        `db:"objective_id" json:"objective_id,omitempty"`
	Level          *int           `db:"level" json:"level,omitempty"`
	Content        string         `db:"content" json:"content"`
	Explanation    *string        `db:"explanation" json:"explanation,omitempty"`
	Status         ProposalStatus `db:"status" json:"status"`
	CreatedBy      string         `db:"created_by" json:"created_by"`
	ForkedFromID   *string        `db:"forked_from_id" json:"forked_from_id,omitempty"`
	SupersededByID *string        `db:"superseded_by_id" json:"superseded_by_id,omitempty"`
	ArchivedAt     *time.Time     `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// SubjectGroup returns the quorum key the proposal belongs to.
func (p *Proposal) SubjectGroup() SubjectGroupKey {
	return SubjectGroupKey{DisciplineID: p.DisciplineID, GradeLevel: p.GradeLevel, Period: p.Period}
}

// Archived reports whether the proposal was superseded by an edit fork.
func (p *Proposal) Archived() bool {
	return p.ArchivedAt != nil
}

// ProposalFilter constrains listing queries.
type ProposalFilter struct {
	SubjectGroup    SubjectGroupKey
	SkillCode       string
	Kind            ProposalKind
	ObjectiveID     string
	Statuses        []ProposalStatus
	IncludeArchived bool
	OnlyArchived    bool
}
