package dto

import (
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/pkg/textdiff"
)

// CreateObjectiveRequest creates a draft learning objective.
type CreateObjectiveRequest struct {
	DisciplineID string  `json:"disciplineId" validate:"required"`
	GradeLevel   string  `json:"gradeLevel" validate:"required"`
	Period       int     `json:"period" validate:"min=0"`
	SkillCode    string  `json:"skillCode" validate:"required"`
	OrderIndex   int     `json:"orderIndex" validate:"min=0"`
	Content      string  `json:"content" validate:"required"`
	Explanation  *string `json:"explanation"`
}

// CreateRubricLevelRequest creates a draft rubric level under an objective.
type CreateRubricLevelRequest struct {
	Level   int    `json:"level" validate:"required,min=1,max=4"`
	Content string `json:"content" validate:"required"`
}

// UpdateDraftRequest replaces the content of a draft.
type UpdateDraftRequest struct {
	Content string `json:"content" validate:"required"`
}

// ReviewProposalRequest records a review action. NewContent is required for edits.
type ReviewProposalRequest struct {
	Action     models.ReviewActionKind `json:"action" validate:"required,oneof=approved rejected edited"`
	NewContent *string                 `json:"newContent"`
	Note       *string                 `json:"note"`
}

// ProposalQuery mirrors supported listing filters.
type ProposalQuery struct {
	DisciplineID    string `form:"disciplineId"`
	GradeLevel      string `form:"gradeLevel"`
	Period          int    `form:"period"`
	SkillCode       string `form:"skillCode"`
	Kind            string `form:"kind"`
	ObjectiveID     string `form:"objectiveId"`
	Status          string `form:"status"`
	IncludeArchived bool   `form:"includeArchived"`
}

// QuorumQuery identifies the subject group whose quorum is resolved.
type QuorumQuery struct {
	DisciplineID string `form:"disciplineId"`
	GradeLevel   string `form:"gradeLevel"`
}

// ProposalView is a proposal with its review log and approval progress.
type ProposalView struct {
	models.Proposal
	History        []models.ReviewAction `json:"history"`
	ValidApprovals []string              `json:"validApprovals"`
	Quorum         int                   `json:"quorum"`
}

// ReviewResult is returned by every review transition.
type ReviewResult struct {
	Status   models.ProposalStatus `json:"status"`
	Message  string                `json:"message"`
	Proposal *ProposalView         `json:"proposal"`
	Fork     *ProposalView         `json:"fork,omitempty"`
}

// LineageResponse links a proposal to the archived record it most plausibly revises.
type LineageResponse struct {
	ProposalID string             `json:"proposalId"`
	Strategy   string             `json:"strategy"`
	Ancestor   *models.Proposal   `json:"ancestor"`
	Score      *float64           `json:"score,omitempty"`
	Diff       []textdiff.Segment `json:"diff,omitempty"`
}

// GenerateObjectivesRequest asks the draft generator for objectives of a skill.
type GenerateObjectivesRequest struct {
	DisciplineID     string `json:"disciplineId" validate:"required"`
	GradeLevel       string `json:"gradeLevel" validate:"required"`
	Period           int    `json:"period" validate:"min=0"`
	SkillCode        string `json:"skillCode" validate:"required"`
	SkillDescription string `json:"skillDescription"`
	Quantity         int    `json:"quantity" validate:"omitempty,min=1,max=10"`
}

// GenerateObjectivesResponse lists the stored drafts.
type GenerateObjectivesResponse struct {
	Explanation string            `json:"explanation"`
	Model       string            `json:"model"`
	Drafts      []models.Proposal `json:"drafts"`
}

// GenerateRubricResponse lists the submitted rubric levels.
type GenerateRubricResponse struct {
	ObjectiveID string         `json:"objectiveId"`
	Model       string         `json:"model"`
	Levels      []ProposalView `json:"levels"`
}

// ExportQuery selects the approved curriculum of a subject group to export.
type ExportQuery struct {
	DisciplineID string `form:"disciplineId"`
	GradeLevel   string `form:"gradeLevel"`
	Period       int    `form:"period"`
	Format       string `form:"format"`
}
