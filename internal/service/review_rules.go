package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/internal/repository"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/textdiff"
)

// ValidApprovals returns the distinct reviewers whose approval was cast at or after the
// most recent edit, in the order they voted. Approvals older than the last edit endorsed
// content that no longer exists.
func ValidApprovals(log []models.ReviewAction) []string {
	var cutoff time.Time
	for _, action := range log {
		if action.Action == models.ReviewActionEdited && action.CreatedAt.After(cutoff) {
			cutoff = action.CreatedAt
		}
	}
	seen := make(map[string]struct{}, len(log))
	approvers := make([]string, 0, len(log))
	for _, action := range log {
		if action.Action != models.ReviewActionApproved || action.CreatedAt.Before(cutoff) {
			continue
		}
		if _, ok := seen[action.ReviewerID]; ok {
			continue
		}
		seen[action.ReviewerID] = struct{}{}
		approvers = append(approvers, action.ReviewerID)
	}
	return approvers
}

func containsReviewer(ids []string, reviewerID string) bool {
	for _, id := range ids {
		if id == reviewerID {
			return true
		}
	}
	return false
}

func quorumReached(approvals, quorum int) bool {
	return quorum <= 1 || approvals >= quorum
}

func archivedError(current *models.Proposal) error {
	return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("proposal %s is archived history and cannot be reviewed", current.ID))
}

// decideSubmit moves a draft into review with the creator's implicit endorsement.
func decideSubmit(current *models.Proposal, quorum int, now time.Time) (*repository.TransitionPlan, string, error) {
	if current.Archived() {
		return nil, "", archivedError(current)
	}
	if current.Status != models.ProposalStatusDraft {
		return nil, "", appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("only drafts can be submitted, proposal is %s", current.Status))
	}
	current.Status = models.ProposalStatusPending
	message := fmt.Sprintf("submitted, awaiting peer approval (1/%d votes)", quorum)
	if quorumReached(1, quorum) {
		current.Status = models.ProposalStatusApproved
		message = "submitted and approved, the creator is the only reviewer"
	}
	current.UpdatedAt = now
	return &repository.TransitionPlan{Actions: []models.ReviewAction{{
		ProposalID: current.ID,
		ReviewerID: current.CreatedBy,
		Action:     models.ReviewActionApproved,
		CreatedAt:  now,
	}}}, message, nil
}

// decideApprove applies the quorum rule over the approvals cast since the last edit plus
// the reviewer's own vote.
func decideApprove(current *models.Proposal, log []models.ReviewAction, reviewerID string, note *string, quorum int, now time.Time) (*repository.TransitionPlan, string, error) {
	if current.Archived() {
		return nil, "", archivedError(current)
	}
	if current.Status != models.ProposalStatusPending {
		return nil, "", appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("only pending proposals can be approved, proposal is %s", current.Status))
	}
	valid := ValidApprovals(log)
	if !containsReviewer(valid, reviewerID) {
		valid = append(valid, reviewerID)
	}
	message := fmt.Sprintf("approval recorded (%d/%d votes)", len(valid), quorum)
	if quorumReached(len(valid), quorum) {
		current.Status = models.ProposalStatusApproved
		message = fmt.Sprintf("approved and published (quorum %d)", quorum)
	}
	current.UpdatedAt = now
	return &repository.TransitionPlan{Actions: []models.ReviewAction{{
		ProposalID: current.ID,
		ReviewerID: reviewerID,
		Action:     models.ReviewActionApproved,
		Note:       note,
		CreatedAt:  now,
	}}}, message, nil
}

// decideReject applies the single veto rule: one rejection ends the review regardless of
// quorum size.
func decideReject(current *models.Proposal, reviewerID string, note *string, now time.Time) (*repository.TransitionPlan, string, error) {
	if current.Archived() {
		return nil, "", archivedError(current)
	}
	if current.Status == models.ProposalStatusRejected {
		return nil, "", appErrors.Clone(appErrors.ErrInvalidState, "proposal is already rejected")
	}
	current.Status = models.ProposalStatusRejected
	current.UpdatedAt = now
	return &repository.TransitionPlan{Actions: []models.ReviewAction{{
		ProposalID: current.ID,
		ReviewerID: reviewerID,
		Action:     models.ReviewActionRejected,
		Note:       note,
		CreatedAt:  now,
	}}}, "rejected", nil
}

// decideEdit replaces content under review. Pending proposals, and approved ones whose
// normalised content is unchanged, are edited in place and return to pending. Approved
// content that really changes is archived and continued by a pending fork carrying only
// the editor's approval.
func decideEdit(current *models.Proposal, reviewerID, content string, note *string, now time.Time) (*repository.TransitionPlan, string, error) {
	if current.Archived() {
		return nil, "", archivedError(current)
	}
	switch current.Status {
	case models.ProposalStatusPending:
	case models.ProposalStatusApproved:
		if !textdiff.Equal(current.Content, content) {
			return forkApproved(current, reviewerID, content, note, now), "edited approved content, the new version awaits approval", nil
		}
	case models.ProposalStatusDraft, models.ProposalStatusRejected:
		return nil, "", appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("%s proposals cannot be edited through review", current.Status))
	default:
		return nil, "", appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("unknown status %q", current.Status))
	}

	previous := current.Content
	current.Content = content
	current.Status = models.ProposalStatusPending
	current.UpdatedAt = now
	return &repository.TransitionPlan{Actions: []models.ReviewAction{{
		ProposalID:      current.ID,
		ReviewerID:      reviewerID,
		Action:          models.ReviewActionEdited,
		PreviousContent: &previous,
		Note:            note,
		CreatedAt:       now,
	}}}, "edited, awaiting re-approval", nil
}

func forkApproved(current *models.Proposal, reviewerID, content string, note *string, now time.Time) *repository.TransitionPlan {
	ancestorID := current.ID
	fork := &models.Proposal{
		ID:           uuid.NewString(),
		Kind:         current.Kind,
		DisciplineID: current.DisciplineID,
		GradeLevel:   current.GradeLevel,
		Period:       current.Period,
		SkillCode:    current.SkillCode,
		OrderIndex:   current.OrderIndex,
		ObjectiveID:  current.ObjectiveID,
		Level:        current.Level,
		Content:      content,
		Explanation:  current.Explanation,
		Status:       models.ProposalStatusPending,
		CreatedBy:    reviewerID,
		ForkedFromID: &ancestorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	archivedAt := now
	current.ArchivedAt = &archivedAt
	current.SupersededByID = &fork.ID
	current.UpdatedAt = now

	previous := current.Content
	return &repository.TransitionPlan{
		Fork: fork,
		Actions: []models.ReviewAction{
			{ProposalID: fork.ID, ReviewerID: reviewerID, Action: models.ReviewActionEdited, PreviousContent: &previous, Note: note, CreatedAt: now},
			// One microsecond later keeps the log ordered after the edit at database precision.
			{ProposalID: fork.ID, ReviewerID: reviewerID, Action: models.ReviewActionApproved, CreatedAt: now.Add(time.Microsecond)},
		},
		ReparentRubrics: current.Kind == models.ProposalKindObjective,
	}
}
