package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
)

type reviewerDirectory interface {
	ListReviewerIDs(ctx context.Context, disciplineID, gradeLevel string) ([]string, error)
	ListSubjectGroupsByTeacher(ctx context.Context, teacherID string) ([]models.SubjectGroupKey, error)
}

// QuorumService derives reviewer groups from teacher assignments. It holds no state, so
// every call reflects the current assignments.
type QuorumService struct {
	repo   reviewerDirectory
	logger *zap.Logger
}

// NewQuorumService constructs the resolver.
func NewQuorumService(repo reviewerDirectory, logger *zap.Logger) *QuorumService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuorumService{repo: repo, logger: logger}
}

// Group returns the reviewers entitled to vote for the key and the quorum they form.
// Period does not narrow the group. An empty group still has a quorum of 1.
func (s *QuorumService) Group(ctx context.Context, key models.SubjectGroupKey) (*models.QuorumGroup, error) {
	if key.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "discipline and grade level are required")
	}
	ids, err := s.repo.ListReviewerIDs(ctx, strings.TrimSpace(key.DisciplineID), strings.TrimSpace(key.GradeLevel))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve reviewers")
	}
	if ids == nil {
		ids = []string{}
	}
	quorum := len(ids)
	if quorum < 1 {
		quorum = 1
	}
	return &models.QuorumGroup{SubjectGroup: key, ReviewerIDs: ids, Quorum: quorum}, nil
}

// ResolveQuorum returns the number of approvals needed for the key, at least 1.
func (s *QuorumService) ResolveQuorum(ctx context.Context, key models.SubjectGroupKey) (int, error) {
	group, err := s.Group(ctx, key)
	if err != nil {
		return 0, err
	}
	return group.Quorum, nil
}

// SubjectGroupsFor lists the groups the teacher reviews for.
func (s *QuorumService) SubjectGroupsFor(ctx context.Context, teacherID string) ([]models.SubjectGroupKey, error) {
	groups, err := s.repo.ListSubjectGroupsByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject groups")
	}
	return groups, nil
}
