package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/pkg/config"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/textdiff"
)

// DefaultSimilarityThreshold is the minimum ratio for a history record to count as an ancestor.
const DefaultSimilarityThreshold = 0.4

type lineageStore interface {
	GetByID(ctx context.Context, id string) (*models.Proposal, error)
	List(ctx context.Context, filter models.ProposalFilter) ([]models.Proposal, error)
}

// LineageService links proposals to the archived record they revise.
type LineageService struct {
	repo      lineageStore
	strategy  string
	threshold float64
	logger    *zap.Logger
}

// NewLineageService constructs the service. Unknown strategies fall back to similarity.
func NewLineageService(repo lineageStore, cfg config.ReviewConfig, logger *zap.Logger) *LineageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	strategy := cfg.LineageStrategy
	if strategy != config.LineagePointer {
		strategy = config.LineageSimilarity
	}
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &LineageService{repo: repo, strategy: strategy, threshold: threshold, logger: logger}
}

// GetLineage returns the ancestor of the proposal, or a response with a nil ancestor when
// none qualifies.
func (s *LineageService) GetLineage(ctx context.Context, id string) (*dto.LineageResponse, error) {
	proposal, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}

	var (
		ancestor *models.Proposal
		score    float64
	)
	switch s.strategy {
	case config.LineagePointer:
		ancestor, score, err = s.byPointer(ctx, proposal)
	default:
		ancestor, score, err = s.bySimilarity(ctx, proposal)
	}
	if err != nil {
		return nil, err
	}

	response := &dto.LineageResponse{ProposalID: proposal.ID, Strategy: s.strategy}
	if ancestor == nil {
		return response, nil
	}
	response.Ancestor = ancestor
	response.Score = &score
	response.Diff = textdiff.Diff(ancestor.Content, proposal.Content)
	return response, nil
}

// bySimilarity scans archived records of the same subject group and skill, keeping the
// best match at or above the threshold. Rubric levels only match history of the same
// level written for the same objective or one of the objectives it was forked from.
func (s *LineageService) bySimilarity(ctx context.Context, proposal *models.Proposal) (*models.Proposal, float64, error) {
	var objectives map[string]struct{}
	if proposal.Kind == models.ProposalKindRubricLevel {
		chain, err := s.objectiveChain(ctx, proposal)
		if err != nil {
			return nil, 0, err
		}
		objectives = chain
	}

	candidates, err := s.repo.List(ctx, models.ProposalFilter{
		SubjectGroup: proposal.SubjectGroup(),
		SkillCode:    proposal.SkillCode,
		Kind:         proposal.Kind,
		OnlyArchived: true,
	})
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history records")
	}

	var (
		best      *models.Proposal
		bestScore float64
	)
	for i := range candidates {
		candidate := &candidates[i]
		if candidate.ID == proposal.ID || !sameLevel(candidate, proposal) {
			continue
		}
		if objectives != nil && !underObjective(candidate, objectives) {
			continue
		}
		score := textdiff.Similarity(candidate.Content, proposal.Content)
		if score < s.threshold {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && archivedAfter(candidate, best)) {
			best, bestScore = candidate, score
		}
	}
	if best != nil {
		s.logger.Debug("lineage matched", zap.String("proposal_id", proposal.ID), zap.String("ancestor_id", best.ID), zap.Float64("score", bestScore))
	}
	return best, bestScore, nil
}

// maxObjectiveChain bounds the walk over forked_from_id links.
const maxObjectiveChain = 64

// objectiveChain returns the parent objective of a rubric level plus every objective it
// was forked from.
func (s *LineageService) objectiveChain(ctx context.Context, level *models.Proposal) (map[string]struct{}, error) {
	chain := make(map[string]struct{})
	if level.ObjectiveID == nil || *level.ObjectiveID == "" {
		return chain, nil
	}
	next := *level.ObjectiveID
	for i := 0; i < maxObjectiveChain; i++ {
		if _, seen := chain[next]; seen {
			break
		}
		chain[next] = struct{}{}
		objective, err := s.repo.GetByID(ctx, next)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent objective")
		}
		if objective.ForkedFromID == nil || *objective.ForkedFromID == "" {
			break
		}
		next = *objective.ForkedFromID
	}
	return chain, nil
}

func (s *LineageService) byPointer(ctx context.Context, proposal *models.Proposal) (*models.Proposal, float64, error) {
	if proposal.ForkedFromID == nil {
		return nil, 0, nil
	}
	ancestor, err := s.repo.GetByID(ctx, *proposal.ForkedFromID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ancestor")
	}
	return ancestor, textdiff.Similarity(ancestor.Content, proposal.Content), nil
}

func sameLevel(a, b *models.Proposal) bool {
	if a.Kind != models.ProposalKindRubricLevel {
		return true
	}
	return a.Level != nil && b.Level != nil && *a.Level == *b.Level
}

func underObjective(candidate *models.Proposal, objectives map[string]struct{}) bool {
	if candidate.ObjectiveID == nil {
		return false
	}
	_, ok := objectives[*candidate.ObjectiveID]
	return ok
}

func archivedAfter(a, b *models.Proposal) bool {
	if a.ArchivedAt == nil || b.ArchivedAt == nil {
		return false
	}
	return a.ArchivedAt.After(*b.ArchivedAt)
}
