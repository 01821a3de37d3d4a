package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/internal/repository"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/events"
	"github.com/noah-isme/sma-curriculum-api/pkg/generator"
)

const defaultObjectiveQuantity = 3

// DraftGenerator produces draft content. Implementations try their own backends and return
// an error only when all of them failed.
type DraftGenerator interface {
	GenerateObjectives(ctx context.Context, prompt generator.ObjectivePrompt) (*generator.ObjectiveDraft, error)
	GenerateRubric(ctx context.Context, prompt generator.RubricPrompt) (*generator.RubricDraft, error)
}

// GenerationService stores generator output as ordinary proposals.
type GenerationService struct {
	repo      proposalStore
	quorum    quorumResolver
	generator DraftGenerator
	audit     auditLogger
	cache     proposalCache
	events    events.Publisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// GenerationServiceConfig groups optional collaborators.
type GenerationServiceConfig struct {
	Cache   proposalCache
	Events  events.Publisher
	Metrics *MetricsService
	Now     func() time.Time
}

// NewGenerationService constructs the service. A nil generator makes every run fail with
// an upstream generation error.
func NewGenerationService(repo proposalStore, quorum quorumResolver, gen DraftGenerator, audit auditLogger, validate *validator.Validate, logger *zap.Logger, cfg GenerationServiceConfig) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &GenerationService{
		repo:      repo,
		quorum:    quorum,
		generator: gen,
		audit:     audit,
		cache:     cfg.Cache,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		validator: validate,
		logger:    logger,
		now:       cfg.Now,
	}
}

// GenerateObjectives replaces the skill's drafts with freshly generated ones. Skills whose
// objectives already entered review cannot be regenerated.
func (s *GenerationService) GenerateObjectives(ctx context.Context, req dto.GenerateObjectivesRequest, actor *models.JWTClaims) (*dto.GenerateObjectivesResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	key := models.SubjectGroupKey{DisciplineID: strings.TrimSpace(req.DisciplineID), GradeLevel: strings.TrimSpace(req.GradeLevel), Period: req.Period}
	skill := strings.TrimSpace(req.SkillCode)
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = defaultObjectiveQuantity
	}

	live, err := s.repo.List(ctx, models.ProposalFilter{SubjectGroup: key, SkillCode: skill, Kind: models.ProposalKindObjective})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load objectives")
	}
	for _, objective := range live {
		if objective.Status != models.ProposalStatusDraft {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("objectives for skill %s already entered review", skill))
		}
	}

	draft, err := s.runObjectives(ctx, generator.ObjectivePrompt{
		SkillCode:        skill,
		SkillDescription: strings.TrimSpace(req.SkillDescription),
		DisciplineID:     key.DisciplineID,
		GradeLevel:       key.GradeLevel,
		Period:           key.Period,
		Quantity:         quantity,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock()
	explanation := optionalString(draft.Explanation)
	proposals := make([]models.Proposal, 0, len(draft.Objectives))
	for i, content := range draft.Objectives {
		proposals = append(proposals, models.Proposal{
			ID:           uuid.NewString(),
			Kind:         models.ProposalKindObjective,
			DisciplineID: key.DisciplineID,
			GradeLevel:   key.GradeLevel,
			Period:       key.Period,
			SkillCode:    skill,
			OrderIndex:   i + 1,
			Content:      content,
			Explanation:  explanation,
			Status:       models.ProposalStatusDraft,
			CreatedBy:    actor.UserID,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	err = s.repo.ReplaceDrafts(ctx, repository.ReplaceDraftsParams{
		Scope:          repository.DraftScope{SubjectGroup: key, SkillCode: skill, Kind: models.ProposalKindObjective},
		BlockStatuses:  []models.ProposalStatus{models.ProposalStatusPending, models.ProposalStatusApproved, models.ProposalStatusRejected},
		DeleteStatuses: []models.ProposalStatus{models.ProposalStatusDraft},
		Proposals:      proposals,
		Now:            now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrScopeInReview) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("objectives for skill %s already entered review", skill))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store generated objectives")
	}

	s.logger.Info("objective drafts generated", zap.String("skill_code", skill), zap.String("subject_group", key.String()), zap.Int("count", len(proposals)), zap.String("model", draft.Model))
	s.afterGeneration(ctx, actor, key, proposals)
	return &dto.GenerateObjectivesResponse{Explanation: draft.Explanation, Model: draft.Model, Drafts: proposals}, nil
}

// GenerateRubric creates the four levels of an objective's rubric and submits them
// immediately with the requester's endorsement. Objectives whose rubric is under review or
// approved cannot be regenerated; earlier drafts are replaced and rejected levels archived.
func (s *GenerationService) GenerateRubric(ctx context.Context, objectiveID string, actor *models.JWTClaims) (*dto.GenerateRubricResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	objective, err := s.repo.GetByID(ctx, objectiveID)
	if err != nil {
		return nil, mapStoreError(err, "failed to load objective")
	}
	if objective.Kind != models.ProposalKindObjective {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rubrics are generated for objectives")
	}
	if objective.Archived() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "objective is archived history")
	}

	levels, err := s.repo.List(ctx, models.ProposalFilter{Kind: models.ProposalKindRubricLevel, ObjectiveID: objective.ID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rubric levels")
	}
	for _, level := range levels {
		if level.Status == models.ProposalStatusPending || level.Status == models.ProposalStatusApproved {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "the rubric of this objective is already under review")
		}
	}

	quorum, err := s.quorum.ResolveQuorum(ctx, objective.SubjectGroup())
	if err != nil {
		return nil, err
	}

	draft, err := s.runRubric(ctx, generator.RubricPrompt{SkillCode: objective.SkillCode, Objective: objective.Content})
	if err != nil {
		return nil, err
	}

	now := s.clock()
	status := models.ProposalStatusPending
	if quorumReached(1, quorum) {
		status = models.ProposalStatusApproved
	}
	proposals := make([]models.Proposal, 0, models.MaxRubricLevel)
	actions := make([]models.ReviewAction, 0, models.MaxRubricLevel)
	for level := models.MinRubricLevel; level <= models.MaxRubricLevel; level++ {
		lvl := level
		id := uuid.NewString()
		proposals = append(proposals, models.Proposal{
			ID:           id,
			Kind:         models.ProposalKindRubricLevel,
			DisciplineID: objective.DisciplineID,
			GradeLevel:   objective.GradeLevel,
			Period:       objective.Period,
			SkillCode:    objective.SkillCode,
			OrderIndex:   objective.OrderIndex,
			ObjectiveID:  &objective.ID,
			Level:        &lvl,
			Content:      draft.Level(level),
			Status:       status,
			CreatedBy:    actor.UserID,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		actions = append(actions, models.ReviewAction{
			ID:         uuid.NewString(),
			ProposalID: id,
			ReviewerID: actor.UserID,
			Action:     models.ReviewActionApproved,
			CreatedAt:  now,
		})
	}

	err = s.repo.ReplaceDrafts(ctx, repository.ReplaceDraftsParams{
		Scope:           repository.DraftScope{Kind: models.ProposalKindRubricLevel, ObjectiveID: objective.ID},
		BlockStatuses:   []models.ProposalStatus{models.ProposalStatusPending, models.ProposalStatusApproved},
		DeleteStatuses:  []models.ProposalStatus{models.ProposalStatusDraft},
		ArchiveStatuses: []models.ProposalStatus{models.ProposalStatusRejected},
		Proposals:       proposals,
		Actions:         actions,
		Now:             now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateProposal) || errors.Is(err, repository.ErrScopeInReview) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "the rubric of this objective is already under review")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store generated rubric")
	}

	views := make([]dto.ProposalView, 0, len(proposals))
	for i := range proposals {
		views = append(views, *buildView(&proposals[i], []models.ReviewAction{actions[i]}, quorum))
	}
	s.logger.Info("rubric generated", zap.String("objective_id", objective.ID), zap.String("status", string(status)), zap.Int("quorum", quorum), zap.String("model", draft.Model))
	s.afterGeneration(ctx, actor, objective.SubjectGroup(), proposals)
	return &dto.GenerateRubricResponse{ObjectiveID: objective.ID, Model: draft.Model, Levels: views}, nil
}

func (s *GenerationService) runObjectives(ctx context.Context, prompt generator.ObjectivePrompt) (*generator.ObjectiveDraft, error) {
	if s.generator == nil {
		return nil, appErrors.Clone(appErrors.ErrUpstreamGeneration, "draft generator is not configured")
	}
	start := time.Now()
	draft, err := s.generator.GenerateObjectives(ctx, prompt)
	s.metrics.ObserveGeneration(models.ProposalKindObjective, err == nil, time.Since(start))
	if err != nil {
		s.logger.Warn("objective generation failed", zap.String("skill_code", prompt.SkillCode), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamGeneration.Code, appErrors.ErrUpstreamGeneration.Status, "all generator backends failed")
	}
	return draft, nil
}

func (s *GenerationService) runRubric(ctx context.Context, prompt generator.RubricPrompt) (*generator.RubricDraft, error) {
	if s.generator == nil {
		return nil, appErrors.Clone(appErrors.ErrUpstreamGeneration, "draft generator is not configured")
	}
	start := time.Now()
	draft, err := s.generator.GenerateRubric(ctx, prompt)
	s.metrics.ObserveGeneration(models.ProposalKindRubricLevel, err == nil, time.Since(start))
	if err != nil {
		s.logger.Warn("rubric generation failed", zap.String("skill_code", prompt.SkillCode), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamGeneration.Code, appErrors.ErrUpstreamGeneration.Status, "all generator backends failed")
	}
	return draft, nil
}

func (s *GenerationService) afterGeneration(ctx context.Context, actor *models.JWTClaims, key models.SubjectGroupKey, proposals []models.Proposal) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, SubjectGroupPattern(key)); err != nil {
			s.logger.Warn("failed to invalidate proposal cache", zap.String("subject_group", key.String()), zap.Error(err))
		}
	}
	if s.audit != nil {
		ids := make([]string, len(proposals))
		for i := range proposals {
			ids[i] = proposals[i].ID
		}
		resource := key.String()
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionDraftsGenerated,
			Resource:   "proposal",
			ResourceID: &resource,
			NewValues:  marshalAuditValues(map[string]interface{}{"proposal_ids": ids}),
			IPAddress:  "system",
			UserAgent:  "generation-service",
		}); err != nil {
			s.logger.Warn("failed to persist audit log", zap.Error(err))
		}
	}
	for i := range proposals {
		p := &proposals[i]
		event := events.Event{
			ID:           uuid.NewString(),
			Type:         events.TypeGenerated,
			ProposalID:   p.ID,
			Kind:         string(p.Kind),
			DisciplineID: p.DisciplineID,
			GradeLevel:   p.GradeLevel,
			Period:       p.Period,
			SkillCode:    p.SkillCode,
			Status:       string(p.Status),
			ActorID:      actor.UserID,
			OccurredAt:   s.clock(),
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish generation event", zap.String("proposal_id", p.ID), zap.Error(err))
		}
	}
}

func (s *GenerationService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
