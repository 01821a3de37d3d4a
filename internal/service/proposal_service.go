package service

import (
	"context"
	"database/sql"
	"encoding/json"
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
	"github.com/noah-isme/sma-curriculum-api/pkg/textdiff"
)

type proposalStore interface {
	Create(ctx context.Context, proposal *models.Proposal) error
	GetByID(ctx context.Context, id string) (*models.Proposal, error)
	List(ctx context.Context, filter models.ProposalFilter) ([]models.Proposal, error)
	ListActions(ctx context.Context, proposalIDs []string) (map[string][]models.ReviewAction, error)
	Transition(ctx context.Context, id string, fn repository.TransitionFunc) (*repository.TransitionResult, error)
	ReplaceDrafts(ctx context.Context, params repository.ReplaceDraftsParams) error
}

type quorumResolver interface {
	ResolveQuorum(ctx context.Context, key models.SubjectGroupKey) (int, error)
	SubjectGroupsFor(ctx context.Context, teacherID string) ([]models.SubjectGroupKey, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type proposalCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, patterns ...string) error
}

// ProposalServiceOption configures optional collaborators.
type ProposalServiceOption func(*ProposalService)

// WithProposalClock overrides the time source.
func WithProposalClock(now func() time.Time) ProposalServiceOption {
	return func(s *ProposalService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithProposalCache enables listing caching.
func WithProposalCache(cache proposalCache, ttl time.Duration) ProposalServiceOption {
	return func(s *ProposalService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithProposalEvents sets the lifecycle event publisher.
func WithProposalEvents(publisher events.Publisher) ProposalServiceOption {
	return func(s *ProposalService) {
		if publisher != nil {
			s.events = publisher
		}
	}
}

// WithProposalMetrics sets the metrics recorder.
func WithProposalMetrics(metrics *MetricsService) ProposalServiceOption {
	return func(s *ProposalService) {
		s.metrics = metrics
	}
}

// ProposalService runs the proposal lifecycle: drafting, submission and peer review.
type ProposalService struct {
	repo      proposalStore
	quorum    quorumResolver
	audit     auditLogger
	cache     proposalCache
	cacheTTL  time.Duration
	events    events.Publisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewProposalService constructs the service with defaults.
func NewProposalService(repo proposalStore, quorum quorumResolver, audit auditLogger, validate *validator.Validate, logger *zap.Logger, opts ...ProposalServiceOption) *ProposalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &ProposalService{
		repo:      repo,
		quorum:    quorum,
		audit:     audit,
		events:    events.Nop{},
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateObjective stores a new learning objective draft.
func (s *ProposalService) CreateObjective(ctx context.Context, req dto.CreateObjectiveRequest, actor *models.JWTClaims) (*models.Proposal, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid objective payload")
	}
	content := textdiff.Clean(req.Content)
	if content == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content is required")
	}
	key := models.SubjectGroupKey{DisciplineID: strings.TrimSpace(req.DisciplineID), GradeLevel: strings.TrimSpace(req.GradeLevel), Period: req.Period}
	if key.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "discipline and grade level are required")
	}

	now := s.clock()
	proposal := &models.Proposal{
		ID:           uuid.NewString(),
		Kind:         models.ProposalKindObjective,
		DisciplineID: key.DisciplineID,
		GradeLevel:   key.GradeLevel,
		Period:       key.Period,
		SkillCode:    strings.TrimSpace(req.SkillCode),
		OrderIndex:   req.OrderIndex,
		Content:      content,
		Explanation:  optionalString(derefString(req.Explanation)),
		Status:       models.ProposalStatusDraft,
		CreatedBy:    actor.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, proposal); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create objective")
	}
	s.invalidate(ctx, key)
	s.emitAudit(ctx, actor.UserID, models.AuditActionProposalCreate, proposal.ID, nil, proposal)
	return proposal, nil
}

// CreateRubricLevel stores a new rubric level draft under a live objective.
func (s *ProposalService) CreateRubricLevel(ctx context.Context, objectiveID string, req dto.CreateRubricLevelRequest, actor *models.JWTClaims) (*models.Proposal, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rubric level payload")
	}
	content := textdiff.Clean(req.Content)
	if content == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content is required")
	}
	objective, err := s.loadObjective(ctx, objectiveID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.List(ctx, models.ProposalFilter{Kind: models.ProposalKindRubricLevel, ObjectiveID: objective.ID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rubric levels")
	}
	for _, level := range existing {
		if level.Level != nil && *level.Level == req.Level {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("level %d already exists for this objective", req.Level))
		}
	}

	now := s.clock()
	level := req.Level
	proposal := &models.Proposal{
		ID:           uuid.NewString(),
		Kind:         models.ProposalKindRubricLevel,
		DisciplineID: objective.DisciplineID,
		GradeLevel:   objective.GradeLevel,
		Period:       objective.Period,
		SkillCode:    objective.SkillCode,
		OrderIndex:   objective.OrderIndex,
		ObjectiveID:  &objective.ID,
		Level:        &level,
		Content:      content,
		Status:       models.ProposalStatusDraft,
		CreatedBy:    actor.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, proposal); err != nil {
		if errors.Is(err, repository.ErrDuplicateProposal) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("level %d already exists for this objective", req.Level))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create rubric level")
	}
	s.invalidate(ctx, objective.SubjectGroup())
	s.emitAudit(ctx, actor.UserID, models.AuditActionProposalCreate, proposal.ID, nil, proposal)
	return proposal, nil
}

// UpdateDraft replaces the content of a draft. Only its creator or an administrator may
// change it.
func (s *ProposalService) UpdateDraft(ctx context.Context, id string, req dto.UpdateDraftRequest, actor *models.JWTClaims) (*models.Proposal, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid draft payload")
	}
	content := textdiff.Clean(req.Content)
	if content == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content is required")
	}

	var previous string
	result, err := s.repo.Transition(ctx, id, func(current *models.Proposal, _ []models.ReviewAction) (*repository.TransitionPlan, error) {
		if current.Archived() || current.Status != models.ProposalStatusDraft {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "only drafts can be updated directly, use review edits instead")
		}
		if current.CreatedBy != actor.UserID && actor.Role != models.RoleAdmin {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the creator can update a draft")
		}
		previous = current.Content
		current.Content = content
		current.UpdatedAt = s.clock()
		return nil, nil
	})
	if err != nil {
		return nil, mapStoreError(err, "failed to update draft")
	}
	s.invalidate(ctx, result.Proposal.SubjectGroup())
	s.emitAudit(ctx, actor.UserID, models.AuditActionProposalUpdate, id, map[string]string{"content": previous}, map[string]string{"content": content})
	return result.Proposal, nil
}

// Submit moves a draft into review. The creator's approval is recorded implicitly, which
// approves the proposal at once when the subject group has a quorum of one.
func (s *ProposalService) Submit(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ReviewResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	proposal, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	quorum, err := s.quorum.ResolveQuorum(ctx, proposal.SubjectGroup())
	if err != nil {
		return nil, err
	}

	var message string
	result, err := s.repo.Transition(ctx, id, func(current *models.Proposal, _ []models.ReviewAction) (*repository.TransitionPlan, error) {
		plan, msg, err := decideSubmit(current, quorum, s.clock())
		message = msg
		return plan, err
	})
	if err != nil {
		return nil, mapStoreError(err, "failed to submit proposal")
	}

	s.logger.Info("proposal submitted", zap.String("proposal_id", id), zap.String("status", string(result.Proposal.Status)), zap.Int("quorum", quorum))
	s.afterTransition(ctx, actor, models.AuditActionProposalSubmit, result, nil, events.TypeSubmitted)
	return &dto.ReviewResult{
		Status:   result.Proposal.Status,
		Message:  message,
		Proposal: buildView(result.Proposal, result.Actions, quorum),
	}, nil
}

// Review records an approve, reject or edit action against a proposal.
func (s *ProposalService) Review(ctx context.Context, id string, req dto.ReviewProposalRequest, actor *models.JWTClaims) (*dto.ReviewResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	note := optionalString(derefString(req.Note))
	content := textdiff.Clean(derefString(req.NewContent))
	if req.Action == models.ReviewActionEdited && content == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "new content is required for an edit")
	}

	proposal, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	// Resolved outside the row lock; a slightly stale reviewer count is acceptable.
	quorum, err := s.quorum.ResolveQuorum(ctx, proposal.SubjectGroup())
	if err != nil {
		return nil, err
	}

	var (
		message     string
		forkActions []models.ReviewAction
		before      *models.Proposal
	)
	result, err := s.repo.Transition(ctx, id, func(current *models.Proposal, log []models.ReviewAction) (*repository.TransitionPlan, error) {
		snapshot := *current
		before = &snapshot
		now := s.clock()
		var (
			plan *repository.TransitionPlan
			err  error
		)
		switch req.Action {
		case models.ReviewActionApproved:
			plan, message, err = decideApprove(current, log, actor.UserID, note, quorum, now)
		case models.ReviewActionRejected:
			plan, message, err = decideReject(current, actor.UserID, note, now)
		case models.ReviewActionEdited:
			plan, message, err = decideEdit(current, actor.UserID, content, note, now)
		default:
			err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported action %q", req.Action))
		}
		if err != nil {
			return nil, err
		}
		if plan.Fork != nil {
			for _, action := range plan.Actions {
				if action.ProposalID == plan.Fork.ID {
					forkActions = append(forkActions, action)
				}
			}
		}
		return plan, nil
	})
	if err != nil {
		return nil, mapStoreError(err, "failed to record review")
	}

	response := &dto.ReviewResult{
		Status:   result.Proposal.Status,
		Message:  message,
		Proposal: buildView(result.Proposal, result.Actions, quorum),
	}
	if result.Fork != nil {
		response.Status = result.Fork.Status
		response.Fork = buildView(result.Fork, forkActions, quorum)
	}

	s.logger.Info("proposal reviewed",
		zap.String("proposal_id", id),
		zap.String("reviewer_id", actor.UserID),
		zap.String("action", string(req.Action)),
		zap.String("status", string(response.Status)),
		zap.Bool("forked", result.Fork != nil),
	)
	s.metrics.RecordReviewAction(req.Action, response.Status)
	s.afterTransition(ctx, actor, models.AuditActionProposalReview, result, before, reviewEventTypes(req.Action, result)...)
	if result.Fork != nil {
		s.emitAudit(ctx, actor.UserID, models.AuditActionProposalFork, result.Fork.ID, before, result.Fork)
	}
	return response, nil
}

// List returns the proposals of a subject group with their review history and approval
// progress. The boolean reports whether the listing came from cache.
func (s *ProposalService) List(ctx context.Context, query dto.ProposalQuery) ([]dto.ProposalView, bool, error) {
	filter, err := filterFromQuery(query)
	if err != nil {
		return nil, false, err
	}

	cacheKey := ProposalListKey(filter)
	if s.cache != nil {
		var cached []dto.ProposalView
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, true, nil
		}
	}

	proposals, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list proposals")
	}
	quorum, err := s.quorum.ResolveQuorum(ctx, filter.SubjectGroup)
	if err != nil {
		return nil, false, err
	}
	views, err := s.views(ctx, proposals, func(models.SubjectGroupKey) int { return quorum })
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey, views, s.cacheTTL)
	}
	return views, false, nil
}

// Get returns a single proposal view, archived history included.
func (s *ProposalService) Get(ctx context.Context, id string) (*dto.ProposalView, error) {
	proposal, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	quorum, err := s.quorum.ResolveQuorum(ctx, proposal.SubjectGroup())
	if err != nil {
		return nil, err
	}
	actions, err := s.repo.ListActions(ctx, []string{proposal.ID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review history")
	}
	return buildView(proposal, actions[proposal.ID], quorum), nil
}

// Inbox lists pending proposals in the actor's subject groups still awaiting the actor's
// valid approval.
func (s *ProposalService) Inbox(ctx context.Context, actor *models.JWTClaims) ([]dto.ProposalView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	groups, err := s.quorum.SubjectGroupsFor(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	inbox := make([]dto.ProposalView, 0)
	for _, group := range groups {
		proposals, err := s.repo.List(ctx, models.ProposalFilter{
			SubjectGroup: group,
			Statuses:     []models.ProposalStatus{models.ProposalStatusPending},
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending proposals")
		}
		if len(proposals) == 0 {
			continue
		}
		quorum, err := s.quorum.ResolveQuorum(ctx, group)
		if err != nil {
			return nil, err
		}
		views, err := s.views(ctx, proposals, func(models.SubjectGroupKey) int { return quorum })
		if err != nil {
			return nil, err
		}
		for _, view := range views {
			if !containsReviewer(view.ValidApprovals, actor.UserID) {
				inbox = append(inbox, view)
			}
		}
	}
	return inbox, nil
}

func (s *ProposalService) views(ctx context.Context, proposals []models.Proposal, quorumFor func(models.SubjectGroupKey) int) ([]dto.ProposalView, error) {
	ids := make([]string, len(proposals))
	for i := range proposals {
		ids[i] = proposals[i].ID
	}
	actions, err := s.repo.ListActions(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review history")
	}
	views := make([]dto.ProposalView, 0, len(proposals))
	for i := range proposals {
		views = append(views, *buildView(&proposals[i], actions[proposals[i].ID], quorumFor(proposals[i].SubjectGroup())))
	}
	return views, nil
}

func buildView(proposal *models.Proposal, log []models.ReviewAction, quorum int) *dto.ProposalView {
	if log == nil {
		log = []models.ReviewAction{}
	}
	valid := []string{}
	if proposal.Status != models.ProposalStatusDraft {
		valid = ValidApprovals(log)
	}
	return &dto.ProposalView{Proposal: *proposal, History: log, ValidApprovals: valid, Quorum: quorum}
}

func filterFromQuery(query dto.ProposalQuery) (models.ProposalFilter, error) {
	filter := models.ProposalFilter{
		SubjectGroup:    models.SubjectGroupKey{DisciplineID: strings.TrimSpace(query.DisciplineID), GradeLevel: strings.TrimSpace(query.GradeLevel), Period: query.Period},
		SkillCode:       strings.TrimSpace(query.SkillCode),
		ObjectiveID:     strings.TrimSpace(query.ObjectiveID),
		IncludeArchived: query.IncludeArchived,
	}
	if filter.SubjectGroup.Empty() {
		return filter, appErrors.Clone(appErrors.ErrValidation, "discipline and grade level are required")
	}
	if query.Kind != "" {
		kind := models.ProposalKind(strings.ToUpper(strings.TrimSpace(query.Kind)))
		if !kind.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown kind %q", query.Kind))
		}
		filter.Kind = kind
	}
	for _, raw := range strings.Split(query.Status, ",") {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		status := models.ProposalStatus(raw)
		if !status.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", raw))
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	return filter, nil
}

func reviewEventTypes(action models.ReviewActionKind, result *repository.TransitionResult) []events.Type {
	switch {
	case result.Fork != nil:
		return []events.Type{events.TypeEdited, events.TypeForked}
	case action == models.ReviewActionEdited:
		return []events.Type{events.TypeEdited}
	case action == models.ReviewActionRejected:
		return []events.Type{events.TypeRejected}
	case result.Proposal.Status == models.ProposalStatusApproved:
		return []events.Type{events.TypeApproved}
	default:
		return nil
	}
}

func (s *ProposalService) afterTransition(ctx context.Context, actor *models.JWTClaims, auditAction string, result *repository.TransitionResult, before *models.Proposal, types ...events.Type) {
	proposal := result.Proposal
	s.invalidate(ctx, proposal.SubjectGroup())
	s.emitAudit(ctx, actor.UserID, auditAction, proposal.ID, before, proposal)

	if result.Fork == nil && proposal.Status == models.ProposalStatusApproved && auditAction == models.AuditActionProposalSubmit {
		types = append(types, events.TypeApproved)
	}
	for _, t := range types {
		event := events.Event{
			ID:           uuid.NewString(),
			Type:         t,
			ProposalID:   proposal.ID,
			Kind:         string(proposal.Kind),
			DisciplineID: proposal.DisciplineID,
			GradeLevel:   proposal.GradeLevel,
			Period:       proposal.Period,
			SkillCode:    proposal.SkillCode,
			Status:       string(proposal.Status),
			ActorID:      actor.UserID,
			OccurredAt:   s.clock(),
		}
		if result.Fork != nil {
			event.ForkID = result.Fork.ID
			event.Status = string(result.Fork.Status)
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish proposal event", zap.String("proposal_id", proposal.ID), zap.String("type", string(t)), zap.Error(err))
		}
	}
}

func (s *ProposalService) load(ctx context.Context, id string) (*models.Proposal, error) {
	proposal, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}
	return proposal, nil
}

func (s *ProposalService) loadObjective(ctx context.Context, id string) (*models.Proposal, error) {
	objective, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "objective not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load objective")
	}
	if objective.Kind != models.ProposalKindObjective {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rubric levels belong to objectives")
	}
	if objective.Archived() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "objective is archived history")
	}
	return objective, nil
}

func mapStoreError(err error, message string) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
	case errors.Is(err, repository.ErrDuplicateProposal):
		return appErrors.Clone(appErrors.ErrInvalidState, "a live version of this rubric level already exists")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}

func (s *ProposalService) invalidate(ctx context.Context, key models.SubjectGroupKey) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, SubjectGroupPattern(key)); err != nil {
		s.logger.Warn("failed to invalidate proposal cache", zap.String("subject_group", key.String()), zap.Error(err))
	}
}

func (s *ProposalService) emitAudit(ctx context.Context, userID, action, resourceID string, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "proposal",
		ResourceID: &resourceID,
		OldValues:  marshalAuditValues(oldValues),
		NewValues:  marshalAuditValues(newValues),
		IPAddress:  "system",
		UserAgent:  "proposal-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *ProposalService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func marshalAuditValues(value interface{}) []byte {
	if value == nil {
		return nil
	}
	if p, ok := value.(*models.Proposal); ok && p == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return payload
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
