package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/internal/repository"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
)

// proposalStoreStub keeps proposals in memory; Transition serialises on a mutex the way
// the row lock does.
type proposalStoreStub struct {
	mu        sync.Mutex
	proposals map[string]*models.Proposal
	actions   map[string][]models.ReviewAction
	replaced  []repository.ReplaceDraftsParams
}

func newProposalStoreStub() *proposalStoreStub {
	return &proposalStoreStub{
		proposals: make(map[string]*models.Proposal),
		actions:   make(map[string][]models.ReviewAction),
	}
}

func (s *proposalStoreStub) Create(ctx context.Context, proposal *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.liveLevelTaken(proposal) {
		return repository.ErrDuplicateProposal
	}
	copy := *proposal
	s.proposals[proposal.ID] = &copy
	return nil
}

func (s *proposalStoreStub) GetByID(ctx context.Context, id string) (*models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.proposals[id]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *proposalStoreStub) List(ctx context.Context, filter models.ProposalFilter) ([]models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.Proposal, 0)
	for _, p := range s.proposals {
		if matchesFilter(p, filter) {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *proposalStoreStub) ListActions(ctx context.Context, ids []string) (map[string][]models.ReviewAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string][]models.ReviewAction, len(ids))
	for _, id := range ids {
		if log, ok := s.actions[id]; ok {
			result[id] = append([]models.ReviewAction(nil), log...)
		}
	}
	return result, nil
}

func (s *proposalStoreStub) Transition(ctx context.Context, id string, fn repository.TransitionFunc) (*repository.TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.proposals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	current := *stored
	log := append([]models.ReviewAction(nil), s.actions[id]...)

	plan, err := fn(&current, log)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		plan = &repository.TransitionPlan{}
	}
	s.proposals[id] = &current
	if plan.Fork != nil {
		fork := *plan.Fork
		s.proposals[fork.ID] = &fork
	}
	for _, action := range plan.Actions {
		if action.ID == "" {
			action.ID = uuid.NewString()
		}
		s.actions[action.ProposalID] = append(s.actions[action.ProposalID], action)
		if action.ProposalID == current.ID {
			log = append(log, action)
		}
	}
	if plan.ReparentRubrics && plan.Fork != nil {
		for _, p := range s.proposals {
			if p.Kind == models.ProposalKindRubricLevel && !p.Archived() && p.ObjectiveID != nil && *p.ObjectiveID == current.ID {
				forkID := plan.Fork.ID
				p.ObjectiveID = &forkID
			}
		}
	}
	return &repository.TransitionResult{Proposal: &current, Fork: plan.Fork, Actions: log}, nil
}

func (s *proposalStoreStub) ReplaceDrafts(ctx context.Context, params repository.ReplaceDraftsParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaced = append(s.replaced, params)
	for _, p := range s.proposals {
		if inScope(p, params.Scope) && containsStatus(params.BlockStatuses, p.Status) {
			return fmt.Errorf("%w: %s", repository.ErrScopeInReview, p.Status)
		}
	}
	for id, p := range s.proposals {
		if !inScope(p, params.Scope) {
			continue
		}
		if containsStatus(params.DeleteStatuses, p.Status) {
			delete(s.proposals, id)
			delete(s.actions, id)
			continue
		}
		if containsStatus(params.ArchiveStatuses, p.Status) {
			now := params.Now
			p.ArchivedAt = &now
		}
	}
	for i := range params.Proposals {
		copy := params.Proposals[i]
		if s.liveLevelTaken(&copy) {
			return repository.ErrDuplicateProposal
		}
		s.proposals[copy.ID] = &copy
	}
	for _, action := range params.Actions {
		s.actions[action.ProposalID] = append(s.actions[action.ProposalID], action)
	}
	return nil
}

func (s *proposalStoreStub) put(p models.Proposal, log ...models.ReviewAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ID] = &p
	s.actions[p.ID] = append(s.actions[p.ID], log...)
}

func (s *proposalStoreStub) liveLevelTaken(candidate *models.Proposal) bool {
	if candidate.Kind != models.ProposalKindRubricLevel || candidate.ObjectiveID == nil || candidate.Level == nil {
		return false
	}
	for _, p := range s.proposals {
		if p.ID != candidate.ID && p.Kind == models.ProposalKindRubricLevel && !p.Archived() &&
			p.ObjectiveID != nil && *p.ObjectiveID == *candidate.ObjectiveID && p.Level != nil && *p.Level == *candidate.Level {
			return true
		}
	}
	return false
}

func matchesFilter(p *models.Proposal, filter models.ProposalFilter) bool {
	switch {
	case filter.SubjectGroup.DisciplineID != "" && p.DisciplineID != filter.SubjectGroup.DisciplineID:
		return false
	case filter.SubjectGroup.GradeLevel != "" && p.GradeLevel != filter.SubjectGroup.GradeLevel:
		return false
	case filter.SubjectGroup.Period > 0 && p.Period != filter.SubjectGroup.Period:
		return false
	case filter.SkillCode != "" && p.SkillCode != filter.SkillCode:
		return false
	case filter.Kind != "" && p.Kind != filter.Kind:
		return false
	case filter.ObjectiveID != "" && (p.ObjectiveID == nil || *p.ObjectiveID != filter.ObjectiveID):
		return false
	case len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, p.Status):
		return false
	case filter.OnlyArchived:
		return p.Archived()
	case !filter.IncludeArchived:
		return !p.Archived()
	}
	return true
}

func inScope(p *models.Proposal, scope repository.DraftScope) bool {
	return !p.Archived() && matchesFilter(p, models.ProposalFilter{
		SubjectGroup: scope.SubjectGroup,
		SkillCode:    scope.SkillCode,
		Kind:         scope.Kind,
		ObjectiveID:  scope.ObjectiveID,
	})
}

func containsStatus(statuses []models.ProposalStatus, status models.ProposalStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type quorumStub struct {
	quorum int
	groups []models.SubjectGroupKey
	err    error
}

func (q *quorumStub) ResolveQuorum(ctx context.Context, key models.SubjectGroupKey) (int, error) {
	if q.err != nil {
		return 0, q.err
	}
	if q.quorum < 1 {
		return 1, nil
	}
	return q.quorum, nil
}

func (q *quorumStub) SubjectGroupsFor(ctx context.Context, teacherID string) ([]models.SubjectGroupKey, error) {
	return q.groups, nil
}

type proposalAuditStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *proposalAuditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *proposalAuditStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.logs))
	for i, log := range a.logs {
		out[i] = log.Action
	}
	return out
}

// steppingClock advances one second per reading so every action has a distinct timestamp.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func teacher(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher}
}

func newProposalServiceForTest(quorum int) (*ProposalService, *proposalStoreStub, *proposalAuditStub) {
	store := newProposalStoreStub()
	audit := &proposalAuditStub{}
	svc := NewProposalService(store, &quorumStub{quorum: quorum}, audit, nil, nil, WithProposalClock(steppingClock()))
	return svc, store, audit
}

func objectiveRequest(content string) dto.CreateObjectiveRequest {
	return dto.CreateObjectiveRequest{
		DisciplineID: "math",
		GradeLevel:   "7",
		Period:       1,
		SkillCode:    "EF07MA01",
		OrderIndex:   1,
		Content:      content,
	}
}

func submittedObjective(t *testing.T, svc *ProposalService, creator, content string) *models.Proposal {
	t.Helper()
	created, err := svc.CreateObjective(context.Background(), objectiveRequest(content), teacher(creator))
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), created.ID, teacher(creator))
	require.NoError(t, err)
	return created
}

func review(action models.ReviewActionKind, content string) dto.ReviewProposalRequest {
	req := dto.ReviewProposalRequest{Action: action}
	if content != "" {
		req.NewContent = &content
	}
	return req
}

func requireAppError(t *testing.T, err error, target *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, appErrors.Is(err, target), "expected %s, got %v", target.Code, err)
}

func TestProposalServiceCreateObjectiveCleansContent(t *testing.T) {
	svc, store, audit := newProposalServiceForTest(3)

	created, err := svc.CreateObjective(context.Background(), objectiveRequest("  Solve   linear\r\n equations "), teacher("ana"))
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusDraft, created.Status)
	require.Equal(t, "Solve   linear\n equations", created.Content)
	require.Equal(t, "ana", created.CreatedBy)
	require.Contains(t, store.proposals, created.ID)
	require.Equal(t, []string{models.AuditActionProposalCreate}, audit.actions())

	_, err = svc.CreateObjective(context.Background(), objectiveRequest("   "), teacher("ana"))
	requireAppError(t, err, appErrors.ErrValidation)

	_, err = svc.CreateObjective(context.Background(), objectiveRequest("content"), nil)
	requireAppError(t, err, appErrors.ErrUnauthorized)
}

func TestProposalServiceSubmitWithSingleReviewerApproves(t *testing.T) {
	svc, _, _ := newProposalServiceForTest(1)
	created, err := svc.CreateObjective(context.Background(), objectiveRequest("Add fractions"), teacher("ana"))
	require.NoError(t, err)

	result, err := svc.Submit(context.Background(), created.ID, teacher("ana"))
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusApproved, result.Status)
	require.Len(t, result.Proposal.History, 1)
	require.Equal(t, models.ReviewActionApproved, result.Proposal.History[0].Action)
	require.Equal(t, []string{"ana"}, result.Proposal.ValidApprovals)
}

func TestProposalServiceSubmitAwaitsQuorum(t *testing.T) {
	svc, _, _ := newProposalServiceForTest(3)
	created, err := svc.CreateObjective(context.Background(), objectiveRequest("Add fractions"), teacher("ana"))
	require.NoError(t, err)

	result, err := svc.Submit(context.Background(), created.ID, teacher("ana"))
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusPending, result.Status)
	require.Contains(t, result.Message, "1/3")
	require.Equal(t, []string{"ana"}, result.Proposal.ValidApprovals)

	_, err = svc.Submit(context.Background(), created.ID, teacher("ana"))
	requireAppError(t, err, appErrors.ErrInvalidState)
}

func TestProposalServiceQuorumThenEditForks(t *testing.T) {
	svc, store, audit := newProposalServiceForTest(3)
	ctx := context.Background()
	original := submittedObjective(t, svc, "ana", "Compare rational numbers")

	result, err := svc.Review(ctx, original.ID, review(models.ReviewActionApproved, ""), teacher("bruno"))
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusPending, result.Status)
	require.Equal(t, []string{"ana", "bruno"}, result.Proposal.ValidApprovals)

	// A repeated vote does not count twice.
	result, err = svc.Review(ctx, original.ID, review(models.ReviewActionApproved, ""), teacher("bruno"))
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusPending, result.Status)
	require.Len(t, result.Proposal.ValidApprovals, 2)

	result, err = svc.Review(ctx, original.ID, review(models.ReviewActionApproved, ""), teacher("carla"))
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusApproved, result.Status)
	require.Equal(t, []string{"ana", "bruno", "carla"}, result.Proposal.ValidApprovals)

	result, err = svc.Review(ctx, original.ID, review(models.ReviewActionEdited, "Compare and order rational numbers"), teacher("davi"))
	require.NoError(t, err)
	require.NotNil(t, result.Fork)
	require.Equal(t, models.ProposalStatusPending, result.Status)
	require.Equal(t, []string{"davi"}, result.Fork.ValidApprovals)
	require.Equal(t, "davi", result.Fork.CreatedBy)
	require.Equal(t, original.ID, *result.Fork.ForkedFromID)
	require.Len(t, result.Fork.History, 2)
	require.Equal(t, models.ReviewActionEdited, result.Fork.History[0].Action)
	require.Equal(t, "Compare rational numbers", *result.Fork.History[0].PreviousContent)

	archived := store.proposals[original.ID]
	require.True(t, archived.Archived())
	require.Equal(t, models.ProposalStatusApproved, archived.Status)
	require.Equal(t, "Compare rational numbers", archived.Content)
	require.Equal(t, result.Fork.ID, *archived.SupersededByID)
	require.Contains(t, audit.actions(), models.AuditActionProposalFork)

	_, err = svc.Review(ctx, original.ID, review(models.ReviewActionApproved, ""), teacher("bruno"))
	requireAppError(t, err, appErrors.ErrInvalidState)
	_, err = svc.Review(ctx, original.ID, review(models.ReviewActionRejected, ""), teacher("bruno"))
	requireAppError(t, err, appErrors.ErrInvalidState)

	live, _, err := svc.List(ctx, dto.ProposalQuery{DisciplineID: "math", GradeLevel: "7"})
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, result.Fork.ID, live[0].ID)
}

func TestProposalServiceForkMovesRubricLevels(t *testing.T) {
	svc, store, _ := newProposalServiceForTest(1)
	ctx := context.Background()
	objective := submittedObjective(t, svc, "ana", "Interpret bar charts")

	level, err := svc.CreateRubricLevel(ctx, objective.ID, dto.CreateRubricLevelRequest{Level: 2, Content: "Reads values"}, teacher("ana"))
	require.NoError(t, err)

	result, err := svc.Review(ctx, objective.ID, review(models.ReviewActionEdited, "Interpret and build bar charts"), teacher("ana"))
	require.NoError(t, err)
	require.NotNil(t, result.Fork)
	require.Equal(t, result.Fork.ID, *store.proposals[level.ID].ObjectiveID)
}

func TestProposalServiceSingleVetoRejects(t *testing.T) {
	svc, _, _ := newProposalServiceForTest(5)
	ctx := context.Background()
	created := submittedObjective(t, svc, "ana", "Measure angles")

	_, err := svc.Review(ctx, created.ID, review(models.ReviewActionApproved, ""), teacher("bruno"))
	require.NoError(t, err)

	note := "too broad"
	req := review(models.ReviewActionRejected, "")
	req.Note = &note
	result, err := svc.Review(ctx, created.ID, req, teacher("carla"))
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusRejected, result.Status)
	require.Equal(t, "too broad", *result.Proposal.History[len(result.Proposal.History)-1].Note)

	_, err = svc.Review(ctx, created.ID, review(models.ReviewActionRejected, ""), teacher("davi"))
	requireAppError(t, err, appErrors.ErrInvalidState)
	_, err = svc.Review(ctx, created.ID, review(models.ReviewActionApproved, ""), teacher("davi"))
	requireAppError(t, err, appErrors.ErrInvalidState)
	_, err = svc.Review(ctx, created.ID, review(models.ReviewActionEdited, "Measure angles with a protractor"), teacher("davi"))
	requireAppError(t, err, appErrors.ErrInvalidState)
}

func TestProposalServiceRejectApprovedProposal(t *testing.T) {
	svc, _, _ := newProposalServiceForTest(1)
	created := submittedObjective(t, svc, "ana", "Measure angles")

	result, err := svc.Review(context.Background(), created.ID, review(models.ReviewActionRejected, ""), teacher("bruno"))
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusRejected, result.Status)
}

func TestProposalServicePendingEditResetsApprovals(t *testing.T) {
	svc, store, _ := newProposalServiceForTest(3)
	ctx := context.Background()
	created := submittedObjective(t, svc, "ana", "Estimate areas")

	_, err := svc.Review(ctx, created.ID, review(models.ReviewActionApproved, ""), teacher("bruno"))
	require.NoError(t, err)

	result, err := svc.Review(ctx, created.ID, review(models.ReviewActionEdited, "Estimate areas of polygons"), teacher("carla"))
	require.NoError(t, err)
	require.Nil(t, result.Fork)
	require.Equal(t, models.ProposalStatusPending, result.Status)
	require.Equal(t, "Estimate areas of polygons", result.Proposal.Content)
	require.Empty(t, result.Proposal.ValidApprovals)
	require.Len(t, store.proposals, 1)

	result, err = svc.Review(ctx, created.ID, review(models.ReviewActionApproved, ""), teacher("ana"))
	require.NoError(t, err)
	require.Equal(t, []string{"ana"}, result.Proposal.ValidApprovals)
}

func TestProposalServiceEditApprovedWithSameContentStaysInPlace(t *testing.T) {
	svc, store, _ := newProposalServiceForTest(1)
	created := submittedObjective(t, svc, "ana", "Estimate areas")

	result, err := svc.Review(context.Background(), created.ID, review(models.ReviewActionEdited, "  Estimate\n areas "), teacher("bruno"))
	require.NoError(t, err)
	require.Nil(t, result.Fork)
	require.Equal(t, models.ProposalStatusPending, result.Status)
	require.Len(t, store.proposals, 1)
}

func TestProposalServiceKeepsLineBreaksInContent(t *testing.T) {
	svc, store, _ := newProposalServiceForTest(3)
	ctx := context.Background()

	created := submittedObjective(t, svc, "ana", "Estimate areas:\r\n- rectangles\r\n- triangles  ")
	require.Equal(t, "Estimate areas:\n- rectangles\n- triangles", store.proposals[created.ID].Content)

	_, err := svc.Review(ctx, created.ID, review(models.ReviewActionEdited, "Estimate areas:\n- rectangles\n- circles\n"), teacher("bruno"))
	require.NoError(t, err)
	require.Equal(t, "Estimate areas:\n- rectangles\n- circles", store.proposals[created.ID].Content)
}

func TestProposalServiceReviewValidation(t *testing.T) {
	svc, _, _ := newProposalServiceForTest(3)
	ctx := context.Background()
	created, err := svc.CreateObjective(ctx, objectiveRequest("Estimate areas"), teacher("ana"))
	require.NoError(t, err)

	_, err = svc.Review(ctx, created.ID, review(models.ReviewActionEdited, "   "), teacher("bruno"))
	requireAppError(t, err, appErrors.ErrValidation)

	_, err = svc.Review(ctx, created.ID, dto.ReviewProposalRequest{Action: "merged"}, teacher("bruno"))
	requireAppError(t, err, appErrors.ErrValidation)

	_, err = svc.Review(ctx, created.ID, review(models.ReviewActionEdited, "Estimate volumes"), teacher("bruno"))
	requireAppError(t, err, appErrors.ErrInvalidState)

	_, err = svc.Review(ctx, created.ID, review(models.ReviewActionApproved, ""), teacher("bruno"))
	requireAppError(t, err, appErrors.ErrInvalidState)

	_, err = svc.Review(ctx, uuid.NewString(), review(models.ReviewActionApproved, ""), teacher("bruno"))
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestProposalServiceConcurrentApprovalsAreNotLost(t *testing.T) {
	const reviewers = 9
	svc, store, _ := newProposalServiceForTest(reviewers + 1)
	created := submittedObjective(t, svc, "ana", "Solve proportion problems")

	var wg sync.WaitGroup
	errs := make(chan error, reviewers)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Review(context.Background(), created.ID, review(models.ReviewActionApproved, ""), teacher(fmt.Sprintf("reviewer-%d", n)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusApproved, view.Status)
	require.Len(t, view.ValidApprovals, reviewers+1)
	require.Len(t, store.actions[created.ID], reviewers+1)
}

func TestProposalServiceUpdateDraftOwnership(t *testing.T) {
	svc, _, _ := newProposalServiceForTest(3)
	ctx := context.Background()
	created, err := svc.CreateObjective(ctx, objectiveRequest("Draw triangles"), teacher("ana"))
	require.NoError(t, err)

	_, err = svc.UpdateDraft(ctx, created.ID, dto.UpdateDraftRequest{Content: "Draw triangles with rulers"}, teacher("bruno"))
	requireAppError(t, err, appErrors.ErrForbidden)

	admin := &models.JWTClaims{UserID: "root", Role: models.RoleAdmin}
	updated, err := svc.UpdateDraft(ctx, created.ID, dto.UpdateDraftRequest{Content: "Draw triangles with rulers"}, admin)
	require.NoError(t, err)
	require.Equal(t, "Draw triangles with rulers", updated.Content)

	_, err = svc.Submit(ctx, created.ID, teacher("ana"))
	require.NoError(t, err)
	_, err = svc.UpdateDraft(ctx, created.ID, dto.UpdateDraftRequest{Content: "Late change"}, teacher("ana"))
	requireAppError(t, err, appErrors.ErrInvalidState)
}

func TestProposalServiceCreateRubricLevelRejectsDuplicates(t *testing.T) {
	svc, _, _ := newProposalServiceForTest(1)
	ctx := context.Background()
	objective, err := svc.CreateObjective(ctx, objectiveRequest("Read clocks"), teacher("ana"))
	require.NoError(t, err)

	level, err := svc.CreateRubricLevel(ctx, objective.ID, dto.CreateRubricLevelRequest{Level: 1, Content: "Reads hours"}, teacher("ana"))
	require.NoError(t, err)
	require.Equal(t, objective.ID, *level.ObjectiveID)
	require.Equal(t, objective.SkillCode, level.SkillCode)

	_, err = svc.CreateRubricLevel(ctx, objective.ID, dto.CreateRubricLevelRequest{Level: 1, Content: "Reads minutes"}, teacher("ana"))
	requireAppError(t, err, appErrors.ErrInvalidState)

	_, err = svc.CreateRubricLevel(ctx, level.ID, dto.CreateRubricLevelRequest{Level: 2, Content: "Nested"}, teacher("ana"))
	requireAppError(t, err, appErrors.ErrValidation)

	_, err = svc.CreateRubricLevel(ctx, objective.ID, dto.CreateRubricLevelRequest{Level: 5, Content: "Beyond"}, teacher("ana"))
	requireAppError(t, err, appErrors.ErrValidation)
}

func TestProposalServiceInboxSkipsOwnVotes(t *testing.T) {
	store := newProposalStoreStub()
	group := models.SubjectGroupKey{DisciplineID: "math", GradeLevel: "7"}
	svc := NewProposalService(store, &quorumStub{quorum: 3, groups: []models.SubjectGroupKey{group}}, nil, nil, nil, WithProposalClock(steppingClock()))
	ctx := context.Background()

	mine := submittedObjective(t, svc, "ana", "Classify polygons")
	other := submittedObjective(t, svc, "bruno", "Classify triangles")
	_, err := svc.CreateObjective(ctx, objectiveRequest("Still a draft"), teacher("bruno"))
	require.NoError(t, err)

	inbox, err := svc.Inbox(ctx, teacher("ana"))
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Equal(t, other.ID, inbox[0].ID)
	require.NotEqual(t, mine.ID, inbox[0].ID)
}

type proposalCacheStub struct {
	entries     map[string]interface{}
	invalidated []string
}

func (c *proposalCacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	value, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	*(dest.(*[]dto.ProposalView)) = value.([]dto.ProposalView)
	return true, nil
}

func (c *proposalCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.entries[key] = value
	return nil
}

func (c *proposalCacheStub) Invalidate(ctx context.Context, patterns ...string) error {
	c.invalidated = append(c.invalidated, patterns...)
	c.entries = make(map[string]interface{})
	return nil
}

func TestProposalServiceListUsesCache(t *testing.T) {
	store := newProposalStoreStub()
	cache := &proposalCacheStub{entries: make(map[string]interface{})}
	svc := NewProposalService(store, &quorumStub{quorum: 2}, nil, nil, nil,
		WithProposalClock(steppingClock()), WithProposalCache(cache, time.Minute))
	ctx := context.Background()
	query := dto.ProposalQuery{DisciplineID: "math", GradeLevel: "7", Status: "draft,pending"}

	created, err := svc.CreateObjective(ctx, objectiveRequest("Round decimals"), teacher("ana"))
	require.NoError(t, err)
	require.Equal(t, []string{"planning:proposals:math:7:*"}, cache.invalidated)

	first, hit, err := svc.List(ctx, query)
	require.NoError(t, err)
	require.False(t, hit)
	require.Len(t, first, 1)
	require.Equal(t, 2, first[0].Quorum)
	require.Len(t, cache.entries, 1)

	// Rows written behind the service's back stay hidden until an invalidation.
	store.put(models.Proposal{ID: uuid.NewString(), Kind: models.ProposalKindObjective, DisciplineID: "math", GradeLevel: "7", Status: models.ProposalStatusDraft})
	cached, hit, err := svc.List(ctx, query)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, cached, 1)

	_, err = svc.Submit(ctx, created.ID, teacher("ana"))
	require.NoError(t, err)
	fresh, hit, err := svc.List(ctx, query)
	require.NoError(t, err)
	require.False(t, hit)
	require.Len(t, fresh, 2)

	_, _, err = svc.List(ctx, dto.ProposalQuery{DisciplineID: "math"})
	requireAppError(t, err, appErrors.ErrValidation)
	_, _, err = svc.List(ctx, dto.ProposalQuery{DisciplineID: "math", GradeLevel: "7", Status: "archived"})
	requireAppError(t, err, appErrors.ErrValidation)
}
