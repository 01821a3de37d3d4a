package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	internalmiddleware "github.com/noah-isme/sma-curriculum-api/internal/middleware"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/internal/service"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/response"
)

type proposalServiceStub struct {
	lastActor   *models.JWTClaims
	lastQuery   dto.ProposalQuery
	lastReview  dto.ReviewProposalRequest
	lastID      string
	views       []dto.ProposalView
	cacheHit    bool
	reviewErr   error
	getErr      error
	createCalls int
}

func (s *proposalServiceStub) CreateObjective(_ context.Context, req dto.CreateObjectiveRequest, actor *models.JWTClaims) (*models.Proposal, error) {
	s.createCalls++
	s.lastActor = actor
	return &models.Proposal{ID: "obj-1", Kind: models.ProposalKindObjective, Content: req.Content, Status: models.ProposalStatusDraft, CreatedBy: actor.UserID}, nil
}

func (s *proposalServiceStub) CreateRubricLevel(_ context.Context, objectiveID string, req dto.CreateRubricLevelRequest, actor *models.JWTClaims) (*models.Proposal, error) {
	s.lastID = objectiveID
	level := req.Level
	return &models.Proposal{ID: "lvl-1", Kind: models.ProposalKindRubricLevel, ObjectiveID: &objectiveID, Level: &level, Content: req.Content, Status: models.ProposalStatusDraft, CreatedBy: actor.UserID}, nil
}

func (s *proposalServiceStub) UpdateDraft(_ context.Context, id string, req dto.UpdateDraftRequest, actor *models.JWTClaims) (*models.Proposal, error) {
	s.lastID = id
	return &models.Proposal{ID: id, Content: req.Content, Status: models.ProposalStatusDraft, CreatedBy: actor.UserID}, nil
}

func (s *proposalServiceStub) Submit(_ context.Context, id string, actor *models.JWTClaims) (*dto.ReviewResult, error) {
	s.lastID = id
	s.lastActor = actor
	return &dto.ReviewResult{Status: models.ProposalStatusPending, Message: "1/3 approvals"}, nil
}

func (s *proposalServiceStub) Review(_ context.Context, id string, req dto.ReviewProposalRequest, actor *models.JWTClaims) (*dto.ReviewResult, error) {
	s.lastID = id
	s.lastReview = req
	s.lastActor = actor
	if s.reviewErr != nil {
		return nil, s.reviewErr
	}
	return &dto.ReviewResult{Status: models.ProposalStatusApproved, Message: "approved"}, nil
}

func (s *proposalServiceStub) List(_ context.Context, query dto.ProposalQuery) ([]dto.ProposalView, bool, error) {
	s.lastQuery = query
	return s.views, s.cacheHit, nil
}

func (s *proposalServiceStub) Get(_ context.Context, id string) (*dto.ProposalView, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &dto.ProposalView{Proposal: models.Proposal{ID: id}}, nil
}

func (s *proposalServiceStub) Inbox(_ context.Context, actor *models.JWTClaims) ([]dto.ProposalView, error) {
	s.lastActor = actor
	return s.views, nil
}

type generationServiceStub struct {
	objectiveID string
	err         error
}

func (s *generationServiceStub) GenerateObjectives(_ context.Context, req dto.GenerateObjectivesRequest, _ *models.JWTClaims) (*dto.GenerateObjectivesResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.GenerateObjectivesResponse{Model: "stub", Drafts: []models.Proposal{{ID: "d1", SkillCode: req.SkillCode}}}, nil
}

func (s *generationServiceStub) GenerateRubric(_ context.Context, objectiveID string, _ *models.JWTClaims) (*dto.GenerateRubricResponse, error) {
	s.objectiveID = objectiveID
	if s.err != nil {
		return nil, s.err
	}
	return &dto.GenerateRubricResponse{ObjectiveID: objectiveID, Model: "stub"}, nil
}

type lineageServiceStub struct{}

func (lineageServiceStub) GetLineage(_ context.Context, id string) (*dto.LineageResponse, error) {
	if id == "missing" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
	}
	return &dto.LineageResponse{ProposalID: id, Strategy: "similarity"}, nil
}

type quorumServiceStub struct {
	key models.SubjectGroupKey
}

func (s *quorumServiceStub) Group(_ context.Context, key models.SubjectGroupKey) (*models.QuorumGroup, error) {
	s.key = key
	if key.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "discipline and grade level are required")
	}
	return &models.QuorumGroup{SubjectGroup: key, ReviewerIDs: []string{"ana", "bia"}, Quorum: 2}, nil
}

type exportServiceStub struct{}

func (exportServiceStub) ApprovedCurriculum(_ context.Context, query dto.ExportQuery) (*service.ExportResult, error) {
	return &service.ExportResult{Filename: "curriculum-" + query.DisciplineID + ".csv", ContentType: "text/csv", Payload: []byte("skill,objective\n")}, nil
}

type exportAuditStub struct {
	calls int
}

func (a *exportAuditStub) CreateAuditLog(context.Context, *models.AuditLog) error {
	a.calls++
	return nil
}

type planningFixture struct {
	router     *gin.Engine
	proposals  *proposalServiceStub
	generation *generationServiceStub
	quorum     *quorumServiceStub
	audit      *exportAuditStub
}

// newPlanningFixture authenticates callers through the X-Test-User header.
func newPlanningFixture() *planningFixture {
	gin.SetMode(gin.TestMode)
	f := &planningFixture{
		proposals:  &proposalServiceStub{},
		generation: &generationServiceStub{},
		quorum:     &quorumServiceStub{},
		audit:      &exportAuditStub{},
	}
	router := gin.New()
	router.Use(internalmiddleware.WithResponseMeta())
	guard := func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: user, Role: models.RoleTeacher})
		}
		c.Next()
	}
	RegisterPlanningRoutes(router.Group("/api/v1"), PlanningHandlers{
		Proposals:  NewProposalHandler(f.proposals),
		Generation: NewGenerationHandler(f.generation),
		Lineage:    NewLineageHandler(lineageServiceStub{}),
		Quorum:     NewQuorumHandler(f.quorum),
		Export:     NewExportHandler(exportServiceStub{}),
		Metrics:    NewMetricsHandler(service.NewMetricsService(), nil),
		Auth:       NewAuthHandler(),
	}, internalmiddleware.Audit(f.audit, nil, models.AuditActionCurriculumExport, "curriculum"), guard)
	f.router = router
	return f
}

func (f *planningFixture) do(method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestCreateObjectiveUsesCallerFromToken(t *testing.T) {
	f := newPlanningFixture()

	w := f.do(http.MethodPost, "/api/v1/planning/objectives", "ana", `{"disciplineId":"math","gradeLevel":"7","skillCode":"EF07MA01","content":"Solve equations","createdBy":"mallory"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, f.proposals.lastActor)
	assert.Equal(t, "ana", f.proposals.lastActor.UserID)
	assert.Contains(t, w.Body.String(), `"created_by":"ana"`)

	w = f.do(http.MethodPost, "/api/v1/planning/objectives", "", `{"content":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/v1/planning/objectives", "ana", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, f.proposals.createCalls)
}

func TestCreateRubricLevelRoute(t *testing.T) {
	f := newPlanningFixture()

	w := f.do(http.MethodPost, "/api/v1/planning/objectives/obj-9/rubrics", "ana", `{"level":2,"content":"Basic"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "obj-9", f.proposals.lastID)
	assert.Contains(t, w.Body.String(), `"level":2`)
}

func TestListProposalsPaginatesAndReportsCache(t *testing.T) {
	f := newPlanningFixture()
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		f.proposals.views = append(f.proposals.views, dto.ProposalView{Proposal: models.Proposal{ID: id}})
	}
	f.proposals.cacheHit = true

	w := f.do(http.MethodGet, "/api/v1/planning/proposals?disciplineId=math&gradeLevel=7&status=pending,approved&page=2&pageSize=2", "ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)

	require.NotNil(t, env.Pagination)
	assert.Equal(t, 5, env.Pagination.TotalCount)
	assert.Equal(t, 2, env.Pagination.Page)
	items, ok := env.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "p3", items[0].(map[string]interface{})["id"])
	assert.Equal(t, true, env.Meta["cache_hit"])

	assert.Equal(t, "math", f.proposals.lastQuery.DisciplineID)
	assert.Equal(t, "pending,approved", f.proposals.lastQuery.Status)

	w = f.do(http.MethodGet, "/api/v1/planning/proposals?disciplineId=math&gradeLevel=7&page=9&pageSize=2", "ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeEnvelope(t, w).Data)

	w = f.do(http.MethodGet, "/api/v1/planning/proposals?disciplineId=math&gradeLevel=7", "ana", "")
	env = decodeEnvelope(t, w)
	assert.Nil(t, env.Pagination)
	assert.Len(t, env.Data, 5)
}

func TestReviewForwardsActionAndErrors(t *testing.T) {
	f := newPlanningFixture()

	w := f.do(http.MethodPost, "/api/v1/planning/proposals/p1/review", "bia", `{"action":"edited","newContent":"Solve linear equations"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p1", f.proposals.lastID)
	assert.Equal(t, models.ReviewActionEdited, f.proposals.lastReview.Action)
	require.NotNil(t, f.proposals.lastReview.NewContent)
	assert.Equal(t, "bia", f.proposals.lastActor.UserID)

	f.proposals.reviewErr = appErrors.Clone(appErrors.ErrInvalidState, "proposal is archived")
	w = f.do(http.MethodPost, "/api/v1/planning/proposals/p1/review", "bia", `{"action":"approved"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrInvalidState.Code, env.Error.Code)
}

func TestSubmitGetAndInbox(t *testing.T) {
	f := newPlanningFixture()

	w := f.do(http.MethodPost, "/api/v1/planning/proposals/p7/submit", "ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"pending"`)
	assert.Equal(t, "p7", f.proposals.lastID)

	f.proposals.getErr = appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
	w = f.do(http.MethodGet, "/api/v1/planning/proposals/p7", "ana", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/v1/planning/inbox", "carla", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "carla", f.proposals.lastActor.UserID)

	w = f.do(http.MethodGet, "/api/v1/planning/me", "carla", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"carla"`)

	w = f.do(http.MethodPut, "/api/v1/planning/proposals/p7", "ana", `{"content":"Revised"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Revised")
}

func TestGenerationRoutes(t *testing.T) {
	f := newPlanningFixture()

	w := f.do(http.MethodPost, "/api/v1/planning/objectives/generate", "ana", `{"disciplineId":"math","gradeLevel":"7","skillCode":"EF07MA01"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "EF07MA01")

	w = f.do(http.MethodPost, "/api/v1/planning/objectives/obj-3/rubrics/generate", "ana", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "obj-3", f.generation.objectiveID)

	f.generation.err = appErrors.Clone(appErrors.ErrUpstreamGeneration, "all candidate models failed")
	w = f.do(http.MethodPost, "/api/v1/planning/objectives/obj-3/rubrics/generate", "ana", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	unconfigured := NewGenerationHandler(nil)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, "/planning/objectives/generate", nil)
	unconfigured.GenerateObjectives(c)
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}

func TestLineageAndQuorumRoutes(t *testing.T) {
	f := newPlanningFixture()

	w := f.do(http.MethodGet, "/api/v1/planning/proposals/p2/lineage", "ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"proposalId":"p2"`)

	w = f.do(http.MethodGet, "/api/v1/planning/proposals/missing/lineage", "ana", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/v1/planning/quorum?disciplineId=math&gradeLevel=7", "ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"quorum":2`)
	assert.Equal(t, "7", f.quorum.key.GradeLevel)

	w = f.do(http.MethodGet, "/api/v1/planning/quorum", "ana", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportStreamsAttachmentAndAudits(t *testing.T) {
	f := newPlanningFixture()

	w := f.do(http.MethodGet, "/api/v1/planning/export?disciplineId=math&gradeLevel=7&format=csv", "ana", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="curriculum-math.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "skill,objective\n", w.Body.String())
	assert.Equal(t, 1, f.audit.calls)
}

func TestReadyReportsFailingChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return appErrors.ErrInternal },
	})
	router := gin.New()
	RegisterOpsRoutes(router, h)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
