package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/middleware"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/response"
)

type proposalService interface {
	CreateObjective(ctx context.Context, req dto.CreateObjectiveRequest, actor *models.JWTClaims) (*models.Proposal, error)
	CreateRubricLevel(ctx context.Context, objectiveID string, req dto.CreateRubricLevelRequest, actor *models.JWTClaims) (*models.Proposal, error)
	UpdateDraft(ctx context.Context, id string, req dto.UpdateDraftRequest, actor *models.JWTClaims) (*models.Proposal, error)
	Submit(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ReviewResult, error)
	Review(ctx context.Context, id string, req dto.ReviewProposalRequest, actor *models.JWTClaims) (*dto.ReviewResult, error)
	List(ctx context.Context, query dto.ProposalQuery) ([]dto.ProposalView, bool, error)
	Get(ctx context.Context, id string) (*dto.ProposalView, error)
	Inbox(ctx context.Context, actor *models.JWTClaims) ([]dto.ProposalView, error)
}

// ProposalHandler exposes the objective and rubric review workflow.
type ProposalHandler struct {
	service proposalService
}

// NewProposalHandler constructs the handler.
func NewProposalHandler(service proposalService) *ProposalHandler {
	return &ProposalHandler{service: service}
}

// CreateObjective godoc
// @Summary Create a learning objective draft
// @Tags Planning
// @Accept json
// @Produce json
// @Param payload body dto.CreateObjectiveRequest true "Objective payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /planning/objectives [post]
func (h *ProposalHandler) CreateObjective(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateObjectiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid objective payload"))
		return
	}
	proposal, err := h.service.CreateObjective(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, proposal)
}

// CreateRubricLevel godoc
// @Summary Create a rubric level draft for an objective
// @Tags Planning
// @Accept json
// @Produce json
// @Param id path string true "Objective ID"
// @Param payload body dto.CreateRubricLevelRequest true "Rubric level payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /planning/objectives/{id}/rubrics [post]
func (h *ProposalHandler) CreateRubricLevel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateRubricLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rubric level payload"))
		return
	}
	proposal, err := h.service.CreateRubricLevel(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, proposal)
}

// List godoc
// @Summary List proposals of a subject group
// @Tags Planning
// @Produce json
// @Param disciplineId query string true "Discipline"
// @Param gradeLevel query string true "Grade level"
// @Param period query int false "Period"
// @Param skillCode query string false "Skill code"
// @Param kind query string false "OBJECTIVE or RUBRIC_LEVEL"
// @Param objectiveId query string false "Parent objective of rubric levels"
// @Param status query string false "Comma separated statuses"
// @Param includeArchived query bool false "Include archived history"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /planning/proposals [get]
func (h *ProposalHandler) List(c *gin.Context) {
	var query dto.ProposalQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	views, cacheHit, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)

	page, size, paged := pageFromQuery(c)
	if !paged {
		response.JSON(c, http.StatusOK, views, nil, meta)
		return
	}
	start, end := pageBounds(len(views), page, size)
	response.JSON(c, http.StatusOK, views[start:end], &models.Pagination{Page: page, PageSize: size, TotalCount: len(views)}, meta)
}

// Get godoc
// @Summary Get a proposal with its review history
// @Tags Planning
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /planning/proposals/{id} [get]
func (h *ProposalHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// UpdateDraft godoc
// @Summary Replace the content of a draft
// @Tags Planning
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param payload body dto.UpdateDraftRequest true "Draft content"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /planning/proposals/{id} [put]
func (h *ProposalHandler) UpdateDraft(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid draft payload"))
		return
	}
	proposal, err := h.service.UpdateDraft(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}

// Submit godoc
// @Summary Submit a draft for peer review
// @Tags Planning
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /planning/proposals/{id}/submit [post]
func (h *ProposalHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Submit(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Review godoc
// @Summary Approve, reject or edit a proposal
// @Tags Planning
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param payload body dto.ReviewProposalRequest true "Review action"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /planning/proposals/{id}/review [post]
func (h *ProposalHandler) Review(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReviewProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review payload"))
		return
	}
	result, err := h.service.Review(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Inbox godoc
// @Summary List pending proposals awaiting the caller's approval
// @Tags Planning
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /planning/inbox [get]
func (h *ProposalHandler) Inbox(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	views, err := h.service.Inbox(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, nil)
}
