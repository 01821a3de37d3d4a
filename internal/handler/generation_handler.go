package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/response"
)

type generationService interface {
	GenerateObjectives(ctx context.Context, req dto.GenerateObjectivesRequest, actor *models.JWTClaims) (*dto.GenerateObjectivesResponse, error)
	GenerateRubric(ctx context.Context, objectiveID string, actor *models.JWTClaims) (*dto.GenerateRubricResponse, error)
}

// GenerationHandler triggers draft generation.
type GenerationHandler struct {
	service generationService
}

// NewGenerationHandler constructs the handler.
func NewGenerationHandler(service generationService) *GenerationHandler {
	return &GenerationHandler{service: service}
}

// GenerateObjectives godoc
// @Summary Generate learning objective drafts for a skill
// @Tags Generation
// @Accept json
// @Produce json
// @Param payload body dto.GenerateObjectivesRequest true "Generation request"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /planning/objectives/generate [post]
func (h *GenerationHandler) GenerateObjectives(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "draft generation is not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.GenerateObjectivesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid generation payload"))
		return
	}
	result, err := h.service.GenerateObjectives(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// GenerateRubric godoc
// @Summary Generate the four rubric levels of an objective and submit them
// @Tags Generation
// @Produce json
// @Param id path string true "Objective ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /planning/objectives/{id}/rubrics/generate [post]
func (h *GenerationHandler) GenerateRubric(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "draft generation is not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.GenerateRubric(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}
