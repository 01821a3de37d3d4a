package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/pkg/response"
)

type lineageService interface {
	GetLineage(ctx context.Context, id string) (*dto.LineageResponse, error)
}

// LineageHandler resolves the archived ancestor of a proposal.
type LineageHandler struct {
	service lineageService
}

// NewLineageHandler constructs the handler.
func NewLineageHandler(service lineageService) *LineageHandler {
	return &LineageHandler{service: service}
}

// Get godoc
// @Summary Find the archived record a proposal revises
// @Tags Planning
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /planning/proposals/{id}/lineage [get]
func (h *LineageHandler) Get(c *gin.Context) {
	lineage, err := h.service.GetLineage(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lineage, nil)
}
