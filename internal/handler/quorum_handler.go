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

type quorumService interface {
	Group(ctx context.Context, key models.SubjectGroupKey) (*models.QuorumGroup, error)
}

// QuorumHandler reports who reviews a subject group.
type QuorumHandler struct {
	service quorumService
}

// NewQuorumHandler constructs the handler.
func NewQuorumHandler(service quorumService) *QuorumHandler {
	return &QuorumHandler{service: service}
}

// Get godoc
// @Summary Resolve the reviewers and quorum of a subject group
// @Tags Planning
// @Produce json
// @Param disciplineId query string true "Discipline"
// @Param gradeLevel query string true "Grade level"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /planning/quorum [get]
func (h *QuorumHandler) Get(c *gin.Context) {
	var query dto.QuorumQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	group, err := h.service.Group(c.Request.Context(), models.SubjectGroupKey{DisciplineID: query.DisciplineID, GradeLevel: query.GradeLevel})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}
