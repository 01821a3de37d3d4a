package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/service"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/response"
)

type exportService interface {
	ApprovedCurriculum(ctx context.Context, query dto.ExportQuery) (*service.ExportResult, error)
}

// ExportHandler streams the approved curriculum as a document.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Curriculum godoc
// @Summary Download the approved curriculum of a subject group
// @Tags Export
// @Produce application/pdf
// @Produce text/csv
// @Param disciplineId query string true "Discipline"
// @Param gradeLevel query string true "Grade level"
// @Param period query int false "Period"
// @Param format query string false "pdf or csv"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /planning/export [get]
func (h *ExportHandler) Curriculum(c *gin.Context) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	result, err := h.service.ApprovedCurriculum(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Payload)
}
