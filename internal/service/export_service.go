package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/export"
)

// Export formats.
const (
	ExportFormatPDF = "pdf"
	ExportFormatCSV = "csv"
)

var rubricHeaders = [models.MaxRubricLevel]string{"Beginner", "Basic", "Proficient", "Advanced"}

type curriculumSource interface {
	List(ctx context.Context, filter models.ProposalFilter) ([]models.Proposal, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered document ready to stream.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders the approved curriculum of a subject group.
type ExportService struct {
	repo   curriculumSource
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(repo curriculumSource, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{repo: repo, csv: csv, pdf: pdf, logger: logger}
}

// ApprovedCurriculum renders approved objectives in progression order with their approved
// rubric levels.
func (s *ExportService) ApprovedCurriculum(ctx context.Context, query dto.ExportQuery) (*ExportResult, error) {
	key := models.SubjectGroupKey{DisciplineID: strings.TrimSpace(query.DisciplineID), GradeLevel: strings.TrimSpace(query.GradeLevel), Period: query.Period}
	if key.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "discipline and grade level are required")
	}
	format := strings.ToLower(strings.TrimSpace(query.Format))
	if format == "" {
		format = ExportFormatPDF
	}
	if format != ExportFormatPDF && format != ExportFormatCSV {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", query.Format))
	}

	approved, err := s.repo.List(ctx, models.ProposalFilter{
		SubjectGroup: key,
		Statuses:     []models.ProposalStatus{models.ProposalStatusApproved},
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approved curriculum")
	}
	dataset := buildCurriculumDataset(approved)
	title := fmt.Sprintf("Approved curriculum %s grade %s", key.DisciplineID, key.GradeLevel)
	if key.Period > 0 {
		title = fmt.Sprintf("%s period %d", title, key.Period)
	}

	var result ExportResult
	switch format {
	case ExportFormatCSV:
		result.Payload, err = s.csv.Render(dataset)
		result.ContentType = "text/csv"
	default:
		result.Payload, err = s.pdf.Render(dataset, title)
		result.ContentType = "application/pdf"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	result.Filename = buildFilename(key, format)
	s.logger.Info("curriculum exported", zap.String("subject_group", key.String()), zap.String("format", format), zap.Int("rows", len(dataset.Rows)))
	return &result, nil
}

func buildCurriculumDataset(approved []models.Proposal) export.Dataset {
	headers := []string{"Skill", "Period", "Order", "Objective"}
	headers = append(headers, rubricHeaders[:]...)
	weights := map[string]float64{"Skill": 1.2, "Period": 0.6, "Order": 0.6, "Objective": 3}
	for _, h := range rubricHeaders {
		weights[h] = 2
	}

	levels := make(map[string][models.MaxRubricLevel]string)
	for _, p := range approved {
		if p.Kind != models.ProposalKindRubricLevel || p.ObjectiveID == nil || p.Level == nil {
			continue
		}
		if *p.Level < models.MinRubricLevel || *p.Level > models.MaxRubricLevel {
			continue
		}
		row := levels[*p.ObjectiveID]
		row[*p.Level-1] = p.Content
		levels[*p.ObjectiveID] = row
	}

	rows := make([]map[string]string, 0, len(approved))
	for _, p := range approved {
		if p.Kind != models.ProposalKindObjective {
			continue
		}
		row := map[string]string{
			"Skill":     p.SkillCode,
			"Period":    strconv.Itoa(p.Period),
			"Order":     strconv.Itoa(p.OrderIndex),
			"Objective": p.Content,
		}
		rubric := levels[p.ID]
		for i, h := range rubricHeaders {
			row[h] = rubric[i]
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows, Weights: weights}
}

func buildFilename(key models.SubjectGroupKey, format string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("curriculum_%s_%s_%d_%s.%s", sanitizeFilename(key.DisciplineID), sanitizeFilename(key.GradeLevel), key.Period, timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
