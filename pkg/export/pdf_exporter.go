package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth  = 190.0
	lineHeight = 5.0
)

// PDFExporter renders datasets into a portrait A4 table with wrapped cells.
type PDFExporter struct {
	now func() time.Time
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{now: time.Now}
}

// Render creates a PDF document with an optional title and table body. Long cell values
// wrap inside their column and the row grows to the tallest cell.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	generated := e.now().UTC().Format("2006-01-02 15:04 UTC")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s - page %d", generated, pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(strings.ToUpper(title)), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	widths := columnWidths(data)
	pdf.SetFont("Arial", "B", 9)
	writeRow(pdf, data.Headers, widths, func(header string) string { return tr(header) }, true)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		writeRow(pdf, data.Headers, widths, func(header string) string { return tr(row[header]) }, false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(data Dataset) []float64 {
	total := 0.0
	weights := make([]float64, len(data.Headers))
	for i, header := range data.Headers {
		weight := data.Weights[header]
		if weight <= 0 {
			weight = 1
		}
		weights[i] = weight
		total += weight
	}
	widths := make([]float64, len(weights))
	for i, weight := range weights {
		widths[i] = pageWidth * weight / total
	}
	return widths
}

func writeRow(pdf *gofpdf.Fpdf, headers []string, widths []float64, value func(string) string, header bool) {
	lines := make([][]string, len(headers))
	maxLines := 1
	for i, h := range headers {
		split := pdf.SplitLines([]byte(value(h)), widths[i]-2)
		lines[i] = make([]string, len(split))
		for j, l := range split {
			lines[i][j] = string(l)
		}
		if len(split) > maxLines {
			maxLines = len(split)
		}
	}
	height := float64(maxLines)*lineHeight + 2
	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	if pdf.GetY()+height > pageHeight-bottom {
		pdf.AddPage()
	}

	x, y := pdf.GetXY()
	align := "L"
	if header {
		align = "C"
	}
	for i := range headers {
		pdf.Rect(x, y, widths[i], height, "D")
		pdf.SetXY(x+1, y+1)
		pdf.MultiCell(widths[i]-2, lineHeight, strings.Join(lines[i], "\n"), "", align, false)
		x += widths[i]
		pdf.SetXY(x, y)
	}
	pdf.SetXY(pdf.GetX()-sum(widths), y+height)
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
