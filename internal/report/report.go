// Package report renders the company report of saved analyses.
package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/onfert/analyst/internal/models"
)

// SummaryLength is the number of reasoning characters shown per row.
const SummaryLength = 100

const sheetName = "Relatório"

// Headers are the report columns.
var Headers = []string{"Data", "Cultura", "pH / N / P / K", "Recomendação", "Confiança", "Resumo do Raciocínio"}

// Row is one formatted report line.
type Row struct {
	ID             string `json:"id"`
	Date           string `json:"date"`
	Crop           string `json:"crop"`
	Nutrients      string `json:"nutrients"`
	Recommendation string `json:"recommendation"`
	Confidence     string `json:"confidence"`
	Summary        string `json:"summary"`
}

// Rows formats analyses in the given order. Dates are shown in loc, or in
// local time when loc is nil.
func Rows(analyses []*models.SavedAnalysis, loc *time.Location) []Row {
	if loc == nil {
		loc = time.Local
	}
	rows := make([]Row, 0, len(analyses))
	for _, a := range analyses {
		rows = append(rows, Row{
			ID:             a.ID,
			Date:           a.Timestamp.In(loc).Format("02/01/2006"),
			Crop:           a.SoilData.Crop,
			Nutrients:      a.SoilData.NPK(),
			Recommendation: string(a.Result.ProductRecommendation),
			Confidence:     FormatConfidence(a.Result.Confidence),
			Summary:        a.ReasoningSummary(SummaryLength),
		})
	}
	return rows
}

// FormatConfidence renders a 0..1 confidence as a whole percentage.
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(c*100)))
}

// WriteXLSX writes the report as an Excel workbook.
func WriteXLSX(w io.Writer, analyses []*models.SavedAnalysis, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, r := range Rows(analyses, loc) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{r.Date, r.Crop, r.Nutrients, r.Recommendation, r.Confidence, r.Summary}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	for col, width := range map[string]float64{"A": 12, "B": 16, "C": 22, "D": 16, "E": 12, "F": 80} {
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
