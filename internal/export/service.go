package export

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/entity"
)

const (
	trendsSheet   = "Trends"
	readingsSheet = "Readings"
	dateLayout    = "2006-01-02"
)

// TrendLister is the read side of the trend store.
type TrendLister interface {
	ListTrends(ctx context.Context, patientID uuid.UUID, category *constants.Category) ([]entity.BiomarkerTrend, error)
}

// Service produces XLSX bytes for a patient's biomarker trends.
type Service struct {
	trends TrendLister
	logger *slog.Logger
}

func NewService(trends TrendLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{trends: trends, logger: logger}
}

// ExportTrendsXLSX returns a workbook with one summary row per biomarker on
// the Trends sheet and every dated reading on the Readings sheet. A nil
// category exports all categories.
func (s *Service) ExportTrendsXLSX(ctx context.Context, patientID uuid.UUID, category *constants.Category) ([]byte, error) {
	start := time.Now()

	trends, err := s.trends.ListTrends(ctx, patientID, category)
	if err != nil {
		return nil, fmt.Errorf("query trends: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// the default sheet becomes the summary
	if err := f.SetSheetName("Sheet1", trendsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(readingsSheet); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(trendsSheet)
	f.SetActiveSheet(idx)

	writeRow(f, trendsSheet, 1, []any{
		"Biomarker", "Category", "Latest Value", "Unit", "Latest Date", "Latest Flag",
		"Min", "Max", "Average", "Readings", "Direction", "Change %",
	})
	writeRow(f, readingsSheet, 1, []any{"Biomarker", "Date", "Value", "Unit", "Flag", "Report ID"})

	row, readingRow := 2, 2
	for _, t := range trends {
		writeRow(f, trendsSheet, row, []any{
			t.BiomarkerName,
			string(t.Category),
			t.LatestValue,
			t.LatestUnit,
			formatDate(t.LatestDate),
			flagText(t.LatestFlag),
			t.Min,
			t.Max,
			round2(t.Average),
			t.ReadingCount,
			string(t.TrendDirection),
			round2(t.TrendPercent),
		})
		row++

		for _, r := range t.Readings {
			reportID := ""
			if r.SourceReportID != uuid.Nil {
				reportID = r.SourceReportID.String()
			}
			writeRow(f, readingsSheet, readingRow, []any{
				t.BiomarkerName, formatDate(r.Date), r.Value, r.Unit, flagText(r.Flag), reportID,
			})
			readingRow++
		}
	}

	_ = f.SetColWidth(trendsSheet, "A", "A", 26)
	_ = f.SetColWidth(trendsSheet, "B", "B", 12)
	_ = f.SetColWidth(trendsSheet, "C", "L", 13)
	_ = f.SetColWidth(readingsSheet, "A", "A", 26)
	_ = f.SetColWidth(readingsSheet, "B", "E", 13)
	_ = f.SetColWidth(readingsSheet, "F", "F", 38)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"patient_id", patientID.String(),
		"trends", len(trends),
		"readings", readingRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func flagText(f *constants.Flag) string {
	if f == nil {
		return ""
	}
	return string(*f)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
