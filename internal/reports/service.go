// Package reports answers read queries over persisted lab reports and
// biomarker trends.
package reports

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/entity"
)

const DefaultLimit = 50

type ReportReader interface {
	GetReport(ctx context.Context, id uuid.UUID) (*entity.LabReportDetail, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, skip int) ([]entity.LabReport, int, error)
}

type TrendReader interface {
	GetTrend(ctx context.Context, patientID uuid.UUID, biomarkerName string) (*entity.BiomarkerTrend, error)
	ListTrends(ctx context.Context, patientID uuid.UUID, category *constants.Category) ([]entity.BiomarkerTrend, error)
}

// ReportPage is one page of a patient's reports plus the unpaged total.
type ReportPage struct {
	Reports []entity.LabReport `json:"reports"`
	Total   int                `json:"total"`
}

type Service struct {
	reports ReportReader
	trends  TrendReader
	logger  *slog.Logger
}

func NewService(reports ReportReader, trends TrendReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reports: reports, trends: trends, logger: logger}
}

// ListReports returns a patient's reports, newest report date first. A
// non-positive limit means DefaultLimit.
func (s *Service) ListReports(ctx context.Context, patientID uuid.UUID, limit, skip int) (*ReportPage, error) {
	if patientID == uuid.Nil {
		return nil, common.NewAppError("INVALID_PATIENT", "patient_id is required", common.ErrInvalidInput)
	}
	if skip < 0 {
		return nil, common.NewAppError("INVALID_SKIP", "skip must not be negative", common.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	start := time.Now()
	list, total, err := s.reports.ListByPatient(ctx, patientID, limit, skip)
	if err != nil {
		s.logger.Error("reports.list.failed", "patient_id", patientID, "error", err)
		return nil, err
	}
	s.logger.Info("reports.list.ok",
		"patient_id", patientID,
		"count", len(list),
		"total", total,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &ReportPage{Reports: list, Total: total}, nil
}

// GetReport returns the report with its biomarkers. A report owned by another
// patient is reported as not found.
func (s *Service) GetReport(ctx context.Context, patientID, reportID uuid.UUID) (*entity.LabReportDetail, error) {
	d, err := s.reports.GetReport(ctx, reportID)
	if errors.Is(err, common.ErrNotFound) || (err == nil && d.PatientID != patientID) {
		return nil, common.NewAppError("REPORT_NOT_FOUND", "Report not found", common.ErrNotFound)
	}
	if err != nil {
		s.logger.Error("reports.get.failed", "report_id", reportID, "error", err)
		return nil, err
	}
	return d, nil
}

// ListTrends returns every trend of the patient, optionally restricted to one
// category. Category labels are canonicalized; unknown labels are rejected.
func (s *Service) ListTrends(ctx context.Context, patientID uuid.UUID, category string) ([]entity.BiomarkerTrend, error) {
	if patientID == uuid.Nil {
		return nil, common.NewAppError("INVALID_PATIENT", "patient_id is required", common.ErrInvalidInput)
	}
	var filter *constants.Category
	if c := strings.TrimSpace(category); c != "" {
		cat, ok := constants.Canonicalize(c)
		if !ok {
			return nil, common.NewAppError("INVALID_CATEGORY", "unknown category "+c, common.ErrInvalidInput)
		}
		filter = &cat
	}
	out, err := s.trends.ListTrends(ctx, patientID, filter)
	if err != nil {
		s.logger.Error("reports.trends.failed", "patient_id", patientID, "error", err)
		return nil, err
	}
	return out, nil
}

// BiomarkerHistory returns the full trend of one biomarker. The name is
// matched case-insensitively against the canonical name.
func (s *Service) BiomarkerHistory(ctx context.Context, patientID uuid.UUID, name string) (*entity.BiomarkerTrend, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if patientID == uuid.Nil || key == "" {
		return nil, common.NewAppError("INVALID_INPUT", "patient_id and biomarker name are required", common.ErrInvalidInput)
	}
	t, err := s.trends.GetTrend(ctx, patientID, key)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewAppError("BIOMARKER_NOT_FOUND", "Biomarker not found", common.ErrNotFound)
	}
	if err != nil {
		s.logger.Error("reports.history.failed", "patient_id", patientID, "biomarker", key, "error", err)
		return nil, err
	}
	return t, nil
}
