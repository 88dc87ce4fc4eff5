package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
)

// LabReport represents a processed lab report for data transfer between layers.
type LabReport struct {
	ID           uuid.UUID                `json:"id"`
	PatientID    uuid.UUID                `json:"patient_id"`
	ClinicID     uuid.UUID                `json:"clinic_id"`
	ThreadID     string                   `json:"thread_id"`
	ReportDate   time.Time                `json:"report_date"`
	LabName      string                   `json:"lab_name"`
	ReportType   constants.ReportType     `json:"report_type"`
	SourceKind   string                   `json:"source_kind"`
	SourcePath   string                   `json:"source_path"`
	Status       constants.WorkflowStatus `json:"status"`
	ErrorMessage *string                  `json:"error_message,omitempty"`
	RawText      string                   `json:"raw_text,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	ProcessedAt  *time.Time               `json:"processed_at,omitempty"`
}

// LabReportDetail is a report together with its biomarker rows.
type LabReportDetail struct {
	LabReport
	Biomarkers []BiomarkerRecord `json:"biomarkers"`
}
