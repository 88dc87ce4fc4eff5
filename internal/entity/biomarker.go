package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
)

// RawBiomarker is a candidate measurement as produced by a model or parser,
// before standardization.
type RawBiomarker struct {
	Name         string   `json:"name"`
	Value        float64  `json:"value"`
	Unit         string   `json:"unit,omitempty"`
	ReferenceMin *float64 `json:"reference_min,omitempty"`
	ReferenceMax *float64 `json:"reference_max,omitempty"`
	Flag         string   `json:"flag,omitempty"`
}

// Biomarker is one standardized measurement. Never mutated after creation.
type Biomarker struct {
	Name             string             `json:"name"`
	StandardizedName string             `json:"standardized_name"`
	Category         constants.Category `json:"category"`
	Value            float64            `json:"value"`
	Unit             string             `json:"unit"`
	ReferenceMin     *float64           `json:"reference_min"`
	ReferenceMax     *float64           `json:"reference_max"`
	Flag             *constants.Flag    `json:"flag"`
	IsAbnormal       bool               `json:"is_abnormal"`
}

// BiomarkerRecord is a persisted biomarker row owned by one lab report.
type BiomarkerRecord struct {
	Biomarker
	ID        uuid.UUID `json:"id"`
	ReportID  uuid.UUID `json:"report_id"`
	PatientID uuid.UUID `json:"patient_id"`
	ClinicID  uuid.UUID `json:"clinic_id"`
	TestDate  time.Time `json:"test_date"`
	CreatedAt time.Time `json:"created_at"`
}
