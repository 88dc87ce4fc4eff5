package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
)

// Reading is one dated value in a biomarker trend.
type Reading struct {
	Date           time.Time       `json:"date"`
	Value          float64         `json:"value"`
	Unit           string          `json:"unit"`
	Flag           *constants.Flag `json:"flag"`
	SourceReportID uuid.UUID       `json:"source_report_id"`
}

// BiomarkerTrend is the running history of one biomarker for one patient.
// Derived fields are always recomputed from Readings.
type BiomarkerTrend struct {
	ID             uuid.UUID                `json:"id"`
	PatientID      uuid.UUID                `json:"patient_id"`
	ClinicID       uuid.UUID                `json:"clinic_id"`
	BiomarkerName  string                   `json:"biomarker_name"`
	Category       constants.Category       `json:"category"`
	Readings       []Reading                `json:"readings"`
	LatestValue    float64                  `json:"latest_value"`
	LatestUnit     string                   `json:"latest_unit"`
	LatestDate     time.Time                `json:"latest_date"`
	LatestFlag     *constants.Flag          `json:"latest_flag"`
	Min            float64                  `json:"min"`
	Max            float64                  `json:"max"`
	Average        float64                  `json:"average"`
	ReadingCount   int                      `json:"reading_count"`
	TrendDirection constants.TrendDirection `json:"trend_direction"`
	TrendPercent   float64                  `json:"trend_percent"`
	UpdatedAt      time.Time                `json:"updated_at"`
}
