package llm

import (
	"context"

	"github.com/joseph-ayodele/labreports/internal/entity"
)

// Image is an inline image attached to a model request.
type Image struct {
	MIMEType string
	Data     []byte
}

// Request is a single prompt to a chat model. Images, when present, are sent
// alongside the prompt in the same user turn.
type Request struct {
	System    string
	Prompt    string
	Images    []Image
	MaxTokens int
	JSON      bool // ask the backend for a JSON object response
}

// ChatModel is the interface the vision and text extractors depend on.
type ChatModel interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// BiomarkerFields is one measurement as returned by the model.
type BiomarkerFields struct {
	Name         string   `json:"name"`
	Value        float64  `json:"value"`
	Unit         string   `json:"unit,omitempty"`
	ReferenceMin *float64 `json:"reference_min,omitempty"`
	ReferenceMax *float64 `json:"reference_max,omitempty"`
	Flag         string   `json:"flag,omitempty"`
}

// LabReportFields is the normalized shape we want from the model.
type LabReportFields struct {
	LabName     string            `json:"lab_name,omitempty"`
	ReportDate  string            `json:"report_date,omitempty"` // YYYY-MM-DD
	ReportType  string            `json:"report_type,omitempty"`
	PatientInfo map[string]string `json:"patient_info,omitempty"`
	Biomarkers  []BiomarkerFields `json:"biomarkers"`
}

// Raw converts model output into standardization input.
func (b BiomarkerFields) Raw() entity.RawBiomarker {
	return entity.RawBiomarker{
		Name:         b.Name,
		Value:        b.Value,
		Unit:         b.Unit,
		ReferenceMin: b.ReferenceMin,
		ReferenceMax: b.ReferenceMax,
		Flag:         b.Flag,
	}
}

// RawBiomarkers converts every biomarker in the report.
func (f LabReportFields) RawBiomarkers() []entity.RawBiomarker {
	out := make([]entity.RawBiomarker, 0, len(f.Biomarkers))
	for _, b := range f.Biomarkers {
		out = append(out, b.Raw())
	}
	return out
}
