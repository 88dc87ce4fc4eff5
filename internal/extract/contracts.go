package extract

import (
	"context"

	"github.com/joseph-ayodele/labreports/internal/llm"
)

// Method names how biomarkers were obtained from text.
const (
	MethodModel = "model"
	MethodRules = "rules"
)

// BiomarkerExtractor is the text -> biomarkers stage used when vision produced nothing.
type BiomarkerExtractor interface {
	ExtractBiomarkers(ctx context.Context, text string) (Result, error)
}

type Result struct {
	Fields    llm.LabReportFields
	Method    string
	ModelName string
	Dropped   []string // sanitizer drops
	Warnings  []string // non-fatal problems, surfaced into workflow errors
}
