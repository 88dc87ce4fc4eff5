package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/catalog"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/llm"
)

// DefaultMaxInputChars bounds the text sent to the model.
const DefaultMaxInputChars = 8000

// ModelExtractor asks a chat model for biomarkers and falls back to the rule
// parser when no model is configured, the call fails, or the model finds none.
type ModelExtractor struct {
	model    llm.ChatModel
	rules    *RuleParser
	schema   map[string]any
	types    []string
	maxChars int
	logger   *slog.Logger
}

func NewModelExtractor(model llm.ChatModel, cat *catalog.Catalog, maxChars int, logger *slog.Logger) *ModelExtractor {
	if maxChars <= 0 {
		maxChars = DefaultMaxInputChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	types := constants.AsStringSlice()
	return &ModelExtractor{
		model:    model,
		rules:    NewRuleParser(cat),
		schema:   llm.BuildLabReportJSONSchema(types),
		types:    types,
		maxChars: maxChars,
		logger:   logger,
	}
}

func (x *ModelExtractor) ExtractBiomarkers(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("%w: no text to extract from", common.ErrExtractionFailure)
	}
	rid := uuid.New().String()
	start := time.Now()

	var warnings []string
	if x.model != nil {
		res, err := x.fromModel(ctx, text)
		if err == nil && len(res.Fields.Biomarkers) > 0 {
			if res.Fields.ReportDate == "" {
				res.Fields.ReportDate, _ = FindReportDate(text)
			}
			x.logger.Info("extract.model.ok",
				"req_id", rid,
				"model", res.ModelName,
				"biomarkers", len(res.Fields.Biomarkers),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return res, nil
		}
		if err != nil {
			x.logger.Warn("extract.model.failed", "req_id", rid, "error", err)
			warnings = append(warnings, "Agent extraction failed: "+err.Error())
		} else {
			x.logger.Warn("extract.model.empty", "req_id", rid)
		}
		if ctx.Err() != nil {
			return Result{Warnings: warnings}, ctx.Err()
		}
	}

	fields := x.rules.Parse(text)
	if d, ok := FindReportDate(text); ok {
		fields.ReportDate = d
	}
	x.logger.Info("extract.rules.ok",
		"req_id", rid,
		"biomarkers", len(fields.Biomarkers),
		"report_type", fields.ReportType,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{Fields: fields, Method: MethodRules, Warnings: warnings}, nil
}

func (x *ModelExtractor) fromModel(ctx context.Context, text string) (Result, error) {
	reply, err := x.model.Complete(ctx, llm.Request{
		System: llm.BuildTextSystemPrompt(x.types, x.schema),
		Prompt: llm.BuildTextUserPrompt(text, x.maxChars),
		JSON:   true,
	})
	if err != nil {
		return Result{}, err
	}
	fields, dropped, err := llm.DecodeLabReport(reply, x.schema, x.logger)
	if err != nil {
		return Result{}, err
	}
	return Result{Fields: fields, Method: MethodModel, ModelName: x.model.Name(), Dropped: dropped}, nil
}
