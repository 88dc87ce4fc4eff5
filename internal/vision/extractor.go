package vision

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/llm"
)

// Config tunes the vision extractor.
type Config struct {
	MaxTokens   int // per page, default 4000
	Concurrency int // pages in flight, default 4
}

// Extractor turns page images into lab report fields through a multimodal model.
type Extractor struct {
	model  llm.ChatModel
	schema map[string]any
	cfg    Config
	logger *slog.Logger
}

func NewExtractor(model llm.ChatModel, cfg Config, logger *slog.Logger) *Extractor {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		model:  model,
		schema: llm.BuildLabReportJSONSchema(constants.AsStringSlice()),
		cfg:    cfg,
		logger: logger,
	}
}

// PageResult is the outcome for one image. Error is set instead of returning
// a Go error so a bad page never aborts a multi-page document.
type PageResult struct {
	Path    string
	Fields  llm.LabReportFields
	Dropped []string
	Error   string
}

func (p PageResult) Failed() bool { return p.Error != "" }

// ExtractFromImage sends one image with the fixed instruction prompt and
// parses the reply.
func (e *Extractor) ExtractFromImage(ctx context.Context, imagePath string) PageResult {
	start := time.Now()
	name := filepath.Base(imagePath)

	img, err := llm.LoadImage(imagePath)
	if err != nil {
		e.logger.Warn("vision.page.load_failed", "image", name, "error", err)
		return PageResult{Path: imagePath, Error: err.Error()}
	}

	text, err := e.model.Complete(ctx, llm.Request{
		Prompt:    llm.VisionPrompt,
		Images:    []llm.Image{img},
		MaxTokens: e.cfg.MaxTokens,
		JSON:      true,
	})
	if err != nil {
		e.logger.Warn("vision.page.failed",
			"image", name, "model", e.model.Name(), "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return PageResult{Path: imagePath, Error: err.Error()}
	}

	res := e.ParseModelJSON(text)
	res.Path = imagePath
	if res.Failed() {
		e.logger.Warn("vision.page.malformed", "image", name, "error", res.Error, "response_len", len(text))
		return res
	}
	e.logger.Info("vision.page.ok",
		"image", name,
		"biomarkers", len(res.Fields.Biomarkers),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}

// ParseModelJSON applies JSON recovery, schema validation and lenient
// coercion to a raw model reply.
func (e *Extractor) ParseModelJSON(text string) PageResult {
	fields, dropped, err := llm.DecodeLabReport(text, e.schema, e.logger)
	if err != nil {
		return PageResult{Error: err.Error(), Dropped: dropped}
	}
	return PageResult{Fields: fields, Dropped: dropped}
}

// ExtractFromMultiple fans pages out to the model and merges the results in
// page order.
func (e *Extractor) ExtractFromMultiple(ctx context.Context, imagePaths []string) Result {
	start := time.Now()
	pages := make([]PageResult, len(imagePaths))

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, p := range imagePaths {
		g.Go(func() error {
			pages[i] = e.ExtractFromImage(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	merged := Merge(pages)
	e.logger.Info("vision.extract.done",
		"pages", len(imagePaths),
		"failed_pages", merged.FailedPages,
		"biomarkers", len(merged.Biomarkers),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return merged
}

// Result is the merged view over all pages of one document.
type Result struct {
	LabName     string                `json:"lab_name,omitempty"`
	ReportDate  string                `json:"report_date,omitempty"`
	ReportType  string                `json:"report_type"`
	PatientInfo map[string]string     `json:"patient_info,omitempty"`
	Biomarkers  []llm.BiomarkerFields `json:"biomarkers"`
	Errors      []string              `json:"errors,omitempty"`
	Pages       int                   `json:"pages"`
	FailedPages int                   `json:"failed_pages"`
}

// Merge combines page results. Scalars take the last non-empty value
// (report_type ignores OTHER); biomarkers are de-duplicated by lowercased
// name, later pages replacing earlier ones in place.
func Merge(pages []PageResult) Result {
	out := Result{
		ReportType:  string(constants.CategoryOther),
		PatientInfo: map[string]string{},
		Biomarkers:  []llm.BiomarkerFields{},
		Pages:       len(pages),
	}
	index := map[string]int{}

	for i, p := range pages {
		if p.Failed() {
			out.FailedPages++
			out.Errors = append(out.Errors, fmt.Sprintf("page %d (%s): %s", i+1, filepath.Base(p.Path), p.Error))
			continue
		}
		f := p.Fields
		if s := strings.TrimSpace(f.LabName); s != "" {
			out.LabName = s
		}
		if s := strings.TrimSpace(f.ReportDate); s != "" {
			out.ReportDate = s
		}
		if s := strings.TrimSpace(f.ReportType); s != "" && !strings.EqualFold(s, string(constants.CategoryOther)) {
			out.ReportType = s
		}
		for k, v := range f.PatientInfo {
			out.PatientInfo[k] = v
		}
		for _, b := range f.Biomarkers {
			key := strings.ToLower(strings.TrimSpace(b.Name))
			if j, ok := index[key]; ok {
				out.Biomarkers[j] = b
				continue
			}
			index[key] = len(out.Biomarkers)
			out.Biomarkers = append(out.Biomarkers, b)
		}
	}
	return out
}

// AllFailed reports whether every page failed.
func (r Result) AllFailed() bool {
	return r.Pages > 0 && r.FailedPages == r.Pages
}
