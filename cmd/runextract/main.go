// Command runextract runs text extraction and standardization on one local
// PDF without a database or workflow, for tuning the catalog and rules.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/catalog"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/document"
	"github.com/joseph-ayodele/labreports/internal/extract"
	"github.com/joseph-ayodele/labreports/internal/llm"
	"github.com/joseph-ayodele/labreports/internal/llm/openai"
	"github.com/joseph-ayodele/labreports/internal/standardize"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		password = flag.String("password", "", "PDF password")
		gender   = flag.String("gender", "", "male|female for reference ranges")
		rules    = flag.Bool("rules", false, "skip the model and use the rule parser only")
		times    = flag.Int("times", 1, "repeat the run to compare model output")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "runextract [-password P] [-rules] [-times N] <report.pdf>")
		os.Exit(2)
	}
	path := flag.Arg(0)
	cfg := common.LoadConfig()

	docs := document.NewService(document.Config{
		Pdftotext: cfg.Document.Pdftotext,
		Pdftoppm:  cfg.Document.Pdftoppm,
		Pdfimages: cfg.Document.Pdfimages,
	}, logger)
	if docs.CheckEncrypted(path) && *password == "" {
		logger.Error("pdf is encrypted, pass -password", "path", path)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	layout, err := docs.Analyze(ctx, path, *password)
	if err != nil {
		logger.Error("text extraction failed", "path", path, "error", err)
		os.Exit(1)
	}
	if layout.NeedsVision {
		logger.Warn("document looks scanned; text results may be sparse", "path", path)
	}
	parts := []string{layout.Text}
	if len(layout.Tables) > 0 {
		parts = append(parts, document.FormatTables(layout.Tables))
	}
	combined := strings.Join(parts, "\n")

	var model llm.ChatModel
	if !*rules && cfg.LLM.APIKey != "" {
		model = openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
	}
	cat := catalog.Default()
	extractor := extract.NewModelExtractor(model, cat, cfg.LLM.MaxInputChars, logger)
	engine := standardize.NewEngine(cat)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for i := 1; i <= *times; i++ {
		start := time.Now()
		res, err := extractor.ExtractBiomarkers(ctx, combined)
		if err != nil {
			logger.Error("extract.run.error", "iter", i, "error", err)
			continue
		}
		biomarkers := engine.ApplyAll(res.Fields.RawBiomarkers(), constants.ParseGender(*gender))
		logger.Info("extract.run.ok", "iter", i, "method", res.Method, "biomarkers", len(biomarkers), "elapsed_ms", time.Since(start).Milliseconds())
		_ = enc.Encode(map[string]any{
			"iter":        i,
			"method":      res.Method,
			"model":       res.ModelName,
			"lab_name":    res.Fields.LabName,
			"report_date": res.Fields.ReportDate,
			"report_type": res.Fields.ReportType,
			"biomarkers":  biomarkers,
			"dropped":     res.Dropped,
			"warnings":    res.Warnings,
		})
	}
}
