package workflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/document"
	"github.com/joseph-ayodele/labreports/internal/entity"
	"github.com/joseph-ayodele/labreports/internal/extract"
	"github.com/joseph-ayodele/labreports/internal/trend"
	"github.com/joseph-ayodele/labreports/internal/vision"
)

// Documents is the subset of document.Service the workflow drives.
type Documents interface {
	CheckEncrypted(path string) bool
	DecryptToFile(path, out, password string) error
	PageCount(path, password string) (int, error)
	Analyze(ctx context.Context, path, password string) (document.Layout, error)
	RenderPagesToImages(ctx context.Context, path, outDir, password string, zoom float64) ([]string, error)
}

// VisionExtractor reads biomarkers from page images.
type VisionExtractor interface {
	ExtractFromMultiple(ctx context.Context, imagePaths []string) vision.Result
}

// Standardizer maps raw candidates onto catalog names and flags.
type Standardizer interface {
	ApplyAll(raws []entity.RawBiomarker, gender constants.Gender) []entity.Biomarker
}

// ReportStore persists lab reports and their biomarker rows.
type ReportStore interface {
	CreateReport(ctx context.Context, r *entity.LabReport) error
	AddBiomarkers(ctx context.Context, reportID uuid.UUID, rows []entity.BiomarkerRecord) error
	MarkFailed(ctx context.Context, reportID uuid.UUID, message string) error
}

// TrendUpdater folds one reading into a biomarker trend.
type TrendUpdater interface {
	UpsertReading(ctx context.Context, in trend.ReadingInput) (*entity.BiomarkerTrend, error)
}

// Deps bundles the collaborators of the orchestrator.
type Deps struct {
	Documents   Documents
	Vision      VisionExtractor
	Text        extract.BiomarkerExtractor
	Standardize Standardizer
	Reports     ReportStore
	Trends      TrendUpdater
	Checkpoints CheckpointStore
}
