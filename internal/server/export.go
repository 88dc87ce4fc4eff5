package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/common"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// TrendExporter renders a patient's trends as an XLSX workbook.
type TrendExporter interface {
	ExportTrendsXLSX(ctx context.Context, patientID uuid.UUID, category *constants.Category) ([]byte, error)
}

// ObjectUploader stores an export in Cloud Storage.
type ObjectUploader interface {
	UploadOnce(ctx context.Context, bucket, object, contentType string, content io.Reader) (string, error)
}

// ExportHandler serves ExportTrends. When a bucket is configured the workbook
// is also written to gs://bucket/exports/<patient_id>/<timestamp>.xlsx.
type ExportHandler struct {
	svc      TrendExporter
	uploader ObjectUploader
	bucket   string
	logger   *slog.Logger
	now      func() time.Time
}

func NewExportHandler(svc TrendExporter, uploader ObjectUploader, bucket string, logger *slog.Logger) *ExportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{svc: svc, uploader: uploader, bucket: bucket, logger: logger, now: time.Now}
}

func (h *ExportHandler) ExportTrends(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	patientID, err := uuidField(in, "patient_id")
	if err != nil {
		return nil, err
	}
	var category *constants.Category
	if c := str(in, "category"); c != "" {
		cat, ok := constants.Canonicalize(c)
		if !ok {
			return nil, common.InvalidArgumentErrorf("unknown category %q", c)
		}
		category = &cat
	}

	xlsx, err := h.svc.ExportTrendsXLSX(ctx, patientID, category)
	if err != nil {
		h.logger.Error("export.xlsx.failed", "patient_id", patientID, "error", err)
		return nil, common.ToStatus(err)
	}

	name := fmt.Sprintf("trends_%s_%s.xlsx", patientID, h.now().UTC().Format("20060102T150405Z"))
	out := ExportResult{PatientID: patientID, Filename: name, XLSX: xlsx}
	if h.bucket != "" && h.uploader != nil {
		uri, err := h.uploader.UploadOnce(ctx, h.bucket, "exports/"+patientID.String()+"/"+name, xlsxContentType, bytes.NewReader(xlsx))
		if err != nil {
			h.logger.Error("export.upload.failed", "patient_id", patientID, "error", err)
			return nil, common.InternalErrorf("upload export: %v", err)
		}
		out.URI = uri
	}
	return ToStruct(out)
}
