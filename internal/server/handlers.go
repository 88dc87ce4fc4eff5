package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/entity"
	"github.com/joseph-ayodele/labreports/internal/reports"
	"github.com/joseph-ayodele/labreports/internal/workflow"
)

// Workflow is the orchestrator surface the service drives.
type Workflow interface {
	Submit(ctx context.Context, req workflow.SubmitRequest) (*workflow.Response, error)
	ResumeWithPassword(ctx context.Context, threadID, password string) (*workflow.Response, error)
	ResumeWithDate(ctx context.Context, threadID, date string) (*workflow.Response, error)
	GetStatus(ctx context.Context, threadID string) (*workflow.StatusResponse, error)
}

// SourceResolver turns a submitted location into a local file.
type SourceResolver interface {
	Resolve(ctx context.Context, threadID, loc string) (string, error)
}

// Queries answers the read endpoints.
type Queries interface {
	ListReports(ctx context.Context, patientID uuid.UUID, limit, skip int) (*reports.ReportPage, error)
	GetReport(ctx context.Context, patientID, reportID uuid.UUID) (*entity.LabReportDetail, error)
	ListTrends(ctx context.Context, patientID uuid.UUID, category string) ([]entity.BiomarkerTrend, error)
	BiomarkerHistory(ctx context.Context, patientID uuid.UUID, name string) (*entity.BiomarkerTrend, error)
}

type LabReportsService struct {
	workflow Workflow
	sources  SourceResolver
	queries  Queries
	exports  *ExportHandler
	logger   *slog.Logger
}

var _ LabReportsServer = (*LabReportsService)(nil)

// NewLabReportsService wires the handlers. exports may be nil, in which case
// ExportTrends fails with FailedPrecondition.
func NewLabReportsService(wf Workflow, sources SourceResolver, queries Queries, exports *ExportHandler, logger *slog.Logger) *LabReportsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LabReportsService{workflow: wf, sources: sources, queries: queries, exports: exports, logger: logger}
}

func (s *LabReportsService) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	patientID, err := uuidField(in, "patient_id")
	if err != nil {
		return nil, err
	}
	clinicID, err := uuidField(in, "clinic_id")
	if err != nil {
		return nil, err
	}
	loc := str(in, "file_path")
	if loc == "" {
		return nil, common.InvalidArgumentError("file_path is required")
	}
	threadID := str(in, "thread_id")
	if threadID == "" {
		threadID = uuid.New().String()
	} else if err := s.threadFree(ctx, threadID); err != nil {
		return nil, err
	}

	path, err := s.sources.Resolve(ctx, threadID, loc)
	if err != nil {
		s.logger.Error("submit.source.failed", "thread_id", threadID, "file_path", loc, "error", err)
		return nil, common.ToStatus(err)
	}

	resp, err := s.workflow.Submit(ctx, workflow.SubmitRequest{
		ThreadID:   threadID,
		Path:       path,
		PatientID:  patientID,
		ClinicID:   clinicID,
		ReportDate: str(in, "report_date"),
		Password:   in.GetFields()["password"].GetStringValue(),
		Gender:     constants.ParseGender(str(in, "gender")),
	})
	switch {
	case errors.Is(err, common.ErrAlreadyExists):
		s.logger.Info("submit.duplicate", "thread_id", threadID)
		return nil, common.ToStatus(err)
	case err != nil:
		s.logger.Error("submit.failed", "thread_id", threadID, "error", err)
		return nil, common.ToStatus(err)
	}
	return ToStruct(resp)
}

// threadFree rejects a caller-supplied thread id before anything is staged for it.
func (s *LabReportsService) threadFree(ctx context.Context, threadID string) error {
	_, err := s.workflow.GetStatus(ctx, threadID)
	switch {
	case err == nil:
		s.logger.Info("submit.duplicate", "thread_id", threadID)
		return common.ToStatus(common.NewAppError(workflow.CodeWorkflowExists, "thread_id already in use", common.ErrAlreadyExists))
	case errors.Is(err, common.ErrNotFound):
		return nil
	default:
		s.logger.Error("submit.lookup.failed", "thread_id", threadID, "error", err)
		return common.ToStatus(err)
	}
}

func (s *LabReportsService) ResumeWithPassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	threadID := str(in, "thread_id")
	if threadID == "" {
		return nil, common.InvalidArgumentError("thread_id is required")
	}
	resp, err := s.workflow.ResumeWithPassword(ctx, threadID, in.GetFields()["password"].GetStringValue())
	if err != nil {
		s.logger.Warn("resume.password.failed", "thread_id", threadID, "error", err)
		return nil, common.ToStatus(err)
	}
	return ToStruct(resp)
}

func (s *LabReportsService) ResumeWithDate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	threadID := str(in, "thread_id")
	if threadID == "" {
		return nil, common.InvalidArgumentError("thread_id is required")
	}
	resp, err := s.workflow.ResumeWithDate(ctx, threadID, str(in, "report_date"))
	if err != nil {
		s.logger.Warn("resume.date.failed", "thread_id", threadID, "error", err)
		return nil, common.ToStatus(err)
	}
	return ToStruct(resp)
}

func (s *LabReportsService) GetStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.workflow.GetStatus(ctx, str(in, "thread_id"))
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return ToStruct(resp)
}

func (s *LabReportsService) ListReports(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	patientID, err := uuidField(in, "patient_id")
	if err != nil {
		return nil, err
	}
	limit, err := intField(in, "limit", reports.DefaultLimit)
	if err != nil {
		return nil, err
	}
	skip, err := intField(in, "skip", 0)
	if err != nil {
		return nil, err
	}
	page, err := s.queries.ListReports(ctx, patientID, limit, skip)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	for i := range page.Reports {
		page.Reports[i].RawText = ""
	}
	return ToStruct(page)
}

func (s *LabReportsService) GetReport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	patientID, err := uuidField(in, "patient_id")
	if err != nil {
		return nil, err
	}
	reportID, err := uuidField(in, "report_id")
	if err != nil {
		return nil, err
	}
	d, err := s.queries.GetReport(ctx, patientID, reportID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return ToStruct(d)
}

func (s *LabReportsService) ListTrends(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	patientID, err := uuidField(in, "patient_id")
	if err != nil {
		return nil, err
	}
	trends, err := s.queries.ListTrends(ctx, patientID, str(in, "category"))
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return ToStruct(map[string]any{"patient_id": patientID, "trends": trends})
}

func (s *LabReportsService) BiomarkerHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	patientID, err := uuidField(in, "patient_id")
	if err != nil {
		return nil, err
	}
	t, err := s.queries.BiomarkerHistory(ctx, patientID, str(in, "biomarker_name"))
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return ToStruct(t)
}

func (s *LabReportsService) ExportTrends(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.exports == nil {
		return nil, common.FailedPreconditionError("export is not configured")
	}
	return s.exports.ExportTrends(ctx, in)
}
