package server

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/entity"
	"github.com/joseph-ayodele/labreports/internal/reports"
	"github.com/joseph-ayodele/labreports/internal/workflow"
)

// Client calls LabReportsService and decodes the replies into the workflow
// and entity types. It satisfies ingest.Submitter.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// ExportResult is the decoded ExportTrends reply.
type ExportResult struct {
	PatientID uuid.UUID `json:"patient_id"`
	Filename  string    `json:"filename"`
	XLSX      []byte    `json:"xlsx"` // base64 in JSON
	URI       string    `json:"uri,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, req map[string]any, out any, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return common.InvalidArgumentErrorf("encode request: %v", err)
	}
	reply := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, reply, opts...); err != nil {
		return err
	}
	return FromStruct(reply, out)
}

func (c *Client) Submit(ctx context.Context, req workflow.SubmitRequest) (*workflow.Response, error) {
	body := map[string]any{
		"file_path":  req.Path,
		"patient_id": req.PatientID.String(),
		"clinic_id":  req.ClinicID.String(),
	}
	setIf(body, "thread_id", req.ThreadID)
	setIf(body, "report_date", req.ReportDate)
	setIf(body, "password", req.Password)
	setIf(body, "gender", string(req.Gender))

	var out workflow.Response
	if err := c.call(ctx, MethodSubmit, body, &out); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, common.NewAppError(workflow.CodeWorkflowExists, status.Convert(err).Message(), common.ErrAlreadyExists)
		}
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResumeWithPassword(ctx context.Context, threadID, password string) (*workflow.Response, error) {
	var out workflow.Response
	if err := c.call(ctx, MethodResumeWithPassword, map[string]any{"thread_id": threadID, "password": password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResumeWithDate(ctx context.Context, threadID, date string) (*workflow.Response, error) {
	var out workflow.Response
	if err := c.call(ctx, MethodResumeWithDate, map[string]any{"thread_id": threadID, "report_date": date}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetStatus(ctx context.Context, threadID string) (*workflow.StatusResponse, error) {
	var out workflow.StatusResponse
	if err := c.call(ctx, MethodGetStatus, map[string]any{"thread_id": threadID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListReports(ctx context.Context, patientID uuid.UUID, limit, skip int) (*reports.ReportPage, error) {
	var out reports.ReportPage
	body := map[string]any{"patient_id": patientID.String(), "limit": limit, "skip": skip}
	if err := c.call(ctx, MethodListReports, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetReport(ctx context.Context, patientID, reportID uuid.UUID) (*entity.LabReportDetail, error) {
	var out entity.LabReportDetail
	body := map[string]any{"patient_id": patientID.String(), "report_id": reportID.String()}
	if err := c.call(ctx, MethodGetReport, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTrends(ctx context.Context, patientID uuid.UUID, category string) ([]entity.BiomarkerTrend, error) {
	var out struct {
		Trends []entity.BiomarkerTrend `json:"trends"`
	}
	body := map[string]any{"patient_id": patientID.String()}
	setIf(body, "category", category)
	if err := c.call(ctx, MethodListTrends, body, &out); err != nil {
		return nil, err
	}
	return out.Trends, nil
}

func (c *Client) BiomarkerHistory(ctx context.Context, patientID uuid.UUID, name string) (*entity.BiomarkerTrend, error) {
	var out entity.BiomarkerTrend
	body := map[string]any{"patient_id": patientID.String(), "biomarker_name": name}
	if err := c.call(ctx, MethodBiomarkerHistory, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ExportTrends(ctx context.Context, patientID uuid.UUID, category string) (*ExportResult, error) {
	var out ExportResult
	body := map[string]any{"patient_id": patientID.String()}
	setIf(body, "category", category)
	if err := c.call(ctx, MethodExportTrends, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func setIf(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}
