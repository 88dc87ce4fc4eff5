package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/entity"
	"github.com/joseph-ayodele/labreports/internal/reports"
	"github.com/joseph-ayodele/labreports/internal/workflow"
)

type fakeWorkflow struct {
	submitted []workflow.SubmitRequest
	reportID  uuid.UUID
}

func (f *fakeWorkflow) Submit(_ context.Context, req workflow.SubmitRequest) (*workflow.Response, error) {
	for _, s := range f.submitted {
		if s.ThreadID == req.ThreadID {
			return nil, common.NewAppError(workflow.CodeWorkflowExists, "thread_id already in use", common.ErrAlreadyExists)
		}
	}
	f.submitted = append(f.submitted, req)
	if req.Password == "" {
		return &workflow.Response{
			Status:   constants.StatusWaitingPassword,
			ThreadID: req.ThreadID,
			Message:  "PDF is encrypted. Please provide the password.",
			Prompt:   &workflow.Prompt{ThreadID: req.ThreadID, Message: "PDF is encrypted. Please provide the password."},
		}, nil
	}
	id := f.reportID
	return &workflow.Response{Status: constants.StatusCompleted, ThreadID: req.ThreadID, ReportID: &id, Message: "Successfully processed 1 biomarkers"}, nil
}

func (f *fakeWorkflow) ResumeWithPassword(_ context.Context, threadID, password string) (*workflow.Response, error) {
	if password != "secret" {
		return &workflow.Response{Status: constants.StatusWaitingPassword, ThreadID: threadID, Message: "Incorrect password"}, nil
	}
	id := f.reportID
	return &workflow.Response{Status: constants.StatusCompleted, ThreadID: threadID, ReportID: &id}, nil
}

func (f *fakeWorkflow) ResumeWithDate(_ context.Context, threadID, _ string) (*workflow.Response, error) {
	return nil, common.NewAppError("WORKFLOW_NOT_FOUND", "workflow not found: "+threadID, common.ErrNotFound)
}

func (f *fakeWorkflow) GetStatus(_ context.Context, threadID string) (*workflow.StatusResponse, error) {
	if threadID == "t-broken" {
		return nil, fmt.Errorf("%w: connection reset", common.ErrPersistenceFailure)
	}
	for _, s := range f.submitted {
		if s.ThreadID == threadID {
			return &workflow.StatusResponse{ThreadID: threadID, Status: constants.StatusWaitingPassword, Errors: []string{}}, nil
		}
	}
	return nil, common.NewAppError("WORKFLOW_NOT_FOUND", "Workflow not found", common.ErrNotFound)
}

type passthroughResolver struct {
	mu     sync.Mutex
	staged []string
}

func (r *passthroughResolver) Resolve(_ context.Context, threadID string, loc string) (string, error) {
	r.mu.Lock()
	r.staged = append(r.staged, threadID)
	r.mu.Unlock()
	if loc == "report.docx" {
		return "", common.NewAppError("UNSUPPORTED_FILE", "unsupported file type: .docx", common.ErrInvalidInput)
	}
	return "/uploads/" + loc, nil
}

type fakeQueries struct {
	trend entity.BiomarkerTrend
}

func (q *fakeQueries) ListReports(_ context.Context, patientID uuid.UUID, limit, skip int) (*reports.ReportPage, error) {
	return &reports.ReportPage{
		Reports: []entity.LabReport{{ID: uuid.New(), PatientID: patientID, RawText: "long raw text"}},
		Total:   limit + skip,
	}, nil
}

func (q *fakeQueries) GetReport(context.Context, uuid.UUID, uuid.UUID) (*entity.LabReportDetail, error) {
	return nil, common.NewAppError("REPORT_NOT_FOUND", "Report not found", common.ErrNotFound)
}

func (q *fakeQueries) ListTrends(_ context.Context, _ uuid.UUID, category string) ([]entity.BiomarkerTrend, error) {
	if category == "bogus" {
		return nil, common.NewAppError("INVALID_CATEGORY", "unknown category", common.ErrInvalidInput)
	}
	return []entity.BiomarkerTrend{q.trend}, nil
}

func (q *fakeQueries) BiomarkerHistory(context.Context, uuid.UUID, string) (*entity.BiomarkerTrend, error) {
	return &q.trend, nil
}

type fakeExporter struct{ category *constants.Category }

func (e *fakeExporter) ExportTrendsXLSX(_ context.Context, _ uuid.UUID, category *constants.Category) ([]byte, error) {
	e.category = category
	return []byte("PK\x03\x04workbook"), nil
}

type fakeUploader struct{ object string }

func (u *fakeUploader) UploadOnce(_ context.Context, bucket, object, _ string, content io.Reader) (string, error) {
	if _, err := io.ReadAll(content); err != nil {
		return "", err
	}
	u.object = object
	return "gs://" + bucket + "/" + object, nil
}

type harness struct {
	client   *Client
	workflow *fakeWorkflow
	resolver *passthroughResolver
	exporter *fakeExporter
	uploader *fakeUploader
}

func startServer(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lis := bufconn.Listen(1 << 20)

	wf := &fakeWorkflow{reportID: uuid.New()}
	res := &passthroughResolver{}
	q := &fakeQueries{trend: entity.BiomarkerTrend{
		BiomarkerName:  "hemoglobin",
		Category:       constants.CategoryCBC,
		Readings:       []entity.Reading{{Date: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), Value: 13.2, Unit: "g/dL"}},
		LatestValue:    13.2,
		ReadingCount:   1,
		TrendDirection: constants.TrendStable,
	}}
	exp := &fakeExporter{}
	up := &fakeUploader{}

	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryLogging(logger)))
	RegisterLabReportsServer(srv, NewLabReportsService(wf, res, q, NewExportHandler(exp, up, "exports-bucket", logger), logger))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &harness{client: NewClient(conn), workflow: wf, resolver: res, exporter: exp, uploader: up}
}

func TestSubmitAndResume(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()
	patient, clinic := uuid.New(), uuid.New()

	resp, err := h.client.Submit(ctx, workflow.SubmitRequest{Path: "locked.pdf", PatientID: patient, ClinicID: clinic, Gender: "F"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != constants.StatusWaitingPassword || resp.Prompt == nil || resp.ThreadID == "" {
		t.Fatalf("resp = %+v", resp)
	}
	got := h.workflow.submitted[0]
	if got.Path != "/uploads/locked.pdf" || got.PatientID != patient || got.Gender != constants.GenderFemale || got.ThreadID != resp.ThreadID {
		t.Fatalf("submitted = %+v", got)
	}

	wrong, err := h.client.ResumeWithPassword(ctx, resp.ThreadID, "nope")
	if err != nil || wrong.Status != constants.StatusWaitingPassword {
		t.Fatalf("wrong password: %+v %v", wrong, err)
	}
	done, err := h.client.ResumeWithPassword(ctx, resp.ThreadID, "secret")
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != constants.StatusCompleted || done.ReportID == nil || *done.ReportID != h.workflow.reportID {
		t.Fatalf("done = %+v", done)
	}
}

func TestSubmitErrors(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()
	patient, clinic := uuid.New(), uuid.New()

	_, err := h.client.Submit(ctx, workflow.SubmitRequest{Path: "report.docx", PatientID: patient, ClinicID: clinic})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("unsupported file: %v", err)
	}
	_, err = h.client.Submit(ctx, workflow.SubmitRequest{Path: "a.pdf", ClinicID: clinic})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing patient: %v", err)
	}

	req := workflow.SubmitRequest{ThreadID: "t-1", Path: "a.pdf", PatientID: patient, ClinicID: clinic, Password: "x"}
	if _, err := h.client.Submit(ctx, req); err != nil {
		t.Fatal(err)
	}
	_, err = h.client.Submit(ctx, req)
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != workflow.CodeWorkflowExists {
		t.Fatalf("duplicate thread: %v", err)
	}
}

func TestDuplicateThreadIsNotStaged(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()
	req := workflow.SubmitRequest{ThreadID: "t-1", Path: "a.pdf", PatientID: uuid.New(), ClinicID: uuid.New(), Password: "x"}
	if _, err := h.client.Submit(ctx, req); err != nil {
		t.Fatal(err)
	}
	req.Path = "b.pdf"
	if _, err := h.client.Submit(ctx, req); !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("duplicate thread: %v", err)
	}
	if len(h.resolver.staged) != 1 || len(h.workflow.submitted) != 1 {
		t.Errorf("staged = %v submitted = %d", h.resolver.staged, len(h.workflow.submitted))
	}
}

func TestSubmitLookupFailureIsInternal(t *testing.T) {
	h := startServer(t)
	req := workflow.SubmitRequest{ThreadID: "t-broken", Path: "a.pdf", PatientID: uuid.New(), ClinicID: uuid.New()}
	_, err := h.client.Submit(context.Background(), req)
	if status.Code(err) != codes.Internal {
		t.Fatalf("err = %v", err)
	}
	if len(h.resolver.staged) != 0 {
		t.Errorf("staged = %v", h.resolver.staged)
	}
}

func TestResumeUnknownThreadIsNotFound(t *testing.T) {
	h := startServer(t)
	_, err := h.client.ResumeWithDate(context.Background(), "missing", "2025-01-15")
	if status.Code(err) != codes.NotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestQueries(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()
	patient := uuid.New()

	page, err := h.client.ListReports(ctx, patient, 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 15 || len(page.Reports) != 1 || page.Reports[0].RawText != "" {
		t.Fatalf("page = %+v", page)
	}

	if _, err := h.client.GetReport(ctx, patient, uuid.New()); status.Code(err) != codes.NotFound {
		t.Fatalf("get report: %v", err)
	}

	trends, err := h.client.ListTrends(ctx, patient, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(trends) != 1 || trends[0].BiomarkerName != "hemoglobin" || !trends[0].Readings[0].Date.Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("trends = %+v", trends)
	}
	if _, err := h.client.ListTrends(ctx, patient, "bogus"); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad category: %v", err)
	}

	hist, err := h.client.BiomarkerHistory(ctx, patient, "Hemoglobin")
	if err != nil || hist.LatestValue != 13.2 {
		t.Fatalf("history = %+v %v", hist, err)
	}
}

func TestExportTrends(t *testing.T) {
	h := startServer(t)
	patient := uuid.New()

	out, err := h.client.ExportTrends(context.Background(), patient, "lipid panel")
	if err != nil {
		t.Fatal(err)
	}
	if string(out.XLSX) != "PK\x03\x04workbook" {
		t.Fatalf("xlsx = %q", out.XLSX)
	}
	if h.exporter.category == nil || *h.exporter.category != constants.CategoryLipid {
		t.Fatalf("category = %v", h.exporter.category)
	}
	if out.URI != "gs://exports-bucket/"+h.uploader.object || out.PatientID != patient {
		t.Fatalf("out = %+v", out)
	}

	if _, err := h.client.ExportTrends(context.Background(), patient, "astrology"); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("unknown category: %v", err)
	}
}
