package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/document"
	"github.com/joseph-ayodele/labreports/internal/entity"
	"github.com/joseph-ayodele/labreports/internal/extract"
	"github.com/joseph-ayodele/labreports/internal/llm"
	"github.com/joseph-ayodele/labreports/internal/standardize"
	"github.com/joseph-ayodele/labreports/internal/trend"
	"github.com/joseph-ayodele/labreports/internal/vision"
)

type stubDocs struct {
	mu          sync.Mutex
	encrypted   bool
	password    string
	pages       int
	text        string
	tables      [][][]string
	needsVision bool
	renders     []string
	renderErr   error

	decryptedTo string
	renderDir   string
	renderZoom  float64
	textCalls   int
}

func (d *stubDocs) CheckEncrypted(string) bool { return d.encrypted }

func (d *stubDocs) DecryptToFile(_, out, password string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if password != d.password {
		return fmt.Errorf("%w: pdfcpu: please provide the correct password", common.ErrEncryptionCredential)
	}
	d.decryptedTo = out
	return nil
}

func (d *stubDocs) PageCount(path, _ string) (int, error) {
	if d.encrypted && path != d.decryptedTo {
		return 0, fmt.Errorf("%w: locked", common.ErrEncryptionCredential)
	}
	return d.pages, nil
}

func (d *stubDocs) Analyze(context.Context, string, string) (document.Layout, error) {
	d.mu.Lock()
	d.textCalls++
	d.mu.Unlock()
	tables := d.tables
	if tables == nil {
		tables = [][][]string{}
	}
	return document.Layout{Text: d.text, Tables: tables, NeedsVision: d.needsVision}, nil
}

func (d *stubDocs) RenderPagesToImages(_ context.Context, _, outDir, _ string, zoom float64) ([]string, error) {
	d.renderDir, d.renderZoom = outDir, zoom
	return d.renders, d.renderErr
}

type stubVision struct {
	result vision.Result
	paths  []string
}

func (v *stubVision) ExtractFromMultiple(_ context.Context, paths []string) vision.Result {
	v.paths = paths
	return v.result
}

type mockReports struct {
	mu         sync.Mutex
	reports    map[uuid.UUID]*entity.LabReport
	biomarkers map[uuid.UUID][]entity.BiomarkerRecord
	failed     map[uuid.UUID]string
	addErr     error
}

func newMockReports() *mockReports {
	return &mockReports{
		reports:    map[uuid.UUID]*entity.LabReport{},
		biomarkers: map[uuid.UUID][]entity.BiomarkerRecord{},
		failed:     map[uuid.UUID]string{},
	}
}

func (m *mockReports) CreateReport(_ context.Context, r *entity.LabReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *mockReports) AddBiomarkers(_ context.Context, id uuid.UUID, rows []entity.BiomarkerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.biomarkers[id] = append(m.biomarkers[id], rows...)
	return nil
}

func (m *mockReports) MarkFailed(_ context.Context, id uuid.UUID, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = msg
	return nil
}

type mockTrends struct {
	mu     sync.Mutex
	inputs []trend.ReadingInput
}

func (m *mockTrends) UpsertReading(_ context.Context, in trend.ReadingInput) (*entity.BiomarkerTrend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, in)
	return &entity.BiomarkerTrend{PatientID: in.PatientID, BiomarkerName: in.BiomarkerName}, nil
}

type harness struct {
	docs    *stubDocs
	vision  *stubVision
	reports *mockReports
	trends  *mockTrends
	store   *MemoryStore
	orch    *Orchestrator
	dir     string
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, docs *stubDocs, cfg Config) *harness {
	t.Helper()
	h := &harness{
		docs:    docs,
		vision:  &stubVision{},
		reports: newMockReports(),
		trends:  &mockTrends{},
		store:   NewMemoryStore(),
		dir:     t.TempDir(),
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(h.dir, "uploads")
	}
	o, err := NewOrchestrator(Deps{
		Documents:   docs,
		Vision:      h.vision,
		Text:        extract.NewModelExtractor(nil, nil, 0, quietLogger()),
		Standardize: standardize.NewEngine(nil),
		Reports:     h.reports,
		Trends:      h.trends,
		Checkpoints: h.store,
	}, cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	h.orch = o
	return h
}

func (h *harness) file(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(h.dir, name)
	if err := os.WriteFile(p, []byte("%PDF-1.7 stub"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func (h *harness) submit(t *testing.T, req SubmitRequest) *Response {
	t.Helper()
	if req.PatientID == uuid.Nil {
		req.PatientID = uuid.New()
	}
	if req.ClinicID == uuid.Nil {
		req.ClinicID = uuid.New()
	}
	resp, err := h.orch.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return resp
}

const hemoglobinReport = `City Diagnostics
Report Date: 2024-03-01
Hemoglobin 14.2 g/dL (13.5–17.5)`

func TestSubmitTextPDFCompletes(t *testing.T) {
	h := newHarness(t, &stubDocs{pages: 1, text: hemoglobinReport}, Config{})
	resp := h.submit(t, SubmitRequest{Path: h.file(t, "report.pdf")})

	if resp.Status != constants.StatusCompleted {
		t.Fatalf("status = %s, errors = %v", resp.Status, resp.Errors)
	}
	if resp.ReportID == nil || resp.Result == nil {
		t.Fatal("expected report id and result")
	}
	if resp.Message != "Successfully processed 1 biomarkers" {
		t.Errorf("message = %q", resp.Message)
	}
	if len(resp.Result.Biomarkers) != 1 {
		t.Fatalf("biomarkers = %+v", resp.Result.Biomarkers)
	}
	b := resp.Result.Biomarkers[0]
	if b.StandardizedName != "hemoglobin" || b.Category != constants.CategoryCBC {
		t.Errorf("biomarker = %+v", b)
	}
	if b.Flag != nil || b.IsAbnormal {
		t.Errorf("expected no flag, got %v abnormal=%v", b.Flag, b.IsAbnormal)
	}
	if resp.Result.TotalBiomarkers != 1 || resp.Result.AbnormalCount != 0 {
		t.Errorf("result counts = %+v", resp.Result)
	}

	report := h.reports.reports[*resp.ReportID]
	if report == nil {
		t.Fatal("report not persisted")
	}
	if got := report.ReportDate.Format("2006-01-02"); got != "2024-03-01" {
		t.Errorf("report date = %s", got)
	}
	if report.Status != constants.StatusCompleted || report.SourceKind != constants.PDF {
		t.Errorf("report = %+v", report)
	}
	if len(h.reports.biomarkers[report.ID]) != 1 {
		t.Errorf("biomarker rows = %d", len(h.reports.biomarkers[report.ID]))
	}
	if len(h.trends.inputs) != 1 || h.trends.inputs[0].BiomarkerName != "hemoglobin" {
		t.Errorf("trend inputs = %+v", h.trends.inputs)
	}

	st, err := h.orch.GetStatus(context.Background(), resp.ThreadID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != constants.StatusCompleted || st.CurrentState != StepDone {
		t.Errorf("status = %+v", st)
	}
}

func TestEncryptedPDFWrongThenCorrectPassword(t *testing.T) {
	docs := &stubDocs{encrypted: true, password: "01011990", pages: 2, text: hemoglobinReport}
	h := newHarness(t, docs, Config{})
	ctx := context.Background()

	resp := h.submit(t, SubmitRequest{Path: h.file(t, "locked.pdf")})
	if resp.Status != constants.StatusWaitingPassword {
		t.Fatalf("status = %s", resp.Status)
	}
	if resp.Message != "PDF is encrypted. Please provide the password." {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Prompt == nil || resp.Prompt.Hint != PasswordHint || resp.Prompt.Message != PasswordPrompt {
		t.Errorf("prompt = %+v", resp.Prompt)
	}
	tid := resp.ThreadID

	before, err := h.store.Get(ctx, tid)
	if err != nil {
		t.Fatal(err)
	}

	resp, err = h.orch.ResumeWithPassword(ctx, tid, "wrong")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != constants.StatusWaitingPassword {
		t.Fatalf("status after wrong password = %s", resp.Status)
	}
	if resp.Message != "Decryption failed: Incorrect password. Please try again." {
		t.Errorf("message = %q", resp.Message)
	}
	after, err := h.store.Get(ctx, tid)
	if err != nil {
		t.Fatal(err)
	}
	if after.ReportType != before.ReportType || len(after.Biomarkers) != len(before.Biomarkers) {
		t.Errorf("wrong password mutated results: %+v", after)
	}
	if after.Password != "" {
		t.Error("password must not be checkpointed")
	}
	if after.Step != StepRequestPassword || after.PasswordAttempts != 1 {
		t.Errorf("checkpoint = step %s attempts %d", after.Step, after.PasswordAttempts)
	}

	resp, err = h.orch.ResumeWithPassword(ctx, tid, "01011990")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != constants.StatusCompleted {
		t.Fatalf("status = %s errors = %v", resp.Status, resp.Errors)
	}
	wantWork := filepath.Join(h.orch.cfg.UploadDir, tid, decryptedFileName)
	if docs.decryptedTo != wantWork {
		t.Errorf("decrypted to %q, want %q", docs.decryptedTo, wantWork)
	}
	final, _ := h.store.Get(ctx, tid)
	if final.DecryptError != "" || final.WorkPath != wantWork || final.PageCount != 2 {
		t.Errorf("final state = %+v", final)
	}
}

func TestSubmitWithPasswordSkipsPrompt(t *testing.T) {
	docs := &stubDocs{encrypted: true, password: "secret", pages: 1, text: hemoglobinReport}
	h := newHarness(t, docs, Config{})
	resp := h.submit(t, SubmitRequest{Path: h.file(t, "locked.pdf"), Password: "secret"})
	if resp.Status != constants.StatusCompleted {
		t.Fatalf("status = %s errors = %v", resp.Status, resp.Errors)
	}
}

func TestMaxPasswordAttempts(t *testing.T) {
	docs := &stubDocs{encrypted: true, password: "secret", pages: 1, text: hemoglobinReport}
	h := newHarness(t, docs, Config{MaxPasswordAttempts: 2})
	ctx := context.Background()
	resp := h.submit(t, SubmitRequest{Path: h.file(t, "locked.pdf")})

	for i := 0; i < 2; i++ {
		var err error
		resp, err = h.orch.ResumeWithPassword(ctx, resp.ThreadID, "nope")
		if err != nil {
			t.Fatal(err)
		}
	}
	if resp.Status != constants.StatusFailed {
		t.Fatalf("status = %s", resp.Status)
	}
	if !strings.Contains(resp.Message, msgTooManyAttempts) {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestWaitingDateResume(t *testing.T) {
	docs := &stubDocs{pages: 1, text: "Hemoglobin 12.0 g/dL (13.5-17.5)\nWBC 7.1 10^3/uL (4.0-11.0)"}
	h := newHarness(t, docs, Config{})
	ctx := context.Background()

	resp := h.submit(t, SubmitRequest{Path: h.file(t, "nodate.pdf")})
	if resp.Status != constants.StatusWaitingDate {
		t.Fatalf("status = %s errors = %v", resp.Status, resp.Errors)
	}
	if resp.Message != DatePrompt {
		t.Errorf("message = %q", resp.Message)
	}
	if _, err := h.orch.ResumeWithPassword(ctx, resp.ThreadID, "x"); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("password resume on waiting_date: %v", err)
	}
	if _, err := h.orch.ResumeWithDate(ctx, resp.ThreadID, "not a date"); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("bad date: %v", err)
	}

	resp, err := h.orch.ResumeWithDate(ctx, resp.ThreadID, "2024-02-10")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != constants.StatusCompleted {
		t.Fatalf("status = %s errors = %v", resp.Status, resp.Errors)
	}
	if resp.Result.TotalBiomarkers != 2 || resp.Result.AbnormalCount != 1 {
		t.Errorf("result = %+v", resp.Result)
	}
	if got := h.reports.reports[*resp.ReportID].ReportDate; !got.Equal(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("report date = %v", got)
	}
	if docs.textCalls != 1 {
		t.Errorf("text extraction ran %d times, want 1", docs.textCalls)
	}
}

func TestCallerDateWins(t *testing.T) {
	h := newHarness(t, &stubDocs{pages: 1, text: hemoglobinReport}, Config{})
	resp := h.submit(t, SubmitRequest{Path: h.file(t, "report.pdf"), ReportDate: "15/01/2024"})
	if resp.Status != constants.StatusCompleted {
		t.Fatalf("status = %s", resp.Status)
	}
	if got := h.reports.reports[*resp.ReportID].ReportDate.Format("2006-01-02"); got != "2024-01-15" {
		t.Errorf("report date = %s", got)
	}
}

func TestImageUsesVision(t *testing.T) {
	docs := &stubDocs{}
	h := newHarness(t, docs, Config{})
	h.vision.result = vision.Result{
		LabName:    "Metro Lab",
		ReportDate: "2024-05-02",
		ReportType: "LIPID",
		Pages:      1,
		Biomarkers: []llm.BiomarkerFields{
			{Name: "LDL Cholesterol", Value: 190, Unit: "mg/dL", Flag: "HIGH"},
			{Name: "HDL", Value: 55, Unit: "mg/dL"},
		},
	}
	img := h.file(t, "scan.JPG")
	resp := h.submit(t, SubmitRequest{Path: img})

	if resp.Status != constants.StatusCompleted {
		t.Fatalf("status = %s errors = %v", resp.Status, resp.Errors)
	}
	if len(h.vision.paths) != 1 || h.vision.paths[0] != img {
		t.Errorf("vision paths = %v", h.vision.paths)
	}
	if docs.textCalls != 0 {
		t.Error("images must skip text extraction")
	}
	if resp.Result.ReportType != constants.CategoryLipid || resp.Result.LabName != "Metro Lab" {
		t.Errorf("result = %+v", resp.Result)
	}
	if resp.Result.AbnormalCount == 0 {
		t.Error("LDL 190 should be abnormal")
	}
	st, _ := h.store.Get(context.Background(), resp.ThreadID)
	if st.ExtractMethod != methodVision || st.SourceKind != constants.IMAGE {
		t.Errorf("state = %s %s", st.ExtractMethod, st.SourceKind)
	}
}

func TestImageWithoutDateWaits(t *testing.T) {
	h := newHarness(t, &stubDocs{}, Config{})
	h.vision.result = vision.Result{
		Pages:      1,
		Biomarkers: []llm.BiomarkerFields{{Name: "TSH", Value: 2.1, Unit: "mIU/L"}},
	}
	resp := h.submit(t, SubmitRequest{Path: h.file(t, "scan.png")})
	if resp.Status != constants.StatusWaitingDate || resp.Message != DatePromptImage {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestScannedPDFRendersPages(t *testing.T) {
	docs := &stubDocs{pages: 2, text: "   ", needsVision: true, renders: []string{"p1.png", "p2.png"}}
	h := newHarness(t, docs, Config{})
	h.vision.result = vision.Result{
		ReportDate: "2024-01-20",
		Pages:      2,
		Biomarkers: []llm.BiomarkerFields{{Name: "Glucose", Value: 92, Unit: "mg/dL"}},
	}
	resp := h.submit(t, SubmitRequest{Path: h.file(t, "scan.pdf")})
	if resp.Status != constants.StatusCompleted {
		t.Fatalf("status = %s errors = %v", resp.Status, resp.Errors)
	}
	if want := filepath.Join(h.orch.cfg.UploadDir, resp.ThreadID); docs.renderDir != want {
		t.Errorf("render dir = %q, want %q", docs.renderDir, want)
	}
	if docs.renderZoom != 2.0 {
		t.Errorf("zoom = %v", docs.renderZoom)
	}
	if len(h.vision.paths) != 2 {
		t.Errorf("vision paths = %v", h.vision.paths)
	}
}

func TestNoDataFails(t *testing.T) {
	docs := &stubDocs{pages: 1, needsVision: true, renders: []string{"p1.png"}}
	h := newHarness(t, docs, Config{})
	h.vision.result = vision.Result{Pages: 1, FailedPages: 1, Errors: []string{"page 1 (p1.png): model output malformed"}}

	resp := h.submit(t, SubmitRequest{Path: h.file(t, "blank.pdf")})
	if resp.Status != constants.StatusFailed {
		t.Fatalf("status = %s", resp.Status)
	}
	if !strings.Contains(resp.Message, msgNoData) || !strings.Contains(resp.Message, "; ") {
		t.Errorf("message = %q", resp.Message)
	}
	if len(h.reports.reports) != 0 {
		t.Error("nothing should be persisted")
	}
}

func TestMissingFileFails(t *testing.T) {
	h := newHarness(t, &stubDocs{}, Config{})
	missing := filepath.Join(h.dir, "gone.pdf")
	resp := h.submit(t, SubmitRequest{Path: missing})
	if resp.Status != constants.StatusFailed || resp.Message != "PDF file not found: "+missing {
		t.Errorf("resp = %+v", resp)
	}
}

func TestZeroPagesFails(t *testing.T) {
	h := newHarness(t, &stubDocs{pages: 0}, Config{})
	resp := h.submit(t, SubmitRequest{Path: h.file(t, "empty.pdf")})
	if resp.Status != constants.StatusFailed || resp.Message != "Invalid PDF file or no pages found" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestPersistFailureMarksReport(t *testing.T) {
	h := newHarness(t, &stubDocs{pages: 1, text: hemoglobinReport}, Config{})
	h.reports.addErr = errors.New("db down")
	resp := h.submit(t, SubmitRequest{Path: h.file(t, "report.pdf")})

	if resp.Status != constants.StatusFailed {
		t.Fatalf("status = %s", resp.Status)
	}
	if resp.Message != "Failed to save results: db down" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.ReportID == nil || h.reports.failed[*resp.ReportID] == "" {
		t.Error("report should be marked failed")
	}
}

func TestResumeUnknownAndWrongState(t *testing.T) {
	h := newHarness(t, &stubDocs{pages: 1, text: hemoglobinReport}, Config{})
	ctx := context.Background()

	if _, err := h.orch.ResumeWithPassword(ctx, "nope", "pw"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("unknown thread: %v", err)
	}
	if _, err := h.orch.GetStatus(ctx, "nope"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("status unknown thread: %v", err)
	}

	resp := h.submit(t, SubmitRequest{Path: h.file(t, "report.pdf")})
	if _, err := h.orch.ResumeWithDate(ctx, resp.ThreadID, "2024-01-01"); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("date resume on completed: %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, &stubDocs{}, Config{})
	ctx := context.Background()
	cases := map[string]SubmitRequest{
		"no path":    {PatientID: uuid.New(), ClinicID: uuid.New()},
		"no patient": {Path: "a.pdf", ClinicID: uuid.New()},
		"bad date":   {Path: "a.pdf", PatientID: uuid.New(), ClinicID: uuid.New(), ReportDate: "someday"},
		"bad gender": {Path: "a.pdf", PatientID: uuid.New(), ClinicID: uuid.New(), Gender: "x"},
	}
	for name, req := range cases {
		if _, err := h.orch.Submit(ctx, req); !errors.Is(err, common.ErrInvalidInput) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name  string
		state State
		from  Step
		want  Step
	}{
		{"pdf upload", State{SourceKind: constants.PDF}, StepReceiveUpload, StepCheckEncryption},
		{"image upload", State{SourceKind: constants.IMAGE}, StepReceiveUpload, StepVisionExtraction},
		{"encrypted", State{IsEncrypted: true}, StepCheckEncryption, StepRequestPassword},
		{"plain", State{}, StepCheckEncryption, StepExtractText},
		{"waiting password", State{Status: constants.StatusWaitingPassword}, StepRequestPassword, StepRequestPassword},
		{"password given", State{Status: constants.StatusProcessing}, StepRequestPassword, StepDecrypt},
		{"wrong password", State{DecryptError: "Incorrect password"}, StepDecrypt, StepRequestPassword},
		{"decrypted", State{}, StepDecrypt, StepExtractText},
		{"needs vision", State{NeedsVision: true}, StepExtractText, StepVisionExtraction},
		{"text only", State{}, StepExtractText, StepCollectData},
		{"vision", State{}, StepVisionExtraction, StepCollectData},
		{"collect", State{}, StepCollectData, StepRequestDate},
		{"waiting date", State{Status: constants.StatusWaitingDate}, StepRequestDate, StepRequestDate},
		{"date known", State{}, StepRequestDate, StepStandardize},
		{"standardize", State{}, StepStandardize, StepPersist},
		{"persist", State{Status: constants.StatusCompleted}, StepPersist, StepDone},
		{"failed anywhere", State{Status: constants.StatusFailed}, StepExtractText, StepDone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.state
			if got := transition(&s, tt.from); got != tt.want {
				t.Errorf("transition(%s) = %s, want %s", tt.from, got, tt.want)
			}
		})
	}
}

func TestCollectDataFormat(t *testing.T) {
	o := &Orchestrator{logger: quietLogger()}
	s := &State{
		ExtractedText:   "Hemoglobin 14.2",
		ExtractedTables: [][][]string{{{"Test", "Result"}, {"WBC", "7.1"}}},
		VisionData:      &vision.Result{Biomarkers: []llm.BiomarkerFields{{Name: "RBC", Value: 4.8}}},
	}
	o.collectData(s)

	for _, want := range []string{
		"=== TEXT EXTRACTION ===\nHemoglobin 14.2",
		"\n\n=== TABLES ===\n\nTable 1:\nTest | Result\nWBC | 7.1",
		"\n\n=== VISION EXTRACTION ===\n{",
		`"name": "RBC"`,
	} {
		if !strings.Contains(s.CombinedData, want) {
			t.Errorf("combined data missing %q:\n%s", want, s.CombinedData)
		}
	}
	if s.Status == constants.StatusFailed {
		t.Error("collect_data should not fail with data present")
	}
}

func TestMemoryStorePurge(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	old := &State{ThreadID: "old", UpdatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &State{ThreadID: "fresh", UpdatedAt: time.Now()}
	for _, s := range []*State{old, fresh} {
		if err := m.Put(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	n, err := m.PurgeExpired(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("purged %d, err %v", n, err)
	}
	if _, err := m.Get(ctx, "old"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("old still present: %v", err)
	}
	if _, err := m.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh missing: %v", err)
	}
	if err := m.Delete(ctx, "fresh"); err != nil || m.Len() != 0 {
		t.Errorf("delete: %v len=%d", err, m.Len())
	}
}

func TestOrchestratorPurgeUsesTTL(t *testing.T) {
	h := newHarness(t, &stubDocs{encrypted: true, pages: 1}, Config{CheckpointTTL: time.Hour})
	resp := h.submit(t, SubmitRequest{Path: h.file(t, "locked.pdf")})
	h.orch.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	n, err := h.orch.PurgeExpired(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("purged %d, err %v", n, err)
	}
	if _, err := h.orch.GetStatus(context.Background(), resp.ThreadID); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected purged thread, got %v", err)
	}
}

type flakyStore struct {
	*MemoryStore
	getErr error
}

func (f *flakyStore) Get(ctx context.Context, threadID string) (*State, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.MemoryStore.Get(ctx, threadID)
}

func TestSubmitRejectsDuplicateThread(t *testing.T) {
	docs := &stubDocs{encrypted: true, pages: 1}
	h := newHarness(t, docs, Config{})
	first := h.submit(t, SubmitRequest{ThreadID: "t-dup", Path: h.file(t, "report.pdf")})
	if first.Status != constants.StatusWaitingPassword {
		t.Fatalf("status = %s", first.Status)
	}

	_, err := h.orch.Submit(context.Background(), SubmitRequest{
		ThreadID: "t-dup", Path: h.file(t, "other.pdf"), PatientID: uuid.New(), ClinicID: uuid.New(),
	})
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("err = %v, want already exists", err)
	}
	st, err := h.orch.GetStatus(context.Background(), "t-dup")
	if err != nil || st.Status != constants.StatusWaitingPassword {
		t.Errorf("original workflow disturbed: %+v, %v", st, err)
	}
}

func TestSubmitSurfacesCheckpointLookupFailure(t *testing.T) {
	docs := &stubDocs{pages: 1, text: hemoglobinReport}
	h := newHarness(t, docs, Config{})
	store := &flakyStore{MemoryStore: NewMemoryStore(), getErr: fmt.Errorf("%w: connection reset", common.ErrPersistenceFailure)}
	o, err := NewOrchestrator(Deps{
		Documents:   docs,
		Vision:      h.vision,
		Text:        extract.NewModelExtractor(nil, nil, 0, quietLogger()),
		Standardize: standardize.NewEngine(nil),
		Reports:     h.reports,
		Trends:      h.trends,
		Checkpoints: store,
	}, Config{UploadDir: filepath.Join(h.dir, "uploads")}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	_, err = o.Submit(context.Background(), SubmitRequest{
		ThreadID: "t-1", Path: h.file(t, "report.pdf"), PatientID: uuid.New(), ClinicID: uuid.New(),
	})
	if !errors.Is(err, common.ErrPersistenceFailure) || errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("err = %v, want persistence failure", err)
	}
	if docs.textCalls != 0 || len(h.reports.reports) != 0 {
		t.Errorf("workflow ran despite failed lookup: text=%d reports=%d", docs.textCalls, len(h.reports.reports))
	}
	if _, err := store.MemoryStore.Get(context.Background(), "t-1"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("checkpoint written despite failed lookup: %v", err)
	}
}
