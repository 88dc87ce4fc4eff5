package vision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/joseph-ayodele/labreports/internal/llm"
)

// stubModel answers by image content so concurrent pages stay independent.
type stubModel struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   int
}

func (s *stubModel) Name() string { return "stub" }

func (s *stubModel) Complete(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if len(req.Images) != 1 {
		return "", errors.New("want exactly one image")
	}
	key := string(req.Images[0].Data)
	if err, ok := s.errs[key]; ok {
		return "", err
	}
	return s.replies[key], nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePages(t *testing.T, keys ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for i, k := range keys {
		p := filepath.Join(dir, "page_"+string(rune('1'+i))+".png")
		if err := os.WriteFile(p, []byte(k), 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestExtractFromImageRecoversFencedJSON(t *testing.T) {
	m := &stubModel{replies: map[string]string{
		"p1": "```json\n{\"lab_name\":\"City Lab\",\"report_type\":\"CBC\",\"biomarkers\":[{\"name\":\"Hemoglobin\",\"value\":14.2,\"unit\":\"g/dL\"}]}\n```",
	}}
	e := NewExtractor(m, Config{}, quietLogger())
	paths := writePages(t, "p1")

	res := e.ExtractFromImage(context.Background(), paths[0])
	if res.Failed() {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.Fields.LabName != "City Lab" || len(res.Fields.Biomarkers) != 1 {
		t.Errorf("fields = %+v", res.Fields)
	}
}

func TestExtractFromImageProseAroundObject(t *testing.T) {
	m := &stubModel{replies: map[string]string{
		"p1": "Here is what I found: {\"biomarkers\":[{\"name\":\"TSH\",\"value\":2.5}]} Hope this helps.",
	}}
	e := NewExtractor(m, Config{}, quietLogger())
	res := e.ExtractFromImage(context.Background(), writePages(t, "p1")[0])
	if res.Failed() || res.Fields.Biomarkers[0].Name != "TSH" {
		t.Fatalf("res = %+v", res)
	}
}

func TestExtractFromImageMalformedIsResultNotPanic(t *testing.T) {
	m := &stubModel{replies: map[string]string{"p1": "Sorry, I cannot read this image."}}
	e := NewExtractor(m, Config{}, quietLogger())
	res := e.ExtractFromImage(context.Background(), writePages(t, "p1")[0])
	if !res.Failed() {
		t.Fatal("expected an error result")
	}
	if !strings.Contains(res.Error, "model output malformed") {
		t.Errorf("error = %s", res.Error)
	}
}

func TestExtractFromImageMissingFile(t *testing.T) {
	e := NewExtractor(&stubModel{}, Config{}, quietLogger())
	res := e.ExtractFromImage(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	if !res.Failed() {
		t.Fatal("expected an error result")
	}
}

func TestExtractFromMultipleMergesInPageOrder(t *testing.T) {
	m := &stubModel{
		replies: map[string]string{
			"p1": `{"lab_name":"First Lab","report_date":"2024-01-10","report_type":"CBC","patient_info":{"name":"Jane"},
				"biomarkers":[{"name":"Hemoglobin","value":13.0},{"name":"WBC","value":7.1}]}`,
			"p2": `not json at all`,
			"p3": `{"lab_name":"","report_type":"OTHER","patient_info":{"id":"P-7"},
				"biomarkers":[{"name":"hemoglobin","value":14.2},{"name":"Platelets","value":250}]}`,
		},
	}
	e := NewExtractor(m, Config{Concurrency: 3}, quietLogger())
	res := e.ExtractFromMultiple(context.Background(), writePages(t, "p1", "p2", "p3"))

	if m.calls != 3 {
		t.Errorf("calls = %d", m.calls)
	}
	if res.LabName != "First Lab" {
		t.Errorf("lab_name = %q, empty later value must not overwrite", res.LabName)
	}
	if res.ReportType != "CBC" {
		t.Errorf("report_type = %q, OTHER must not overwrite", res.ReportType)
	}
	if res.ReportDate != "2024-01-10" {
		t.Errorf("report_date = %q", res.ReportDate)
	}
	if res.PatientInfo["name"] != "Jane" || res.PatientInfo["id"] != "P-7" {
		t.Errorf("patient_info = %v", res.PatientInfo)
	}
	if res.FailedPages != 1 || len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "page 2") {
		t.Errorf("errors = %v failed = %d", res.Errors, res.FailedPages)
	}
	if len(res.Biomarkers) != 3 {
		t.Fatalf("biomarkers = %+v", res.Biomarkers)
	}
	if res.Biomarkers[0].Name != "hemoglobin" || res.Biomarkers[0].Value != 14.2 {
		t.Errorf("later page must win for hemoglobin: %+v", res.Biomarkers[0])
	}
	if res.Biomarkers[1].Name != "WBC" || res.Biomarkers[2].Name != "Platelets" {
		t.Errorf("order = %+v", res.Biomarkers)
	}
}

func TestMergeScalarsLastNonEmptyWins(t *testing.T) {
	pages := []PageResult{
		{Fields: llm.LabReportFields{LabName: "A", ReportType: "LIPID"}},
		{Fields: llm.LabReportFields{LabName: "B", ReportType: "THYROID", ReportDate: "2024-02-02"}},
	}
	res := Merge(pages)
	if res.LabName != "B" || res.ReportType != "THYROID" || res.ReportDate != "2024-02-02" {
		t.Errorf("res = %+v", res)
	}
}

func TestMergeAllFailed(t *testing.T) {
	res := Merge([]PageResult{{Error: "x"}, {Error: "y"}})
	if !res.AllFailed() {
		t.Error("AllFailed = false")
	}
	if res.ReportType != "OTHER" || len(res.Biomarkers) != 0 {
		t.Errorf("defaults = %+v", res)
	}
	if Merge(nil).AllFailed() {
		t.Error("no pages is not a failure")
	}
}

func TestModelErrorRecordedPerPage(t *testing.T) {
	m := &stubModel{
		replies: map[string]string{"p1": `{"biomarkers":[{"name":"LDL","value":130}]}`},
		errs:    map[string]error{"p2": errors.New("rate limited")},
	}
	e := NewExtractor(m, Config{}, quietLogger())
	res := e.ExtractFromMultiple(context.Background(), writePages(t, "p1", "p2"))
	if len(res.Biomarkers) != 1 || res.FailedPages != 1 || res.AllFailed() {
		t.Errorf("res = %+v", res)
	}
}
