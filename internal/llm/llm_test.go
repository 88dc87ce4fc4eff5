package llm

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/joseph-ayodele/labreports/internal/common"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecoverJSONObject(t *testing.T) {
	const obj = `{"lab_name":"City Lab","biomarkers":[{"name":"Hemoglobin","value":14.2}]}`
	cases := []struct {
		name string
		in   string
	}{
		{"direct", obj},
		{"direct with whitespace", "\n  " + obj + "\n"},
		{"json fence", "```json\n" + obj + "\n```"},
		{"bare fence", "```\n" + obj + "\n```"},
		{"unterminated fence", "```json\n" + obj},
		{"leading prose", "Here is the extracted data:\n" + obj},
		{"prose both sides", "Sure! " + obj + " Let me know if you need more."},
		{"brace in string", `Result: {"lab_name":"A {weird} lab","biomarkers":[]} done`},
		{"stray brace before", "use {curly} notes. " + obj},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RecoverJSONObject(tc.in)
			if err != nil {
				t.Fatalf("RecoverJSONObject: %v", err)
			}
			var m map[string]any
			if err := json.Unmarshal(got, &m); err != nil {
				t.Fatalf("result not JSON: %v", err)
			}
			if _, ok := m["biomarkers"]; !ok {
				t.Errorf("biomarkers missing from %s", got)
			}
		})
	}
}

func TestRecoverFencedEqualsUnwrapped(t *testing.T) {
	const obj = `{"report_type":"CBC","biomarkers":[]}`
	a, err := RecoverJSONObject(obj)
	if err != nil {
		t.Fatal(err)
	}
	b, err := RecoverJSONObject("```json\n" + obj + "\n```")
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("fenced %s != unwrapped %s", b, a)
	}
}

func TestRecoverJSONObjectMalformed(t *testing.T) {
	for _, in := range []string{"", "I could not read the image.", "{not json", "[1,2,3]"} {
		_, err := RecoverJSONObject(in)
		if !errors.Is(err, common.ErrModelOutputMalformed) {
			t.Errorf("%q: err = %v, want ErrModelOutputMalformed", in, err)
		}
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"14.2", 14.2, true},
		{" 1,234 ", 1234, true},
		{"14,2 g/dL", 14.2, true},
		{"<0.5", 0.5, true},
		{"-3", -3, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseNumber(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseNumber(%q) = %v,%v want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseRange(t *testing.T) {
	lo, hi := ParseRange("13.5 - 17.5")
	if lo == nil || hi == nil || *lo != 13.5 || *hi != 17.5 {
		t.Errorf("dash range = %v %v", lo, hi)
	}
	lo, hi = ParseRange("13.5–17.5")
	if lo == nil || hi == nil || *lo != 13.5 || *hi != 17.5 {
		t.Errorf("en dash range = %v %v", lo, hi)
	}
	lo, hi = ParseRange("4 to 11")
	if lo == nil || *lo != 4 || hi == nil || *hi != 11 {
		t.Errorf("to range = %v %v", lo, hi)
	}
	lo, hi = ParseRange("<200")
	if lo != nil || hi == nil || *hi != 200 {
		t.Errorf("upper only = %v %v", lo, hi)
	}
	lo, hi = ParseRange("> 40")
	if hi != nil || lo == nil || *lo != 40 {
		t.Errorf("lower only = %v %v", lo, hi)
	}
	if lo, hi = ParseRange("see note"); lo != nil || hi != nil {
		t.Errorf("no range = %v %v", lo, hi)
	}
}

func TestNormalizeDate(t *testing.T) {
	for in, want := range map[string]string{
		"2024-03-15":   "2024-03-15",
		"2024/03/15":   "2024-03-15",
		"15-Mar-2024":  "2024-03-15",
		"Mar 15, 2024": "2024-03-15",
		"15/03/2024":   "2024-03-15",
	} {
		got, ok := NormalizeDate(in)
		if !ok || got != want {
			t.Errorf("NormalizeDate(%q) = %q,%v want %q", in, got, ok, want)
		}
	}
	if _, ok := NormalizeDate("sometime"); ok {
		t.Error("garbage accepted")
	}
}

func TestNormalizeLabJSON(t *testing.T) {
	in := `{
		"lab": " City Lab ",
		"date": "15/03/2024",
		"report_type": "complete blood count",
		"patient_info": {"name": "Jane", "age": 42, "dob": null},
		"confidence": 0.9,
		"results": [
			{"name": "Hemoglobin", "value": "14.2", "unit": "g/dL", "reference_range": "13.5 - 17.5", "flag": "normal"},
			{"name": "WBC", "value": 12.1, "reference_min": "4.5", "reference_max": null, "flag": "h"},
			{"name": "Comment", "value": "see note"},
			{"value": 3},
			"junk"
		]
	}`
	out, dropped, err := NormalizeLabJSON([]byte(in), quietLogger())
	if err != nil {
		t.Fatalf("NormalizeLabJSON: %v", err)
	}
	var got LabReportFields
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatal(err)
	}
	if got.LabName != "City Lab" || got.ReportDate != "2024-03-15" || got.ReportType != "CBC" {
		t.Errorf("scalars = %+v", got)
	}
	if got.PatientInfo["name"] != "Jane" || got.PatientInfo["age"] != "42" {
		t.Errorf("patient_info = %v", got.PatientInfo)
	}
	if _, ok := got.PatientInfo["dob"]; ok {
		t.Error("null dob kept")
	}
	if len(got.Biomarkers) != 2 {
		t.Fatalf("biomarkers = %d, want 2", len(got.Biomarkers))
	}
	hb := got.Biomarkers[0]
	if hb.Value != 14.2 || *hb.ReferenceMin != 13.5 || *hb.ReferenceMax != 17.5 || hb.Flag != "" {
		t.Errorf("hemoglobin = %+v", hb)
	}
	wbc := got.Biomarkers[1]
	if *wbc.ReferenceMin != 4.5 || wbc.ReferenceMax != nil || wbc.Flag != "H" {
		t.Errorf("wbc = %+v", wbc)
	}
	if !strings.Contains(strings.Join(dropped, ","), "confidence(unknown)") {
		t.Errorf("dropped = %v", dropped)
	}
}

func TestDecodeLabReportLenient(t *testing.T) {
	schema := BuildLabReportJSONSchema([]string{"CBC", "OTHER"})
	text := "```json\n{\"report_type\":\"cbc\",\"biomarkers\":[{\"name\":\"Hemoglobin\",\"value\":\"14.2\",\"unit\":\"g/dL\"}]}\n```"
	got, dropped, err := DecodeLabReport(text, schema, quietLogger())
	if err != nil {
		t.Fatalf("DecodeLabReport: %v", err)
	}
	if got.ReportType != "CBC" || len(got.Biomarkers) != 1 || got.Biomarkers[0].Value != 14.2 {
		t.Errorf("got = %+v", got)
	}
	if dropped == nil {
		t.Error("expected sanitizer to run")
	}
}

func TestDecodeLabReportStrictPass(t *testing.T) {
	schema := BuildLabReportJSONSchema(nil)
	got, dropped, err := DecodeLabReport(`{"lab_name":"X","biomarkers":[{"name":"TSH","value":2.1}]}`, schema, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if dropped != nil || got.LabName != "X" || got.Biomarkers[0].Name != "TSH" {
		t.Errorf("got = %+v dropped = %v", got, dropped)
	}
	raw := got.RawBiomarkers()
	if len(raw) != 1 || raw[0].Value != 2.1 {
		t.Errorf("raw = %+v", raw)
	}
}

func TestDecodeLabReportMalformed(t *testing.T) {
	_, _, err := DecodeLabReport("no data here", BuildLabReportJSONSchema(nil), quietLogger())
	if !errors.Is(err, common.ErrModelOutputMalformed) {
		t.Fatalf("err = %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if Truncate("abcdef", 3) != "abc" {
		t.Error("ascii")
	}
	if got := Truncate("aé", 2); got != "a" {
		t.Errorf("utf8 = %q", got)
	}
	if Truncate("abc", 0) != "abc" {
		t.Error("zero limit")
	}
}
