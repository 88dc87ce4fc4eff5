package llm

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// VisionPrompt is sent with every page image.
const VisionPrompt = `You are a medical lab report data extractor.

Analyze this lab report image and extract ALL information you can find.

Return a JSON object with:
{
    "lab_name": "Name of the laboratory (if visible)",
    "report_date": "Date of the report in YYYY-MM-DD format (if visible)",
    "patient_info": {
        "name": "Patient name (if visible)",
        "dob": "Date of birth (if visible)",
        "id": "Patient ID (if visible)"
    },
    "report_type": "Type of test - one of: CBC, LIPID, METABOLIC, THYROID, LIVER, KIDNEY, VITAMIN, HORMONE, OTHER",
    "biomarkers": [
        {
            "name": "Test/biomarker name exactly as shown",
            "value": numeric_value_only,
            "unit": "Unit of measurement",
            "reference_min": numeric_min_or_null,
            "reference_max": numeric_max_or_null,
            "flag": "HIGH or LOW or null based on reference range"
        }
    ]
}

Important:
- Extract EVERY biomarker/test result you can see
- Use the exact test name as shown in the report
- For value, extract only the numeric part
- If reference range is shown as "X - Y", extract min=X, max=Y
- Flag as HIGH if value > reference_max, LOW if value < reference_min
- Return ONLY valid JSON, no markdown or explanation`

// BuildTextSystemPrompt composes the system message for text extraction.
func BuildTextSystemPrompt(reportTypes []string, schema map[string]any) string {
	parts := []string{
		"You are a medical lab report extraction expert.",
		"Given raw text from a lab report, you must:",
		"1. Identify the report type (" + strings.Join(reportTypes, ", ") + ").",
		"2. Extract ALL biomarkers/test results with their values, units, and reference ranges.",
		"3. Identify the laboratory name and the report date (YYYY-MM-DD) if present.",
		"Look for patterns like \"Test Name: Value Unit (Reference: min - max)\", tables with columns for Test, Result, Unit, Reference, and any numerical health measurements.",
		"Values and reference bounds must be numbers. Never output null; omit fields that are not present.",
		"Return ONLY JSON that matches this JSON Schema:",
		mustJSON(schema),
	}
	return strings.Join(parts, "\n")
}

// BuildTextUserPrompt wraps the combined document text, cut to maxChars.
func BuildTextUserPrompt(combined string, maxChars int) string {
	var b strings.Builder
	b.WriteString("Extract all biomarkers from this lab report:\n\n")
	b.WriteString(Truncate(combined, maxChars))
	return b.String()
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
