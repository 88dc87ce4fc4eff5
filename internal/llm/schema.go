package llm

// BuildLabReportJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// It is embedded in text prompts and used locally to validate model output.
func BuildLabReportJSONSchema(reportTypes []string) map[string]any {
	biomarker := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":          map[string]any{"type": "string", "minLength": 1},
			"value":         map[string]any{"type": "number"},
			"unit":          map[string]any{"type": "string"},
			"reference_min": map[string]any{"type": "number"},
			"reference_max": map[string]any{"type": "number"},
			"flag":          map[string]any{"type": "string"},
		},
		"required": []string{"name", "value"},
	}

	props := map[string]any{
		"lab_name":    map[string]any{"type": "string"},
		"report_date": map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"report_type": map[string]any{"type": "string"},
		"patient_info": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
		"biomarkers": map[string]any{
			"type":  "array",
			"items": biomarker,
		},
	}

	// Constrain report_type if a vocabulary is provided.
	if len(reportTypes) > 0 {
		props["report_type"] = map[string]any{
			"type": "string",
			"enum": reportTypes,
		}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"biomarkers"},
	}
}
