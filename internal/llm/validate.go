package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/labreports/internal/common"
)

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// DecodeLabReport turns a free-form model response into LabReportFields.
// The JSON object is recovered first, validated strictly, and on failure
// sanitized leniently and validated again. The returned slice lists what the
// sanitizer dropped.
func DecodeLabReport(text string, schema map[string]any, logger *slog.Logger) (LabReportFields, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	raw, err := RecoverJSONObject(text)
	if err != nil {
		return LabReportFields{}, nil, err
	}

	var dropped []string
	if err := ValidateJSONAgainstSchema(schema, raw); err != nil {
		cleaned, d, sErr := NormalizeLabJSON(raw, logger)
		if sErr != nil {
			return LabReportFields{}, nil, fmt.Errorf("%w: %v", common.ErrModelOutputMalformed, sErr)
		}
		if vErr := ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			logger.Error("llm.decode.schema_validation_failed", "error", vErr)
			return LabReportFields{}, d, fmt.Errorf("%w: %v", common.ErrModelOutputMalformed, vErr)
		}
		logger.Warn("llm.decode.lenient_sanitize_applied", "dropped", d)
		raw, dropped = cleaned, d
	}

	var out LabReportFields
	if err := json.Unmarshal(raw, &out); err != nil {
		return LabReportFields{}, dropped, fmt.Errorf("%w: %v", common.ErrModelOutputMalformed, err)
	}
	return out, dropped, nil
}
