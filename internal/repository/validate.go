package repository

import (
	"fmt"

	"entgo.io/ent"

	"github.com/joseph-ayodele/labreports/db/ent/schema"
	"github.com/joseph-ayodele/labreports/internal/common"
)

// Field descriptors of the ent schemas; their validators run before every write.
var (
	labReportFields  = schema.LabReport{}.Fields()
	biomarkerFields  = schema.Biomarker{}.Fields()
	trendFields      = schema.BiomarkerTrend{}.Fields()
	checkpointFields = schema.Checkpoint{}.Fields()
)

// validateRow applies the schema validators of fields to values, keyed by
// field name. Absent keys (nil optional fields) are skipped.
func validateRow(table string, fields []ent.Field, values map[string]any) error {
	for _, f := range fields {
		d := f.Descriptor()
		v, ok := values[d.Name]
		if !ok {
			continue
		}
		for _, fn := range d.Validators {
			var err error
			switch check := fn.(type) {
			case func(string) error:
				if s, ok := v.(string); ok {
					err = check(s)
				}
			case func(int) error:
				if n, ok := v.(int); ok {
					err = check(n)
				}
			case func(float64) error:
				if x, ok := v.(float64); ok {
					err = check(x)
				}
			}
			if err != nil {
				return fmt.Errorf("%w: %s.%s: %w", common.ErrValidation, table, d.Name, err)
			}
		}
	}
	return nil
}
