package schema_test

import (
	"testing"

	"entgo.io/ent"
	entschema "entgo.io/ent/dialect/sql/schema"

	"github.com/joseph-ayodele/labreports/db/ent/schema"
	"github.com/joseph-ayodele/labreports/internal/repository"
)

// The repository creates tables from hand-kept definitions; every field
// declared here must have a column there.
func TestFieldsHaveColumns(t *testing.T) {
	cases := []struct {
		name   string
		fields []ent.Field
		table  *entschema.Table
	}{
		{"lab_report", schema.LabReport{}.Fields(), repository.LabReportsTable},
		{"biomarker", schema.Biomarker{}.Fields(), repository.BiomarkersTable},
		{"biomarker_trend", schema.BiomarkerTrend{}.Fields(), repository.BiomarkerTrendsTable},
		{"checkpoint", schema.Checkpoint{}.Fields(), repository.CheckpointsTable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cols := map[string]bool{}
			for _, c := range tc.table.Columns {
				cols[c.Name] = true
			}
			for _, f := range tc.fields {
				d := f.Descriptor()
				name := d.StorageKey
				if name == "" {
					name = d.Name
				}
				if !cols[name] {
					t.Errorf("field %q has no column in table %s", name, tc.table.Name)
				}
			}
		})
	}
}

func TestCheckpointStatusValidator(t *testing.T) {
	var status *ent.Field
	for _, f := range (schema.Checkpoint{}).Fields() {
		if f.Descriptor().Name == "status" {
			status = &f
		}
	}
	if status == nil {
		t.Fatal("no status field")
	}
	validators := (*status).Descriptor().Validators
	if len(validators) != 1 {
		t.Fatalf("validators = %d", len(validators))
	}
	check := validators[0].(func(string) error)
	if err := check("completed"); err != nil {
		t.Fatalf("completed rejected: %v", err)
	}
	if err := check("archived"); err == nil {
		t.Fatal("archived accepted")
	}
}
