package repository

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table definitions mirror db/ent/schema; Migrate applies them with Ent's
// schema differ.
var (
	// LabReportsColumns holds the columns for the "lab_reports" table.
	LabReportsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "patient_id", Type: field.TypeUUID},
		{Name: "clinic_id", Type: field.TypeUUID},
		{Name: "thread_id", Type: field.TypeString, Unique: true},
		{Name: "report_date", Type: field.TypeTime, SchemaType: map[string]string{dialect.Postgres: "date"}},
		{Name: "lab_name", Type: field.TypeString, Default: ""},
		{Name: "report_type", Type: field.TypeString},
		{Name: "source_kind", Type: field.TypeString},
		{Name: "source_path", Type: field.TypeString, Default: ""},
		{Name: "status", Type: field.TypeString},
		{Name: "error_message", Type: field.TypeString, Nullable: true, SchemaType: map[string]string{dialect.Postgres: "text"}},
		{Name: "raw_text", Type: field.TypeString, Default: "", SchemaType: map[string]string{dialect.Postgres: "text"}},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "processed_at", Type: field.TypeTime, Nullable: true},
	}
	// LabReportsTable holds the schema information for the "lab_reports" table.
	LabReportsTable = &schema.Table{
		Name:       "lab_reports",
		Columns:    LabReportsColumns,
		PrimaryKey: []*schema.Column{LabReportsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "labreport_patient_id_report_date", Columns: []*schema.Column{LabReportsColumns[1], LabReportsColumns[4]}},
			{Name: "labreport_clinic_id", Columns: []*schema.Column{LabReportsColumns[2]}},
		},
	}

	// BiomarkersColumns holds the columns for the "biomarkers" table.
	BiomarkersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "patient_id", Type: field.TypeUUID},
		{Name: "clinic_id", Type: field.TypeUUID},
		{Name: "name", Type: field.TypeString},
		{Name: "standardized_name", Type: field.TypeString},
		{Name: "category", Type: field.TypeString},
		{Name: "value", Type: field.TypeFloat64, SchemaType: map[string]string{dialect.Postgres: "double precision"}},
		{Name: "unit", Type: field.TypeString, Default: ""},
		{Name: "reference_min", Type: field.TypeFloat64, Nullable: true},
		{Name: "reference_max", Type: field.TypeFloat64, Nullable: true},
		{Name: "flag", Type: field.TypeString, Nullable: true},
		{Name: "is_abnormal", Type: field.TypeBool, Default: false},
		{Name: "test_date", Type: field.TypeTime, SchemaType: map[string]string{dialect.Postgres: "date"}},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "report_id", Type: field.TypeUUID},
	}
	// BiomarkersTable holds the schema information for the "biomarkers" table.
	BiomarkersTable = &schema.Table{
		Name:       "biomarkers",
		Columns:    BiomarkersColumns,
		PrimaryKey: []*schema.Column{BiomarkersColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "biomarkers_lab_reports_biomarkers",
				Columns:    []*schema.Column{BiomarkersColumns[14]},
				RefColumns: []*schema.Column{LabReportsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "biomarker_report_id", Columns: []*schema.Column{BiomarkersColumns[14]}},
			{Name: "biomarker_patient_id_standardized_name_test_date", Columns: []*schema.Column{BiomarkersColumns[1], BiomarkersColumns[4], BiomarkersColumns[12]}},
		},
	}

	// BiomarkerTrendsColumns holds the columns for the "biomarker_trends" table.
	BiomarkerTrendsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "patient_id", Type: field.TypeUUID},
		{Name: "clinic_id", Type: field.TypeUUID},
		{Name: "biomarker_name", Type: field.TypeString},
		{Name: "category", Type: field.TypeString},
		{Name: "readings", Type: field.TypeJSON},
		{Name: "latest_value", Type: field.TypeFloat64},
		{Name: "latest_unit", Type: field.TypeString, Default: ""},
		{Name: "latest_date", Type: field.TypeTime},
		{Name: "latest_flag", Type: field.TypeString, Nullable: true},
		{Name: "min", Type: field.TypeFloat64},
		{Name: "max", Type: field.TypeFloat64},
		{Name: "average", Type: field.TypeFloat64},
		{Name: "reading_count", Type: field.TypeInt},
		{Name: "trend_direction", Type: field.TypeString},
		{Name: "trend_percent", Type: field.TypeFloat64},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// BiomarkerTrendsTable holds the schema information for the "biomarker_trends" table.
	BiomarkerTrendsTable = &schema.Table{
		Name:       "biomarker_trends",
		Columns:    BiomarkerTrendsColumns,
		PrimaryKey: []*schema.Column{BiomarkerTrendsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "biomarkertrend_patient_id_biomarker_name", Unique: true, Columns: []*schema.Column{BiomarkerTrendsColumns[1], BiomarkerTrendsColumns[3]}},
			{Name: "biomarkertrend_patient_id_category", Columns: []*schema.Column{BiomarkerTrendsColumns[1], BiomarkerTrendsColumns[4]}},
		},
	}

	// CheckpointsColumns holds the columns for the "workflow_checkpoints" table.
	CheckpointsColumns = []*schema.Column{
		{Name: "thread_id", Type: field.TypeString},
		{Name: "status", Type: field.TypeString},
		{Name: "current_state", Type: field.TypeString},
		{Name: "state", Type: field.TypeJSON},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// CheckpointsTable holds the schema information for the "workflow_checkpoints" table.
	CheckpointsTable = &schema.Table{
		Name:       "workflow_checkpoints",
		Columns:    CheckpointsColumns,
		PrimaryKey: []*schema.Column{CheckpointsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "checkpoint_status", Columns: []*schema.Column{CheckpointsColumns[1]}},
			{Name: "checkpoint_updated_at", Columns: []*schema.Column{CheckpointsColumns[5]}},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		LabReportsTable,
		BiomarkersTable,
		BiomarkerTrendsTable,
		CheckpointsTable,
	}
)

func init() {
	BiomarkersTable.ForeignKeys[0].RefTable = LabReportsTable
	LabReportsTable.Annotation = &entsql.Annotation{Table: "lab_reports"}
	BiomarkersTable.Annotation = &entsql.Annotation{Table: "biomarkers"}
	BiomarkerTrendsTable.Annotation = &entsql.Annotation{Table: "biomarker_trends"}
	CheckpointsTable.Annotation = &entsql.Annotation{Table: "workflow_checkpoints"}
}

// Migrate creates or updates every table. Columns and indexes are only added,
// never dropped.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	m, err := schema.NewMigrate(db.Driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		logger.Error("schema migration failed", "error", err)
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("schema migration applied", "tables", len(Tables))
	return nil
}
