package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/db/ent/schema/utils"
)

type LabReport struct{ ent.Schema }

func (LabReport) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "lab_reports"},
	}
}

func (LabReport) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.UUID("patient_id", uuid.UUID{}).Immutable(),
		field.UUID("clinic_id", uuid.UUID{}).Immutable(),
		field.String("thread_id").NotEmpty().Unique().Immutable(),
		field.Time("report_date").
			SchemaType(map[string]string{dialect.Postgres: "date"}),
		field.String("lab_name").Default(""),
		field.String("report_type").
			Validate(utils.EnumValidator(constants.AsStringSlice()...)),
		field.String("source_kind").
			Validate(utils.EnumValidator(constants.SourceKinds...)),
		field.String("source_path").Default(""),
		field.String("status").
			Validate(utils.EnumValidator(constants.WorkflowStatuses...)),
		field.String("error_message").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.String("raw_text").Default("").
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("processed_at").Optional().Nillable(),
	}
}

func (LabReport) Edges() []ent.Edge {
	return []ent.Edge{
		// ONE report -> MANY biomarker rows
		edge.To("biomarkers", Biomarker.Type),
	}
}

func (LabReport) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("patient_id", "report_date"),
		index.Fields("clinic_id"),
	}
}
