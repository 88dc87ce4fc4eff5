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

// Biomarker is one standardized measurement owned by a lab report.
type Biomarker struct{ ent.Schema }

func (Biomarker) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "biomarkers"},
	}
}

func (Biomarker) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.UUID("report_id", uuid.UUID{}).Immutable(),
		field.UUID("patient_id", uuid.UUID{}).Immutable(),
		field.UUID("clinic_id", uuid.UUID{}).Immutable(),
		field.String("name").NotEmpty().Immutable(),
		field.String("standardized_name").NotEmpty().Immutable(),
		field.String("category").
			Validate(utils.EnumValidator(constants.AsStringSlice()...)).
			Immutable(),
		field.Float("value").
			SchemaType(map[string]string{dialect.Postgres: "double precision"}).
			Immutable(),
		field.String("unit").Default("").Immutable(),
		field.Float("reference_min").Optional().Nillable().Immutable(),
		field.Float("reference_max").Optional().Nillable().Immutable(),
		field.String("flag").Optional().Nillable().
			Validate(utils.EnumValidator(constants.Flags...)).
			Immutable(),
		field.Bool("is_abnormal").Default(false).Immutable(),
		field.Time("test_date").
			SchemaType(map[string]string{dialect.Postgres: "date"}).
			Immutable(),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (Biomarker) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("report", LabReport.Type).
			Ref("biomarkers").
			Field("report_id").
			Unique().
			Required().
			Immutable(),
	}
}

func (Biomarker) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("report_id"),
		index.Fields("patient_id", "standardized_name", "test_date"),
	}
}
