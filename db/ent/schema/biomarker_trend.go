package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/db/ent/schema/utils"
	"github.com/joseph-ayodele/labreports/internal/entity"
)

// BiomarkerTrend keeps one row per (patient, canonical biomarker); readings
// live in a JSON column and the aggregates are recomputed on every insert.
type BiomarkerTrend struct{ ent.Schema }

func (BiomarkerTrend) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "biomarker_trends"},
	}
}

func (BiomarkerTrend) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.UUID("patient_id", uuid.UUID{}).Immutable(),
		field.UUID("clinic_id", uuid.UUID{}),
		field.String("biomarker_name").NotEmpty().Immutable(),
		field.String("category").
			Validate(utils.EnumValidator(constants.AsStringSlice()...)),
		field.JSON("readings", []entity.Reading{}),
		field.Float("latest_value"),
		field.String("latest_unit").Default(""),
		field.Time("latest_date"),
		field.String("latest_flag").Optional().Nillable(),
		field.Float("min"),
		field.Float("max"),
		field.Float("average"),
		field.Int("reading_count").NonNegative(),
		field.String("trend_direction").
			Validate(utils.EnumValidator(constants.TrendDirections...)),
		field.Float("trend_percent"),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (BiomarkerTrend) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("patient_id", "biomarker_name").Unique(),
		index.Fields("patient_id", "category"),
	}
}
