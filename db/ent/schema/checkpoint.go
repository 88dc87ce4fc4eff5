package schema

import (
	"encoding/json"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/db/ent/schema/utils"
)

// Checkpoint stores a serialized workflow state keyed by thread id.
type Checkpoint struct{ ent.Schema }

func (Checkpoint) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "workflow_checkpoints"},
	}
}

func (Checkpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").StorageKey("thread_id").NotEmpty().Immutable(),
		field.String("status").
			Validate(utils.EnumValidator(constants.WorkflowStatuses...)),
		field.String("current_state").NotEmpty(),
		field.JSON("state", json.RawMessage{}),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (Checkpoint) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("updated_at"),
	}
}
