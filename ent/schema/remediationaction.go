package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// RemediationAction holds the schema definition for the RemediationAction entity.
type RemediationAction struct {
	ent.Schema
}

// Fields of the RemediationAction.
func (RemediationAction) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("incident_id").
			Immutable(),
		field.Enum("action_type").
			Values("restart", "scale_memory", "scale_replicas", "rollback", "stop", "diagnostic", "none"),
		field.Enum("initiator").
			Values("automated", "user"),
		field.String("initiated_by").
			Optional().
			Nillable().
			Comment("Slack user ID when initiator=user"),
		field.Enum("status").
			Values("pending", "in_progress", "succeeded", "failed").
			Default("pending"),
		field.JSON("parameters", map[string]interface{}{}).
			Optional().
			Comment("e.g. target memory limit, replica count, rollback deployment id"),
		field.Text("result_message").
			Optional().
			Nillable(),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the RemediationAction.
func (RemediationAction) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("incident", Incident.Type).
			Ref("remediation_actions").
			Field("incident_id").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the RemediationAction.
func (RemediationAction) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("incident_id"),
		// At most one non-terminal remediation per incident: the
		// coordinator's claim step relies on this to refuse a second
		// concurrent action against the same incident.
		index.Fields("incident_id").
			Unique().
			Annotations(entsql.IndexWhere("status IN ('pending', 'in_progress')")),
	}
}
