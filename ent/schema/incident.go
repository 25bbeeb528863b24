package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Incident holds the schema definition for the Incident entity.
type Incident struct {
	ent.Schema
}

// Fields of the Incident.
func (Incident) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("project"),
		field.String("environment"),
		field.String("service"),
		field.String("fingerprint").
			Comment("sha256 of normalized template + level + service_id, identifies recurrence"),
		field.Enum("severity").
			Values("critical", "high", "medium", "low"),
		field.Enum("status").
			Values("detected", "awaiting_action", "auto_remediated", "manual_resolved", "failed", "ignored").
			Default("detected"),
		field.Text("root_cause").
			Optional().
			Nillable().
			Comment("LLM-lane classification output; empty for pattern-lane-only detections"),
		field.Enum("recommended_action").
			Values("restart", "redeploy", "scale_memory", "scale_replicas", "rollback", "stop", "manual_fix", "none").
			Default("none"),
		field.Float("confidence").
			Optional().
			Comment("LLM-lane classification confidence in [0,1]; zero for pattern-lane detections"),
		field.JSON("sample_log_lines", []string{}).
			Optional().
			Comment("masked representative lines from the window that triggered detection"),
		field.String("chat_thread_ts").
			Optional().
			Nillable().
			Comment("Slack thread timestamp for threading the resolution update"),
		field.Time("detected_at").
			Default(time.Now).
			Immutable(),
		field.Time("resolved_at").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the Incident.
func (Incident) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("remediation_actions", RemediationAction.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("conversation_sessions", ConversationSession.Type).
			Annotations(entsql.OnDelete(entsql.SetNull)),
	}
}

// Indexes of the Incident.
func (Incident) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("project", "environment", "service"),
		// At most one non-terminal incident per (service, fingerprint):
		// the upsert path in pkg/incidents relies on this partial unique
		// index to make "reopen if still open, else insert new" atomic.
		index.Fields("service", "fingerprint").
			Unique().
			Annotations(entsql.IndexWhere("status NOT IN ('manual_resolved', 'auto_remediated', 'ignored')")),
		index.Fields("status", "detected_at"),
	}
}
