package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ConversationSession holds the schema definition for the
// ConversationSession entity: a durable Slack thread conversation,
// surviving process restarts, usually but not always anchored to one
// incident.
type ConversationSession struct {
	ent.Schema
}

// Fields of the ConversationSession.
func (ConversationSession) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("incident_id").
			Optional().
			Nillable().
			Comment("empty until an incident-bearing intent resolves one, e.g. a slash command given without an incident id token"),
		field.String("chat_thread_ts").
			Comment("Slack thread this conversation is anchored to"),
		field.String("participant_id").
			Comment("Slack user id that opened the conversation"),
		field.JSON("context", map[string]any{}).
			Optional().
			Comment("free-form conversation state: last intent, pending confirmation, etc"),
		field.Bool("active").
			Default(true),
		field.Time("started_at").
			Default(time.Now).
			Immutable(),
		field.Time("last_message_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("closed_at").
			Optional().
			Nillable(),
	}
}

// Edges of the ConversationSession.
func (ConversationSession) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("incident", Incident.Type).
			Ref("conversation_sessions").
			Field("incident_id").
			Unique().
			Annotations(entsql.OnDelete(entsql.SetNull)),
		edge.To("messages", ConversationMessage.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the ConversationSession.
func (ConversationSession) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("chat_thread_ts").
			Unique(),
		index.Fields("incident_id"),
	}
}
