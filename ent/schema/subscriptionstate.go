package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// SubscriptionState holds the schema definition for the SubscriptionState
// entity: the persisted last-known state of one monitoring target's log
// subscription (C2), written with a startup deferral so a crash-loop does
// not thrash this table.
type SubscriptionState struct {
	ent.Schema
}

// Fields of the SubscriptionState.
func (SubscriptionState) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			Comment("project/environment/service composite key, matches config.MonitoringTarget.Key()"),
		field.String("project"),
		field.String("environment"),
		field.String("service"),
		field.Enum("status").
			Values("disconnected", "connecting", "connected", "error").
			Default("disconnected"),
		field.Int("consecutive_failures").
			Default(0),
		field.Text("last_error").
			Optional().
			Nillable(),
		field.Time("connected_at").
			Optional().
			Nillable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the SubscriptionState.
func (SubscriptionState) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
	}
}
