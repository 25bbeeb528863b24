package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ConnectionMetric holds the schema definition for the ConnectionMetric
// entity: a periodic sample of one subscription's health, retained briefly
// for the /health endpoint and the telemetry collector's rolling counters.
type ConnectionMetric struct {
	ent.Schema
}

// Fields of the ConnectionMetric.
func (ConnectionMetric) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("target_key").
			Comment("matches config.MonitoringTarget.Key()"),
		field.Enum("status").
			Values("disconnected", "connecting", "connected", "error"),
		field.Int("reconnect_count").
			Default(0),
		field.Int64("messages_received").
			Default(0),
		field.Time("sampled_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the ConnectionMetric.
func (ConnectionMetric) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("target_key", "sampled_at"),
		index.Fields("sampled_at"),
	}
}
