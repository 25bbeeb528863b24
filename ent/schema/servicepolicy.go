package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ServicePolicy holds the schema definition for the ServicePolicy entity.
// One row per monitored (project, environment, service) tuple; created on
// first observation and read on every detection decision, so the store
// keeps an in-memory read-through cache in front of this table.
type ServicePolicy struct {
	ent.Schema
}

// Fields of the ServicePolicy.
func (ServicePolicy) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			Comment("project/environment/service composite key"),
		field.String("project"),
		field.String("environment"),
		field.String("service"),
		field.Bool("auto_remediation_enabled").
			Default(false),
		field.Float("confidence_threshold").
			Default(0.7).
			Comment("automated auto_fix_requested is gated on incident.confidence >= this value"),
		field.JSON("allowed_actions", []string{}).
			Optional().
			Comment("subset of action_type this service permits auto-remediation for"),
		field.Int("max_auto_restarts_per_hour").
			Default(3),
		field.JSON("custom_masking_patterns", []string{}).
			Optional().
			Comment("regex patterns specific to this service's log format"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the ServicePolicy.
func (ServicePolicy) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project", "environment", "service").
			Unique(),
	}
}
