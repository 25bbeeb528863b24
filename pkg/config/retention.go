package config

import "time"

// RetentionConfig tunes the daily sweep worker (C10) that prunes resolved
// incidents, closed conversation sessions and stale connection-metric rows.
type RetentionConfig struct {
	// IncidentRetentionDays is how long a terminal Incident (and its
	// cascaded RemediationAction/ConversationSession rows) survives before
	// the sweep deletes it.
	IncidentRetentionDays int

	// MetricRetention is how long ConnectionMetric samples survive; these
	// accumulate far faster than incidents and get a shorter window.
	MetricRetention time.Duration

	// SweepInterval is the nominal cadence of the retention worker's loop;
	// the actual fire time is jittered by up to SweepJitter to avoid every
	// replica sweeping in lockstep.
	SweepInterval time.Duration
	SweepJitter   time.Duration
}

// DefaultRetentionConfig returns the built-in defaults.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		IncidentRetentionDays: 90,
		MetricRetention:       7 * 24 * time.Hour,
		SweepInterval:         24 * time.Hour,
		SweepJitter:           30 * time.Minute,
	}
}
