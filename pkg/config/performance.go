package config

import "time"

// PerformanceConfig tunes the timeouts, backoff schedule, rate limits and
// batching behavior shared across C1-C11. Every field has a sensible
// default (see DefaultPerformanceConfig) so an operator only needs to set
// the handful of env vars they actually want to change.
type PerformanceConfig struct {
	// ConnectionTimeout bounds how long the platform client waits for a
	// WebSocket handshake before giving up and retrying with backoff.
	ConnectionTimeout time.Duration

	// HeartbeatInterval is how often the subscription connection-keeper
	// sends a ping frame; HeartbeatTimeout is how long it waits for the
	// matching pong before declaring the connection dead.
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// MaxRetryAttempts caps the reconnect backoff sequence before a
	// subscription is quarantined as a restart storm (C3).
	MaxRetryAttempts int
	MaxBackoff       time.Duration

	// RateLimitPerHour and RateLimitPerSecond bound outbound platform API
	// calls via a token bucket shared across all subscriptions.
	RateLimitPerHour   int
	RateLimitPerSecond int

	// PollingInterval is the fallback polling cadence used when a platform
	// does not support push subscriptions for a given query.
	PollingInterval time.Duration

	// BatchMin and BatchMax bound how many log lines the LLM lane (C4)
	// accumulates per classification call; BatchWindowMin and
	// BatchWindowMax bound how long it waits to fill a batch before
	// flushing early or forcing a flush.
	BatchMin       int
	BatchMax       int
	BatchWindowMin time.Duration
	BatchWindowMax time.Duration

	// BufferRetention is how long the detector's sliding window keeps log
	// lines in memory for template/fingerprint correlation.
	BufferRetention time.Duration

	// MemoryLimitMB is a soft cap the detector's sliding window uses to
	// decide when to evict oldest entries ahead of BufferRetention.
	MemoryLimitMB int

	// ConversationIdleTimeout closes a chat session that has received no
	// message in this long, independent of an explicit "resolve".
	ConversationIdleTimeout time.Duration
}

// DefaultPerformanceConfig returns the built-in defaults, applied via mergo
// before env var overrides in Load.
func DefaultPerformanceConfig() PerformanceConfig {
	return PerformanceConfig{
		ConnectionTimeout:  30 * time.Second,
		HeartbeatInterval:  30 * time.Second,
		HeartbeatTimeout:   45 * time.Second,
		MaxRetryAttempts:   10,
		MaxBackoff:         60 * time.Second,
		RateLimitPerHour:   10000,
		RateLimitPerSecond: 50,
		PollingInterval:    30 * time.Second,
		BatchMin:           10,
		BatchMax:           1000,
		BatchWindowMin:     5 * time.Second,
		BatchWindowMax:     300 * time.Second,
		BufferRetention:    24 * time.Hour,
		MemoryLimitMB:      512,

		ConversationIdleTimeout: 60 * time.Minute,
	}
}
