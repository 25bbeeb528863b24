// Package telemetry exposes Prometheus instrumentation for the incident
// pipeline plus a point-in-time health snapshot for the /health endpoint.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Detection and alerting metrics.
var (
	AlertLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "incidentbot_alert_latency_seconds",
		Help:    "Time from an anomalous log line being read to the Slack alert being posted.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
	})

	IncidentsDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incidentbot_incidents_detected_total",
		Help: "Total number of incidents created, by detection lane.",
	}, []string{"lane", "severity"})

	IncidentsResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incidentbot_incidents_resolved_total",
		Help: "Total number of incidents reaching a terminal status.",
	}, []string{"status"})
)

// Remediation metrics.
var (
	RemediationActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incidentbot_remediation_actions_total",
		Help: "Total number of dispatched remediation actions, by action type and outcome.",
	}, []string{"action_type", "outcome"})

	RemediationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "incidentbot_remediation_duration_seconds",
		Help:    "Time from claiming a remediation action to its resolution.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action_type"})
)

// Conversation metrics.
var (
	ConversationMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incidentbot_conversation_messages_total",
		Help: "Total number of conversation messages processed, by role.",
	}, []string{"role"})

	ConversationResponseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "incidentbot_conversation_response_duration_seconds",
		Help:    "Time to produce a reply to an inbound chat message.",
		Buckets: prometheus.DefBuckets,
	})
)

// Log ingestion and connection metrics.
var (
	LogLinesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incidentbot_log_lines_processed_total",
		Help: "Total number of log lines read from monitored targets.",
	}, []string{"project", "environment"})

	SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "incidentbot_subscriptions_active",
		Help: "Number of currently connected log subscriptions.",
	})

	SubscriptionsQuarantined = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "incidentbot_subscriptions_quarantined",
		Help: "Number of log subscriptions currently quarantined after repeated failures.",
	})
)
