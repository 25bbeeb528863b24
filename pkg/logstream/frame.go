package logstream

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/codeready-toolchain/incidentbot/pkg/config"
)

// frameType enumerates the GraphQL-over-WebSocket lifecycle frames this
// subscription understands, per the design's "connection_init →
// connection_ack → subscribe → next|error|complete" contract.
type frameType string

const (
	frameConnectionInit frameType = "connection_init"
	frameConnectionAck  frameType = "connection_ack"
	frameSubscribe      frameType = "subscribe"
	framePing           frameType = "ping"
	framePong           frameType = "pong"
	frameNext           frameType = "next"
	frameData           frameType = "data"
	frameError          frameType = "error"
	frameComplete       frameType = "complete"
)

// frame is the envelope exchanged over the WebSocket connection.
type frame struct {
	Type    frameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query string `json:"query"`
}

// rawLogEntry is the shape of one entry inside a deploymentLogs or
// environmentLogs push, before normalization.
type rawLogEntry struct {
	Timestamp string `json:"timestamp"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
}

type nextPayload struct {
	Data struct {
		DeploymentLogs  []rawLogEntry `json:"deploymentLogs"`
		EnvironmentLogs []rawLogEntry `json:"environmentLogs"`
	} `json:"data"`
}

// LogEvent is a single normalized log line, stamped with its origin and
// ready for the detector's sliding window.
type LogEvent struct {
	Project       string
	ServiceID     string
	EnvironmentID string
	ServiceName   string
	Timestamp     time.Time
	Level         config.LogLevel
	Message       string
}

func parseNextFrame(target config.MonitoringTarget, raw json.RawMessage) []LogEvent {
	var payload nextPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	entries := payload.Data.DeploymentLogs
	if len(entries) == 0 {
		entries = payload.Data.EnvironmentLogs
	}
	events := make([]LogEvent, 0, len(entries))
	for _, e := range entries {
		events = append(events, normalizeLogEntry(target, e))
	}
	return events
}

func normalizeLogEntry(target config.MonitoringTarget, e rawLogEntry) LogEvent {
	ts, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}
	return LogEvent{
		Project:       target.Project,
		ServiceID:     target.Service,
		EnvironmentID: target.Environment,
		ServiceName:   target.Service,
		Timestamp:     ts,
		Level:         config.ParseLogLevel(strings.ToLower(e.Severity)),
		Message:       truncateMessage(e.Message),
	}
}

const maxMessageLength = 10000

func truncateMessage(msg string) string {
	if len(msg) <= maxMessageLength {
		return msg
	}
	return msg[:maxMessageLength]
}

// buildQuery constructs the default environmentLogs/deploymentLogs
// subscription query per the design: environmentLogs scoped by
// environmentId filtered by level:error unless a service_id narrows it
// to service:<id> level:<configured>.
func buildQuery(target config.MonitoringTarget, level config.LogLevel) string {
	if level == "" {
		level = config.LogLevelError
	}
	if target.Service != "" {
		return "subscription { environmentLogs(environmentId: \"" + target.Environment +
			"\", filter: \"service:" + target.Service + " level:" + string(level) + "\") { timestamp severity message } }"
	}
	return "subscription { environmentLogs(environmentId: \"" + target.Environment +
		"\", filter: \"level:" + string(level) + "\") { timestamp severity message } }"
}
