package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/incidentbot/ent"
	"github.com/codeready-toolchain/incidentbot/ent/incident"
	"github.com/codeready-toolchain/incidentbot/ent/remediationaction"
	"github.com/codeready-toolchain/incidentbot/pkg/logstream"
)

// Snapshot is the point-in-time health payload served by GET /health.
type Snapshot struct {
	DBReachable       bool   `json:"db_reachable"`
	DBError           string `json:"db_error,omitempty"`
	OpenIncidents     int    `json:"open_incidents"`
	AwaitingAction    int    `json:"awaiting_action"`
	PendingActions    int    `json:"pending_actions"`
	InProgressActions int    `json:"in_progress_actions"`
	SubscriptionsTotal       int `json:"subscriptions_total"`
	SubscriptionsConnected   int `json:"subscriptions_connected"`
	SubscriptionsQuarantined int `json:"subscriptions_quarantined"`
}

// IsHealthy reports whether the snapshot represents a serviceable process:
// the database must be reachable. Connection/action counts are informational.
func (s Snapshot) IsHealthy() bool {
	return s.DBReachable
}

// Collector queries the database and the log subscription fleet on demand
// to build the /health snapshot, and feeds the same counters Prometheus
// scrapes from the package-level metrics above. It holds no background
// goroutine of its own -- every method call does its own point-in-time
// read, the same shape as the teacher's WorkerPool.Health().
type Collector struct {
	client     *ent.Client
	supervisor *logstream.Supervisor
	logger     *slog.Logger
}

// NewCollector constructs a Collector. supervisor may be nil, in which
// case the snapshot's subscription fields are left zero.
func NewCollector(client *ent.Client, supervisor *logstream.Supervisor) *Collector {
	return &Collector{
		client:     client,
		supervisor: supervisor,
		logger:     slog.Default().With("component", "telemetry"),
	}
}

// Snapshot builds the current health payload.
func (c *Collector) Snapshot(ctx context.Context) Snapshot {
	var snap Snapshot

	openCount, err := c.client.Incident.Query().
		Where(incident.StatusIn(incident.StatusDetected, incident.StatusAwaitingAction)).
		Count(ctx)
	if err != nil {
		snap.DBError = fmt.Sprintf("incident count query failed: %v", err)
		c.logger.Error("health snapshot: incident query failed", "error", err)
	} else {
		snap.DBReachable = true
		snap.OpenIncidents = openCount
	}

	if snap.DBReachable {
		awaiting, err := c.client.Incident.Query().
			Where(incident.StatusEQ(incident.StatusAwaitingAction)).
			Count(ctx)
		if err != nil {
			c.logger.Warn("health snapshot: awaiting-action query failed", "error", err)
		} else {
			snap.AwaitingAction = awaiting
		}

		pending, err := c.client.RemediationAction.Query().
			Where(remediationaction.StatusEQ(remediationaction.StatusPending)).
			Count(ctx)
		if err != nil {
			c.logger.Warn("health snapshot: pending-action query failed", "error", err)
		} else {
			snap.PendingActions = pending
		}

		inProgress, err := c.client.RemediationAction.Query().
			Where(remediationaction.StatusEQ(remediationaction.StatusInProgress)).
			Count(ctx)
		if err != nil {
			c.logger.Warn("health snapshot: in-progress-action query failed", "error", err)
		} else {
			snap.InProgressActions = inProgress
		}
	}

	if c.supervisor != nil {
		stats := c.supervisor.Stats()
		snap.SubscriptionsTotal = stats.Total
		snap.SubscriptionsConnected = stats.Connected
		snap.SubscriptionsQuarantined = stats.Quarantined
		SubscriptionsActive.Set(float64(stats.Connected))
		SubscriptionsQuarantined.Set(float64(stats.Quarantined))
	}

	return snap
}
