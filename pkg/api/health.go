package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// HealthResponse is the JSON body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	telemetrySnapshotFields
}

// telemetrySnapshotFields is embedded (rather than nested under a
// "snapshot" key) so the health body stays a flat object, matching the
// shape operators already expect from a one-line liveness probe.
type telemetrySnapshotFields struct {
	DBReachable              bool   `json:"db_reachable"`
	DBError                  string `json:"db_error,omitempty"`
	OpenIncidents            int    `json:"open_incidents"`
	AwaitingAction           int    `json:"awaiting_action"`
	PendingActions           int    `json:"pending_actions"`
	InProgressActions        int    `json:"in_progress_actions"`
	SubscriptionsTotal       int    `json:"subscriptions_total"`
	SubscriptionsConnected   int    `json:"subscriptions_connected"`
	SubscriptionsQuarantined int    `json:"subscriptions_quarantined"`
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if s.collector == nil {
		return c.JSON(http.StatusOK, &HealthResponse{Status: "healthy"})
	}

	snap := s.collector.Snapshot(reqCtx)
	status := "healthy"
	if !snap.IsHealthy() {
		status = "unhealthy"
	}

	resp := &HealthResponse{
		Status: status,
		telemetrySnapshotFields: telemetrySnapshotFields{
			DBReachable:              snap.DBReachable,
			DBError:                  snap.DBError,
			OpenIncidents:            snap.OpenIncidents,
			AwaitingAction:           snap.AwaitingAction,
			PendingActions:           snap.PendingActions,
			InProgressActions:        snap.InProgressActions,
			SubscriptionsTotal:       snap.SubscriptionsTotal,
			SubscriptionsConnected:   snap.SubscriptionsConnected,
			SubscriptionsQuarantined: snap.SubscriptionsQuarantined,
		},
	}

	code := http.StatusOK
	if !snap.IsHealthy() {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
