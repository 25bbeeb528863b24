package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/incidentbot/ent/remediationaction"
	"github.com/codeready-toolchain/incidentbot/pkg/broker"
	"github.com/codeready-toolchain/incidentbot/pkg/config"
	"github.com/codeready-toolchain/incidentbot/pkg/logstream"
	"github.com/codeready-toolchain/incidentbot/pkg/notifier"
	"github.com/codeready-toolchain/incidentbot/pkg/platform"
	"github.com/codeready-toolchain/incidentbot/pkg/remediation"
)

const autoFixLogWindow = 50

// blockActionsPayload is the subset of Slack's block_actions interaction
// payload this handler needs.
type blockActionsPayload struct {
	Type    string `json:"type"`
	User    struct{ ID string } `json:"user"`
	Channel struct{ ID string } `json:"channel"`
	Message struct{ Ts string } `json:"message"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

// interactiveHandler handles POST /interactive: a Slack block action
// callback. Always acknowledges within the request lifecycle; any work
// requiring platform/LLM round trips (the auto_fix refine step) runs in a
// detached goroutine so the 200 response isn't held up by it.
func (s *Server) interactiveHandler(c *echo.Context) error {
	raw := c.FormValue("payload")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing payload")
	}

	var payload blockActionsPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}
	if payload.Type != "block_actions" || len(payload.Actions) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no actions in payload")
	}

	action := payload.Actions[0]
	ctx := c.Request().Context()

	switch action.ActionID {
	case "auto_fix":
		parts, ok := splitValue(action.Value, 2)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed action value")
		}
		go s.beginAutoFixRefine(parts[1], payload.Message.Ts)

	case "start_chat":
		parts, ok := splitValue(action.Value, 2)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed action value")
		}
		if _, err := s.conversation.Open(ctx, parts[1], payload.User.ID, payload.Message.Ts); err != nil {
			s.logger.Error("failed to open conversation session", "incident_id", parts[1], "error", err)
		}

	case "ignore":
		parts, ok := splitValue(action.Value, 2)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed action value")
		}
		if _, err := s.incidents.Ignore(ctx, parts[1]); err != nil {
			s.logger.Error("failed to ignore incident", "incident_id", parts[1], "error", err)
		}

	case "confirm_auto_fix":
		parts, ok := splitValue(action.Value, 3)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed action value")
		}
		incidentID, actionName := parts[1], parts[2]
		actionType := remediationaction.ActionType(actionName)
		if err := remediationaction.ActionTypeValidator(actionType); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown action name")
		}
		s.pub.Publish(broker.TopicRemediationActions, remediation.AutoFixRequested{
			IncidentID:  incidentID,
			Initiator:   config.InitiatorUser,
			InitiatedBy: payload.User.ID,
			ActionType:  actionType,
		})

	case "cancel_auto_fix":
		parts, ok := splitValue(action.Value, 3)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed action value")
		}
		s.notify.PostReply(ctx, payload.Message.Ts, "Auto-fix cancelled for incident "+parts[1]+".")

	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action_id")
	}

	return c.NoContent(http.StatusOK)
}

// splitValue splits a colon-delimited button value into exactly n parts.
func splitValue(value string, n int) ([]string, bool) {
	parts := strings.SplitN(value, ":", n)
	if len(parts) != n {
		return nil, false
	}
	return parts, true
}

// beginAutoFixRefine runs the auto_fix button's background step: move the
// incident to awaiting_action, pull its most recent deployment logs, ask
// the LLM lane for a refined recommendation, and post a confirmation
// message carrying confirm_auto_fix/cancel_auto_fix buttons. Called as a
// detached goroutine since the webhook response has already been sent.
func (s *Server) beginAutoFixRefine(incidentID, threadTS string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inc, err := s.incidents.RequestAutoFix(ctx, incidentID)
	if err != nil {
		s.logger.Error("failed to move incident to awaiting_action", "incident_id", incidentID, "error", err)
		return
	}

	actionType := mapToActionType(config.RecommendedAction(inc.RecommendedAction))
	reasoning := ""

	if s.refiner != nil && s.platform != nil {
		deploymentID, err := s.platform.LatestDeploymentID(ctx, inc.Service, inc.Environment)
		if err != nil {
			s.logger.Warn("failed to resolve latest deployment for refine step", "incident_id", incidentID, "error", err)
		} else if lines, err := s.platform.GetLogs(ctx, deploymentID, autoFixLogWindow); err != nil {
			s.logger.Warn("failed to fetch deployment logs for refine step", "incident_id", incidentID, "error", err)
		} else {
			judgment, err := s.refiner.Classify(ctx, inc.Service, toLogEvents(lines))
			if err != nil {
				s.logger.Warn("LLM refine step failed, falling back to original recommendation", "incident_id", incidentID, "error", err)
			} else if judgment.RecommendedAction != "" {
				actionType = mapToActionType(judgment.RecommendedAction)
				reasoning = judgment.Reasoning
			}
		}
	}

	blocks := notifier.BuildConfirmMessage(incidentID, string(actionType), reasoning)
	if err := s.notify.PostBlocks(ctx, threadTS, blocks); err != nil {
		s.logger.Error("failed to post auto_fix confirmation", "incident_id", incidentID, "error", err)
	}
}

// mapToActionType narrows a RecommendedAction (which includes values like
// redeploy/manual_fix with no remediation executor) onto the
// remediationaction.ActionType the confirm button and AutoFixRequested both
// expect, the same fold the remediation coordinator applies to an
// incident's own recommended_action.
func mapToActionType(ra config.RecommendedAction) remediationaction.ActionType {
	switch ra {
	case config.ActionRestart:
		return remediationaction.ActionTypeRestart
	case config.ActionScaleMemory:
		return remediationaction.ActionTypeScaleMemory
	case config.ActionScaleReplicas:
		return remediationaction.ActionTypeScaleReplicas
	case config.ActionRollback:
		return remediationaction.ActionTypeRollback
	case config.ActionStop:
		return remediationaction.ActionTypeStop
	default:
		return remediationaction.ActionTypeDiagnostic
	}
}

func toLogEvents(lines []platform.LogLine) []logstream.LogEvent {
	events := make([]logstream.LogEvent, 0, len(lines))
	for _, l := range lines {
		events = append(events, logstream.LogEvent{
			Timestamp: l.Timestamp,
			Level:     config.ParseLogLevel(l.Severity),
			Message:   l.Message,
		})
	}
	return events
}
