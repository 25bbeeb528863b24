package remediation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/incidentbot/ent"
	"github.com/codeready-toolchain/incidentbot/ent/incident"
	"github.com/codeready-toolchain/incidentbot/ent/remediationaction"
	"github.com/codeready-toolchain/incidentbot/pkg/config"
)

// ErrActionInProgress is returned by claimAction when the incident already
// has a non-terminal remediation action, per the partial unique index on
// remediation_actions(incident_id) WHERE status IN ('pending','in_progress').
var ErrActionInProgress = errors.New("incident already has a non-terminal remediation action")

// mapRecommendedAction narrows an incident's recommended_action to the
// subset a RemediationAction can carry out. redeploy, manual_fix, and none
// all fold into diagnostic: none of them is an RPC the coordinator
// dispatches on its own, so they surface as a no-op action visible to the
// chat thread instead.
func mapRecommendedAction(ra incident.RecommendedAction) remediationaction.ActionType {
	switch ra {
	case incident.RecommendedActionRestart:
		return remediationaction.ActionTypeRestart
	case incident.RecommendedActionScaleMemory:
		return remediationaction.ActionTypeScaleMemory
	case incident.RecommendedActionScaleReplicas:
		return remediationaction.ActionTypeScaleReplicas
	case incident.RecommendedActionRollback:
		return remediationaction.ActionTypeRollback
	case incident.RecommendedActionStop:
		return remediationaction.ActionTypeStop
	default:
		return remediationaction.ActionTypeDiagnostic
	}
}

// claimAction creates a RemediationAction row for incidentID, relying on
// the schema's partial unique index to reject a second concurrent claim
// rather than reading-then-writing under a transaction: remediation only
// needs existence-assertion, not the reopen-if-still-open dance incidents'
// Upsert performs.
func claimAction(ctx context.Context, client *ent.Client, incidentID string, actionType remediationaction.ActionType, initiator config.InitiatorType, initiatedBy string, params map[string]interface{}) (*ent.RemediationAction, error) {
	create := client.RemediationAction.Create().
		SetID(uuid.NewString()).
		SetIncidentID(incidentID).
		SetActionType(actionType).
		SetInitiator(remediationaction.Initiator(initiator)).
		SetParameters(params)
	if initiatedBy != "" {
		create = create.SetInitiatedBy(initiatedBy)
	}

	action, err := create.Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, ErrActionInProgress
		}
		return nil, fmt.Errorf("claim remediation action for incident %s: %w", incidentID, err)
	}
	return action, nil
}

func markInProgress(ctx context.Context, client *ent.Client, actionID string) (*ent.RemediationAction, error) {
	now := time.Now()
	action, err := client.RemediationAction.UpdateOneID(actionID).
		SetStatus(remediationaction.StatusInProgress).
		SetStartedAt(now).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("mark action %s in_progress: %w", actionID, err)
	}
	return action, nil
}

func markSucceeded(ctx context.Context, client *ent.Client, actionID, message string) error {
	now := time.Now()
	update := client.RemediationAction.UpdateOneID(actionID).
		SetStatus(remediationaction.StatusSucceeded).
		SetCompletedAt(now)
	if message != "" {
		update = update.SetResultMessage(message)
	}
	if _, err := update.Save(ctx); err != nil {
		return fmt.Errorf("mark action %s succeeded: %w", actionID, err)
	}
	return nil
}

func markFailed(ctx context.Context, client *ent.Client, actionID, message string) error {
	now := time.Now()
	update := client.RemediationAction.UpdateOneID(actionID).
		SetStatus(remediationaction.StatusFailed).
		SetCompletedAt(now)
	if message != "" {
		update = update.SetResultMessage(message)
	}
	if _, err := update.Save(ctx); err != nil {
		return fmt.Errorf("mark action %s failed: %w", actionID, err)
	}
	return nil
}
