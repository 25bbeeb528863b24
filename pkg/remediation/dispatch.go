package remediation

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/incidentbot/ent"
	"github.com/codeready-toolchain/incidentbot/ent/remediationaction"
	"github.com/codeready-toolchain/incidentbot/pkg/platform"
)

const defaultScaleMemoryMB = 1024
const defaultScaleReplicas = 2

// dispatch calls the platform RPC matching action's action_type. A nil
// error with a non-empty message means the action completed without an
// RPC (diagnostic/none); any other return is the RPC's own result.
func dispatch(ctx context.Context, client *platform.Client, inc *ent.Incident, action *ent.RemediationAction) (resultMessage string, err error) {
	switch action.ActionType {
	case remediationaction.ActionTypeRestart:
		if err := client.RestartService(ctx, inc.Service, inc.Environment); err != nil {
			return "", fmt.Errorf("restart service: %w", err)
		}
		return "service restarted", nil

	case remediationaction.ActionTypeScaleMemory:
		memoryMB := defaultScaleMemoryMB
		if v, ok := action.Parameters["memory_mb"]; ok {
			memoryMB = intParam(v, memoryMB)
		}
		if err := client.UpdateLimits(ctx, inc.Service, inc.Environment, memoryMB); err != nil {
			return "", fmt.Errorf("update memory limit: %w", err)
		}
		return fmt.Sprintf("memory limit set to %d MB", memoryMB), nil

	case remediationaction.ActionTypeScaleReplicas:
		replicas := defaultScaleReplicas
		if v, ok := action.Parameters["num_replicas"]; ok {
			replicas = intParam(v, replicas)
		}
		if err := client.UpdateServiceInstance(ctx, inc.Service, inc.Environment, replicas); err != nil {
			return "", fmt.Errorf("update replica count: %w", err)
		}
		return fmt.Sprintf("replica count set to %d", replicas), nil

	case remediationaction.ActionTypeRollback:
		target, err := client.PreviousSucceededDeploymentID(ctx, inc.Service, inc.Environment)
		if err != nil {
			return "", fmt.Errorf("find previous succeeded deployment: %w", err)
		}
		if err := client.RollbackDeployment(ctx, target); err != nil {
			return "", fmt.Errorf("rollback deployment %s: %w", target, err)
		}
		return fmt.Sprintf("rolled back to deployment %s", target), nil

	case remediationaction.ActionTypeStop:
		target, err := client.LatestDeploymentID(ctx, inc.Service, inc.Environment)
		if err != nil {
			return "", fmt.Errorf("find latest deployment: %w", err)
		}
		if err := client.StopDeployment(ctx, target); err != nil {
			return "", fmt.Errorf("stop deployment %s: %w", target, err)
		}
		return fmt.Sprintf("stopped deployment %s", target), nil

	default: // diagnostic, none
		return "no action", nil
	}
}

func intParam(v interface{}, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}
