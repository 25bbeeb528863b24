package platform

import "context"

const restartServiceMutation = `
mutation RestartService($serviceId: String!, $environmentId: String!) {
  serviceInstanceRestart(serviceId: $serviceId, environmentId: $environmentId)
}`

// RestartService restarts the running instance of a service in an
// environment without redeploying it.
func (c *Client) RestartService(ctx context.Context, serviceID, environmentID string) error {
	vars := map[string]any{"serviceId": serviceID, "environmentId": environmentID}
	return c.execute(ctx, restartServiceMutation, vars, nil)
}

const restartDeploymentMutation = `
mutation RestartDeployment($deploymentId: String!) {
  deploymentRestart(id: $deploymentId)
}`

// RestartDeployment restarts a specific deployment.
func (c *Client) RestartDeployment(ctx context.Context, deploymentID string) error {
	return c.execute(ctx, restartDeploymentMutation, map[string]any{"deploymentId": deploymentID}, nil)
}

const redeployMutation = `
mutation Redeploy($deploymentId: String!) {
  deploymentRedeploy(id: $deploymentId)
}`

// Redeploy triggers a fresh deploy from the given deployment's source.
func (c *Client) Redeploy(ctx context.Context, deploymentID string) error {
	return c.execute(ctx, redeployMutation, map[string]any{"deploymentId": deploymentID}, nil)
}

const stopDeploymentMutation = `
mutation StopDeployment($deploymentId: String!) {
  deploymentStop(id: $deploymentId)
}`

// StopDeployment stops a running deployment.
func (c *Client) StopDeployment(ctx context.Context, deploymentID string) error {
	return c.execute(ctx, stopDeploymentMutation, map[string]any{"deploymentId": deploymentID}, nil)
}

const cancelDeploymentMutation = `
mutation CancelDeployment($deploymentId: String!) {
  deploymentCancel(id: $deploymentId)
}`

// CancelDeployment cancels an in-flight deployment.
func (c *Client) CancelDeployment(ctx context.Context, deploymentID string) error {
	return c.execute(ctx, cancelDeploymentMutation, map[string]any{"deploymentId": deploymentID}, nil)
}

const rollbackDeploymentMutation = `
mutation RollbackDeployment($deploymentId: String!) {
  deploymentRollback(id: $deploymentId)
}`

// RollbackDeployment re-deploys a previous deployment by id. Callers
// derive the target id via PreviousSucceededDeploymentID.
func (c *Client) RollbackDeployment(ctx context.Context, deploymentID string) error {
	return c.execute(ctx, rollbackDeploymentMutation, map[string]any{"deploymentId": deploymentID}, nil)
}

const updateServiceInstanceMutation = `
mutation UpdateServiceInstance($serviceId: String!, $environmentId: String!, $input: ServiceInstanceUpdateInput!) {
  serviceInstanceUpdate(serviceId: $serviceId, environmentId: $environmentId, input: $input)
}`

// UpdateServiceInstance changes the replica count for a service instance,
// used for the scale_replicas remediation action.
func (c *Client) UpdateServiceInstance(ctx context.Context, serviceID, environmentID string, numReplicas int) error {
	vars := map[string]any{
		"serviceId":     serviceID,
		"environmentId": environmentID,
		"input":         map[string]any{"numReplicas": numReplicas},
	}
	return c.execute(ctx, updateServiceInstanceMutation, vars, nil)
}

const updateLimitsMutation = `
mutation UpdateLimits($serviceId: String!, $environmentId: String!, $memoryMb: Int!) {
  serviceInstanceLimitsUpdate(serviceId: $serviceId, environmentId: $environmentId, memoryMb: $memoryMb)
}`

// UpdateLimits changes the memory limit for a service instance, used for
// the scale_memory remediation action.
func (c *Client) UpdateLimits(ctx context.Context, serviceID, environmentID string, memoryMB int) error {
	vars := map[string]any{"serviceId": serviceID, "environmentId": environmentID, "memoryMb": memoryMB}
	return c.execute(ctx, updateLimitsMutation, vars, nil)
}

const upsertVariableMutation = `
mutation UpsertVariable($serviceId: String!, $environmentId: String!, $name: String!, $value: String!) {
  variableUpsert(serviceId: $serviceId, environmentId: $environmentId, name: $name, value: $value)
}`

// UpsertVariable creates or updates a service environment variable.
func (c *Client) UpsertVariable(ctx context.Context, serviceID, environmentID, name, value string) error {
	vars := map[string]any{
		"serviceId":     serviceID,
		"environmentId": environmentID,
		"name":          name,
		"value":         value,
	}
	return c.execute(ctx, upsertVariableMutation, vars, nil)
}
