package platform

import "context"

const serviceQuery = `
query Service($id: String!) {
  service(id: $id) {
    id
    name
    serviceInstances {
      environmentId
      numReplicas
      latestDeployment { id status createdAt }
    }
  }
}`

// GetService fetches a service and its per-environment instances.
func (c *Client) GetService(ctx context.Context, serviceID string) (*Service, error) {
	var out struct {
		Service Service `json:"service"`
	}
	if err := c.execute(ctx, serviceQuery, map[string]any{"id": serviceID}, &out); err != nil {
		return nil, err
	}
	return &out.Service, nil
}

// LatestDeploymentID inspects the service's instance list, filters by
// environmentID, and returns the latest deployment's id. It returns
// ErrNoMatchingInstance when no instance targets environmentID, and
// ErrNoDeployment when the matching instance has never been deployed.
func (c *Client) LatestDeploymentID(ctx context.Context, serviceID, environmentID string) (string, error) {
	svc, err := c.GetService(ctx, serviceID)
	if err != nil {
		return "", err
	}
	for _, inst := range svc.Instances {
		if inst.EnvironmentID != environmentID {
			continue
		}
		if inst.LatestDeployment == nil {
			return "", ErrNoDeployment
		}
		return inst.LatestDeployment.ID, nil
	}
	return "", ErrNoMatchingInstance
}

const deploymentsQuery = `
query Deployments($serviceId: String!, $environmentId: String!) {
  deployments(serviceId: $serviceId, environmentId: $environmentId) {
    id status createdAt
  }
}`

// ListDeployments returns deployments for a service instance, most recent
// first.
func (c *Client) ListDeployments(ctx context.Context, serviceID, environmentID string) ([]Deployment, error) {
	var out struct {
		Deployments []Deployment `json:"deployments"`
	}
	vars := map[string]any{"serviceId": serviceID, "environmentId": environmentID}
	if err := c.execute(ctx, deploymentsQuery, vars, &out); err != nil {
		return nil, err
	}
	return out.Deployments, nil
}

// PreviousSucceededDeploymentID returns the second-most-recent deployment
// in the succeeded state, used as the rollback target.
func (c *Client) PreviousSucceededDeploymentID(ctx context.Context, serviceID, environmentID string) (string, error) {
	deployments, err := c.ListDeployments(ctx, serviceID, environmentID)
	if err != nil {
		return "", err
	}
	succeeded := make([]Deployment, 0, len(deployments))
	for _, d := range deployments {
		if d.Status == "SUCCESS" || d.Status == "succeeded" {
			succeeded = append(succeeded, d)
		}
	}
	if len(succeeded) < 2 {
		return "", ErrNoDeployment
	}
	return succeeded[1].ID, nil
}

const logsQuery = `
query Logs($deploymentId: String!, $limit: Int!) {
  deploymentLogs(deploymentId: $deploymentId, limit: $limit) {
    timestamp message severity
  }
}`

// GetLogs fetches the most recent log lines for a deployment.
func (c *Client) GetLogs(ctx context.Context, deploymentID string, limit int) ([]LogLine, error) {
	var out struct {
		Logs []LogLine `json:"deploymentLogs"`
	}
	vars := map[string]any{"deploymentId": deploymentID, "limit": limit}
	if err := c.execute(ctx, logsQuery, vars, &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

const metricsQuery = `
query Metrics($deploymentId: String!) {
  deploymentMetrics(deploymentId: $deploymentId) {
    name value timestamp
  }
}`

// GetMetrics fetches the latest resource metrics for a deployment.
func (c *Client) GetMetrics(ctx context.Context, deploymentID string) ([]Metric, error) {
	var out struct {
		Metrics []Metric `json:"deploymentMetrics"`
	}
	if err := c.execute(ctx, metricsQuery, map[string]any{"deploymentId": deploymentID}, &out); err != nil {
		return nil, err
	}
	return out.Metrics, nil
}

const variablesQuery = `
query Variables($serviceId: String!, $environmentId: String!) {
  variables(serviceId: $serviceId, environmentId: $environmentId) {
    name value
  }
}`

// GetVariables fetches the environment variables configured for a service
// instance.
func (c *Client) GetVariables(ctx context.Context, serviceID, environmentID string) ([]Variable, error) {
	var out struct {
		Variables []Variable `json:"variables"`
	}
	vars := map[string]any{"serviceId": serviceID, "environmentId": environmentID}
	if err := c.execute(ctx, variablesQuery, vars, &out); err != nil {
		return nil, err
	}
	return out.Variables, nil
}
