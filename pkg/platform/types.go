package platform

import "time"

// Service describes a platform-managed service and its instances.
type Service struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Instances []Instance `json:"serviceInstances"`
}

// Instance is a service deployed into a specific environment.
type Instance struct {
	EnvironmentID    string      `json:"environmentId"`
	NumReplicas      int         `json:"numReplicas"`
	LatestDeployment *Deployment `json:"latestDeployment"`
}

// Deployment is a single deploy of a service instance.
type Deployment struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// LogLine is one line of platform-hosted log output.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
}

// Metric is a single numeric sample for a service instance.
type Metric struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Variable is a service environment variable.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
