package config

import (
	"strings"
)

// PlatformConfig holds the credentials and monitoring scope for the
// deployment-platform client (C1).
type PlatformConfig struct {
	// APIToken authenticates the GraphQL-over-WebSocket session. Required:
	// a platform client with no token is refused at validation time rather
	// than allowed to run in a degraded, unauthenticated mode.
	APIToken string

	// MonitoredProjects, MonitoredEnvironments and MonitoredServices are the
	// comma-separated scope lists from which the full cross-product of
	// MonitoringTarget values is derived.
	MonitoredProjects     []string
	MonitoredEnvironments []string
	MonitoredServices     []string

	// APIBaseURL is the platform's GraphQL-over-HTTP endpoint used by the
	// mutation/query client (C1). WSBaseURL is the same API's WebSocket
	// endpoint used by the log-streaming supervisor (C3); it defaults to
	// APIBaseURL with its scheme swapped for ws/wss when left unset.
	APIBaseURL string
	WSBaseURL  string
}

// ResolvedWSBaseURL returns WSBaseURL if set, otherwise derives it from
// APIBaseURL by swapping the HTTP scheme for its WebSocket equivalent.
func (p PlatformConfig) ResolvedWSBaseURL() string {
	if p.WSBaseURL != "" {
		return p.WSBaseURL
	}
	switch {
	case strings.HasPrefix(p.APIBaseURL, "https://"):
		return "wss://" + strings.TrimPrefix(p.APIBaseURL, "https://")
	case strings.HasPrefix(p.APIBaseURL, "http://"):
		return "ws://" + strings.TrimPrefix(p.APIBaseURL, "http://")
	default:
		return p.APIBaseURL
	}
}

// MonitoringTarget identifies one (project, environment, service) tuple the
// supervisor must keep a live log subscription open for.
type MonitoringTarget struct {
	Project     string
	Environment string
	Service     string
}

// Key returns the stable identity used as the supervisor's subscription map
// key and as the ServicePolicy lookup key.
func (t MonitoringTarget) Key() string {
	return t.Project + "/" + t.Environment + "/" + t.Service
}

// Targets expands the three scope lists into the full cross-product of
// monitoring targets. An empty list on any axis yields zero targets rather
// than treating the axis as a wildcard — monitoring scope must be explicit.
func (p PlatformConfig) Targets() []MonitoringTarget {
	if len(p.MonitoredProjects) == 0 || len(p.MonitoredEnvironments) == 0 || len(p.MonitoredServices) == 0 {
		return nil
	}
	targets := make([]MonitoringTarget, 0, len(p.MonitoredProjects)*len(p.MonitoredEnvironments)*len(p.MonitoredServices))
	for _, project := range p.MonitoredProjects {
		for _, env := range p.MonitoredEnvironments {
			for _, svc := range p.MonitoredServices {
				targets = append(targets, MonitoringTarget{Project: project, Environment: env, Service: svc})
			}
		}
	}
	return targets
}

// splitCSV splits a comma-separated environment variable value, trims
// whitespace around each entry and drops empty entries.
func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
