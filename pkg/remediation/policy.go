package remediation

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeready-toolchain/incidentbot/ent"
	"github.com/codeready-toolchain/incidentbot/ent/servicepolicy"
)

// PolicyStore is a read-through cache in front of the service_policies
// table: created on first observation of a (project, environment,
// service) tuple, read on every automated remediation decision.
type PolicyStore struct {
	client *ent.Client

	mu    sync.RWMutex
	cache map[string]*ent.ServicePolicy
}

// NewPolicyStore wraps an ent client.
func NewPolicyStore(client *ent.Client) *PolicyStore {
	return &PolicyStore{client: client, cache: make(map[string]*ent.ServicePolicy)}
}

func policyKey(project, environment, service string) string {
	return project + "/" + environment + "/" + service
}

// Get returns the policy for (project, environment, service), creating a
// conservative default (auto-remediation disabled) on first observation.
func (p *PolicyStore) Get(ctx context.Context, project, environment, service string) (*ent.ServicePolicy, error) {
	key := policyKey(project, environment, service)

	p.mu.RLock()
	cached, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	policy, err := p.client.ServicePolicy.Query().
		Where(
			servicepolicy.ProjectEQ(project),
			servicepolicy.EnvironmentEQ(environment),
			servicepolicy.ServiceEQ(service),
		).
		Only(ctx)
	switch {
	case ent.IsNotFound(err):
		policy, err = p.client.ServicePolicy.Create().
			SetID(key).
			SetProject(project).
			SetEnvironment(environment).
			SetService(service).
			Save(ctx)
		if err != nil && ent.IsConstraintError(err) {
			// Lost a race to create the same default row; read it back.
			policy, err = p.client.ServicePolicy.Query().
				Where(
					servicepolicy.ProjectEQ(project),
					servicepolicy.EnvironmentEQ(environment),
					servicepolicy.ServiceEQ(service),
				).
				Only(ctx)
		}
		if err != nil {
			return nil, fmt.Errorf("create default service policy: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("query service policy: %w", err)
	}

	p.mu.Lock()
	p.cache[key] = policy
	p.mu.Unlock()
	return policy, nil
}

// Invalidate drops the cached policy for (project, environment, service),
// forcing the next Get to re-read it from the database. Callers update a
// policy's row directly via the generated ent client and should call this
// afterward.
func (p *PolicyStore) Invalidate(project, environment, service string) {
	p.mu.Lock()
	delete(p.cache, policyKey(project, environment, service))
	p.mu.Unlock()
}
