package remediation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/incidentbot/ent/incident"
	"github.com/codeready-toolchain/incidentbot/ent/remediationaction"
	"github.com/codeready-toolchain/incidentbot/pkg/broker"
	"github.com/codeready-toolchain/incidentbot/pkg/config"
	"github.com/codeready-toolchain/incidentbot/pkg/incidents"
	"github.com/codeready-toolchain/incidentbot/pkg/platform"
)

func restartOKServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"serviceInstanceRestart":true}}`)
	}))
}

func restartFailServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"message":"service not found"}]}`)
	}))
}

func seedIncident(t *testing.T, store *incidents.Store, confidence float64) string {
	t.Helper()
	inc, _, err := store.Upsert(context.Background(), incidents.UpsertInput{
		Project:           "proj-a",
		Environment:       "production",
		Service:           "checkout-api",
		Fingerprint:       "fp-1",
		Severity:          incident.SeverityHigh,
		Confidence:        confidence,
		RootCause:         "connection refused",
		RecommendedAction: incident.RecommendedActionRestart,
		SampleLogLines:    []string{"ECONNREFUSED"},
	})
	require.NoError(t, err)
	return inc.ID
}

func TestCoordinator_AutomatedRequestBlockedByDisabledPolicy(t *testing.T) {
	client := newTestClient(t)
	store := incidents.NewStore(client)
	policies := NewPolicyStore(client)
	srv := restartOKServer()
	defer srv.Close()
	platformClient := platform.NewClientWithHTTPClient(srv.Client(), srv.URL, "token")
	pub := broker.New()
	coord := NewCoordinator(client, store, policies, platformClient, nil, pub, 0)
	ctx := context.Background()

	incidentID := seedIncident(t, store, 0.9)

	coord.handle(ctx, AutoFixRequested{IncidentID: incidentID, Initiator: config.InitiatorAutomated})

	n, err := client.RemediationAction.Query().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	inc, err := store.Get(ctx, incidentID)
	require.NoError(t, err)
	assert.Equal(t, incident.StatusDetected, inc.Status)
}

func TestCoordinator_AutomatedRequestAboveThresholdDispatchesAndResolves(t *testing.T) {
	client := newTestClient(t)
	store := incidents.NewStore(client)
	policies := NewPolicyStore(client)
	srv := restartOKServer()
	defer srv.Close()
	platformClient := platform.NewClientWithHTTPClient(srv.Client(), srv.URL, "token")
	pub := broker.New()
	coord := NewCoordinator(client, store, policies, platformClient, nil, pub, 0)
	ctx := context.Background()

	_, err := client.ServicePolicy.Create().
		SetID("proj-a/production/checkout-api").
		SetProject("proj-a").
		SetEnvironment("production").
		SetService("checkout-api").
		SetAutoRemediationEnabled(true).
		SetConfidenceThreshold(0.5).
		Save(ctx)
	require.NoError(t, err)

	incidentID := seedIncident(t, store, 0.9)

	coord.handle(ctx, AutoFixRequested{IncidentID: incidentID, Initiator: config.InitiatorAutomated})

	inc, err := store.Get(ctx, incidentID)
	require.NoError(t, err)
	assert.Equal(t, incident.StatusAutoRemediated, inc.Status)

	action, err := client.RemediationAction.Query().Where(remediationaction.IncidentIDEQ(incidentID)).Only(ctx)
	require.NoError(t, err)
	assert.Equal(t, remediationaction.StatusSucceeded, action.Status)
	assert.Equal(t, remediationaction.ActionTypeRestart, action.ActionType)
}

func TestCoordinator_UserInitiatedRequestSkipsPolicyGate(t *testing.T) {
	client := newTestClient(t)
	store := incidents.NewStore(client)
	policies := NewPolicyStore(client)
	srv := restartOKServer()
	defer srv.Close()
	platformClient := platform.NewClientWithHTTPClient(srv.Client(), srv.URL, "token")
	pub := broker.New()
	coord := NewCoordinator(client, store, policies, platformClient, nil, pub, 0)
	ctx := context.Background()

	incidentID := seedIncident(t, store, 0.1)

	coord.handle(ctx, AutoFixRequested{IncidentID: incidentID, Initiator: config.InitiatorUser, InitiatedBy: "U123"})

	inc, err := store.Get(ctx, incidentID)
	require.NoError(t, err)
	assert.Equal(t, incident.StatusAutoRemediated, inc.Status)
}

func TestCoordinator_DispatchFailureMarksIncidentAndActionFailed(t *testing.T) {
	client := newTestClient(t)
	store := incidents.NewStore(client)
	policies := NewPolicyStore(client)
	srv := restartFailServer()
	defer srv.Close()
	platformClient := platform.NewClientWithHTTPClient(srv.Client(), srv.URL, "token")
	pub := broker.New()
	coord := NewCoordinator(client, store, policies, platformClient, nil, pub, 0)
	ctx := context.Background()

	incidentID := seedIncident(t, store, 0.9)

	coord.handle(ctx, AutoFixRequested{IncidentID: incidentID, Initiator: config.InitiatorUser})

	inc, err := store.Get(ctx, incidentID)
	require.NoError(t, err)
	assert.Equal(t, incident.StatusFailed, inc.Status)

	action, err := client.RemediationAction.Query().Where(remediationaction.IncidentIDEQ(incidentID)).Only(ctx)
	require.NoError(t, err)
	assert.Equal(t, remediationaction.StatusFailed, action.Status)
}

func TestCoordinator_SecondRequestWhileActionInFlightIsDropped(t *testing.T) {
	client := newTestClient(t)
	store := incidents.NewStore(client)
	policies := NewPolicyStore(client)
	srv := restartOKServer()
	defer srv.Close()
	platformClient := platform.NewClientWithHTTPClient(srv.Client(), srv.URL, "token")
	pub := broker.New()
	coord := NewCoordinator(client, store, policies, platformClient, nil, pub, 0)
	ctx := context.Background()

	incidentID := seedIncident(t, store, 0.9)
	_, err := claimAction(ctx, client, incidentID, remediationaction.ActionTypeRestart, config.InitiatorUser, "U1", nil)
	require.NoError(t, err)

	coord.handle(ctx, AutoFixRequested{IncidentID: incidentID, Initiator: config.InitiatorUser, InitiatedBy: "U2"})

	n, err := client.RemediationAction.Query().Where(remediationaction.IncidentIDEQ(incidentID)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
