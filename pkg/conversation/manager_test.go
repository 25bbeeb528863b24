package conversation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/incidentbot/ent"
	"github.com/codeready-toolchain/incidentbot/ent/conversationsession"
	"github.com/codeready-toolchain/incidentbot/ent/incident"
	"github.com/codeready-toolchain/incidentbot/pkg/broker"
	"github.com/codeready-toolchain/incidentbot/pkg/platform"
	"github.com/codeready-toolchain/incidentbot/pkg/remediation"
)

func newTestClient(t *testing.T) *ent.Client {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	drv, err := sql.Open(dialect.Postgres, connStr)
	require.NoError(t, err)

	client := ent.NewClient(ent.Driver(drv))
	require.NoError(t, client.Schema.Create(ctx))
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func seedIncidentFor(t *testing.T, client *ent.Client) *ent.Incident {
	t.Helper()
	inc, err := client.Incident.Create().
		SetID("inc-1").
		SetProject("proj-a").
		SetEnvironment("production").
		SetService("checkout-api").
		SetFingerprint("fp-1").
		SetSeverity(incident.SeverityHigh).
		SetConfidence(0.9).
		SetRecommendedAction(incident.RecommendedActionRestart).
		Save(context.Background())
	require.NoError(t, err)
	return inc
}

type stubReplier struct {
	text string
	err  error
}

func (s stubReplier) Reply(ctx context.Context, history []Message) (string, error) {
	return s.text, s.err
}

func TestManager_OpenCreatesSessionWithSystemMessage(t *testing.T) {
	client := newTestClient(t)
	inc := seedIncidentFor(t, client)
	pub := broker.New()
	mgr := New(client, nil, nil, pub, nil, 0)
	ctx := context.Background()

	session, err := mgr.Open(ctx, inc.ID, "U1", "1700000000.000100")
	require.NoError(t, err)
	assert.True(t, session.Active)

	msgs, err := client.ConversationMessage.Query().All(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Chat session started", msgs[0].Content)
}

func TestManager_OpenIsIdempotentPerThread(t *testing.T) {
	client := newTestClient(t)
	inc := seedIncidentFor(t, client)
	pub := broker.New()
	mgr := New(client, nil, nil, pub, nil, 0)
	ctx := context.Background()

	first, err := mgr.Open(ctx, inc.ID, "U1", "thread-1")
	require.NoError(t, err)
	second, err := mgr.Open(ctx, inc.ID, "U1", "thread-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	n, err := client.ConversationMessage.Query().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManager_HandleMessage_StatusCallsPlatform(t *testing.T) {
	client := newTestClient(t)
	inc := seedIncidentFor(t, client)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"service":{"id":"checkout-api","name":"checkout-api","serviceInstances":[
			{"environmentId":"production","numReplicas":2,"latestDeployment":{"id":"dep-1","status":"SUCCESS"}}
		]}}}`)
	}))
	defer srv.Close()
	platformClient := platform.NewClientWithHTTPClient(srv.Client(), srv.URL, "token")
	pub := broker.New()
	mgr := New(client, platformClient, nil, pub, nil, 0)
	ctx := context.Background()

	session, err := mgr.Open(ctx, inc.ID, "U1", "thread-status")
	require.NoError(t, err)

	require.NoError(t, mgr.HandleMessage(ctx, "thread-status", "U1", "status"))

	msgs, err := client.ConversationMessage.Query().All(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3) // system + user + assistant
	assert.Contains(t, msgs[2].Content, "checkout-api")
	_ = session
}

func TestManager_HandleMessage_MutatingIntentPublishesAutoFixRequested(t *testing.T) {
	client := newTestClient(t)
	inc := seedIncidentFor(t, client)
	pub := broker.New()
	mgr := New(client, nil, nil, pub, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := pub.Subscribe(ctx, broker.TopicRemediationActions)

	_, err := mgr.Open(ctx, inc.ID, "U1", "thread-restart")
	require.NoError(t, err)
	require.NoError(t, mgr.HandleMessage(ctx, "thread-restart", "U1", "restart"))

	select {
	case msg := <-ch:
		req, ok := msg.(remediation.AutoFixRequested)
		require.True(t, ok)
		assert.Equal(t, inc.ID, req.IncidentID)
		assert.Equal(t, "U1", req.InitiatedBy)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for auto_fix_requested")
	}
}

func TestManager_HandleMessage_UnknownIntentFallsBackToReplier(t *testing.T) {
	client := newTestClient(t)
	inc := seedIncidentFor(t, client)
	pub := broker.New()
	mgr := New(client, nil, nil, pub, stubReplier{text: "here's the deal"}, 0)
	ctx := context.Background()

	_, err := mgr.Open(ctx, inc.ID, "U1", "thread-chat")
	require.NoError(t, err)
	require.NoError(t, mgr.HandleMessage(ctx, "thread-chat", "U1", "why is this happening?"))

	msgs, err := client.ConversationMessage.Query().All(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "here's the deal", msgs[2].Content)
}

func TestManager_HandleMessage_ResolveClosesSession(t *testing.T) {
	client := newTestClient(t)
	inc := seedIncidentFor(t, client)
	pub := broker.New()
	mgr := New(client, nil, nil, pub, nil, 0)
	ctx := context.Background()

	session, err := mgr.Open(ctx, inc.ID, "U1", "thread-resolve")
	require.NoError(t, err)
	require.NoError(t, mgr.HandleMessage(ctx, "thread-resolve", "U1", "resolve"))

	reloaded, err := client.ConversationSession.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.Active)
	assert.NotNil(t, reloaded.ClosedAt)
}

func TestManager_CloseIdleSessions_ClosesOnlyStaleSessions(t *testing.T) {
	client := newTestClient(t)
	inc := seedIncidentFor(t, client)
	pub := broker.New()
	mgr := New(client, nil, nil, pub, nil, time.Millisecond)
	ctx := context.Background()

	_, err := mgr.Open(ctx, inc.ID, "U1", "thread-idle")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, mgr.CloseIdleSessions(ctx))

	session, err := client.ConversationSession.Query().
		Where(conversationsession.ChatThreadTSEQ("thread-idle")).
		Only(ctx)
	require.NoError(t, err)
	assert.False(t, session.Active)
}
