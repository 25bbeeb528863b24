package incidents

import (
	"context"
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
	"github.com/codeready-toolchain/incidentbot/ent/incident"
)

func newTestStore(t *testing.T) *Store {
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

	return NewStore(client)
}

func baseInput() UpsertInput {
	return UpsertInput{
		Project:           "proj-a",
		Environment:       "production",
		Service:           "checkout-api",
		Fingerprint:       "fp-conn-refused",
		Severity:          incident.SeverityHigh,
		Confidence:        0.8,
		RootCause:         "connection refused",
		RecommendedAction: incident.RecommendedActionRestart,
		SampleLogLines:    []string{"ECONNREFUSED at 10.0.0.1:5432"},
	}
}

func TestStore_Upsert_CreatesOnNoExistingRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inc, outcome, err := store.Upsert(ctx, baseInput())

	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, incident.StatusDetected, inc.Status)
}

func TestStore_Upsert_UpdatesOpenRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, _, err := store.Upsert(ctx, baseInput())
	require.NoError(t, err)

	input := baseInput()
	input.Confidence = 0.95
	input.RootCause = "connection refused, worsening"
	second, outcome, err := store.Upsert(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 0.95, second.Confidence)
}

func TestStore_Upsert_ReopensFailedIncident(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, _, err := store.Upsert(ctx, baseInput())
	require.NoError(t, err)

	_, err = store.RequestAutoFix(ctx, created.ID)
	require.NoError(t, err)
	_, err = store.MarkFailed(ctx, created.ID)
	require.NoError(t, err)

	reopened, outcome, err := store.Upsert(ctx, baseInput())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, incident.StatusDetected, reopened.Status)
}

func TestStore_Upsert_SkipsTerminalRowWithoutMutation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, _, err := store.Upsert(ctx, baseInput())
	require.NoError(t, err)
	_, err = store.Resolve(ctx, created.ID)
	require.NoError(t, err)

	input := baseInput()
	input.RootCause = "should not be written"
	_, outcome, err := store.Upsert(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	fetched, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "connection refused", *fetched.RootCause)
	assert.Equal(t, incident.StatusManualResolved, fetched.Status)
}

func TestStore_TransitionGraph(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, _, err := store.Upsert(ctx, baseInput())
	require.NoError(t, err)

	awaiting, err := store.RequestAutoFix(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, incident.StatusAwaitingAction, awaiting.Status)

	remediated, err := store.MarkAutoRemediated(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, incident.StatusAutoRemediated, remediated.Status)
	assert.NotNil(t, remediated.ResolvedAt)
}

func TestStore_RequestAutoFix_RejectsInvalidSource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, _, err := store.Upsert(ctx, baseInput())
	require.NoError(t, err)
	_, err = store.Ignore(ctx, created.ID)
	require.NoError(t, err)

	_, err = store.RequestAutoFix(ctx, created.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStore_Upsert_DistinctFingerprintsDoNotCollide(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := baseInput()
	b := baseInput()
	b.Fingerprint = "fp-different"

	_, outcomeA, err := store.Upsert(ctx, a)
	require.NoError(t, err)
	_, outcomeB, err := store.Upsert(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, outcomeA)
	assert.Equal(t, OutcomeCreated, outcomeB)
}
