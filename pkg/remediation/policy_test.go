package remediation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyStore_Get_CreatesDefaultDisabledRowOnFirstObservation(t *testing.T) {
	client := newTestClient(t)
	store := NewPolicyStore(client)
	ctx := context.Background()

	policy, err := store.Get(ctx, "proj-a", "production", "checkout-api")

	require.NoError(t, err)
	assert.False(t, policy.AutoRemediationEnabled)
	assert.Equal(t, 0.7, policy.ConfidenceThreshold)
	assert.Equal(t, 3, policy.MaxAutoRestartsPerHour)
}

func TestPolicyStore_Get_IsCachedAfterFirstRead(t *testing.T) {
	client := newTestClient(t)
	store := NewPolicyStore(client)
	ctx := context.Background()

	first, err := store.Get(ctx, "proj-a", "production", "checkout-api")
	require.NoError(t, err)

	second, err := store.Get(ctx, "proj-a", "production", "checkout-api")
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestPolicyStore_Invalidate_ForcesReReadOnNextGet(t *testing.T) {
	client := newTestClient(t)
	store := NewPolicyStore(client)
	ctx := context.Background()

	first, err := store.Get(ctx, "proj-a", "production", "checkout-api")
	require.NoError(t, err)

	store.Invalidate("proj-a", "production", "checkout-api")

	second, err := store.Get(ctx, "proj-a", "production", "checkout-api")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, first.ID, second.ID)
}
