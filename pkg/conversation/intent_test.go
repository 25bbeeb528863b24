package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntent_FixedGrammar(t *testing.T) {
	cases := map[string]IntentKind{
		"status":       IntentStatus,
		"Logs":         IntentLogs,
		"deployments":  IntentDeployments,
		"restart":      IntentRestart,
		"redeploy":     IntentRedeploy,
		"stop":         IntentStop,
		"rollback":     IntentRollback,
		"help":         IntentHelp,
		"resolve":      IntentResolve,
		"banana":       IntentUnknown,
		"please help":  IntentUnknown,
	}
	for text, want := range cases {
		got := ParseIntent(text)
		assert.Equal(t, want, got.Kind, "text=%q", text)
	}
}

func TestParseIntent_ScaleMemoryExtractsMB(t *testing.T) {
	intent := ParseIntent("scale memory 512")
	assert.Equal(t, IntentScaleMemory, intent.Kind)
	assert.Equal(t, 512, intent.Parameters["memory_mb"])

	intent = ParseIntent("Scale Memory 1024mb")
	assert.Equal(t, IntentScaleMemory, intent.Kind)
	assert.Equal(t, 1024, intent.Parameters["memory_mb"])
}

func TestParseIntent_ScaleReplicasExtractsCount(t *testing.T) {
	intent := ParseIntent("scale replicas 3")
	assert.Equal(t, IntentScaleReplicas, intent.Kind)
	assert.Equal(t, 3, intent.Parameters["num_replicas"])

	intent = ParseIntent("scale replica 1")
	assert.Equal(t, IntentScaleReplicas, intent.Kind)
	assert.Equal(t, 1, intent.Parameters["num_replicas"])
}

func TestIntent_IsReadOnlyAndIsMutating(t *testing.T) {
	assert.True(t, Intent{Kind: IntentStatus}.IsReadOnly())
	assert.False(t, Intent{Kind: IntentStatus}.IsMutating())

	assert.True(t, Intent{Kind: IntentRestart}.IsMutating())
	assert.False(t, Intent{Kind: IntentRestart}.IsReadOnly())

	assert.False(t, Intent{Kind: IntentUnknown}.IsReadOnly())
	assert.False(t, Intent{Kind: IntentUnknown}.IsMutating())
}
