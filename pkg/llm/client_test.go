package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/incidentbot/pkg/config"
)

func TestNew_ReturnsErrNotConfiguredWhenNoKeys(t *testing.T) {
	_, err := New(config.LLMConfig{DefaultProvider: config.LLMProviderAuto}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNew_ResolvesOpenAIWhenOnlyOpenAIKeySet(t *testing.T) {
	client, err := New(config.LLMConfig{
		DefaultProvider: config.LLMProviderAuto,
		OpenAIAPIKey:    "test-key",
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, config.LLMProviderOpenAI, client.provider)
	assert.Equal(t, defaultOpenAIModel, client.openaiModel)
}

func TestNew_ResolvesAnthropicWhenBothKeysSet(t *testing.T) {
	client, err := New(config.LLMConfig{
		DefaultProvider: config.LLMProviderAuto,
		OpenAIAPIKey:    "oai-key",
		AnthropicAPIKey: "anth-key",
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, config.LLMProviderAnthropic, client.provider)
}

func TestNew_HonorsExplicitModelOverride(t *testing.T) {
	client, err := New(config.LLMConfig{
		DefaultProvider: config.LLMProviderOpenAI,
		OpenAIAPIKey:    "test-key",
		OpenAIModel:     "gpt-4o",
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "gpt-4o", client.openaiModel)
}

func TestExtractJSON_StripsSurroundingProse(t *testing.T) {
	raw := "Here is my answer:\n{\"severity\":\"high\"}\nHope that helps!"
	assert.Equal(t, `{"severity":"high"}`, extractJSON(raw))
}

func TestExtractJSON_ReturnsInputWhenNoBraces(t *testing.T) {
	assert.Equal(t, "no json here", extractJSON("no json here"))
}
