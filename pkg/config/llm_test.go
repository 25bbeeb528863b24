package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLLMConfig_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		cfg      LLMConfig
		expected LLMProviderType
	}{
		{"explicit openai with key", LLMConfig{DefaultProvider: LLMProviderOpenAI, OpenAIAPIKey: "k"}, LLMProviderOpenAI},
		{"explicit openai without key", LLMConfig{DefaultProvider: LLMProviderOpenAI}, ""},
		{"explicit anthropic with key", LLMConfig{DefaultProvider: LLMProviderAnthropic, AnthropicAPIKey: "k"}, LLMProviderAnthropic},
		{"auto prefers anthropic", LLMConfig{DefaultProvider: LLMProviderAuto, OpenAIAPIKey: "k1", AnthropicAPIKey: "k2"}, LLMProviderAnthropic},
		{"auto falls back to openai", LLMConfig{DefaultProvider: LLMProviderAuto, OpenAIAPIKey: "k1"}, LLMProviderOpenAI},
		{"auto with no keys", LLMConfig{DefaultProvider: LLMProviderAuto}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.Resolve())
		})
	}
}
