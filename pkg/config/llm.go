package config

// LLMConfig holds provider selection and credentials for the detector's LLM
// lane (C4), the remediation coordinator's diagnostic step (C8), and the
// conversation manager's free-form fallback (C9).
type LLMConfig struct {
	// DefaultProvider picks which SDK backs classification calls. "auto"
	// prefers Anthropic, falling back to OpenAI, whichever has a key set.
	DefaultProvider LLMProviderType

	OpenAIAPIKey    string
	AnthropicAPIKey string

	// OpenAIModel/AnthropicModel override the chat model used for both the
	// detector's classification calls and the conversation manager's
	// free-text fallback. Empty means use the client's built-in default.
	OpenAIModel    string
	AnthropicModel string
}

// Resolve picks the concrete provider to use given the configured keys,
// applying the "auto" fallback rule. Returns an empty provider when neither
// key is set, which callers must treat as "LLM lane disabled".
func (c LLMConfig) Resolve() LLMProviderType {
	switch c.DefaultProvider {
	case LLMProviderOpenAI:
		if c.OpenAIAPIKey != "" {
			return LLMProviderOpenAI
		}
		return ""
	case LLMProviderAnthropic:
		if c.AnthropicAPIKey != "" {
			return LLMProviderAnthropic
		}
		return ""
	default: // "auto" or unset
		if c.AnthropicAPIKey != "" {
			return LLMProviderAnthropic
		}
		if c.OpenAIAPIKey != "" {
			return LLMProviderOpenAI
		}
		return ""
	}
}
