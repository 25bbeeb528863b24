package config

// ChatConfig holds the Slack credentials used by the notifier (C7) and by
// the /interactive and /slash HTTP handlers.
type ChatConfig struct {
	// BotToken authenticates outbound Slack Web API calls (chat.postMessage,
	// conversations.history). Empty disables notifications entirely; see
	// notifier.NewService.
	BotToken string

	// SigningSecret verifies the HMAC-SHA256 signature Slack attaches to
	// every /interactive and /slash request. Required whenever BotToken is
	// set — a chat integration that cannot verify its own inbound requests
	// is a forged-approval risk, not a degraded feature.
	SigningSecret string

	// ChannelID is the single channel incident alerts are posted to.
	ChannelID string
}

// Enabled reports whether chat notifications and interactive handling are
// configured at all.
func (c ChatConfig) Enabled() bool {
	return c.BotToken != "" && c.ChannelID != ""
}
