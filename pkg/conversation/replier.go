package conversation

import "context"

// Message is one turn of conversation history passed to a Replier.
type Message struct {
	Role    string // user, assistant, system
	Content string
}

// Replier answers free-text chat input the fixed intent grammar doesn't
// recognize. Decouples the manager from any concrete LLM provider, the
// same way detector.Classifier decouples the detector's LLM lane —
// pkg/llm implements this against whichever provider is configured.
type Replier interface {
	Reply(ctx context.Context, history []Message) (string, error)
}
