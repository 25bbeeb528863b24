// Package llm is a provider-agnostic chat client selecting between OpenAI
// and Anthropic at construction time. It implements both
// detector.Classifier (the LLM lane's batched judgment call) and
// conversation.Replier (the conversation manager's free-text fallback),
// so the rest of the pipeline never imports a model SDK directly.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaisdk "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"

	"github.com/codeready-toolchain/incidentbot/pkg/config"
	"github.com/codeready-toolchain/incidentbot/pkg/conversation"
	"github.com/codeready-toolchain/incidentbot/pkg/detector"
	"github.com/codeready-toolchain/incidentbot/pkg/logstream"
	"github.com/codeready-toolchain/incidentbot/pkg/masking"
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultMaxTokens      = int64(1024)
)

// ErrNotConfigured is returned by New when neither provider has an API
// key set.
var ErrNotConfigured = fmt.Errorf("llm: no provider configured")

// Client wraps whichever SDK config.LLMConfig.Resolve() selects. Exactly
// one of openai/anthropic is non-nil after construction.
type Client struct {
	provider config.LLMProviderType

	openai      *openaisdk.Client
	openaiModel string

	anthropic      *anthropicsdk.Client
	anthropicModel string

	masker *masking.Service
	logger *slog.Logger
}

// New resolves cfg's provider and constructs the matching SDK client.
// masker may be nil, in which case log content is sent to the provider
// unredacted.
func New(cfg config.LLMConfig, masker *masking.Service) (*Client, error) {
	provider := cfg.Resolve()
	if provider == "" {
		return nil, ErrNotConfigured
	}

	c := &Client{
		provider: provider,
		masker:   masker,
		logger:   slog.Default().With("component", "llm", "provider", string(provider)),
	}

	switch provider {
	case config.LLMProviderOpenAI:
		client := openaisdk.NewClient(openaioption.WithAPIKey(cfg.OpenAIAPIKey))
		c.openai = &client
		c.openaiModel = cfg.OpenAIModel
		if c.openaiModel == "" {
			c.openaiModel = defaultOpenAIModel
		}
	case config.LLMProviderAnthropic:
		client := anthropicsdk.NewClient(anthropicoption.WithAPIKey(cfg.AnthropicAPIKey))
		c.anthropic = &client
		c.anthropicModel = cfg.AnthropicModel
		if c.anthropicModel == "" {
			c.anthropicModel = defaultAnthropicModel
		}
	default:
		return nil, fmt.Errorf("llm: unsupported resolved provider %q", provider)
	}

	return c, nil
}

func (c *Client) mask(text string) string {
	if c.masker == nil {
		return text
	}
	return c.masker.Mask(text)
}

// chat sends a system prompt plus a user turn and returns the model's
// text response, dispatching to whichever provider New resolved.
func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	switch c.provider {
	case config.LLMProviderOpenAI:
		return c.chatOpenAI(ctx, system, user)
	case config.LLMProviderAnthropic:
		return c.chatAnthropic(ctx, system, user)
	default:
		return "", fmt.Errorf("llm: client has no resolved provider")
	}
}

func (c *Client) chatOpenAI(ctx context.Context, system, user string) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(c.openaiModel),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(system),
			openaisdk.UserMessage(user),
		},
	}
	comp, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(comp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: no choices returned")
	}
	return comp.Choices[0].Message.Content, nil
}

func (c *Client) chatAnthropic(ctx context.Context, system, user string) (string, error) {
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.anthropicModel),
		MaxTokens: defaultMaxTokens,
		System:    []anthropicsdk.TextBlockParam{{Text: system}},
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(user)),
		},
	}
	resp, err := c.anthropic.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String(), nil
}

// classifyPrompt is the system prompt steering the model toward the exact
// JSON shape Classify parses. Kept deliberately rigid -- the detector's
// LLM lane has no tool-call round trip to fall back on if this drifts.
const classifyPrompt = `You are an SRE triage assistant. Given a window of ` +
	`recent log lines from one service, respond with a single JSON object ` +
	`and nothing else, matching this shape:
{"severity":"critical|high|medium|low","root_cause":"...","recommended_action":"restart|redeploy|scale_memory|scale_replicas|rollback|stop|manual_fix|none","confidence":0.0,"reasoning":"..."}`

type classifyResponse struct {
	Severity          string  `json:"severity"`
	RootCause         string  `json:"root_cause"`
	RecommendedAction string  `json:"recommended_action"`
	Confidence        float64 `json:"confidence"`
	Reasoning         string  `json:"reasoning"`
}

// Classify implements detector.Classifier. It renders the window as masked
// log lines and asks the model for a structured judgment.
func (c *Client) Classify(ctx context.Context, serviceID string, window []logstream.LogEvent) (detector.Judgment, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "service: %s\n", serviceID)
	for _, event := range window {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", event.Timestamp.Format("15:04:05"), event.Level, c.mask(event.Message))
	}

	raw, err := c.chat(ctx, classifyPrompt, sb.String())
	if err != nil {
		return detector.Judgment{}, err
	}

	var parsed classifyResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return detector.Judgment{}, fmt.Errorf("llm: parse classify response: %w", err)
	}

	return detector.Judgment{
		Severity:          config.Severity(parsed.Severity),
		RootCause:         parsed.RootCause,
		RecommendedAction: config.RecommendedAction(parsed.RecommendedAction),
		Confidence:        parsed.Confidence,
		Reasoning:         parsed.Reasoning,
	}, nil
}

// extractJSON trims any leading/trailing prose a model adds around the
// JSON object despite instructions, by slicing from the first '{' to the
// last '}'.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

const replyPrompt = `You are an on-call assistant embedded in an incident ` +
	`Slack thread. Answer the operator's question about the incident ` +
	`concisely, in plain text suitable for a chat message. If you don't ` +
	`know, say so rather than guessing.`

// Reply implements conversation.Replier. history's last entry is the
// operator's latest message; earlier entries are prior turns in the
// thread, oldest first.
func (c *Client) Reply(ctx context.Context, history []conversation.Message) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("llm: empty conversation history")
	}

	var sb strings.Builder
	for _, msg := range history {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, c.mask(msg.Content))
	}

	reply, err := c.chat(ctx, replyPrompt, sb.String())
	if err != nil {
		c.logger.Warn("conversation reply failed", "error", err)
		return "", err
	}
	return reply, nil
}
