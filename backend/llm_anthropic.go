package backend

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/codemusic/roverseer-gateway/core"
)

// AnthropicAdapter implements TextGenerator against the Claude Messages
// API. It is a typical secondary/fallback entry in an LLM Selection
// Policy: a different vendor, a different API key, so a 401 on one
// provider never implies a 401 on the other (spec.md §4.B).
type AnthropicAdapter struct {
	id     string
	client anthropic.Client
	model  string
}

func NewAnthropicAdapter(id, apiKey, defaultModel string) *AnthropicAdapter {
	return &AnthropicAdapter{
		id:     id,
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
}

func (a *AnthropicAdapter) ID() string             { return a.id }
func (a *AnthropicAdapter) Capability() Capability { return CapGenerateText }

func (a *AnthropicAdapter) GenerateText(ctx context.Context, prompt string, params GenerateParams) (string, error) {
	model := params.Model
	if model == "" {
		model = a.model
	}
	maxTokens := int64(params.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 1024
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if params.System != "" {
		req.System = []anthropic.TextBlockParam{{Text: params.System}}
	}

	resp, err := a.client.Messages.New(ctx, req)
	if err != nil {
		return "", classifyAnthropicError(a.id, err)
	}
	if len(resp.Content) == 0 {
		return "", core.New("backend.anthropic.GenerateText", core.KindBackendProtocol, "empty content blocks")
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", core.New("backend.anthropic.GenerateText", core.KindBackendProtocol, "no text block in response")
	}
	return text, nil
}

func classifyAnthropicError(id string, err error) error {
	msg := err.Error()
	switch {
	case containsAny(msg, "401", "authentication_error"):
		return core.Wrap("backend.anthropic", core.KindBackendUnavailable, id+": authentication failed", err)
	case containsAny(msg, "429", "rate_limit_error", "overloaded_error"):
		return core.Wrap("backend.anthropic", core.KindBackendUnavailable, id+": rate limited", err)
	case containsAny(msg, "400", "invalid_request_error"):
		return core.Wrap("backend.anthropic", core.KindBackendRejected, id+": request rejected", err)
	case containsAny(msg, "timeout", "deadline exceeded"):
		return core.Wrap("backend.anthropic", core.KindBackendTimeout, id+": timed out", err)
	case containsAny(msg, "connection refused", "no such host", "EOF"):
		return core.Wrap("backend.anthropic", core.KindBackendUnavailable, id+": unreachable", err)
	default:
		return core.Wrap("backend.anthropic", core.KindBackendProtocol, id+": unrecognized failure shape", err)
	}
}
