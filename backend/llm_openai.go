package backend

import (
	"context"
	"strings"

	"github.com/codemusic/roverseer-gateway/core"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIAdapter implements TextGenerator against an OpenAI-compatible
// chat-completions endpoint. baseURL lets it also front local
// OpenAI-shape servers (llama.cpp, vLLM, ...), which is also what backs
// the OpenAI-shape compatibility shim (spec.md §6).
type OpenAIAdapter struct {
	id     string
	client openai.Client
	model  string
}

func NewOpenAIAdapter(id, baseURL, apiKey, defaultModel string) *OpenAIAdapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{
		id:     id,
		client: openai.NewClient(opts...),
		model:  defaultModel,
	}
}

func (a *OpenAIAdapter) ID() string             { return a.id }
func (a *OpenAIAdapter) Capability() Capability { return CapGenerateText }

func (a *OpenAIAdapter) GenerateText(ctx context.Context, prompt string, params GenerateParams) (string, error) {
	model := params.Model
	if model == "" {
		model = a.model
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if params.System != "" {
		messages = append(messages, openai.SystemMessage(params.System))
	}
	messages = append(messages, openai.UserMessage(prompt))

	req := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = openai.Int(int64(params.MaxTokens))
	}
	if params.Temperature > 0 {
		req.Temperature = openai.Float(float64(params.Temperature))
	}

	resp, err := a.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(a.id, err)
	}
	if len(resp.Choices) == 0 {
		return "", core.New("backend.openai.GenerateText", core.KindBackendProtocol, "empty choices array")
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyOpenAIError maps SDK-level failures onto spec.md §7's adapter
// error kinds so the router can decide whether to fall back (§4.B).
func classifyOpenAIError(id string, err error) error {
	msg := err.Error()
	switch {
	case containsAny(msg, "401", "invalid_api_key", "authentication"):
		return core.Wrap("backend.openai", core.KindBackendUnavailable, id+": authentication failed", err)
	case containsAny(msg, "429", "rate_limit"):
		return core.Wrap("backend.openai", core.KindBackendUnavailable, id+": rate limited", err)
	case containsAny(msg, "400", "invalid_request", "context_length"):
		return core.Wrap("backend.openai", core.KindBackendRejected, id+": request rejected", err)
	case containsAny(msg, "timeout", "deadline exceeded"):
		return core.Wrap("backend.openai", core.KindBackendTimeout, id+": timed out", err)
	case containsAny(msg, "connection refused", "no such host", "EOF"):
		return core.Wrap("backend.openai", core.KindBackendUnavailable, id+": unreachable", err)
	default:
		return core.Wrap("backend.openai", core.KindBackendProtocol, id+": unrecognized failure shape", err)
	}
}

func containsAny(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
