// Package openai implements model.Client on top of the OpenAI Chat
// Completions API via github.com/openai/openai-go. Grounded on
// features/model/openai/client.go's ChatClient seam (a narrow interface
// over the SDK so tests can substitute a fake), trimmed to non-streaming
// completions and text/tool_call content only.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	tmodel "turnengine/model"
)

// ChatClient is the subset of the OpenAI SDK used by Client. Satisfied by
// the real client's Chat.Completions service.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements model.Client via OpenAI Chat Completions.
type Client struct {
	chat      ChatClient
	maxTokens int64
}

// New builds an OpenAI-backed model.Client.
func New(chat ChatClient, maxTokens int64) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{chat: chat, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a client from an API key using the default SDK
// HTTP transport.
func NewFromAPIKey(apiKey string, maxTokens int64) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return New(c.Chat.Completions, maxTokens)
}

// Provider identifies this adapter in llm.generation telemetry.
func (c *Client) Provider() string { return "openai" }

// Generate issues a non-streaming chat completion request.
func (c *Client) Generate(ctx context.Context, req tmodel.Request) (tmodel.Response, error) {
	if req.ModelRef == "" {
		return tmodel.Response{}, &tmodel.ProviderError{Provider: "openai", Kind: tmodel.ProviderErrorKindInvalidRequest, Message: "model reference is required"}
	}
	params := c.encodeRequest(req)

	start := time.Now()
	resp, err := c.chat.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		return tmodel.Response{}, classifyError(err)
	}
	return translateResponse(resp, duration), nil
}

func (c *Client) encodeRequest(req tmodel.Request) openai.ChatCompletionNewParams {
	maxTokens := c.maxTokens
	if req.Controls.MaxTokens > 0 {
		maxTokens = int64(req.Controls.MaxTokens)
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		text := textOf(m)
		switch m.Role {
		case tmodel.RoleSystem:
			messages = append(messages, openai.SystemMessage(text))
		case tmodel.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(text))
		case tmodel.RoleTool:
			for _, p := range m.Parts {
				if p.Kind == tmodel.PartToolResult {
					messages = append(messages, openai.ToolMessage(resultText(p), p.ToolResultForCallID))
				}
			}
		default:
			messages = append(messages, openai.UserMessage(text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:     req.ModelRef,
		Messages:  messages,
		MaxTokens: openai.Int(maxTokens),
	}
	if req.Controls.Temperature > 0 {
		params.Temperature = openai.Float(req.Controls.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = encodeTools(req.Tools)
	}
	return params
}

func textOf(m tmodel.Message) string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == tmodel.PartText {
			out += p.Text
		}
	}
	return out
}

func resultText(p tmodel.Part) string {
	if p.ToolResultIsError {
		if msg, ok := p.ToolResult["error"].(string); ok {
			return msg
		}
	}
	b, _ := json.Marshal(p.ToolResult)
	return string(b)
}

func encodeTools(tools []tmodel.ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

func translateResponse(resp *openai.ChatCompletion, duration time.Duration) tmodel.Response {
	out := tmodel.Response{DurationMS: duration.Milliseconds()}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.Text = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, tmodel.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	out.Usage = tmodel.Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	return out
}

func classifyError(err error) *tmodel.ProviderError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind := tmodel.ProviderErrorKindUnknown
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			kind = tmodel.ProviderErrorKindAuth
		case apiErr.StatusCode == 429:
			kind = tmodel.ProviderErrorKindRateLimited
		case apiErr.StatusCode == 400:
			kind = tmodel.ProviderErrorKindInvalidRequest
		case apiErr.StatusCode >= 500:
			kind = tmodel.ProviderErrorKindUnavailable
		}
		return &tmodel.ProviderError{Provider: "openai", HTTP: apiErr.StatusCode, Kind: kind, Cause: err}
	}
	return &tmodel.ProviderError{Provider: "openai", Kind: tmodel.ProviderErrorKindUnavailable, Cause: err}
}
