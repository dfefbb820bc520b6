// Package anthropic implements model.Client on top of the Anthropic
// Messages API via github.com/anthropics/anthropic-sdk-go. Grounded on
// features/model/anthropic/client.go's MessagesClient seam (so callers can
// substitute a fake in tests) and prepareRequest/translateResponse split,
// trimmed to non-streaming generate() and text/tool_use content only.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"turnengine/model"
)

// MessagesClient is the subset of the Anthropic SDK used by Client. It is
// satisfied by *sdk.MessageService so tests can pass a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements model.Client via Anthropic Messages.
type Client struct {
	msg       MessagesClient
	maxTokens int
}

// New builds an Anthropic-backed model.Client.
func New(msg MessagesClient, maxTokens int) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a client from an API key using the default SDK
// HTTP transport.
func NewFromAPIKey(apiKey string, maxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, maxTokens)
}

// Provider identifies this adapter in llm.generation telemetry.
func (c *Client) Provider() string { return "anthropic" }

// Generate issues a non-streaming Messages.New request.
func (c *Client) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	if req.ModelRef == "" {
		return model.Response{}, &model.ProviderError{Provider: "anthropic", Kind: model.ProviderErrorKindInvalidRequest, Message: "model reference is required"}
	}
	params, err := c.encodeRequest(req)
	if err != nil {
		return model.Response{}, &model.ProviderError{Provider: "anthropic", Kind: model.ProviderErrorKindInvalidRequest, Cause: err}
	}

	start := time.Now()
	msg, err := c.msg.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		return model.Response{}, classifyError(err)
	}
	return translateResponse(msg, duration), nil
}

func (c *Client) encodeRequest(req model.Request) (sdk.MessageNewParams, error) {
	maxTokens := c.maxTokens
	if req.Controls.MaxTokens > 0 {
		maxTokens = req.Controls.MaxTokens
	}
	var system []sdk.TextBlockParam
	messages := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == model.RoleSystem {
			for _, p := range m.Parts {
				if p.Kind == model.PartText && p.Text != "" {
					system = append(system, sdk.TextBlockParam{Text: p.Text})
				}
			}
			continue
		}
		blocks := encodeParts(m.Parts)
		if len(blocks) == 0 {
			continue
		}
		if m.Role == model.RoleAssistant {
			messages = append(messages, sdk.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, sdk.NewUserMessage(blocks...))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.ModelRef),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Controls.Temperature > 0 {
		params.Temperature = sdk.Float(req.Controls.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = encodeTools(req.Tools)
	}
	return params, nil
}

func encodeParts(parts []model.Part) []sdk.ContentBlockParamUnion {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case model.PartText:
			if p.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(p.Text))
			}
		case model.PartToolResult:
			blocks = append(blocks, sdk.NewToolResultBlock(p.ToolResultForCallID, resultText(p), p.ToolResultIsError))
		}
	}
	return blocks
}

func resultText(p model.Part) string {
	if p.ToolResultIsError {
		return p.ToolResult["error"].(string)
	}
	b, _ := json.Marshal(p.ToolResult)
	return string(b)
}

func encodeTools(tools []model.ToolDefinition) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{
			Properties: t.InputSchema,
		}, t.Name))
	}
	return out
}

func translateResponse(msg *sdk.Message, duration time.Duration) model.Response {
	resp := model.Response{DurationMS: duration.Milliseconds()}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: toolArgs(block.Input),
			})
		}
	}
	resp.Usage = model.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return resp
}

func toolArgs(input any) map[string]any {
	if m, ok := input.(map[string]any); ok {
		return m
	}
	return nil
}

func classifyError(err error) *model.ProviderError {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		kind := model.ProviderErrorKindUnknown
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			kind = model.ProviderErrorKindAuth
		case apiErr.StatusCode == 429:
			kind = model.ProviderErrorKindRateLimited
		case apiErr.StatusCode == 400:
			kind = model.ProviderErrorKindInvalidRequest
		case apiErr.StatusCode >= 500:
			kind = model.ProviderErrorKindUnavailable
		}
		return &model.ProviderError{Provider: "anthropic", HTTP: apiErr.StatusCode, Kind: kind, Cause: err}
	}
	return &model.ProviderError{Provider: "anthropic", Kind: model.ProviderErrorKindUnavailable, Cause: err}
}
