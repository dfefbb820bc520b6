// Package bedrock implements model.Client on top of the AWS Bedrock
// Converse API via github.com/aws/aws-sdk-go-v2/service/bedrockruntime.
// Grounded on features/model/bedrock/client.go's RuntimeClient seam and its
// split of system vs. conversational messages, trimmed to non-streaming
// Converse and text/tool_use content only.
package bedrock

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"turnengine/model"
)

// RuntimeClient is the subset of the Bedrock runtime client used by Client.
// Satisfied by *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements model.Client via Bedrock Converse.
type Client struct {
	runtime   RuntimeClient
	maxTokens int32
}

// New builds a Bedrock-backed model.Client.
func New(runtime RuntimeClient, maxTokens int32) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{runtime: runtime, maxTokens: maxTokens}, nil
}

// Provider identifies this adapter in llm.generation telemetry.
func (c *Client) Provider() string { return "bedrock" }

// Generate issues a non-streaming Converse request.
func (c *Client) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	if req.ModelRef == "" {
		return model.Response{}, &model.ProviderError{Provider: "bedrock", Kind: model.ProviderErrorKindInvalidRequest, Message: "model reference is required"}
	}

	messages, system := encodeMessages(req.Messages)
	maxTokens := c.maxTokens
	if req.Controls.MaxTokens > 0 {
		maxTokens = int32(req.Controls.MaxTokens)
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.ModelRef),
		Messages: messages,
		System:   system,
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens: aws.Int32(maxTokens),
		},
	}
	if req.Controls.Temperature > 0 {
		input.InferenceConfig.Temperature = aws.Float32(float32(req.Controls.Temperature))
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = encodeTools(req.Tools)
	}

	start := time.Now()
	out, err := c.runtime.Converse(ctx, input)
	duration := time.Since(start)
	if err != nil {
		return model.Response{}, classifyError(err)
	}
	return translateResponse(out, duration), nil
}

func encodeMessages(msgs []model.Message) ([]brtypes.Message, []brtypes.SystemContentBlock) {
	var system []brtypes.SystemContentBlock
	out := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			for _, p := range m.Parts {
				if p.Kind == model.PartText && p.Text != "" {
					system = append(system, &brtypes.SystemContentBlockMemberText{Value: p.Text})
				}
			}
			continue
		}
		var blocks []brtypes.ContentBlock
		for _, p := range m.Parts {
			if p.Kind == model.PartText && p.Text != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: p.Text})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == model.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		out = append(out, brtypes.Message{Role: role, Content: blocks})
	}
	return out, system
}

func encodeTools(tools []model.ToolDefinition) *brtypes.ToolConfiguration {
	specs := make([]brtypes.Tool, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{
					Value: documentFromMap(t.InputSchema),
				},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: specs}
}

func translateResponse(out *bedrockruntime.ConverseOutput, duration time.Duration) model.Response {
	resp := model.Response{DurationMS: duration.Milliseconds()}
	msgOutput, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if ok {
		for _, block := range msgOutput.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				resp.Text += v.Value
			case *brtypes.ContentBlockMemberToolUse:
				resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
					ID:   aws.ToString(v.Value.ToolUseId),
					Name: aws.ToString(v.Value.Name),
					Args: mapFromDocument(v.Value.Input),
				})
			}
		}
	}
	if out.Usage != nil {
		resp.Usage = model.Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return resp
}

func classifyError(err error) *model.ProviderError {
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		kind := model.ProviderErrorKindUnknown
		switch {
		case re.HTTPStatusCode() == 401 || re.HTTPStatusCode() == 403:
			kind = model.ProviderErrorKindAuth
		case re.HTTPStatusCode() == 429:
			kind = model.ProviderErrorKindRateLimited
		case re.HTTPStatusCode() == 400:
			kind = model.ProviderErrorKindInvalidRequest
		case re.HTTPStatusCode() >= 500:
			kind = model.ProviderErrorKindUnavailable
		}
		return &model.ProviderError{Provider: "bedrock", HTTP: re.HTTPStatusCode(), Kind: kind, Cause: err}
	}
	return &model.ProviderError{Provider: "bedrock", Kind: model.ProviderErrorKindUnavailable, Cause: err}
}
