// Package model defines the provider-agnostic request/response shapes and
// Client contract consumed by reason activities (spec.md §6 "LLM provider
// adapter (consumed)"). Grounded on the teacher's runtime/agent/model
// package, trimmed to the single non-streaming generate() the spec names:
// generate(model_ref, messages, tool_schemas, controls) -> {text?,
// tool_calls[], usage, duration_ms} or a typed error.
package model

import "context"

// Role is a message's conversational role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartKind discriminates a Part union, mirroring the teacher's tagged Part
// interface but collapsed to the subset spec.md's content model needs:
// text, tool_call, tool_result (image is carried by session.ContentPart but
// has no PartKind here, so the turn layer drops image parts when it builds
// a Request; adapters that gain multimodal support can extend PartKind
// without touching this contract's shape).
type PartKind string

const (
	PartText       PartKind = "text"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
)

// Part is one content block of a Message.
type Part struct {
	Kind PartKind

	Text string

	ToolCallID string
	ToolName   string
	ToolArgs   map[string]any

	ToolResultForCallID string
	ToolResult          map[string]any
	ToolResultIsError   bool
}

// Message is one entry in the transcript passed to Generate.
type Message struct {
	Role  Role
	Parts []Part
}

// ToolDefinition describes a tool exposed to the model (name, description,
// JSON Schema input), derived from an agent's capabilities.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Controls carries the per-request overrides an HTTP caller may supply
// (spec.md §6's `controls?:{model_id?,reasoning?,max_tokens?,temperature?}`).
type Controls struct {
	ReasoningEffort string
	MaxTokens       int
	Temperature     float64
}

// Request captures one Generate invocation.
type Request struct {
	ModelRef string
	Messages []Message
	Tools    []ToolDefinition
	Controls Controls
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Usage reports token consumption for a Generate call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is the result of a Generate call.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	Usage      Usage
	DurationMS int64
}

// Client is the provider-agnostic model client adapters implement.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
