// Package tool implements the Tool adapter contract consumed by `tool:<name>`
// activities (spec.md §6 "Tool adapter (consumed)"): invoke(tool_name, args,
// session_context) -> content_parts | error, plus schemas() for
// capability-derived tool definitions. Schema validation is grounded on
// github.com/santhosh-tekuri/jsonschema/v6, the JSON Schema validator named
// in the pack's retrieval set for exactly this kind of tool-argument
// checking.
package tool

import "context"

// SessionContext carries the identifiers a tool invocation needs to scope
// its side effects (spec.md §6).
type SessionContext struct {
	SessionID string
	TurnID    string
}

// PartKind discriminates a tool result ContentPart.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// ContentPart is one piece of a tool's result, appended to the session log
// as a tool_result content part.
type ContentPart struct {
	Kind PartKind
	Text string

	ImageURL  string
	ImageMIME string
}

// Adapter is one invocable tool.
type Adapter interface {
	Name() string
	Description() string
	// Schema returns the JSON Schema (as a decoded document) describing the
	// tool's input arguments.
	Schema() map[string]any
	Invoke(ctx context.Context, args map[string]any, sessCtx SessionContext) ([]ContentPart, error)
}
