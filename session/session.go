// Package session implements the Session Store (C8): Sessions, Agents,
// Messages, and per-session sequence/broadcaster plumbing (spec.md §4.8).
// Grounded on the teacher's runtime/agent/session.Store Session/RunMeta/
// Store shape (Turn here in place of RunMeta, to match spec.md's
// vocabulary) and on runtime/agent/run.Record for the Agent/Message
// metadata-record shape.
package session

import "time"

// AgentStatus is an agent configuration's lifecycle status.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusArchived AgentStatus = "archived"
)

// Capability is a named bundle contributing tool schemas and an optional
// system-prompt addition to an agent (spec.md GLOSSARY). Capabilities are
// ordered on the Agent; turn.Controller dedups by name with later entries
// (by position) overriding earlier ones.
type Capability struct {
	Name           string
	PromptAddition string
	ToolNames      []string
}

// Agent is persistent configuration: never mutated by the core, only by
// the (out-of-scope) HTTP surface (spec.md §3).
type Agent struct {
	ID            string
	Name          string
	SystemPrompt  string
	DefaultModel  string
	Capabilities  []Capability
	Status        AgentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SessionStatus is a session's coarse lifecycle status.
type SessionStatus string

const (
	SessionStatusStarted SessionStatus = "started"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusIdle    SessionStatus = "idle"
)

// Session is an execution context against one Agent (spec.md §3).
type Session struct {
	ID            string
	AgentID       string
	Title         string
	ModelOverride string
	Status        SessionStatus
	CreatedAt     time.Time
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Role is a Message's author role.
type Role string

const (
	RoleUser       Role = "user"
	RoleAgent      Role = "agent"
	RoleToolResult Role = "tool_result"
)

// PartKind is the discriminant of a content part union (spec.md §3).
type PartKind string

const (
	PartText       PartKind = "text"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
	PartImage      PartKind = "image"
)

// ContentPart is one element of a Message's ordered content list. Only the
// fields relevant to Kind are populated, mirroring the teacher's
// runtime/agent/model.Transcript content-part union.
type ContentPart struct {
	Kind PartKind

	// PartText
	Text string

	// PartToolCall
	ToolCallID string
	ToolName   string
	ToolArgs   map[string]any

	// PartToolResult
	ToolResultForCallID string
	ToolResult          map[string]any
	ToolResultError      string

	// PartImage
	ImageURL  string
	ImageData []byte
	ImageMIME string
}

// Message is one record in the session log (spec.md §3).
type Message struct {
	ID         string
	SessionID  string
	Sequence   int64
	Role       Role
	Content    []ContentPart
	ToolCallID string
	Timestamp  time.Time
}
