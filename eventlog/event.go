// Package eventlog implements the append-only, per-session event log (C1).
// It is the primary source of truth for replay (workflow.Machine.Fold) and
// the live SSE fan-out (Broadcaster). Events are never mutated or deleted;
// the (session_id, sequence) pair is unique and dense starting at 1.
package eventlog

import (
	"time"

	"github.com/google/uuid"
)

// Type is a closed set of dotted event type names. New types must be added
// here and nowhere else; callers must not invent ad hoc type strings.
type Type string

const (
	TypeSessionStarted  Type = "session.started"
	TypeSessionActivated Type = "session.activated"
	TypeSessionIdled    Type = "session.idled"

	TypeMessageUser  Type = "message.user"
	TypeMessageAgent Type = "message.agent"

	TypeTurnStarted   Type = "turn.started"
	TypeTurnCompleted Type = "turn.completed"
	TypeTurnFailed    Type = "turn.failed"

	TypeReasonStarted   Type = "reason.started"
	TypeReasonCompleted Type = "reason.completed"

	TypeActStarted   Type = "act.started"
	TypeActCompleted Type = "act.completed"

	TypeToolCallStarted   Type = "tool.call_started"
	TypeToolCallCompleted Type = "tool.call_completed"

	TypeLLMGeneration Type = "llm.generation"
)

// Context carries the cross-cutting identifiers every event is tagged with
// so subscribers can correlate without parsing the payload. Grounded on the
// teacher's runtime/agent/run.Context (RunID/TurnID/SessionID triad).
type Context struct {
	// TurnID is the turn that produced this event. Every event appended while
	// a turn is in flight carries this id (spec.md §3, Turn invariants).
	TurnID string
	// Tags carries optional caller-provided metadata (tenant, priority, ...).
	Tags map[string]string
}

// Event is one row of the append-only log. Payload is deliberately untyped
// (any) at this layer: concrete payload shapes depend on Type and are
// decoded by callers that know which Type they are handling, mirroring
// the teacher's tagged Event interface but without forcing one Go type per
// event (the payload schemas are fixed by spec.md §4.1, not by Go's type
// system, since the Mongo-backed store round-trips them as BSON documents).
type Event struct {
	// ID is a time-ordered UUID (UUIDv7), so lexicographic ID order matches
	// insertion order across sessions for debugging. Only Sequence is
	// authoritative for per-session order.
	ID string
	// SessionID identifies the session this event belongs to.
	SessionID string
	// Sequence is the per-session monotonic integer; dense starting at 1.
	Sequence int64
	// Type is the closed-set event type.
	Type Type
	// Payload is the type-specific body; its shape depends on Type.
	Payload map[string]any
	// Timestamp is when the event was created (not when it was delivered).
	Timestamp time.Time
	// Ctx carries the turn id and optional tags.
	Ctx Context
}

// NewEventID returns a fresh time-ordered event identifier.
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
