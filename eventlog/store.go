package eventlog

import (
	"context"
	"errors"
)

// ErrSequenceConflict indicates a concurrent append raced and lost the
// per-session sequence allocation; callers should retry the append.
var ErrSequenceConflict = errors.New("eventlog: sequence conflict")

// Store persists the append-only event log. Implementations must serialize
// the sequence allocation and the row insert into a single transaction (or
// an equivalent atomic operation, e.g. a Mongo findOneAndUpdate counter
// document) so that (SessionID, Sequence) stays dense and unique even under
// concurrent appends to the same session (spec.md §4.1, §5).
type Store interface {
	// Append allocates the next sequence number for sessionID, persists the
	// event, and returns it with ID/Sequence/Timestamp populated. Concurrent
	// appends to different sessions must not block each other.
	Append(ctx context.Context, sessionID string, typ Type, payload map[string]any, evtCtx Context) (Event, error)

	// Range returns events for sessionID with Sequence > sinceSequence, in
	// ascending sequence order. Used for SSE catch-up (bulk range read).
	Range(ctx context.Context, sessionID string, sinceSequence int64) ([]Event, error)

	// ForTurn returns all events tagged with the given turn id, in ascending
	// sequence order, for Workflow State Machine replay (spec.md §4.6).
	ForTurn(ctx context.Context, sessionID, turnID string) ([]Event, error)
}

// Appender is the single writer-facing operation named by spec.md §4.1.
// Store satisfies it directly; it is split out so the workflow/turn layers
// depend on the narrowest contract they need.
type Appender interface {
	Append(ctx context.Context, sessionID string, typ Type, payload map[string]any, evtCtx Context) (Event, error)
}
