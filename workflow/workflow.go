// Package workflow implements the Workflow State Machine (C6): one record
// per in-flight turn, its state reconstructed purely by folding the turn's
// event log (spec.md §4.6). Grounded on the teacher's
// runtime/agent/runtime/workflow_state.go and workflow_loop.go "contract"
// comment style: explicit invariants stated in doc comments, an immutable
// replay input and a small mutable fold accumulator.
package workflow

import "turnengine/eventlog"

// State is a turn's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether State admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// ActionKind is what the engine should do next given the turn's current
// replayed state. ActionNone means either the turn is terminal, or an
// action is already in flight (tasks enqueued, awaiting their completion
// event) and nothing further is owed until the next event arrives.
type ActionKind string

const (
	ActionNone          ActionKind = "none"
	ActionEnqueueReason ActionKind = "enqueue_reason"
	ActionEnqueueTools  ActionKind = "enqueue_tools"
	ActionCompleteTurn  ActionKind = "complete_turn"
	ActionFailTurn      ActionKind = "fail_turn"
)

// ToolCall is one call the reason step asked to make, carried on a
// reason.completed event's tool_calls payload field.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// NextAction is what Fold says the engine owes the turn next.
type NextAction struct {
	Kind      ActionKind
	ToolCalls []ToolCall
	ErrorCode string
}

// Machine folds a turn's event log into its current State and the
// NextAction implied by the most recent state-changing event. It holds no
// state itself: Fold is a pure function of its input, called identically
// for a live transition decision and for worker-restart recovery, so there
// is exactly one state-transition implementation to keep correct
// (spec.md §4.6 "Replay").
type Machine struct {
	// MaxIterations bounds the reason/act loop (spec.md §4.6 "Iteration
	// cap"). Zero means unbounded, which callers should treat as a
	// misconfiguration rather than rely on — cmd/agentctl sets it from
	// config.Config.TurnMaxIterations (TURN_MAX_ITERATIONS).
	MaxIterations int
}

// NewMachine constructs a Machine with the given iteration cap.
func NewMachine(maxIterations int) Machine {
	return Machine{MaxIterations: maxIterations}
}

// Fold replays events (already filtered to one turn, in ascending sequence
// order — see eventlog.Store.ForTurn) through the transition table in
// spec.md §4.6 and returns the resulting State plus the NextAction the
// engine should perform.
func (m Machine) Fold(events []eventlog.Event) (State, NextAction) {
	state := StatePending
	action := NextAction{Kind: ActionNone}
	iterations := 0

	for _, e := range events {
		switch state {
		case StatePending:
			if e.Type == eventlog.TypeTurnStarted {
				state = StateRunning
				iterations = 1
				action = NextAction{Kind: ActionEnqueueReason}
			}
		case StateRunning:
			switch e.Type {
			case eventlog.TypeReasonCompleted:
				hasToolCalls, _ := e.Payload["has_tool_calls"].(bool)
				if hasToolCalls {
					action = NextAction{Kind: ActionEnqueueTools, ToolCalls: toolCallsFromPayload(e.Payload["tool_calls"])}
				} else {
					state = StateCompleted
					action = NextAction{Kind: ActionCompleteTurn}
				}
			case eventlog.TypeActCompleted:
				iterations++
				if m.MaxIterations > 0 && iterations > m.MaxIterations {
					state = StateFailed
					action = NextAction{Kind: ActionFailTurn, ErrorCode: "iteration_limit"}
				} else {
					action = NextAction{Kind: ActionEnqueueReason}
				}
			case eventlog.TypeTurnFailed:
				errorCode, _ := e.Payload["error_code"].(string)
				if errorCode == "cancelled" {
					state = StateCancelled
				} else {
					state = StateFailed
				}
				action = NextAction{Kind: ActionNone, ErrorCode: errorCode}
			}
		}
	}
	return state, action
}

func toolCallsFromPayload(v any) []ToolCall {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	calls := make([]ToolCall, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		tc := ToolCall{}
		if id, ok := m["id"].(string); ok {
			tc.ID = id
		}
		if name, ok := m["name"].(string); ok {
			tc.Name = name
		}
		if args, ok := m["args"].(map[string]any); ok {
			tc.Args = args
		}
		calls = append(calls, tc)
	}
	return calls
}
