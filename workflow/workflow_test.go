package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"turnengine/eventlog"
)

func evt(typ eventlog.Type, payload map[string]any) eventlog.Event {
	return eventlog.Event{Type: typ, Payload: payload}
}

func TestFoldPendingToRunningEnqueuesReason(t *testing.T) {
	m := NewMachine(10)
	state, action := m.Fold([]eventlog.Event{evt(eventlog.TypeTurnStarted, nil)})
	assert.Equal(t, StateRunning, state)
	assert.Equal(t, ActionEnqueueReason, action.Kind)
}

func TestFoldReasonCompletedWithToolCallsEnqueuesTools(t *testing.T) {
	m := NewMachine(10)
	events := []eventlog.Event{
		evt(eventlog.TypeTurnStarted, nil),
		evt(eventlog.TypeReasonCompleted, map[string]any{
			"has_tool_calls": true,
			"tool_calls": []any{
				map[string]any{"id": "call_1", "name": "add", "args": map[string]any{"a": 1.0, "b": 2.0}},
			},
		}),
	}
	state, action := m.Fold(events)
	assert.Equal(t, StateRunning, state)
	assert.Equal(t, ActionEnqueueTools, action.Kind)
	assert.Equal(t, "add", action.ToolCalls[0].Name)
}

func TestFoldReasonCompletedWithoutToolCallsCompletesTurn(t *testing.T) {
	m := NewMachine(10)
	events := []eventlog.Event{
		evt(eventlog.TypeTurnStarted, nil),
		evt(eventlog.TypeReasonCompleted, map[string]any{"has_tool_calls": false}),
	}
	state, action := m.Fold(events)
	assert.Equal(t, StateCompleted, state)
	assert.Equal(t, ActionCompleteTurn, action.Kind)
}

func TestFoldActCompletedEnqueuesNextReason(t *testing.T) {
	m := NewMachine(10)
	events := []eventlog.Event{
		evt(eventlog.TypeTurnStarted, nil),
		evt(eventlog.TypeReasonCompleted, map[string]any{"has_tool_calls": true}),
		evt(eventlog.TypeActCompleted, map[string]any{"success_count": 1, "error_count": 0}),
	}
	state, action := m.Fold(events)
	assert.Equal(t, StateRunning, state)
	assert.Equal(t, ActionEnqueueReason, action.Kind)
}

func TestFoldIterationCapFailsTurn(t *testing.T) {
	m := NewMachine(1)
	events := []eventlog.Event{
		evt(eventlog.TypeTurnStarted, nil),
		evt(eventlog.TypeReasonCompleted, map[string]any{"has_tool_calls": true}),
		evt(eventlog.TypeActCompleted, map[string]any{"success_count": 1, "error_count": 0}),
	}
	state, action := m.Fold(events)
	assert.Equal(t, StateFailed, state)
	assert.Equal(t, ActionFailTurn, action.Kind)
	assert.Equal(t, "iteration_limit", action.ErrorCode)
}

func TestFoldTurnFailedCancelledYieldsCancelledState(t *testing.T) {
	m := NewMachine(10)
	events := []eventlog.Event{
		evt(eventlog.TypeTurnStarted, nil),
		evt(eventlog.TypeTurnFailed, map[string]any{"error_code": "cancelled"}),
	}
	state, _ := m.Fold(events)
	assert.Equal(t, StateCancelled, state)
}

func TestFoldTurnFailedOtherYieldsFailedState(t *testing.T) {
	m := NewMachine(10)
	events := []eventlog.Event{
		evt(eventlog.TypeTurnStarted, nil),
		evt(eventlog.TypeTurnFailed, map[string]any{"error_code": "dependency_fault"}),
	}
	state, _ := m.Fold(events)
	assert.Equal(t, StateFailed, state)
}

func TestFoldEmptyEventsIsPending(t *testing.T) {
	m := NewMachine(10)
	state, action := m.Fold(nil)
	assert.Equal(t, StatePending, state)
	assert.Equal(t, ActionNone, action.Kind)
}
