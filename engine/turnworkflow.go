package engine

import (
	"context"
	"errors"
	"fmt"

	"turnengine/activity"
	"turnengine/eventlog"
	"turnengine/model"
	"turnengine/session"
	"turnengine/tool"
	"turnengine/turn"
	"turnengine/workflow"
)

// TurnWorkflowName is the WorkflowDefinition.Name registered by
// RegisterTurnWorkflow.
const TurnWorkflowName = "AgentTurn"

// ReasonActivityName is the ActivityDefinition.Name for the reason step.
const ReasonActivityName = "reason"

// ToolActivityName returns the registered activity name for toolName,
// mirroring activity.ToolActivityType's "tool:" prefix convention.
func ToolActivityName(toolName string) string { return activity.ToolActivityType(toolName) }

// TurnInput starts one turn on an existing session.
type TurnInput struct {
	SessionID string
	AgentID   string
	Content   []session.ContentPart
}

// TurnResult is the WorkflowFunc's return value once the turn reaches a
// terminal workflow.State.
type TurnResult struct {
	State     workflow.State
	ErrorCode string
}

// TurnDeps wires the durable substrate (session/workflow/turn) and the
// provider-facing adapters (model/tool) the turn workflow drives.
type TurnDeps struct {
	Sessions   session.Store
	Machine    workflow.Machine
	Controller turn.Controller
	// Models resolves a turn.ReasonInput.ModelRef to the client that serves
	// it. "default" must be present.
	Models map[string]model.Client
	Tools  *tool.Registry
}

// RegisterTurnWorkflow registers the AgentTurn workflow and one activity per
// reason step / registered tool with e. Callers still need a worker for the
// engine's own execution model (the in-process adapter runs activities as
// goroutines directly; the Temporal adapter dispatches them to a Temporal
// worker) — this function only wires definitions, it does not start one.
func RegisterTurnWorkflow(ctx context.Context, e Engine, deps TurnDeps) error {
	if err := e.RegisterActivity(ctx, ActivityDefinition{
		Name:    ReasonActivityName,
		Handler: reasonActivity(deps),
	}); err != nil {
		return fmt.Errorf("engine: register reason activity: %w", err)
	}
	for name, t := range deps.Tools.Schemas() {
		if err := e.RegisterActivity(ctx, ActivityDefinition{
			Name:    ToolActivityName(name),
			Handler: toolActivity(deps, t),
		}); err != nil {
			return fmt.Errorf("engine: register tool activity %s: %w", name, err)
		}
	}
	return e.RegisterWorkflow(ctx, WorkflowDefinition{
		Name:    TurnWorkflowName,
		Handler: turnWorkflowFunc(deps),
	})
}

func turnWorkflowFunc(deps TurnDeps) WorkflowFunc {
	return func(wctx WorkflowContext, input any) (any, error) {
		in, ok := input.(TurnInput)
		if !ok {
			return nil, errors.New("engine: AgentTurn requires TurnInput")
		}
		ctx := wctx.Context()

		_, trn, err := deps.Sessions.BeginTurn(ctx, in.SessionID, in.Content)
		if err != nil {
			return nil, err
		}
		agent, err := deps.Sessions.GetAgent(ctx, in.AgentID)
		if err != nil {
			return nil, err
		}
		sess, err := deps.Sessions.GetSession(ctx, in.SessionID)
		if err != nil {
			return nil, err
		}

		for {
			events, err := deps.Sessions.Events().ForTurn(ctx, in.SessionID, trn.ID)
			if err != nil {
				return nil, err
			}
			state, next := deps.Machine.Fold(events)
			if state.Terminal() {
				status := terminalTurnStatus(state)
				if ferr := deps.Sessions.FinishTurn(ctx, trn.ID, status, next.ErrorCode); ferr != nil {
					return nil, ferr
				}
				return TurnResult{State: state, ErrorCode: next.ErrorCode}, nil
			}

			messages, err := deps.Sessions.ListMessages(ctx, in.SessionID, 0)
			if err != nil {
				return nil, err
			}
			decision := deps.Controller.Decide(next, agent, sess, messages)

			switch decision.Action {
			case workflow.ActionEnqueueReason:
				if err := runReason(ctx, wctx, deps, in.SessionID, trn.ID, decision.ReasonInput); err != nil {
					return nil, err
				}
			case workflow.ActionEnqueueTools:
				if err := runTools(ctx, wctx, deps, in.SessionID, trn.ID, decision.ToolCalls); err != nil {
					return nil, err
				}
			default:
				return nil, fmt.Errorf("engine: AgentTurn stalled on action %q", decision.Action)
			}
		}
	}
}

func terminalTurnStatus(state workflow.State) session.TurnStatus {
	switch state {
	case workflow.StateCompleted:
		return session.TurnCompleted
	case workflow.StateCancelled:
		return session.TurnCancelled
	default:
		return session.TurnFailed
	}
}

// reasonResult is the value a reason ActivityFunc returns, translated from
// model.Response.
type reasonResult struct {
	Text       string
	ToolCalls  []workflow.ToolCall
	Provider   string
	Usage      model.Usage
	DurationMS int64
}

func runReason(ctx context.Context, wctx WorkflowContext, deps TurnDeps, sessionID, turnID string, in turn.ReasonInput) error {
	if _, err := deps.Sessions.Events().Append(ctx, sessionID, eventlog.TypeReasonStarted,
		map[string]any{"model_ref": in.ModelRef}, eventlog.Context{TurnID: turnID}); err != nil {
		return err
	}

	var result reasonResult
	callErr := wctx.ExecuteActivity(ctx, ActivityRequest{Name: ReasonActivityName, Input: in}, &result)

	genEvt := map[string]any{"messages_snapshot": messagesSnapshot(in.Messages)}
	if callErr != nil {
		genEvt["output"] = map[string]any{}
		genEvt["meta"] = map[string]any{"model": in.ModelRef, "success": false, "error": callErr.Error()}
	} else {
		genEvt["output"] = reasonOutputPayload(result)
		genEvt["meta"] = map[string]any{
			"model":       in.ModelRef,
			"provider":    result.Provider,
			"usage":       map[string]any{"input_tokens": result.Usage.InputTokens, "output_tokens": result.Usage.OutputTokens, "total_tokens": result.Usage.TotalTokens},
			"duration_ms": result.DurationMS,
			"success":     true,
		}
	}
	if _, err := deps.Sessions.Events().Append(ctx, sessionID, eventlog.TypeLLMGeneration, genEvt, eventlog.Context{TurnID: turnID}); err != nil {
		return err
	}

	if callErr != nil {
		errorCode := "dependency_fault"
		var f *activity.Fault
		if errors.As(callErr, &f) {
			errorCode = string(f.Class)
		}
		if _, err := deps.Sessions.Events().Append(ctx, sessionID, eventlog.TypeTurnFailed,
			map[string]any{"error_code": errorCode, "detail": callErr.Error()}, eventlog.Context{TurnID: turnID}); err != nil {
			return err
		}
		return nil
	}

	hasToolCalls := len(result.ToolCalls) > 0
	payload := map[string]any{
		"text":            result.Text,
		"success":         true,
		"has_tool_calls":  hasToolCalls,
		"tool_call_count": len(result.ToolCalls),
	}
	if hasToolCalls {
		calls := make([]any, 0, len(result.ToolCalls))
		for _, tc := range result.ToolCalls {
			calls = append(calls, map[string]any{"id": tc.ID, "name": tc.Name, "args": tc.Args})
		}
		payload["tool_calls"] = calls
	} else if result.Text != "" {
		payload["text_preview"] = previewText(result.Text, 200)
	}
	if _, err := deps.Sessions.Events().Append(ctx, sessionID, eventlog.TypeReasonCompleted, payload, eventlog.Context{TurnID: turnID}); err != nil {
		return err
	}
	if result.Text != "" {
		if _, err := deps.Sessions.AppendAgentMessage(ctx, turnID, []session.ContentPart{{Kind: session.PartText, Text: result.Text}}); err != nil {
			return err
		}
	}
	return nil
}

// messagesSnapshot renders messages as the plain map form an llm.generation
// event carries, since eventlog.Event.Payload is map[string]any rather than
// a typed struct.
func messagesSnapshot(messages []session.Message) []any {
	out := make([]any, 0, len(messages))
	for _, m := range messages {
		parts := make([]any, 0, len(m.Content))
		for _, p := range m.Content {
			parts = append(parts, map[string]any{"kind": string(p.Kind), "text": p.Text})
		}
		out = append(out, map[string]any{"role": string(m.Role), "parts": parts})
	}
	return out
}

// reasonOutputPayload renders the reason step's raw model output for an
// llm.generation event, before it is summarized into reason.completed.
func reasonOutputPayload(result reasonResult) map[string]any {
	out := map[string]any{}
	if result.Text != "" {
		out["text"] = result.Text
	}
	calls := make([]any, 0, len(result.ToolCalls))
	for _, tc := range result.ToolCalls {
		calls = append(calls, map[string]any{"id": tc.ID, "name": tc.Name, "args": tc.Args})
	}
	out["tool_calls"] = calls
	return out
}

func previewText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func runTools(ctx context.Context, wctx WorkflowContext, deps TurnDeps, sessionID, turnID string, calls []workflow.ToolCall) error {
	if _, err := deps.Sessions.Events().Append(ctx, sessionID, eventlog.TypeActStarted,
		map[string]any{"tool_call_count": len(calls)}, eventlog.Context{TurnID: turnID}); err != nil {
		return err
	}

	futures := make([]Future, len(calls))
	for i, tc := range calls {
		if _, err := deps.Sessions.Events().Append(ctx, sessionID, eventlog.TypeToolCallStarted,
			map[string]any{"tool_call": map[string]any{"id": tc.ID, "name": tc.Name, "args": tc.Args}}, eventlog.Context{TurnID: turnID}); err != nil {
			return err
		}
		fut, err := wctx.ExecuteActivityAsync(ctx, ActivityRequest{Name: ToolActivityName(tc.Name), Input: tc})
		if err != nil {
			return err
		}
		futures[i] = fut
	}

	successCount, errorCount := 0, 0
	for i, tc := range calls {
		var result []tool.ContentPart
		callErr := futures[i].Get(ctx, &result)
		payload := map[string]any{"tool_call_id": tc.ID, "tool_name": tc.Name, "status": toolCallStatus(callErr)}
		if callErr != nil {
			errorCount++
			payload["error"] = callErr.Error()
		} else {
			successCount++
			payload["result"] = toolResultText(result)
			if err := appendToolResultMessage(ctx, deps, turnID, tc, result); err != nil {
				return err
			}
		}
		if _, err := deps.Sessions.Events().Append(ctx, sessionID, eventlog.TypeToolCallCompleted, payload, eventlog.Context{TurnID: turnID}); err != nil {
			return err
		}
	}

	if _, err := deps.Sessions.Events().Append(ctx, sessionID, eventlog.TypeActCompleted,
		map[string]any{"completed": len(calls), "success_count": successCount, "error_count": errorCount}, eventlog.Context{TurnID: turnID}); err != nil {
		return err
	}
	return nil
}

// toolCallStatus classifies a tool call's outcome into the closed
// success|error|timeout|cancelled vocabulary a tool.call_completed event
// carries, from the error activity.Runtime (or the in-process Future)
// returned.
func toolCallStatus(err error) string {
	if err == nil {
		return "success"
	}
	var f *activity.Fault
	if errors.As(err, &f) {
		switch f.Class {
		case activity.ClassTimeout:
			return "timeout"
		case activity.ClassCancelled:
			return "cancelled"
		default:
			return "error"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return "error"
}

func appendToolResultMessage(ctx context.Context, deps TurnDeps, turnID string, tc workflow.ToolCall, result []tool.ContentPart) error {
	_, err := deps.Sessions.AppendAgentMessage(ctx, turnID, []session.ContentPart{{
		Kind:                session.PartToolResult,
		ToolResultForCallID: tc.ID,
		ToolResult:          map[string]any{"text": toolResultText(result)},
	}})
	return err
}

func toolResultText(parts []tool.ContentPart) string {
	out := ""
	for _, p := range parts {
		if p.Kind == tool.PartText {
			out += p.Text
		}
	}
	return out
}

func reasonActivity(deps TurnDeps) ActivityFunc {
	return func(ctx context.Context, input any) (any, error) {
		in, ok := input.(turn.ReasonInput)
		if !ok {
			return nil, activity.NewInvalidInput(errors.New("engine: reason activity requires turn.ReasonInput"))
		}
		client, ok := deps.Models[in.ModelRef]
		if !ok {
			client, ok = deps.Models["default"]
		}
		if !ok {
			return nil, activity.NewInvalidInput(fmt.Errorf("engine: no model client for %q", in.ModelRef))
		}

		req := model.Request{ModelRef: in.ModelRef, Messages: toModelMessages(in.Messages), Tools: toModelTools(in.Tools)}
		resp, err := client.Generate(ctx, req)
		if err != nil {
			var perr *model.ProviderError
			if errors.As(err, &perr) && perr.Kind == model.ProviderErrorKindInvalidRequest {
				return nil, activity.NewInvalidInput(err)
			}
			return nil, activity.NewDependencyFault(err)
		}

		result := reasonResult{Text: resp.Text, Usage: resp.Usage, DurationMS: resp.DurationMS}
		if pn, ok := client.(providerNamer); ok {
			result.Provider = pn.Provider()
		}
		for _, tc := range resp.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, workflow.ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args})
		}
		return result, nil
	}
}

// providerNamer is implemented by model clients that know their own
// provider name (model/anthropic, model/openai, model/bedrock), asserted
// locally here rather than imported directly to avoid a dependency from
// engine onto the concrete adapter packages.
type providerNamer interface {
	Provider() string
}

func toolActivity(deps TurnDeps, t tool.Adapter) ActivityFunc {
	return func(ctx context.Context, input any) (any, error) {
		tc, ok := input.(workflow.ToolCall)
		if !ok {
			return nil, activity.NewInvalidInput(errors.New("engine: tool activity requires workflow.ToolCall"))
		}
		result, err := deps.Tools.Invoke(ctx, t.Name(), tc.Args, tool.SessionContext{})
		if err != nil {
			if errors.Is(err, tool.ErrUnknownTool) || errors.Is(err, tool.ErrInvalidArguments) {
				return nil, activity.NewInvalidInput(err)
			}
			return nil, activity.NewDependencyFault(err)
		}
		return result, nil
	}
}

func toModelMessages(messages []session.Message) []model.Message {
	out := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, model.Message{Role: model.Role(m.Role), Parts: toModelParts(m.Content)})
	}
	return out
}

func toModelParts(parts []session.ContentPart) []model.Part {
	out := make([]model.Part, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case session.PartText:
			out = append(out, model.Part{Kind: model.PartText, Text: p.Text})
		case session.PartToolCall:
			out = append(out, model.Part{Kind: model.PartToolCall, ToolCallID: p.ToolCallID, ToolName: p.ToolName, ToolArgs: p.ToolArgs})
		case session.PartToolResult:
			out = append(out, model.Part{Kind: model.PartToolResult, ToolResultForCallID: p.ToolResultForCallID, ToolResult: p.ToolResult, ToolResultIsError: p.ToolResultError != ""})
		}
	}
	return out
}

func toModelTools(tools []turn.ToolDefinition) []model.ToolDefinition {
	out := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		out = append(out, model.ToolDefinition{Name: t.Name, Description: t.Description, InputSchema: t.Schema})
	}
	return out
}
