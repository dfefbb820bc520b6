package inmem_test

import (
	"context"
	"testing"
	"time"

	"turnengine/engine"
	"turnengine/engine/inmem"
	"turnengine/eventlog"
	"turnengine/model"
	"turnengine/session"
	"turnengine/tool"
	"turnengine/tool/mathtool"
	"turnengine/turn"
	"turnengine/workflow"
)

// fakeModel answers "add" once with a tool call, then echoes a final
// answer once it sees the tool result in the message list.
type fakeModel struct{}

func (fakeModel) Generate(_ context.Context, req model.Request) (model.Response, error) {
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			if p.Kind == model.PartToolResult {
				return model.Response{Text: "the sum is 7"}, nil
			}
		}
	}
	return model.Response{ToolCalls: []model.ToolCall{{ID: "call-1", Name: "add", Args: map[string]any{"a": 3.0, "b": 4.0}}}}, nil
}

func newTestDeps(t *testing.T) engine.TurnDeps {
	t.Helper()
	bcast := eventlog.NewBroadcaster(16)
	events := eventlog.NewMemStore(bcast)
	store := session.NewMemStore(events, bcast)

	tools := tool.NewRegistry()
	if err := tools.Register(mathtool.Add{}); err != nil {
		t.Fatalf("register add: %v", err)
	}

	return engine.TurnDeps{
		Sessions:   store,
		Machine:    workflow.NewMachine(25),
		Controller: turn.NewController(),
		Models:     map[string]model.Client{"default": fakeModel{}},
		Tools:      tools,
	}
}

func TestTurnWorkflowSingleToolCall(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)

	agent, err := deps.Sessions.CreateAgent(ctx, session.Agent{
		Name:         "calculator",
		SystemPrompt: "You are a calculator.",
		DefaultModel: "default",
		Capabilities: []session.Capability{{Name: "math", ToolNames: []string{"add"}}},
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	sess, err := deps.Sessions.CreateSession(ctx, session.Session{AgentID: agent.ID})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	e := inmem.New()
	if err := engine.RegisterTurnWorkflow(ctx, e, deps); err != nil {
		t.Fatalf("register turn workflow: %v", err)
	}

	handle, err := e.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "wf-1",
		Workflow: engine.TurnWorkflowName,
		Input: engine.TurnInput{
			SessionID: sess.ID,
			AgentID:   agent.ID,
			Content:   []session.ContentPart{{Kind: session.PartText, Text: "what is 3+4?"}},
		},
	})
	if err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var result engine.TurnResult
	if err := handle.Wait(waitCtx, &result); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if result.State != workflow.StateCompleted {
		t.Fatalf("result.State = %v, want Completed", result.State)
	}

	messages, err := deps.Sessions.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	found := false
	for _, m := range messages {
		for _, p := range m.Content {
			if p.Kind == session.PartText && p.Text == "the sum is 7" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected final agent message containing the answer, got %+v", messages)
	}

	events, err := deps.Sessions.Events().Range(ctx, sess.ID, 0)
	if err != nil {
		t.Fatalf("range events: %v", err)
	}
	wantSeq := []eventlog.Type{
		eventlog.TypeMessageUser,
		eventlog.TypeSessionActivated,
		eventlog.TypeTurnStarted,
		eventlog.TypeReasonStarted,
		eventlog.TypeLLMGeneration,
		eventlog.TypeReasonCompleted,
		eventlog.TypeActStarted,
		eventlog.TypeToolCallStarted,
		eventlog.TypeMessageAgent,
		eventlog.TypeToolCallCompleted,
		eventlog.TypeActCompleted,
		eventlog.TypeReasonStarted,
		eventlog.TypeLLMGeneration,
		eventlog.TypeReasonCompleted,
		eventlog.TypeMessageAgent,
		eventlog.TypeTurnCompleted,
		eventlog.TypeSessionIdled,
	}
	gotSeq := make([]eventlog.Type, 0, len(events))
	for _, e := range events {
		gotSeq = append(gotSeq, e.Type)
	}
	if len(gotSeq) != len(wantSeq) {
		t.Fatalf("event sequence = %v, want %v", gotSeq, wantSeq)
	}
	for i, want := range wantSeq {
		if gotSeq[i] != want {
			t.Fatalf("event[%d] = %q, want %q (full sequence %v)", i, gotSeq[i], want, gotSeq)
		}
	}

	for _, e := range events {
		if e.Type != eventlog.TypeActCompleted {
			continue
		}
		if completed, _ := e.Payload["completed"].(int); completed != 1 {
			t.Fatalf("act.completed completed = %v, want 1", e.Payload["completed"])
		}
		if successCount, _ := e.Payload["success_count"].(int); successCount != 1 {
			t.Fatalf("act.completed success_count = %v, want 1", e.Payload["success_count"])
		}
		if errorCount, _ := e.Payload["error_count"].(int); errorCount != 0 {
			t.Fatalf("act.completed error_count = %v, want 0", e.Payload["error_count"])
		}
	}
}
