// Command agentctl runs a single demonstration turn end to end: it creates
// an agent and session, submits one user message, drives it through the
// AgentTurn workflow on the in-process engine, and prints the resulting
// transcript. Alongside the turn it also stands up the native C1-C5 durable
// substrate (task queue, breaker, worker pool, janitor, activity runtime)
// and runs one task through it directly, and wires an admin.Surface to
// demonstrate the cancel/signal/DLQ-requeue/breaker-reset/drain operations.
//
// # Configuration
//
// Environment variables:
//
//	MONGO_URI             - when set, persistence backs onto MongoDB
//	                        (mongostore/*) instead of the in-memory stores
//	MONGO_DATABASE        - database name (default: "turnengine")
//	ANTHROPIC_API_KEY     - when set, "default" model resolves to Anthropic
//	OPENAI_API_KEY        - when set (and ANTHROPIC_API_KEY is not), resolves to OpenAI
//	HEARTBEAT_INTERVAL_MS, WORKER_STALE_MULTIPLIER, TASK_DEFAULT_VISIBILITY_MS,
//	TASK_DEFAULT_MAX_ATTEMPTS, TASK_BACKOFF_BASE_MS, TASK_BACKOFF_CAP_MS,
//	TURN_MAX_ITERATIONS, TURN_MAX_DURATION_MS, BREAKER_FAILURE_THRESHOLD,
//	BREAKER_WINDOW_MS, BREAKER_COOLDOWN_MS, SSE_CHANNEL_CAPACITY - see config.Config
//
// # Example
//
//	ANTHROPIC_API_KEY=sk-... go run ./cmd/agentctl
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"turnengine/activity"
	"turnengine/admin"
	"turnengine/breaker"
	"turnengine/config"
	"turnengine/engine"
	"turnengine/engine/inmem"
	"turnengine/eventlog"
	"turnengine/model"
	"turnengine/model/anthropic"
	"turnengine/model/openai"
	"turnengine/session"
	"turnengine/taskqueue"
	"turnengine/telemetry"
	"turnengine/tool"
	"turnengine/tool/mathtool"
	"turnengine/tool/timetool"
	"turnengine/tool/weathertool"
	"turnengine/tool/webfetchtool"
	"turnengine/turn"
	"turnengine/workerpool"
	"turnengine/workflow"

	mongoeventlog "turnengine/mongostore/eventlog"
	mongosession "turnengine/mongostore/session"
	mongotaskqueue "turnengine/mongostore/taskqueue"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()
	cfg := config.FromEnv(os.Environ())

	zl, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer zl.Sync()
	logger := telemetry.NewZapLogger(zl)

	bcast := eventlog.NewBroadcaster(cfg.SSEChannelCapacity)

	events, sessions, tasks, err := buildStores(ctx, cfg, bcast)
	if err != nil {
		return fmt.Errorf("build stores: %w", err)
	}

	tools := buildTools()
	models := buildModels()

	agent, sess, err := seedAgentAndSession(ctx, sessions, tools)
	if err != nil {
		return fmt.Errorf("seed agent/session: %w", err)
	}

	e := inmem.New()
	deps := engine.TurnDeps{
		Sessions:   sessions,
		Machine:    workflow.NewMachine(cfg.TurnMaxIterations),
		Controller: turn.NewController(),
		Models:     models,
		Tools:      tools,
	}
	if err := engine.RegisterTurnWorkflow(ctx, e, deps); err != nil {
		return fmt.Errorf("register turn workflow: %w", err)
	}

	handles := newHandleTracker()
	breakers := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: uint32(cfg.BreakerFailureThreshold),
		Window:           cfg.BreakerWindow,
		Cooldown:         cfg.BreakerCooldown,
	})
	workers := workerpool.NewMemRegistry()
	surface := admin.NewSurface(sessions, tasks, breakers, workers, handles)

	runNativeDemo(ctx, cfg, logger, tasks, breakers, workers, events, surface)

	workflowID := "wf-" + sess.ID
	handle, err := e.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       workflowID,
		Workflow: engine.TurnWorkflowName,
		Input: engine.TurnInput{
			SessionID: sess.ID,
			AgentID:   agent.ID,
			Content:   []session.ContentPart{{Kind: session.PartText, Text: "What's 2 plus 2, and what time is it?"}},
		},
	})
	if err != nil {
		return fmt.Errorf("start turn workflow: %w", err)
	}
	handles.track(workflowID, handle)

	var result engine.TurnResult
	if err := handle.Wait(ctx, &result); err != nil {
		return fmt.Errorf("wait for turn: %w", err)
	}
	log.Printf("turn finished: state=%s error_code=%q", result.State, result.ErrorCode)

	messages, err := sessions.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	for _, m := range messages {
		for _, part := range m.Content {
			if part.Kind == session.PartText {
				log.Printf("[%s] %s", m.Role, part.Text)
			}
		}
	}

	surface.ResetBreaker("llm:default")
	return nil
}

func buildStores(ctx context.Context, cfg config.Config, bcast *eventlog.Broadcaster) (eventlog.Store, session.Store, taskqueue.Store, error) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		events := eventlog.NewMemStore(bcast)
		sessions := session.NewMemStore(events, bcast)
		tasks := taskqueue.NewMemStore()
		return events, sessions, tasks, nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	dbName := os.Getenv("MONGO_DATABASE")
	if dbName == "" {
		dbName = "turnengine"
	}

	events, err := mongoeventlog.New(ctx, mongoeventlog.Options{Client: client, Database: dbName}, bcast)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("new mongo eventlog: %w", err)
	}
	sessions, err := mongosession.New(ctx, mongosession.Options{Client: client, Database: dbName}, events, bcast)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("new mongo session store: %w", err)
	}
	tasks, err := mongotaskqueue.New(ctx, mongotaskqueue.Options{Client: client, Database: dbName})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("new mongo task store: %w", err)
	}
	_ = cfg
	return events, sessions, tasks, nil
}

func buildTools() *tool.Registry {
	reg := tool.NewRegistry()
	_ = reg.Register(mathtool.Add{})
	_ = reg.Register(mathtool.Divide{})
	_ = reg.Register(timetool.Now{Clock: systemClock{}})
	_ = reg.Register(weathertool.Weather{Data: map[string]string{
		"london":    "overcast, 16C",
		"san francisco": "foggy, 14C",
		"tokyo":     "clear, 27C",
	}})
	_ = reg.Register(webfetchtool.Fetch{Client: http.DefaultClient, MaxBytes: 64 * 1024})
	return reg
}

// buildModels resolves the "default" model client from whichever API key is
// present in the environment, falling back to an in-process echo client so
// the demo runs without any credentials configured.
func buildModels() map[string]model.Client {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		if c, err := anthropic.NewFromAPIKey(key, 1024); err == nil {
			return map[string]model.Client{"default": c}
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c, err := openai.NewFromAPIKey(key, 1024); err == nil {
			return map[string]model.Client{"default": c}
		}
	}
	return map[string]model.Client{"default": echoClient{}}
}

func seedAgentAndSession(ctx context.Context, sessions session.Store, tools *tool.Registry) (session.Agent, session.Session, error) {
	names := make([]string, 0, len(tools.Schemas()))
	for name := range tools.Schemas() {
		names = append(names, name)
	}
	agent, err := sessions.CreateAgent(ctx, session.Agent{
		Name:         "demo",
		SystemPrompt: "You are a terse, tool-using assistant.",
		DefaultModel: "default",
		Capabilities: []session.Capability{{Name: "general", ToolNames: names}},
	})
	if err != nil {
		return session.Agent{}, session.Session{}, err
	}
	sess, err := sessions.CreateSession(ctx, session.Session{AgentID: agent.ID})
	if err != nil {
		return session.Agent{}, session.Session{}, err
	}
	return agent, sess, nil
}

// runNativeDemo exercises the C1-C5 durable substrate (task queue, breaker,
// worker pool, janitor, activity runtime) independently of the engine-driven
// turn above: it enqueues one addition task, lets a worker pool claim and
// execute it, and shuts the pool down once it completes.
func runNativeDemo(ctx context.Context, cfg config.Config, logger telemetry.Logger, tasks taskqueue.Store, breakers breaker.Registry, workers workerpool.Registry, events eventlog.Appender, surface *admin.Surface) {
	registry := activity.NewRegistry()
	registry.Register(activity.ToolActivityType("add"), func(_ context.Context, input map[string]any) (map[string]any, error) {
		a, _ := input["a"].(float64)
		b, _ := input["b"].(float64)
		return map[string]any{"sum": a + b}, nil
	}, cfg.TaskDefaultVisibility)

	runtime := activity.NewRuntime(registry, tasks, events, breakers, cfg.TaskBackoffBase, cfg.TaskBackoffCap, cfg.TaskDefaultVisibility, logger)
	pool := workerpool.NewPool(workerpool.Registration{
		ActivityTypes:  []string{activity.ToolActivityType("add")},
		MaxConcurrency: 2,
	}, tasks, breakers, runtime, cfg.HeartbeatInterval, cfg.TaskDefaultVisibility, logger)

	if err := workers.Register(ctx, workerpool.WorkerRecord{
		ID:             pool.ID(),
		ActivityTypes:  []string{activity.ToolActivityType("add")},
		MaxConcurrency: 2,
		Status:         workerpool.StateActive,
		AcceptingTasks: true,
	}); err != nil {
		logger.Warn("register worker", "error", err)
	}

	janitor := workerpool.NewJanitor(workers, tasks, time.Duration(cfg.WorkerStaleMultiplier)*cfg.HeartbeatInterval, time.Second, logger)
	jCtx, jCancel := context.WithCancel(ctx)
	go janitor.Run(jCtx)

	pool.Start(ctx)

	if _, err := tasks.Enqueue(ctx, "native-demo", "add#1", activity.ToolActivityType("add"),
		map[string]any{"session_id": "native-demo", "a": float64(2), "b": float64(3)},
		taskqueue.EnqueueOptions{MaxAttempts: cfg.TaskDefaultMaxAttempts}); err != nil {
		logger.Warn("enqueue native demo task", "error", err)
	}

	time.Sleep(200 * time.Millisecond)
	pool.Drain()
	pool.Stop()
	jCancel()

	if err := surface.DrainWorker(ctx, pool.ID()); err != nil {
		logger.Warn("drain worker", "error", err)
	}
}

// systemClock implements timetool.Clock over the wall clock.
type systemClock struct{}

func (systemClock) NowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

// echoClient is a credential-free model.Client fallback: it echoes the last
// user message back as text, with no tool calls, so the demo turn reaches
// workflow.StateCompleted without any provider configured.
type echoClient struct{}

func (echoClient) Generate(_ context.Context, req model.Request) (model.Response, error) {
	text := "(no model configured) you said: "
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != model.RoleUser {
			continue
		}
		for _, p := range req.Messages[i].Parts {
			if p.Kind == model.PartText {
				text += p.Text
			}
		}
		break
	}
	return model.Response{Text: text}, nil
}

// handleTracker implements admin.SignalSink by forwarding a signal to the
// running engine.WorkflowHandle for the given workflow id.
type handleTracker struct {
	handles map[string]engine.WorkflowHandle
}

func newHandleTracker() *handleTracker {
	return &handleTracker{handles: make(map[string]engine.WorkflowHandle)}
}

func (t *handleTracker) track(workflowID string, h engine.WorkflowHandle) {
	t.handles[workflowID] = h
}

func (t *handleTracker) Deliver(ctx context.Context, workflowID string, signal admin.SignalType, payload map[string]any) error {
	h, ok := t.handles[workflowID]
	if !ok {
		return fmt.Errorf("agentctl: no running workflow %q", workflowID)
	}
	return h.Signal(ctx, string(signal), payload)
}
