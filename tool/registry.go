package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	// ErrUnknownTool is returned when invoking a tool name not present in the
	// Registry.
	ErrUnknownTool = errors.New("tool: unknown tool")
	// ErrInvalidArguments is wrapped by Invoke's error when args fail the
	// tool's JSON Schema.
	ErrInvalidArguments = errors.New("tool: invalid arguments")
)

// Registry holds the set of tools an agent's capabilities can reference and
// validates arguments against each tool's JSON Schema before invocation
// (spec.md §7: InvalidInput is not retriable and must be rejected before
// the activity's external side effect runs).
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Adapter
	schemas map[string]*jsonschema.Schema
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Adapter), schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles t's schema and adds it under its own name. On a
// malformed schema it returns an error and registers nothing.
func (r *Registry) Register(t Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	compiler := jsonschema.NewCompiler()
	resourceURL := "tool:" + name
	if err := compiler.AddResource(resourceURL, t.Schema()); err != nil {
		return fmt.Errorf("tool: compile schema for %s: %w", name, err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("tool: compile schema for %s: %w", name, err)
	}
	r.tools[name] = t
	r.schemas[name] = schema
	return nil
}

// Schemas returns a copy of the registered adapters keyed by tool name;
// each adapter supplies its own name, description and schema.
func (r *Registry) Schemas() map[string]Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Adapter, len(r.tools))
	for k, v := range r.tools {
		out[k] = v
	}
	return out
}

// Invoke validates args against the tool's schema, then calls it. Schema
// validation failures are never retried — the caller (activity.Runtime)
// must classify them as InvalidInput.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any, sessCtx SessionContext) ([]ContentPart, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownTool
	}
	if err := schema.Validate(toAny(args)); err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrInvalidArguments, name, err)
	}
	return t.Invoke(ctx, args, sessCtx)
}

func toAny(args map[string]any) any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
