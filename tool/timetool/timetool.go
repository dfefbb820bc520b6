// Package timetool provides a current-time tool, grounded on the same
// synchronous-side-effect-free pattern as mathtool but backed by a clock
// rather than pure computation.
package timetool

import (
	"context"

	"turnengine/tool"
)

// Clock is the narrow time source Now depends on, so tests can supply a
// fixed instant instead of wall-clock time.
type Clock interface {
	NowRFC3339() string
}

// Now implements tool.Adapter, returning the current time in a named
// timezone-agnostic form (RFC3339, always UTC).
type Now struct {
	Clock Clock
}

func (Now) Name() string        { return "current_time" }
func (Now) Description() string { return "Returns the current UTC time in RFC3339 format." }

func (Now) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (n Now) Invoke(_ context.Context, _ map[string]any, _ tool.SessionContext) ([]tool.ContentPart, error) {
	return []tool.ContentPart{{Kind: tool.PartText, Text: n.Clock.NowRFC3339()}}, nil
}
