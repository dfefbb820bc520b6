// Package weathertool provides a weather lookup tool over a small fixed
// set of cities, exercising spec.md §8's parallel-tool-call scenario (three
// concurrent weather calls scheduled by one reason step).
package weathertool

import (
	"context"
	"fmt"

	"turnengine/tool"
)

// Weather implements tool.Adapter for a city-keyed weather lookup.
type Weather struct {
	// Data maps a lowercase city name to a human-readable condition. Tests
	// and the demo CLI supply a small fixed set; a real deployment would
	// replace this with an HTTP-backed implementation without changing the
	// Adapter contract.
	Data map[string]string
}

func (Weather) Name() string { return "weather" }
func (Weather) Description() string {
	return "Returns the current weather conditions for a named city."
}

func (Weather) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"city"},
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
	}
}

func (w Weather) Invoke(_ context.Context, args map[string]any, _ tool.SessionContext) ([]tool.ContentPart, error) {
	city, _ := args["city"].(string)
	condition, ok := w.Data[city]
	if !ok {
		return nil, fmt.Errorf("weathertool: no data for city %q", city)
	}
	return []tool.ContentPart{{Kind: tool.PartText, Text: fmt.Sprintf("%s: %s", city, condition)}}, nil
}
