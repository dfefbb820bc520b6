// Package mathtool provides add/divide tools exercising the end-to-end
// single-tool-call and error-propagation scenarios in spec.md §8.
package mathtool

import (
	"context"
	"errors"
	"strconv"

	"turnengine/tool"
)

// Add implements tool.Adapter for addition of two numbers.
type Add struct{}

func (Add) Name() string        { return "add" }
func (Add) Description() string { return "Adds two numbers and returns their sum." }

func (Add) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"a", "b"},
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
	}
}

func (Add) Invoke(_ context.Context, args map[string]any, _ tool.SessionContext) ([]tool.ContentPart, error) {
	a, aok := args["a"].(float64)
	b, bok := args["b"].(float64)
	if !aok || !bok {
		return nil, errors.New("mathtool: a and b must be numbers")
	}
	return []tool.ContentPart{{Kind: tool.PartText, Text: formatSum(a + b)}}, nil
}

// Divide implements tool.Adapter for division of two numbers, deliberately
// failing on division by zero to exercise spec.md §8's error-propagation
// scenario.
type Divide struct{}

func (Divide) Name() string        { return "divide" }
func (Divide) Description() string { return "Divides the first number by the second." }

func (Divide) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"numerator", "denominator"},
		"properties": map[string]any{
			"numerator":   map[string]any{"type": "number"},
			"denominator": map[string]any{"type": "number"},
		},
	}
}

func (Divide) Invoke(_ context.Context, args map[string]any, _ tool.SessionContext) ([]tool.ContentPart, error) {
	num, nok := args["numerator"].(float64)
	den, dok := args["denominator"].(float64)
	if !nok || !dok {
		return nil, errors.New("mathtool: numerator and denominator must be numbers")
	}
	if den == 0 {
		return nil, errors.New("mathtool: division by zero")
	}
	return []tool.ContentPart{{Kind: tool.PartText, Text: formatSum(num / den)}}, nil
}

func formatSum(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
